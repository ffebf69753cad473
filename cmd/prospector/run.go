package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"prospector/internal/agent"
	"prospector/internal/config"
	"prospector/internal/store"
	"prospector/internal/types"
)

var (
	runOutputPath  string
	runContextPath string
)

var runCmd = &cobra.Command{
	Use:   "run <leads.csv>",
	Short: "Process a batch of leads from a CSV file",
	Long: `Reads leads from a CSV file with columns: name, linkedin_url,
company_name, title, and optionally id. Plans and executes research for the
whole batch, qualifies every lead, and writes copy for leads above the
qualification threshold.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if runContextPath != "" {
			data, err := os.ReadFile(runContextPath)
			if err != nil {
				return fmt.Errorf("failed to read campaign context: %w", err)
			}
			cfg.Campaign = string(data)
		}
		if cfg.Campaign == "" {
			return fmt.Errorf("no campaign context: set campaign in the config or pass --context")
		}

		leads, err := loadLeadsCSV(args[0])
		if err != nil {
			return err
		}
		if len(leads) == 0 {
			return fmt.Errorf("no leads in %s", args[0])
		}

		a, _, err := buildPipeline(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		bold := color.New(color.Bold)
		green := color.New(color.FgGreen)
		red := color.New(color.FgRed)

		bold.Printf("Processing %d leads...\n\n", len(leads))
		cb := agent.TaskCallback{
			OnStart: func(task types.Task) {
				fmt.Printf("  → %s\n", task.Description)
			},
			OnComplete: func(task types.Task, ok bool, err error) {
				if ok {
					green.Printf("  ✓ %s\n", task.Description)
				} else {
					red.Printf("  ✗ %s (%v)\n", task.Description, err)
				}
			},
		}

		batch, err := a.ProcessLeads(cmd.Context(), leads, cb)
		if err != nil {
			return err
		}

		if cfg.Store.LedgerPath != "" {
			ledger, err := store.Open(cfg.Store.LedgerPath, logger)
			if err != nil {
				return err
			}
			defer ledger.Close()
			if err := ledger.SaveRun(batch, cfg.Campaign); err != nil {
				return err
			}
		}

		printBatchSummary(batch)

		if runOutputPath != "" {
			data, err := json.MarshalIndent(batch, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(runOutputPath, data, 0o644); err != nil {
				return fmt.Errorf("failed to write results: %w", err)
			}
			fmt.Printf("\nResults written to %s\n", runOutputPath)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runOutputPath, "output", "o", "", "write full results JSON to this path")
	runCmd.Flags().StringVar(&runContextPath, "context", "", "path to a campaign context file (overrides config)")
}

// loadLeadsCSV reads leads from a CSV with a header row.
func loadLeadsCSV(path string) ([]types.Lead, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open leads file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	col := make(map[string]int)
	for i, name := range rows[0] {
		col[name] = i
	}
	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var leads []types.Lead
	for i, row := range rows[1:] {
		lead := types.Lead{
			ID:          field(row, "id"),
			Name:        field(row, "name"),
			LinkedInURL: field(row, "linkedin_url"),
			CompanyName: field(row, "company_name"),
			Title:       field(row, "title"),
		}
		if lead.ID == "" {
			lead.ID = fmt.Sprintf("lead_%d", i)
		}
		if lead.Name == "" {
			continue
		}
		leads = append(leads, lead)
	}
	return leads, nil
}

func printBatchSummary(batch types.BatchResult) {
	bold := color.New(color.Bold)

	counts := map[string]int{}
	for _, l := range batch.Leads {
		counts[l.Qualification.Priority]++
	}

	bold.Printf("\nRun %s complete\n", batch.RunID)
	fmt.Printf("  High priority:   %d\n", counts[types.PriorityHigh])
	fmt.Printf("  Medium priority: %d\n", counts[types.PriorityMedium])
	fmt.Printf("  Low priority:    %d\n", counts[types.PriorityLow])
	fmt.Printf("  Copy generated:  %d/%d\n", batch.QualifiedCount(), len(batch.Leads))

	for _, l := range batch.Leads {
		fmt.Printf("\n  %s (%s)  %d/100 [%s]\n", l.Lead.Name, l.Lead.CompanyName, l.Qualification.Score, l.Qualification.Priority)
		if len(l.ErroredFetches) > 0 {
			color.Yellow("    partial data: %v", l.ErroredFetches)
		}
	}
}
