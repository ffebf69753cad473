package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"prospector/internal/config"
	"prospector/internal/store"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent batch runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		ledger, err := store.Open(cfg.Store.LedgerPath, logger)
		if err != nil {
			return err
		}
		defer ledger.Close()

		runs, err := ledger.ListRuns(runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded yet.")
			return nil
		}

		bold := color.New(color.Bold)
		bold.Printf("%-10s  %-20s  %6s  %9s\n", "RUN", "WHEN", "LEADS", "QUALIFIED")
		for _, r := range runs {
			fmt.Printf("%-10s  %-20s  %6d  %9d\n",
				r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.LeadCount, r.QualifiedCount)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run's full results as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		ledger, err := store.Open(cfg.Store.LedgerPath, logger)
		if err != nil {
			return err
		}
		defer ledger.Close()

		batch, err := ledger.GetRun(args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(batch)
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "number of runs to list")
}
