// prospector researches, qualifies, and writes outreach copy for batches of
// sales leads, deduplicating company-level research across leads.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"prospector/internal/agent"
	"prospector/internal/config"
	"prospector/internal/contextstore"
	"prospector/internal/llm"
	"prospector/internal/tools"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "prospector",
	Short: "prospector - lead research and qualification agent",
	Long: `prospector plans research for a batch of sales leads, deduplicates
company-level work across leads at the same company, runs all data gathering
concurrently, and scores each lead against your campaign context.

Research results are persisted as addressable context records, so repeated
runs reuse the same storage locations instead of accumulating duplicates.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "prospector.yaml", "path to config file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("prospector 0.3.0")
	},
}

// buildPipeline wires the agent from config: LLM clients, fetch registry, and
// the context store (rebuilding its index from any records already on disk).
func buildPipeline(ctx context.Context, cfg *config.Config) (*agent.Agent, *contextstore.Store, error) {
	var client, copyClient llm.Client
	switch cfg.LLM.Provider {
	case "gemini":
		if cfg.LLM.APIKey != "" {
			c, err := llm.NewGeminiClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
			if err != nil {
				return nil, nil, err
			}
			client = c
			if cfg.LLM.CopyModel != "" && cfg.LLM.CopyModel != cfg.LLM.Model {
				cc, err := llm.NewGeminiClient(ctx, cfg.LLM.APIKey, cfg.LLM.CopyModel)
				if err != nil {
					return nil, nil, err
				}
				copyClient = cc
			} else {
				copyClient = c
			}
		}
	default:
		if cfg.LLM.APIKey != "" {
			base := llm.OpenAIConfig{
				APIKey:  cfg.LLM.APIKey,
				BaseURL: cfg.LLM.BaseURL,
				Model:   cfg.LLM.Model,
				Timeout: cfg.LLM.Timeout,
			}
			client = llm.NewOpenAIClientWithConfig(base)
			copyCfg := base
			if cfg.LLM.CopyModel != "" {
				copyCfg.Model = cfg.LLM.CopyModel
			}
			copyClient = llm.NewOpenAIClientWithConfig(copyCfg)
		}
	}
	if client == nil {
		logger.Warn("no LLM API key configured; running with deterministic planning and fallback scoring")
	}

	registry := tools.NewDefaultRegistry(cfg.Tools.RapidAPIKey, logger)

	ctxStore, err := contextstore.New(cfg.Store.ContextDir, client, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := ctxStore.Rebuild(); err != nil {
		return nil, nil, err
	}

	a := agent.New(cfg.Campaign, client, copyClient, registry, ctxStore, agent.Options{
		QualificationThreshold: cfg.Agent.QualificationThreshold,
		MaxConcurrentFetches:   cfg.Agent.MaxConcurrentFetches,
	}, logger)
	return a, ctxStore, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
