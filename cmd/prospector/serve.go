package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"prospector/internal/api"
	"prospector/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the qualification HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.Campaign == "" {
			return fmt.Errorf("no campaign context: set campaign or context_path in the config")
		}

		a, _, err := buildPipeline(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		server := api.NewServer(cfg.Server.Addr, a, logger)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.ListenAndServe()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			logger.Info("shutting down", zap.String("signal", sig.String()))
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}
