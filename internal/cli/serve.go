package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iammorganparry/claude-mem/internal/config"
	"github.com/iammorganparry/claude-mem/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the memory worker",
	Long:  `Run the long-lived worker that receives hooks, drives extractor sessions, and serves the read APIs.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closeLog := config.SetupLogger(cfg.LogDir, cfg.LogLevel)
	defer func() { _ = closeLog() }()

	w, err := worker.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return w.Run(ctx)
}
