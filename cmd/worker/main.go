// Package main is the entrypoint for the settleq worker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rahulvgmr/settleq/internal/config"
	"github.com/rahulvgmr/settleq/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWorker()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"api_base_url", cfg.Worker.APIBaseURL,
		"poll_interval", cfg.Worker.PollInterval,
		"job_timeout", cfg.Worker.JobTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := worker.NewRunner(cfg.Worker, nil)

	slog.Info("worker started")
	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("run worker: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}
