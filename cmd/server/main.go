package main

import (
	"context"
	"log/slog"
	"os"

	"go-telemed/internal/app"
	"go-telemed/internal/config"
	"go-telemed/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Pretty output in development, JSON otherwise.
	slog.SetDefault(logger.New(os.Stdout, cfg.IsDevelopment(), cfg.LogLevel))

	application, err := app.New(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("application run failed", "error", err)
		os.Exit(1)
	}
}
