package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"financial-diagnostics/config"
	"financial-diagnostics/internal/app"
	"financial-diagnostics/internal/database"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := app.InitLogging(cfg.Logging)
	logger.Info("Structured logging initialized")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(cfg.Database.DSN()); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize services")
	}

	if err := a.Serve(ctx); err != nil {
		logger.WithError(err).Error("Server stopped with error")
		a.Close()
		os.Exit(1)
	}

	a.Close()
	logger.Info("Shutdown complete")
}
