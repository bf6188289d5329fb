// Package app wires configuration, storage and services together for the
// server and the operator CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"financial-diagnostics/config"
	"financial-diagnostics/internal/api"
	"financial-diagnostics/internal/cache"
	"financial-diagnostics/internal/database"
	"financial-diagnostics/internal/events"
	"financial-diagnostics/internal/logging"
	"financial-diagnostics/internal/publication"
	"financial-diagnostics/internal/recompute"
)

// App holds the long-lived components
type App struct {
	Config     *config.Config
	Logger     *logging.Logger
	DB         *database.DB
	Repo       *database.Repository
	Cache      *cache.CacheService // nil when Redis is disabled
	Bus        *events.EventBus
	Service    *recompute.Service
	Recomputer *recompute.RetryingService
	Gate       *publication.Gate
	Reconciler *recompute.Reconciler
}

// InitLogging builds the default logger from config
func InitLogging(cfg config.LoggingConfig) *logging.Logger {
	logger := logging.New(&logging.Config{
		Level:       cfg.Level,
		Output:      cfg.Output,
		JSONFormat:  cfg.JSONFormat,
		IncludeFile: cfg.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	return logger
}

// New connects to the database and Redis and builds every service. The
// caller owns Close.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*App, error) {
	db, err := database.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	repo := database.NewRepository(db)

	a := &App{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Repo:   repo,
		Bus:    events.NewEventBus(),
	}

	if cfg.Redis.Enabled {
		cs, err := cache.NewCacheService(cfg.Redis)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create cache service: %w", err)
		}
		a.Cache = cs
		publication.NewSideEffects(cs, cs, cfg.Publication).Register(a.Bus)
		logger.Info("Cache side effects registered", "categories", cfg.Publication.ChartCategories)
	} else {
		logger.Warn("Redis disabled, chart invalidation and report requests are skipped")
	}

	a.Bus.Subscribe(events.EventRecomputeFailed, func(e events.Event) {
		logger.WithComponent("events").Error("Recompute failed",
			"company_id", e.GetString("company_id"), "phase", e.GetString("phase"), "error", e.GetString("error"))
	})

	a.Service = recompute.NewService(repo, a.Bus, logger)
	a.Service.SetConcurrency(cfg.Recompute.Concurrency)
	a.Recomputer = recompute.NewRetryingService(a.Service, recompute.RetryConfigFrom(cfg.Recompute))
	a.Reconciler = recompute.NewReconciler(repo, a.Service, cfg.Recompute.ReconcileLimit, logger)
	a.Gate = publication.NewGate(repo, a.Bus)

	return a, nil
}

// Server builds the HTTP boundary over the app's services
func (a *App) Server() *api.Server {
	deps := api.Dependencies{
		Recomputer:  a.Recomputer,
		Publication: a.Gate,
		Metrics:     a.Repo,
		Reconciler:  a.Reconciler,
		SeriesTTL:   a.Config.Publication.SeriesCacheTTL,
	}
	if a.Cache != nil {
		deps.Cache = a.Cache
	}
	return api.NewServer(a.Config.Server, deps)
}

// Close drains pending side effects and releases connections
func (a *App) Close() {
	done := make(chan struct{})
	go func() {
		a.Bus.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		a.Logger.Warn("Timed out waiting for event subscribers")
	}

	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.WithError(err).Warn("Error closing cache")
		}
	}
	a.DB.Close()
}
