package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/api"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/arr"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/config"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/db"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/engine"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/metrics"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/repository"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/trash"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/worker"
)

// App is the main application
type App struct {
	config    *config.Config
	database  *db.DB
	cache     *trash.Cache
	engine    *engine.Engine
	apiServer *api.Server
	worker    *worker.Worker
	collector *metrics.Collector
	logger    *slog.Logger
}

// New creates a new application
func New(cfg *config.Config, version string) (*App, error) {
	logger := setupLogger(cfg.Logging)

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	cache, err := trash.NewCache(cfg.Trash.CachePath)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to open catalog cache: %w", err)
	}

	templates := repository.NewTemplateRepository(database.DB)
	instances := repository.NewInstanceRepository(database.DB)
	mappings := repository.NewMappingRepository(database.DB)
	deploys := repository.NewDeployRepository(database.DB)
	overrides := repository.NewOverrideRepository(database.DB)
	apiKeys := repository.NewAPIKeyRepository(database.DB)
	stats := repository.NewStatsRepository(database.DB)

	m := metrics.New()
	collector := metrics.NewCollector(m, stats, cfg.Database.Path, 0)

	fetcher := trash.NewGitHubFetcher(cfg.Trash.Owner, cfg.Trash.Repo, cfg.Trash.Branch, cfg.Trash.GitHubToken)

	eng := engine.New(engine.Deps{
		Templates:    templates,
		Instances:    instances,
		Mappings:     mappings,
		Deploys:      deploys,
		Overrides:    overrides,
		Cache:        cache,
		Fetcher:      fetcher,
		Metrics:      m,
		Logger:       logger,
		QualityOrder: arr.QualityOrder(cfg.Trash.QualityOrder),
		BackupTTL:    cfg.Backups.TTL,
	})

	apiServer := api.NewServer(api.Deps{
		Config:    cfg,
		Engine:    eng,
		Templates: templates,
		Instances: instances,
		Mappings:  mappings,
		Deploys:   deploys,
		Overrides: overrides,
		APIKeys:   apiKeys,
		Metrics:   m,
		Logger:    logger.With("component", "api"),
		Version:   version,
	})

	bgWorker := worker.New(eng, deploys, cfg.Sync.AutoInterval, cfg.Backups.CleanupInterval, logger)

	return &App{
		config:    cfg,
		database:  database,
		cache:     cache,
		engine:    eng,
		apiServer: apiServer,
		worker:    bgWorker,
		collector: collector,
		logger:    logger,
	}, nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting arrdash",
		"api_addr", a.config.Server.ListenAddr,
		"database", a.config.Database.Path,
		"catalog", a.config.Trash.Owner+"/"+a.config.Trash.Repo+"@"+a.config.Trash.Branch,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.collector.Start(ctx)
	a.worker.Start()

	errCh := make(chan error, 1)
	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop background jobs first so nothing opens new deployments
	a.worker.Stop()
	a.collector.Stop()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if err := a.cache.Close(); err != nil {
		a.logger.Error("catalog cache close error", "error", err)
	}

	if err := a.database.Close(); err != nil {
		a.logger.Error("database close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
