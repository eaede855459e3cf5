package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/config"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/engine"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/metrics"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/repository"
)

// Deps carries everything the API server needs. Clients defaults to
// engine.DefaultClientFactory when nil.
type Deps struct {
	Config    *config.Config
	Engine    *engine.Engine
	Templates *repository.TemplateRepository
	Instances *repository.InstanceRepository
	Mappings  *repository.MappingRepository
	Deploys   *repository.DeployRepository
	Overrides *repository.OverrideRepository
	APIKeys   *repository.APIKeyRepository
	Clients   engine.ClientFactory
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Version   string
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server

	config    *config.Config
	engine    *engine.Engine
	templates *repository.TemplateRepository
	instances *repository.InstanceRepository
	mappings  *repository.MappingRepository
	deploys   *repository.DeployRepository
	overrides *repository.OverrideRepository
	apiKeys   *repository.APIKeyRepository
	clients   engine.ClientFactory
	metrics   *metrics.Metrics
	logger    *slog.Logger
	version   string
	startTime time.Time
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	if deps.Clients == nil {
		deps.Clients = engine.DefaultClientFactory
	}
	s := &Server{
		router:    chi.NewRouter(),
		config:    deps.Config,
		engine:    deps.Engine,
		templates: deps.Templates,
		instances: deps.Instances,
		mappings:  deps.Mappings,
		deploys:   deps.Deploys,
		overrides: deps.Overrides,
		apiKeys:   deps.APIKeys,
		clients:   deps.Clients,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		version:   deps.Version,
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.metrics.HTTPMiddleware())
	s.router.Use(middleware.Recoverer)

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	// Prometheus scrape endpoint, optionally IP-restricted
	if s.config.Metrics.Enabled {
		s.router.Handle("/metrics", metrics.Handler(s.metrics, s.config.Metrics.AllowedIPs, s.logger))
	}

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", s.handleTemplateList)
			r.Post("/", s.handleTemplateCreate)
			r.Get("/{id}", s.handleTemplateGet)
			r.Put("/{id}", s.handleTemplateUpdate)
			r.Delete("/{id}", s.handleTemplateDelete)
			r.Post("/{id}/restore", s.handleTemplateRestore)
			r.Post("/{id}/sync", s.handleTemplateSync)
			r.Get("/{id}/diff", s.handleTemplateDiff)
			r.Post("/{id}/deploy", s.handleTemplateDeploy)
			r.Get("/{id}/history", s.handleTemplateHistory)
			r.Get("/{id}/mappings", s.handleMappingList)
			r.Delete("/{id}/mappings/{instanceID}", s.handleMappingDelete)
		})

		r.Route("/instances", func(r chi.Router) {
			r.Get("/", s.handleInstanceList)
			r.Post("/", s.handleInstanceCreate)
			r.Get("/{id}", s.handleInstanceGet)
			r.Put("/{id}", s.handleInstanceUpdate)
			r.Delete("/{id}", s.handleInstanceDelete)
			r.Post("/{id}/test", s.handleInstanceTest)
			r.Get("/{id}/overrides", s.handleOverrideList)
			r.Put("/{id}/overrides/{trashID}", s.handleOverrideSet)
			r.Delete("/{id}/overrides/{trashID}", s.handleOverrideDelete)
		})

		r.Get("/updates", s.handleUpdates)
		r.Get("/history/{id}", s.handleHistoryGet)
		r.Get("/backups/{id}", s.handleBackupGet)
	})
}

// Handler exposes the configured router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.Server.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.Server.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
