// Package api exposes the Heron decision and reward engine over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/open-sustainability/heron/internal/domain"
	"github.com/open-sustainability/heron/internal/metrics"
	"github.com/open-sustainability/heron/internal/rules"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, ledger domain.BadgeLedger, m *metrics.Metrics, version string, scoreTTL time.Duration) *Server {
	handler := NewHandler(repo, cache, bus, engine, ledger, m, version, scoreTTL)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression
	if m != nil {
		router.Use(MetricsMiddleware(m))
	}

	// Health and observability endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if m != nil {
		router.Handle("/metrics", m.Handler())
	}

	// Decision pipeline
	router.Post("/score", handler.Score)
	router.Post("/classify-action", handler.ClassifyAction)

	// Reward pipeline
	router.Post("/reward", handler.Reward)
	router.Get("/badges/{identity}", handler.GetBadges)

	// Rule set management
	router.Get("/rulesets", handler.ListRuleSets)
	router.Get("/rulesets/{version}", handler.GetRuleSet)
	router.Post("/rulesets", handler.CreateRuleSet)
	router.Post("/rulesets/reload", handler.ReloadRuleSets)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
