package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/strategichq/compass/internal/domain"
	"github.com/strategichq/compass/internal/metrics"
	"github.com/strategichq/compass/internal/sensitivity"
	"github.com/strategichq/compass/internal/worker"
)

// Server is the HTTP front of the scoring engine.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer wires the router, middleware chain and handlers. The metrics
// manager may be nil, in which case the /metrics endpoint is not mounted.
func NewServer(cfg domain.ServerConfig, store domain.ResultsStore, cache domain.Cache, bus domain.EventBus, engine *worker.Engine, analyzer *sensitivity.Analyzer, m *metrics.Manager, version string) *Server {
	handler := NewHandler(store, cache, bus, engine, analyzer, m, version)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))
	if m != nil {
		router.Use(MetricsMiddleware(m))
	}

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if m != nil {
		router.Handle("/metrics", m.Handler())
	}

	router.Route("/sessions/{id}", func(r chi.Router) {
		r.Post("/score", handler.Score)
		r.Post("/simulate", handler.Simulate)
		r.Post("/sensitivity", handler.Sensitivity)
		r.Get("/results", handler.GetResults)
		r.Get("/export", handler.Export)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start listens on the configured address. Blocks until shutdown.
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
