package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"journal-api/internal/config"
	"journal-api/internal/cors"
	"journal-api/internal/middleware"
	"journal-api/pkg/logger"
)

// Server represents the journal API server
type Server struct {
	config     *config.Config
	log        logger.Logger
	httpServer *http.Server
	router     *Router
	metrics    *middleware.MetricsMiddleware
	tracing    *middleware.TracingMiddleware
	cors       *middleware.CORSMiddleware
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, registry *cors.Registry, log logger.Logger) *Server {
	metrics := middleware.NewMetricsMiddleware(&cfg.Metrics, log)
	tracing := middleware.NewTracingMiddleware(&cfg.Tracing, log)

	s := &Server{
		config:  cfg,
		log:     log,
		router:  NewRouter(log),
		metrics: metrics,
		tracing: tracing,
		cors:    middleware.NewCORSMiddleware(registry, log, metrics),
	}

	metrics.RegisterMetricsEndpoint(s.router)

	s.httpServer = &http.Server{
		Addr:           cfg.Server.Address,
		Handler:        s.Handler(),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    time.Duration(cfg.Server.IdleTimeout) * time.Second,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	return s
}

// Handle registers an application handler. Routes may be added until Start is called.
func (s *Server) Handle(path string, h http.Handler, methods ...string) {
	s.router.Handle(path, h, methods...)
}

// Handler returns the full request pipeline.
// CORS wraps the router so preflights are answered before route matching.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = s.cors.CORS(h)
	h = s.metrics.Metrics(h)
	return s.tracing.Tracing(h)
}

// Start starts the HTTP server and blocks until it is stopped
func (s *Server) Start() error {
	s.log.Info("Starting server", logger.String("address", s.config.Server.Address))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error("Failed to start server", logger.Error(err))
		return err
	}

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("Shutting down server...")
	err := s.httpServer.Shutdown(ctx)
	if terr := s.tracing.Shutdown(ctx); terr != nil {
		s.log.Error("Failed to shut down tracing", logger.Error(terr))
	}
	return err
}
