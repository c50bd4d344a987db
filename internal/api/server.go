// Package api serves the waflite scan and rule administration endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/waflite/waflite/internal/logging"
	"github.com/waflite/waflite/internal/observability"
	"github.com/waflite/waflite/internal/ruleset"
)

// Options wires optional collaborators into the server.
type Options struct {
	Addr              string
	CertFile          string
	KeyFile           string
	Version           string
	Logger            logrus.FieldLogger
	Metrics           *observability.Metrics
	DecisionLog       *logging.DecisionLogger
	ReadHeaderTimeout time.Duration
	// Guard receives every request outside /api/v1.
	Guard http.Handler
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	opts    Options
}

func NewServer(store *ruleset.Store, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	handler := NewHandler(store, opts.Version)
	handler.metrics = opts.Metrics
	handler.decisionLog = opts.DecisionLog

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(RequestIDMiddleware(opts.Logger))
	router.Use(LoggingMiddleware)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handler.Health)

		r.Get("/rules", handler.GetRules)
		r.Put("/rules", handler.ReplaceRules)
		r.Put("/rules/{rid}", handler.PutRule)
		r.Delete("/rules/{rid}", handler.DeleteRule)
		r.Patch("/settings", handler.UpdateSettings)

		r.Post("/scan", handler.Scan)
		r.Post("/batch", handler.Batch)
		r.Get("/stats", handler.Stats)
	})

	if opts.Guard != nil {
		router.NotFound(opts.Guard.ServeHTTP)
	}

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           router,
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		router:  router,
		handler: handler,
		server:  srv,
		opts:    opts,
	}
}

// Start listens on Options.Addr, with TLS when a certificate is set.
func (s *Server) Start() error {
	if s.opts.CertFile != "" && s.opts.KeyFile != "" {
		return s.server.ListenAndServeTLS(s.opts.CertFile, s.opts.KeyFile)
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) Handler() *Handler {
	return s.handler
}
