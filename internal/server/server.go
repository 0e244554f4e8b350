// Package server provides the HTTP API for Kotae.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// Server is the HTTP server for the Kotae API.
type Server struct {
	service *rag.Service
	config  *config.Config
	version string
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server answering with service.
func NewServer(service *rag.Service, cfg *config.Config, version string, logger *zap.Logger) *Server {
	return &Server{
		service: service,
		config:  cfg,
		version: version,
		logger:  utils.LoggerOrNop(logger),
	}
}

// Handler returns the router with every route and middleware installed.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Duration(s.config.Server.RequestTimeoutSeconds) * time.Second))
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware(s.config.Server.AllowedOrigins))

	// Routes used by the browser extension.
	r.Post("/ask", s.handleAsk)
	r.Post("/add_context", s.handleAddContext)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ask", s.handleAskV1)
		r.Post("/retrieve", s.handleRetrieve)
		r.Post("/chunk", s.handleChunk)
		r.Get("/library", s.handleLibrary)
		r.Post("/library/reload", s.handleLibraryReload)
		r.Post("/library/notes", s.handleAddNote)
		r.Delete("/library/documents/{id}", s.handleDeleteDocument)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	})
}
