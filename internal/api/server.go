// Package api exposes the persisted execution state over a read-only
// HTTP interface for dashboards and operators. Execution itself is only
// reachable through the CLI; the server never mutates the store.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/cascade-labs/cascade/internal/core"
	"github.com/cascade-labs/cascade/internal/logging"
)

// Server serves the execution tree and error log.
type Server struct {
	router chi.Router
	store  core.ExecutionStore
	logger *logging.Logger
	cors   []string
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *logging.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAllowedOrigins sets the CORS origin allowlist.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.cors = origins
	}
}

// NewServer creates a read-only API server over the store.
func NewServer(store core.ExecutionStore, opts ...ServerOption) *Server {
	s := &Server{
		store:  store,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.loggingMiddleware)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   s.cors,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(corsHandler.Handler)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/requests", func(r chi.Router) {
			r.Get("/", s.handleListRequests)
			r.Get("/{requestID}", s.handleGetRequest)
		})
		r.Get("/errors", s.handleListErrors)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}
