// Package server wires the gateway's chi router and HTTP handlers,
// grounded on _examples/Howard-nolan-llmrouter/internal/server/server.go:
// a thin Server type holding the router, config, and registry, built
// once at startup and implementing http.Handler by delegating to chi.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/howard-nolan/llmrouter/internal/config"
	"github.com/howard-nolan/llmrouter/internal/metrics"
	"github.com/howard-nolan/llmrouter/internal/provider"
)

// Server holds everything a request handler needs: the immutable
// provider registry, resolved config, and metrics. No mutable shared
// state beyond these read-only handles (spec.md §5).
type Server struct {
	router   chi.Router
	cfg      *config.Config
	registry *provider.Registry
	metrics  *metrics.Metrics
}

// New builds a Server and registers its routes.
func New(cfg *config.Config, registry *provider.Registry, m *metrics.Metrics) *Server {
	s := &Server{cfg: cfg, registry: registry, metrics: m}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleHealth)
	r.Get("/providers", s.handleProviders)
	r.Get("/v1/models", s.handleModels)
	r.Post("/v1/chat/completions", s.handleChatCompletions)
	r.Post("/v1/responses", s.handleResponses)
	if m != nil {
		r.Get("/metrics", m.Handler().ServeHTTP)
	}

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
