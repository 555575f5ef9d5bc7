package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"go-chi-calculator/internal/arithmetic"
	"go-chi-calculator/internal/handlers"
	"go-chi-calculator/internal/observability"
	"go-chi-calculator/internal/session"
)

// NewRouter wires the middleware stack and every endpoint. sessions may be
// nil, in which case only the stateless endpoints are served.
func NewRouter(sessions *session.Handler) http.Handler {

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(observability.RequestIDMiddleware)
	r.Use(observability.TracingMiddleware)
	r.Use(observability.LoggingMiddleware)

	r.Get("/health", handlers.Health)

	r.Handle("/metrics", observability.PrometheusHandler())

	arithmetic.RegisterRoutes(r)
	if sessions != nil {
		sessions.RegisterRoutes(r)
	}

	return r
}
