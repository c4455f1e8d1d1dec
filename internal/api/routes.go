package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hyperengineering/manifold/internal/metrics"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Recoverer)

	metrics.RegisterDefault()

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes (no auth required)
		r.Get("/health", h.Health)

		// Protected collection CRUD
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))
			r.Get("/{resource}", h.ListResource)
			r.Post("/{resource}", h.CreateResource)
			r.Put("/{resource}/{id}", h.UpdateResource)
			r.Delete("/{resource}/{id}", h.DeleteResource)
		})
	})

	r.Handle("/metrics", metrics.Handler())

	return r
}
