package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	// API v1 routes (read-only)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/stats", s.handleDeviceStats)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/state", s.handleGetDeviceState)
			})
		})

		r.Route("/coordinators", func(r chi.Router) {
			r.Get("/", s.handleListCoordinators)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetCoordinator)
				r.Get("/mesh", s.handleCoordinatorMesh)
				r.Get("/groups", s.handleCoordinatorGroups)
			})
		})
	})

	return r
}
