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
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Post("/relay", s.handleOpenRelay)
				r.Post("/test", s.handleTestConnection)
				r.Get("/camera/snapshot", s.handleCameraSnapshot)
				r.Get("/camera/stream", s.handleCameraStream)
			})
		})
	})

	return r
}

// handleHealth returns the server health status and a per-device
// connectivity summary.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	devices := make(map[string]bool)
	for id, snap := range s.manager.Snapshots() {
		devices[id] = snap.Connected
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"devices": devices,
	})
}
