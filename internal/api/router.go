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

	r.Route("/api/v1", func(r chi.Router) {
		// Health and metrics (no auth, for probes and monitoring)
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// WebSocket (auth via token query param, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Get("/logs", s.handleDeviceLogs)
					r.Post("/control", s.handleDeviceControl)
					r.Post("/led", s.handleDeviceLED)
					r.Post("/config", s.handleDeviceConfig)
				})
			})

			r.Route("/matches", func(r chi.Router) {
				r.Get("/", s.handleListMatches)
				r.Post("/", s.handleCreateMatch)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetMatch)
					r.Get("/ranking", s.handleMatchRanking)
					r.Post("/start", s.handleStartMatch)
					r.Post("/cancel", s.handleCancelMatch)
					r.Post("/end", s.handleEndMatch)
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
