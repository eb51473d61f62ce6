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
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Locker controller endpoints (shared device key, no JWT)
	r.Route("/device", func(r chi.Router) {
		r.Use(s.deviceAuthMiddleware)

		r.Get("/ws", s.handleDeviceWS)
		r.Post("/register", s.handleDeviceRegister)
		r.Post("/heartbeat", s.handleDeviceHeartbeat)
		r.Post("/messages", s.handleDeviceMessages)
		r.Get("/poll", s.handleDevicePoll)
	})

	// Web platform API
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// Status stream: no bearer token on the dial, the single-use
		// ticket from /auth/ws-ticket is the authentication.
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires authentication - user must be logged in to request a ticket
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Locker endpoints
			r.Route("/lockers", func(r chi.Router) {
				r.Get("/", s.handleListLockers)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetLocker)
					r.Post("/commands", s.handleDispatchCommand)
				})
			})

			r.Get("/stats", s.handleStats)
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
