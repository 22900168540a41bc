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

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Scan control
		r.Route("/scans/grid", func(r chi.Router) {
			r.Post("/start", s.handleStartScan)
			r.Post("/stop", s.handleStopScan)
			r.Get("/status", s.handleScanStatus)
		})

		// Collection bookkeeping (read-only)
		r.Route("/collections/{groupUID}", func(r chi.Router) {
			r.Get("/", s.handleGetGroup)
			r.Get("/records", s.handleListRecords)
		})
	})

	return r
}
