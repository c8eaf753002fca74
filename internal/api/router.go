package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/approvals", func(r chi.Router) {
			r.Get("/pending", s.handlePending)
			r.Get("/log", s.handleDecisionLog)
		})
	})

	return r
}

// handleHealth reports process health plus per-component probe results.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	components := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			status = "degraded"
			components[name] = err.Error()
			continue
		}
		components[name] = "ok"
	}

	body := map[string]any{
		"status":  status,
		"version": s.version,
	}
	if len(components) > 0 {
		body["components"] = components
	}
	writeJSON(w, http.StatusOK, body)
}
