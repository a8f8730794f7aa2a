package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter constructs the chi mux with all routes wired.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth())

	r.Route("/schedule", func(r chi.Router) {
		r.Post("/", s.handleScheduleJob())
		r.Get("/", s.handleListJobs())
		r.Delete("/{jobID}", s.handleRemoveJob())
	})

	r.Route("/system", func(r chi.Router) {
		r.Get("/status", s.handleStatus())
		r.Get("/history", s.handleHistory())
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	return r
}
