package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// routes builds the HTTP mux: a health check, the four pipeline stages,
// and (when metrics are configured) a Prometheus scrape endpoint.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/", s.handleHealth)
	r.Post("/topic_tree", s.handleTopicTree)
	r.Post("/claims", s.handleClaims)
	r.Put("/sort_claims_tree/", s.handleSortClaimsTree)
	r.Post("/cruxes", s.handleCruxes)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	return r
}
