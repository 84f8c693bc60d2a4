package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())
	r.Use(s.limitBody)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, categoryNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, categoryBadRequest, "method not allowed")
	})

	var writeLimit, analyzeLimit func(http.Handler) http.Handler

	if s.cfg.Server.RateLimit.Enabled {
		writeLimit = s.rateLimitMiddleware(s.cfg.Server.RateLimit.Write)
		analyzeLimit = s.rateLimitMiddleware(s.cfg.Server.RateLimit.Analyze)
	}

	r.Get("/health", s.handleHealth)

	r.Route("/machines", func(r chi.Router) {
		r.Get("/", s.handleListMachines)
		r.Get("/{id}", s.handleGetMachine)

		r.Group(func(r chi.Router) {
			s.useWrite(r, writeLimit)
			r.Post("/", s.handleCreateMachine)
		})
	})

	r.Route("/simulations", func(r chi.Router) {
		r.Get("/", s.handleListSimulations)
		r.Get("/{id}", s.handleGetSimulation)
		r.Get("/{id}/children", s.handleListChildSimulations)
		r.Get("/{id}/artifacts/{artifactID}/url", s.handleArtifactURL)

		r.Group(func(r chi.Router) {
			s.useWrite(r, writeLimit)
			r.Post("/", s.handleCreateSimulation)
			r.Delete("/{id}", s.handleDeleteSimulation)
		})
	})

	r.Get("/statuses", s.handleListStatuses)
	r.Get("/variables", s.handleListVariables)

	r.Group(func(r chi.Router) {
		if analyzeLimit != nil {
			r.Use(analyzeLimit)
		}

		r.Post("/analyze-simulations", s.handleAnalyzeSimulations)
		r.Post("/ai/analyze-simulations", s.handleAnalyzeSimulations)
	})

	return r
}

// useWrite installs rate limiting and authentication for mutating routes.
func (s *server) useWrite(r chi.Router, limit func(http.Handler) http.Handler) {
	if limit != nil {
		r.Use(limit)
	}

	if s.users != nil {
		r.Use(s.requireAuth)
	}
}

// corsMiddleware returns a CORS handler allowing the configured frontend
// origins with credentials.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	origins := s.cfg.Server.AllowedOrigins()

	if len(origins) == 1 && origins[0] == "*" {
		// Reflect the requesting origin so credentials work from any origin.
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
