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
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	// GitHub OAuth.
	r.Route("/auth", func(r chi.Router) {
		if s.cfg.Server.RateLimit.Enabled {
			r.Use(s.rateLimitMiddleware(
				s.cfg.Server.RateLimit.Auth, clientIPKey,
			))
		}

		r.Get("/github", s.handleGitHubAuth)
		r.Get("/github/callback", s.handleGitHubCallback)
	})

	r.Route("/api", func(r chi.Router) {
		// Public endpoints.
		r.Get("/health", s.handleHealth)
		r.Get("/config", s.handleConfig)
		r.Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			if s.cfg.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(
					s.cfg.Server.RateLimit.Authenticated, sessionUserKey,
				))
			}

			r.Get("/me", s.handleMe)
			r.Get("/user", s.handleMe)

			r.Get("/access", s.handleAccess)
			r.Post("/dispatch", s.handleDispatch)
			r.Get("/runs", s.handleRuns)
			r.Get("/jobs/{runID}", s.handleJobs)

			// User registry management (repository admins only).
			r.Route("/users", func(r chi.Router) {
				r.Use(s.requireManageUsers)

				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleAddUser)
				r.Put("/{username}", s.handleSetOverride)
				r.Delete("/{username}", s.handleRemoveUser)
			})
		})
	})

	if dir := s.cfg.Server.StaticDir; dir != "" {
		r.Get("/*", newStaticFileServer(s.log, dir).ServeHTTP)
	}

	return r
}

// corsMiddleware returns a CORS handler configured from the server config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	origins := s.cfg.Server.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Reflect the requesting origin so credentials work from any origin.
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
