package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/lumail/lumail/internal/auth"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, authManager *auth.Manager) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://lumail.co.uk", "https://app.lumail.co.uk", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (no auth required)
	r.Get("/health", h.HealthCheck)

	// Unsubscribe landing page. The token is the credential, so no auth.
	r.Get("/unsubscribe", h.Unsubscribe)

	// API routes (protected by bearer auth). Whether tokens are actually
	// checked is decided by the manager's config, nowhere else.
	r.Route("/api", func(r chi.Router) {
		if authManager != nil {
			r.Use(authManager.Middleware)
		}

		r.Post("/send", h.SendCampaign)

		r.Route("/suppressions", func(r chi.Router) {
			r.Get("/", h.ListSuppressions)
			r.Delete("/{email}", h.RemoveSuppression)
		})
	})

	// Anything else is a 404, this service has no frontend of its own.
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, http.StatusNotFound, "not found")
	})

	return r
}
