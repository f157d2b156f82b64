package api

import (
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig holds settings for the API router.
type RouterConfig struct {
	// WebhookSecret gates the identity/payment webhook endpoint.
	// If empty, the webhook route is not registered.
	WebhookSecret string

	// CorsAllowedOrigins is a comma-separated list of allowed origins.
	// If empty, defaults to "*" (development mode).
	CorsAllowedOrigins string
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// CORS: restrict origins when configured, otherwise allow all (dev mode)
	allowedOrigins := []string{"*"}
	if cfg.CorsAllowedOrigins != "" {
		origins := strings.Split(cfg.CorsAllowedOrigins, ",")
		trimmed := make([]string, 0, len(origins))
		for _, o := range origins {
			if s := strings.TrimSpace(o); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			allowedOrigins = trimmed
		}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check — public, no auth required
	r.Get("/health", h.Health)

	// Identity/payment webhook — shared-secret gated, no user identity
	if cfg.WebhookSecret != "" {
		r.With(WebhookAuth(cfg.WebhookSecret)).Post("/api/webhooks/identity", h.HandleWebhook)
	}

	// User-facing routes — require a verified user id
	r.Route("/api", func(r chi.Router) {
		r.Use(RequireUser)

		r.Get("/user", h.GetUser)

		r.Route("/project", func(r chi.Router) {
			r.Get("/", h.ListProjects)
			r.Post("/", h.CreateProject)
			r.Get("/published", h.ListPublishedProjects)
			r.Get("/{id}", h.GetProject)
			r.Post("/{id}/video", h.CreateVideo)
			r.Post("/{id}/publish", h.TogglePublish)
			r.Delete("/{id}", h.DeleteProject)
		})
	})

	return r
}
