// Package api assembles the HTTP router: middleware stack, route table and
// the metrics endpoint.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/agasthyaps/nisa-labs-sub000/internal/api/middleware"
	"github.com/agasthyaps/nisa-labs-sub000/internal/config"
	"github.com/agasthyaps/nisa-labs-sub000/internal/handlers"
)

// maxRequestBody bounds JSON request bodies. Attachments arrive as URLs, not
// uploads, so this stays small.
const maxRequestBody = 1 << 20 // 1 MiB

// Handlers groups everything the router mounts.
type Handlers struct {
	Chat     *handlers.ChatHandler
	MiniChat *handlers.MiniChatHandler
	History  *handlers.HistoryHandler
	Vote     *handlers.VoteHandler
	Auth     *handlers.AuthHandler
	Health   *handlers.HealthHandler
}

// NewRouter builds the chi router with the full middleware stack.
func NewRouter(cfg *config.Config, h Handlers, authMW *middleware.AuthMiddleware, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(maxRequestBody))
	r.Use(middleware.ValidateRequest)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health.HandleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Auth.HandleRegister)
		r.Post("/login", h.Auth.HandleLogin)
		r.Post("/guest", h.Auth.HandleGuest)
	})

	// The embedded widget surface is unauthenticated but origin-gated.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireOrigin(cfg.EmbedAllowedOrigins))
		r.Post("/mini-chat", h.MiniChat.HandleTurn)
	})

	r.Group(func(r chi.Router) {
		r.Use(authMW.RequireAuth)

		r.Post("/chat", h.Chat.HandleTurn)
		r.Get("/chat", h.Chat.HandleResume)
		r.Delete("/chat", h.Chat.HandleDelete)
		r.Patch("/chat/visibility", h.Chat.HandleVisibility)

		r.Get("/history", h.History.HandleList)

		r.Get("/vote", h.Vote.HandleList)
		r.Patch("/vote", h.Vote.HandleUpsert)
	})

	return r
}
