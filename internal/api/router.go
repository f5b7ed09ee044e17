package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/collab/internal/api/middleware"
	"github.com/eldtechnologies/collab/internal/handlers"
)

// maxBodyBytes leaves room for a maximum size message plus its JSON envelope.
const maxBodyBytes = 128 * 1024

// NewRouter creates and configures the HTTP router. limiter may be nil.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, limiter *middleware.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(maxBodyBytes))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	if limiter != nil {
		r.Use(limiter.Middleware)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.HeaderTenant, middleware.HeaderUser, "X-Collab-Room-Key"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/", h.Root)
	r.Get("/api", h.Root)
	r.Get("/health", h.Health)

	// Identity required
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireIdentity)

		r.Get("/stats", h.Stats)
		r.Put("/presence", h.UpdatePresence)

		r.Route("/rooms", func(r chi.Router) {
			r.Post("/", h.CreateRoom)
			r.Get("/", h.ListRooms)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetRoom)
				r.Delete("/", h.ArchiveRoom)
				r.Get("/ws", h.JoinRoom)
				r.Post("/messages", h.PostMessage)
				r.Get("/messages", h.GetRoomMessages)
				r.Post("/typing", h.Typing)
				r.Post("/leave", h.LeaveRoom)
				r.Get("/presence", h.GetRoomPresence)
			})
		})
	})

	return r
}
