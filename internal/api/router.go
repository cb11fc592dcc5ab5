package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"dpm/internal/middleware"
)

// RouterConfig holds the HTTP-surface settings the router needs.
type RouterConfig struct {
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
	Logger         *slog.Logger
}

// NewRouter assembles the chi router: request id, request logging, panic
// recovery, CORS, and per-client rate limiting around the admin API.
// The health endpoint sits outside the rate limiter so probes never 429.
// RemoteAddr is left untouched: rewriting it from forwarded-for headers
// would let a client rotate the rate-limit key at will.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Healthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		}))
		r.Post("/provision", h.Provision)
		r.Get("/audit", h.ListAudit)
	})

	return r
}
