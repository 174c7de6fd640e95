package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/checkout/internal/infrastructure/config"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/checkout/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RouterDeps wires the router. Transactions and Payments are set for the service the
// process runs; the routes of a nil controller are not mounted.
type RouterDeps struct {
	DB               Pinger
	RedisClient      *redis.Client
	Transactions     *TransactionController
	Payments         *PaymentController
	Diagnostics      *DiagnosticsController
	IdempotencyStore customMW.IdempotencyStore
	Metrics          *observability.Metrics
	MetricsHandler   http.Handler
	Server           config.ServerConfig
	Logger           zerolog.Logger
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Server.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Idempotency-Replayed"},
		AllowCredentials: deps.Server.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.SecurityHeaders())
	r.Use(customMW.RateLimit(deps.Server.RateLimitPerMinute))
	if deps.Metrics != nil {
		r.Use(customMW.Metrics(deps.Metrics))
	}

	healthH := NewHealthController(deps.DB, deps.RedisClient)
	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		// Commands honour Idempotency-Key when a store is configured.
		cmd := r.With()
		if deps.IdempotencyStore != nil {
			cmd = r.With(customMW.Idempotency(deps.IdempotencyStore, deps.Server.IdempotencyTTL, deps.Logger))
		}

		if h := deps.Transactions; h != nil {
			cmd.Post("/transactions", h.Create)
			r.Get("/transactions/{id}", h.Get)
			cmd.Post("/transactions/{id}/items", h.AddItem)
			cmd.Post("/transactions/{id}/submit", h.Submit)
			cmd.Post("/transactions/{id}/cancel", h.Cancel)
		}

		if h := deps.Payments; h != nil {
			cmd.Post("/payments", h.Start)
			r.Get("/payments/{id}", h.Get)
			cmd.Post("/payments/{id}/confirm", h.Confirm)
			cmd.Post("/payments/{id}/fail", h.Fail)
		}

		if deps.Diagnostics != nil {
			r.Get("/diagnostics/outbox", deps.Diagnostics.Outbox)
		}
	})

	return r
}
