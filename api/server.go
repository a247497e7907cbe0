/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. Logger:     zerolog request logging
  4. Metrics:    Prometheus request count/latency per route pattern
  5. CORS:       Cross-origin requests for the back-office frontend
  6. RateLimit:  Per-client token bucket on /api only

ROUTE GROUPS:
  /api/owners/{id}/*    Wallet, payments, ledger
  /api/statements/*     Generate, regenerate, finalize
  /api/bookings/*       Booking saves with commission reconciliation
  /api/fx/*             Effective rates and conversion
  /api/settings/{key}   Branding and FX rate overrides
  /api/admin/*          Drift audit
  /api/scenarios/*      Demo data
  /healthz, /metrics    Operations

SECURITY NOTE:
  No authentication middleware. The actor recorded on payments and
  finalizations is whatever the caller sends.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterOptions configures the ambient middleware.
type RouterOptions struct {
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	Log            zerolog.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(opts.Log.With().Str("component", "http").Logger()))
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		if opts.RateLimitRPS > 0 {
			r.Use(NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst, 3*time.Minute).Middleware)
		}

		// Owner wallet and ledger routes
		r.Route("/owners/{id}", func(r chi.Router) {
			r.Get("/wallet", h.GetWallet)
			r.Post("/wallet/commission-payments", h.PayCommission)
			r.Post("/wallet/balance-payments", h.PayBalance)
			r.Get("/transactions", h.ListTransactions)
			r.Post("/transactions", h.CreateTransaction)
		})

		// Statement routes
		r.Route("/statements", func(r chi.Router) {
			r.Get("/", h.ListStatements)
			r.Post("/generate", h.GenerateStatement)
			r.Post("/generate-all", h.GenerateAllStatements)
			r.Get("/{id}", h.GetStatement)
			r.Get("/{id}/document", h.GetStatementDocument)
			r.Post("/{id}/regenerate", h.RegenerateStatement)
			r.Post("/{id}/finalize", h.FinalizeStatement)
		})

		// Booking routes
		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", h.CreateBooking)
			r.Put("/{id}", h.UpdateBooking)
		})

		// FX and settings routes
		r.Get("/fx/rates", h.GetRates)
		r.Get("/fx/convert", h.Convert)
		r.Put("/settings/{key}", h.PutSetting)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/drift-audit", h.RunDriftAudit)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
