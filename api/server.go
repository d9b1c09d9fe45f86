/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address for the login lockout
  3. Logger:     zap request logging
  4. Metrics:    Prometheus request counters
  5. Recoverer:  Panic recovery (500 instead of crash)
  6. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /healthz            Liveness
  /metrics            Prometheus scrape endpoint
  /api/scenarios/*    Demo scenarios (no identity)
  /api/*              Creator endpoints (identity required)
  /api/admin/*        Operator endpoints (admin identity required)

IDENTITY:
  Authentication happens upstream. Requests carry X-Client-ID and
  X-User-ID; see middleware.go.

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Identity, lockout, logging, metrics
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/creator-rewards/ratelimit"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	// Lockout limits failed identity resolutions per client address.
	// Nil disables the lockout.
	Lockout *ratelimit.Lockout
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.Logger))
	r.Use(Metrics)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", HeaderClientID, HeaderUserID},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.Identify(opts.Lockout))

			r.Get("/dashboard", h.GetDashboard)
			r.Get("/tiers", h.GetTiers)

			// Mission routes
			r.Route("/missions", func(r chi.Router) {
				r.Get("/", h.ListMissions)
				r.Get("/history", h.GetMissionHistory)
				r.Post("/{id}/claim", h.ClaimMission)
				r.Post("/{id}/participate", h.ParticipateInRaffle)
			})

			// Reward routes
			r.Route("/rewards", func(r chi.Router) {
				r.Get("/", h.ListRewards)
				r.Get("/history", h.GetRewardHistory)
				r.Get("/payment-info", h.GetPaymentInfo)
				r.Post("/{id}/claim", h.ClaimReward)
				r.Post("/{id}/payment-info", h.SavePaymentInfo)
			})

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Post("/sync", h.SyncSalesMetrics)
				r.Get("/sync/runs", h.ListSyncRuns)
				r.Post("/adjustments", h.CreateAdjustment)
				r.Get("/users/{id}/adjustments", h.ListAdjustments)
				r.Post("/lifecycle/run", h.RunLifecycle)
				r.Get("/redemptions", h.ListRedemptions)
				r.Post("/redemptions/{id}/{action}", h.AdvanceRedemption)
				r.Post("/missions/{id}/activate", h.ActivateRaffle)
				r.Post("/missions/{id}/winner", h.SelectRaffleWinner)
			})
		})
	})

	return r
}
