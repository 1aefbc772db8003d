/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:      Unique ID per request for tracing
  2. RealIP:         Client address behind the load balancer
  3. RequestLogger:  One logrus entry per request
  4. Recoverer:      Panic recovery (500 instead of crash)
  5. CORS:           Cross-origin requests for the bar tablets
  6. Authenticator:  Bearer token on everything under /api

ROUTE GROUPS:
  /healthz                 Liveness, unauthenticated
  /api/catalog, /locations Reference data
  /api/inventory, /labels  Ledger
  /api/pours, /evidence    Bar operations
  /api/shifts/*            Shift close and oversight
  /api/alerts/latest       Background monitor
  /api/scenarios/*         Demo shifts

AUDITOR-ONLY:
  Weight corrections, activating or deactivating a label, ledger
  verification, the monitor scan and loading demo scenarios.

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Token verification
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// RouterOptions configures the cross-cutting parts of the router.
type RouterOptions struct {
	CORSOrigins []string
	Logger      logrus.FieldLogger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, auth *Authenticator, opts RouterOptions) *chi.Mux {
	if opts.Logger == nil {
		opts.Logger = h.Logger
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(opts.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Get("/catalog", h.GetCatalog)
		r.Get("/locations", h.ListLocations)
		r.Get("/inventory", h.GetSnapshot)
		r.Post("/pours", h.RecordPour)
		r.Post("/evidence", h.UploadEvidence)

		// Label routes
		r.Route("/labels/{label}", func(r chi.Router) {
			r.Get("/", h.GetLabel)
			r.Get("/history", h.GetLabelHistory)
			r.Post("/receive", h.Receive)
			r.Post("/retire", h.Retire)
			r.Put("/opening-weight", h.SetOpeningWeight)
			r.Post("/units/{unit}/weight", h.RecordWeight)

			r.With(RequireAuditor).Get("/verify", h.VerifyLabel)
			r.With(RequireAuditor).Post("/units/{unit}/correction", h.CorrectWeight)
			r.With(RequireAuditor).Put("/active", h.SetActive)
		})

		// Shift routes
		r.Get("/shifts/current", h.GetCurrentShift)
		r.Route("/shifts/{shift}", func(r chi.Router) {
			r.Get("/movements", h.ListShiftMovements)
			r.Get("/pending", h.ListPending)
			r.Get("/reconciliations", h.ListReconciliations)
			r.Get("/alerts", h.ListAlerts)
			r.Get("/report", h.GetReport)
			r.Post("/closures", h.CloseLabel)
			r.Post("/close", h.CloseShift)
		})

		r.With(RequireAuditor).Get("/alerts/latest", h.LatestAlerts)

		// Scenario routes
		r.Get("/scenarios", h.ListScenarios)
		r.With(RequireAuditor).Post("/scenarios/load", h.LoadScenario)
	})

	return r
}
