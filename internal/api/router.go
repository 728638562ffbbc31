package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/rahulvgmr/settleq/internal/api/middleware"
	"github.com/rahulvgmr/settleq/internal/api/response"
	"github.com/rahulvgmr/settleq/internal/telemetry"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	AdminAuth *mw.AdminAuth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	CreateJob   http.HandlerFunc
	FetchAndRun http.HandlerFunc
	SettleJob   http.HandlerFunc
	ListJobs    http.HandlerFunc

	GetWallet    http.HandlerFunc
	CreditWallet http.HandlerFunc

	ReconcileScan    http.HandlerFunc
	ReconcilePreview http.HandlerFunc
	ReconcileApply   http.HandlerFunc
	AuditLogs        http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/healthz", orNotImplemented(deps.HealthHandler))
	r.Method("GET", "/metrics", telemetry.Handler())

	// Job surface. Submission is rate limited; the worker endpoints are not,
	// since pollers are internal and retry-driven.
	r.Group(func(r chi.Router) {
		r.With(deps.RateLimit.Limit).Post("/jobs", orNotImplemented(deps.CreateJob))
		r.Post("/jobs/fetch-and-run", orNotImplemented(deps.FetchAndRun))
		r.Post("/jobs/settle", orNotImplemented(deps.SettleJob))
	})

	// Admin surface
	r.Group(func(r chi.Router) {
		r.Use(deps.AdminAuth.Require)

		r.Get("/admin/jobs", orNotImplemented(deps.ListJobs))

		r.Get("/admin/wallets/{userID}", orNotImplemented(deps.GetWallet))
		r.Post("/admin/wallets/{userID}/credit", orNotImplemented(deps.CreditWallet))

		r.Get("/admin/reconciliation/scan", orNotImplemented(deps.ReconcileScan))
		r.Get("/admin/reconciliation/preview/{jobID}", orNotImplemented(deps.ReconcilePreview))
		r.Post("/admin/reconciliation/apply", orNotImplemented(deps.ReconcileApply))

		r.Get("/admin/audit/logs", orNotImplemented(deps.AuditLogs))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
