package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rahulvgmr/settleq/internal/api/response"
	"github.com/rahulvgmr/settleq/internal/reconcile"
	"github.com/rahulvgmr/settleq/internal/telemetry"
	"github.com/rahulvgmr/settleq/pkg/models"
)

// ReconcileEngine defines the reconciliation operations the handlers
// depend on.
type ReconcileEngine interface {
	ScanInconsistencies(ctx context.Context) ([]models.InconsistencyReport, error)
	PreviewFix(ctx context.Context, jobID uuid.UUID, fixType models.FixType) (models.FixPreview, error)
	ApplyFix(ctx context.Context, p reconcile.ApplyParams) (models.Job, error)
	AuditLogs(ctx context.Context) ([]models.ReconciliationLog, error)
}

// NewReconcileScanHandler returns the handler for
// GET /admin/reconciliation/scan. Scanning is read-only.
func NewReconcileScanHandler(engine ReconcileEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reports, err := engine.ScanInconsistencies(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		telemetry.InconsistenciesFound.Set(float64(len(reports)))
		response.JSON(w, reports)
	}
}

// NewReconcilePreviewHandler returns the handler for
// GET /admin/reconciliation/preview/{jobID}?fixType=. Nothing is written.
func NewReconcilePreviewHandler(engine ReconcileEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION", "jobID must be a valid UUID", nil)
			return
		}

		fixType := models.FixType(r.URL.Query().Get("fixType"))
		if fixType == "" {
			response.Error(w, http.StatusBadRequest, "VALIDATION", "fixType is required", nil)
			return
		}

		preview, err := engine.PreviewFix(r.Context(), jobID, fixType)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, preview)
	}
}

// NewReconcileApplyHandler returns the handler for
// POST /admin/reconciliation/apply.
func NewReconcileApplyHandler(engine ReconcileEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JobID    string `json:"job_id"`
			FixType  string `json:"fix_type"`
			Operator string `json:"operator"`
			Notes    string `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION", "Invalid JSON body", nil)
			return
		}

		jobID, err := uuid.Parse(req.JobID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION", "job_id must be a valid UUID", nil)
			return
		}

		job, err := engine.ApplyFix(r.Context(), reconcile.ApplyParams{
			JobID:    jobID,
			FixType:  models.FixType(req.FixType),
			Operator: req.Operator,
			Notes:    req.Notes,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		telemetry.FixesApplied.Inc()
		response.JSON(w, map[string]any{
			"message": "Fix applied",
			"result":  job,
		})
	}
}

// NewAuditLogsHandler returns the handler for GET /admin/audit/logs.
func NewAuditLogsHandler(engine ReconcileEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logs, err := engine.AuditLogs(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		response.Collection(w, logs, response.PaginationMeta{Total: len(logs)})
	}
}
