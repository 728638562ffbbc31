package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rahulvgmr/settleq/internal/api/response"
	"github.com/rahulvgmr/settleq/internal/jobs"
	"github.com/rahulvgmr/settleq/internal/telemetry"
	"github.com/rahulvgmr/settleq/pkg/models"
)

// JobService defines the job operations the handlers depend on.
type JobService interface {
	CreateJob(ctx context.Context, p jobs.CreateParams) (models.Job, error)
	FetchAndRun(ctx context.Context) (*models.Job, error)
	SettleJobAttempt(ctx context.Context, attempt jobs.SettlementAttempt) (models.Job, error)
	List(ctx context.Context, filter jobs.Filter) ([]models.Job, error)
}

// NewCreateJobHandler returns the handler for POST /jobs. It creates a
// PENDING job and places the wallet hold in one transaction.
func NewCreateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID             string         `json:"user_id"`
			TaskParams         map[string]any `json:"task_params"`
			ScheduledAt        string         `json:"scheduled_at"`
			EstimatedCostCents int64          `json:"estimated_cost_cents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION", "Invalid JSON body", nil)
			return
		}

		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION", "user_id must be a valid UUID", nil)
			return
		}

		var scheduledAt time.Time
		if req.ScheduledAt != "" {
			scheduledAt, err = time.Parse(time.RFC3339, req.ScheduledAt)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "VALIDATION",
					"scheduled_at must be a valid RFC3339 timestamp", nil)
				return
			}
		}

		job, err := svc.CreateJob(r.Context(), jobs.CreateParams{
			UserID:             userID,
			TaskParams:         req.TaskParams,
			ScheduledAt:        scheduledAt,
			EstimatedCostCents: req.EstimatedCostCents,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		telemetry.JobsCreated.Inc()
		response.JSON(w, job)
	}
}

// NewFetchAndRunHandler returns the handler for POST /jobs/fetch-and-run.
// An empty queue is a 204, not an error.
func NewFetchAndRunHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := svc.FetchAndRun(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if job == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		telemetry.JobsDequeued.Inc()
		response.JSON(w, job)
	}
}

// NewSettleJobHandler returns the handler for POST /jobs/settle.
func NewSettleJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JobID           string `json:"job_id"`
			Status          string `json:"status"`
			ActualCostCents int64  `json:"actual_cost_cents"`
			SettlementRunID string `json:"settlement_run_id"`
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

		job, err := svc.SettleJobAttempt(r.Context(), jobs.SettlementAttempt{
			JobID:           jobID,
			Status:          models.JobStatus(req.Status),
			ActualCostCents: req.ActualCostCents,
			SettlementRunID: req.SettlementRunID,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		if job.Status == models.JobCompleted {
			telemetry.SettlementsCompleted.Inc()
		} else {
			telemetry.SettlementsFailed.Inc()
		}

		response.JSON(w, map[string]any{
			"message": "Job settled",
			"result":  job,
		})
	}
}

// NewListJobsHandler returns the handler for GET /admin/jobs. The optional
// status query parameter filters by job status.
func NewListJobsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var filter jobs.Filter
		if raw := r.URL.Query().Get("status"); raw != "" {
			status := models.JobStatus(raw)
			if !status.Valid() {
				response.Error(w, http.StatusBadRequest, "VALIDATION",
					"status must be one of PENDING, RUNNING, COMPLETED, FAILED", nil)
				return
			}
			filter.Status = status
		}

		list, err := svc.List(r.Context(), filter)
		if err != nil {
			writeError(w, err)
			return
		}
		response.Collection(w, list, response.PaginationMeta{Total: len(list)})
	}
}
