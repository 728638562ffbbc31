package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/rahulvgmr/settleq/internal/config"
	"github.com/rahulvgmr/settleq/internal/telemetry"
	"github.com/rahulvgmr/settleq/pkg/models"
)

// Runner drives the worker poll loop against the API server. One outcome
// is reported per dequeue; if reporting fails past the retry budget the
// report is dropped and reconciliation heals the drift later.
type Runner struct {
	cfg    config.WorkerConfig
	client *http.Client
	exec   Executor
}

// NewRunner creates a Runner. A nil exec gets the simulated executor.
func NewRunner(cfg config.WorkerConfig, exec Executor) *Runner {
	if exec == nil {
		exec = SimulatedExecutor
	}
	return &Runner{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		exec:   exec,
	}
}

// Run polls at the configured interval until ctx is cancelled. An empty
// queue is not an error; the loop just waits for the next tick. Cancellation
// is the normal way to stop the worker, so Run returns nil for it.
func (r *Runner) Run(ctx context.Context) error {
	slog.Info("worker started", "poll_interval", r.cfg.PollInterval, "job_timeout", r.cfg.JobTimeout)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		job, err := r.fetchJob(ctx)
		if err != nil {
			slog.Error("fetch job failed", "error", err)
		} else if job != nil {
			r.runJob(ctx, *job)
		}

		select {
		case <-ctx.Done():
			slog.Info("worker stopping")
			return nil
		case <-ticker.C:
		}
	}
}

// fetchJob asks the API to dequeue one job. A 204 means none available.
func (r *Runner) fetchJob(ctx context.Context) (*models.Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.APIBaseURL+"/jobs/fetch-and-run", nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch-and-run request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil
	case http.StatusOK:
		var env struct {
			Data models.Job `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return nil, fmt.Errorf("decode job: %w", err)
		}
		return &env.Data, nil
	default:
		return nil, fmt.Errorf("fetch-and-run returned status %d", resp.StatusCode)
	}
}

// runJob executes the payload under the configured timeout and reports
// the outcome. If the timeout fires first the payload's eventual result
// is discarded and the job is reported as FAILED.
func (r *Runner) runJob(ctx context.Context, job models.Job) {
	slog.Info("executing job", "job_id", job.ID, "user_id", job.UserID)

	runID := ""
	if job.SettlementRunID != nil {
		runID = *job.SettlementRunID
	}

	execCtx, cancel := context.WithTimeout(ctx, r.cfg.JobTimeout)
	defer cancel()

	type result struct {
		costCents int64
		err       error
	}
	resultCh := make(chan result, 1)
	go func() {
		cost, err := r.exec(execCtx, job)
		resultCh <- result{costCents: cost, err: err}
	}()

	var status models.JobStatus
	var actualCost int64
	select {
	case <-execCtx.Done():
		telemetry.WorkerTimeouts.Inc()
		slog.Warn("job execution timed out", "job_id", job.ID, "timeout", r.cfg.JobTimeout)
		status = models.JobFailed
	case res := <-resultCh:
		if res.err != nil {
			slog.Error("job execution failed", "job_id", job.ID, "error", res.err)
			status = models.JobFailed
		} else {
			status = models.JobCompleted
			actualCost = res.costCents
		}
	}

	r.reportSettlement(ctx, settlementPayload{
		JobID:           job.ID.String(),
		Status:          status,
		ActualCostCents: actualCost,
		SettlementRunID: runID,
	})
}

type settlementPayload struct {
	JobID           string           `json:"job_id"`
	Status          models.JobStatus `json:"status"`
	ActualCostCents int64            `json:"actual_cost_cents"`
	SettlementRunID string           `json:"settlement_run_id"`
}

// reportSettlement posts the outcome, retrying server-side failures with
// exponential backoff. Client errors are not retried; exhausted retries
// drop the report, which the reconciliation scan later surfaces.
func (r *Runner) reportSettlement(ctx context.Context, payload settlementPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal settlement payload", "error", err)
		return
	}

	for attempt := 1; attempt <= r.cfg.ReportMaxAttempts; attempt++ {
		status, err := r.postSettle(ctx, body)
		if err == nil && status < 500 {
			if status >= 400 {
				slog.Error("settlement rejected", "job_id", payload.JobID, "status", status)
			} else {
				slog.Info("settlement reported", "job_id", payload.JobID, "job_status", payload.Status)
			}
			return
		}

		if attempt == r.cfg.ReportMaxAttempts {
			break
		}
		wait := backoffWithJitter(r.cfg.ReportBackoff, r.cfg.ReportBackoffMax, attempt)
		slog.Warn("settlement report failed, retrying",
			"job_id", payload.JobID, "attempt", attempt, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}

	telemetry.ReportsDropped.Inc()
	slog.Error("settlement report dropped after retries; reconciliation will detect the drift",
		"job_id", payload.JobID, "attempts", r.cfg.ReportMaxAttempts)
}

func (r *Runner) postSettle(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.APIBaseURL+"/jobs/settle", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return base
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	wait := time.Duration(exp)
	if wait > max {
		wait = max
	}
	jitter := time.Duration(rand.Int63n(int64(wait/2) + 1))
	return wait/2 + jitter
}
