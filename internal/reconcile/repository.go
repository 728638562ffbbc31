// Package reconcile detects drift between job state and ledger state and
// offers audited, idempotent repair through the normal settlement path.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rahulvgmr/settleq/internal/store"
	"github.com/rahulvgmr/settleq/pkg/models"
)

// Repository holds the scanner queries and the audit-log table access.
type Repository struct{}

// NewRepository creates a reconcile Repository.
func NewRepository() *Repository {
	return &Repository{}
}

const jobColumns = `id, user_id, task_params, scheduled_at, estimated_cost_cents,
	actual_cost_cents, status, settlement_run_id, settled_at, created_at, updated_at`

// FindStuckRunningJobs returns jobs in RUNNING whose scheduled time is
// older than stuckAfter. The threshold is bound as a plain parameter.
func (r *Repository) FindStuckRunningJobs(ctx context.Context, db store.DB, stuckAfter time.Duration) ([]models.Job, error) {
	rows, err := db.Query(ctx,
		`SELECT `+jobColumns+` FROM automation_jobs
		 WHERE status = 'RUNNING'
		 AND scheduled_at < NOW() - make_interval(secs => $1)`,
		stuckAfter.Seconds())
	if err != nil {
		return nil, fmt.Errorf("query stuck running jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// FindUnsettledFinalizedJobs returns jobs with a terminal status whose
// settlement was never posted to the ledger.
func (r *Repository) FindUnsettledFinalizedJobs(ctx context.Context, db store.DB) ([]models.Job, error) {
	rows, err := db.Query(ctx,
		`SELECT `+jobColumns+` FROM automation_jobs
		 WHERE status IN ('COMPLETED', 'FAILED')
		 AND settled_at IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("query unsettled finalized jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// AppendLog writes one audit record of a manual repair. Records are
// write-once and never consulted by control flow.
func (r *Repository) AppendLog(ctx context.Context, db store.DB, log models.ReconciliationLog) error {
	_, err := db.Exec(ctx,
		`INSERT INTO reconciliation_logs (job_id, user_id, fix_type, previous_state, new_state, operator, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		log.JobID, log.UserID, log.FixType, log.PreviousState, log.NewState, log.Operator, log.Notes)
	if err != nil {
		return fmt.Errorf("append reconciliation log: %w", err)
	}
	return nil
}

// ListLogs returns the full audit trail, newest first.
func (r *Repository) ListLogs(ctx context.Context, db store.DB) ([]models.ReconciliationLog, error) {
	rows, err := db.Query(ctx,
		`SELECT id, job_id, user_id, fix_type, previous_state, new_state, operator, notes, created_at
		 FROM reconciliation_logs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list reconciliation logs: %w", err)
	}
	defer rows.Close()

	var logs []models.ReconciliationLog
	for rows.Next() {
		var l models.ReconciliationLog
		if err := rows.Scan(&l.ID, &l.JobID, &l.UserID, &l.FixType, &l.PreviousState,
			&l.NewState, &l.Operator, &l.Notes, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reconciliation log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
	Next() bool
	Err() error
}

func scanJobs(rows rowScanner) ([]models.Job, error) {
	var jobs []models.Job
	for rows.Next() {
		var j models.Job
		var paramsJSON []byte
		if err := rows.Scan(&j.ID, &j.UserID, &paramsJSON, &j.ScheduledAt, &j.EstimatedCostCents,
			&j.ActualCostCents, &j.Status, &j.SettlementRunID, &j.SettledAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		if err := json.Unmarshal(paramsJSON, &j.TaskParams); err != nil {
			return nil, fmt.Errorf("unmarshal task params: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
