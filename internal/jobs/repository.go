// Package jobs implements the job store and the settlement coordinator.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rahulvgmr/settleq/internal/store"
	"github.com/rahulvgmr/settleq/pkg/models"
)

const jobColumns = `id, user_id, task_params, scheduled_at, estimated_cost_cents,
	actual_cost_cents, status, settlement_run_id, settled_at, created_at, updated_at`

// Repository performs the direct job-table queries. Every method requires
// an explicit store.DB handle.
type Repository struct{}

// NewRepository creates a jobs Repository.
func NewRepository() *Repository {
	return &Repository{}
}

// CreateParams collects the inputs for a new job.
type CreateParams struct {
	UserID             uuid.UUID
	TaskParams         map[string]any
	ScheduledAt        time.Time
	EstimatedCostCents int64
}

// Create inserts a PENDING job and returns the stored record.
func (r *Repository) Create(ctx context.Context, db store.DB, p CreateParams) (models.Job, error) {
	if p.TaskParams == nil {
		p.TaskParams = map[string]any{}
	}
	paramsJSON, err := json.Marshal(p.TaskParams)
	if err != nil {
		return models.Job{}, fmt.Errorf("marshal task params: %w", err)
	}

	row := db.QueryRow(ctx,
		`INSERT INTO automation_jobs (id, user_id, task_params, scheduled_at, estimated_cost_cents, status)
		 VALUES ($1, $2, $3, $4, $5, 'PENDING')
		 RETURNING `+jobColumns,
		uuid.New(), p.UserID, paramsJSON, p.ScheduledAt, p.EstimatedCostCents)

	job, err := scanJob(row)
	if err != nil {
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// DequeueOldestPending claims the single oldest PENDING job: it locks the
// row with SKIP LOCKED semantics so concurrent callers each claim a
// distinct job (or none), moves it to RUNNING and stamps the settlement
// run id. Returns (nil, nil) when the queue is empty.
func (r *Repository) DequeueOldestPending(ctx context.Context, db store.DB, settlementRunID string) (*models.Job, error) {
	row := db.QueryRow(ctx,
		`WITH selected_job AS (
			SELECT id FROM automation_jobs
			WHERE status = 'PENDING'
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE automation_jobs
		SET status = 'RUNNING', settlement_run_id = $1, updated_at = NOW()
		WHERE id = (SELECT id FROM selected_job)
		RETURNING `+jobColumns,
		settlementRunID)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	return &job, nil
}

// FindByID fetches a job. Returns (nil, nil) when the job does not exist.
func (r *Repository) FindByID(ctx context.Context, db store.DB, id uuid.UUID) (*models.Job, error) {
	return r.findOne(ctx, db,
		`SELECT `+jobColumns+` FROM automation_jobs WHERE id = $1`, id)
}

// FindByIDForUpdate is FindByID with a row lock, for use inside a
// settlement transaction so concurrent settlement attempts serialize on
// the idempotency check.
func (r *Repository) FindByIDForUpdate(ctx context.Context, db store.DB, id uuid.UUID) (*models.Job, error) {
	return r.findOne(ctx, db,
		`SELECT `+jobColumns+` FROM automation_jobs WHERE id = $1 FOR UPDATE`, id)
}

func (r *Repository) findOne(ctx context.Context, db store.DB, query string, args ...any) (*models.Job, error) {
	job, err := scanJob(db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find job: %w", err)
	}
	return &job, nil
}

// Filter narrows Find results.
type Filter struct {
	Status models.JobStatus
}

// Find lists jobs, newest first, optionally filtered by status.
func (r *Repository) Find(ctx context.Context, db store.DB, filter Filter) ([]models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM automation_jobs`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// Finalize sets the terminal status, actual cost, settled_at and
// settlement run id on the job row. It carries no ledger side effect; the
// settlement coordinator sequences it with the ledger writes in one
// transaction.
func (r *Repository) Finalize(ctx context.Context, db store.DB, id uuid.UUID, status models.JobStatus, actualCostCents int64, settlementRunID string) (models.Job, error) {
	row := db.QueryRow(ctx,
		`UPDATE automation_jobs
		 SET status = $1, actual_cost_cents = $2, settled_at = NOW(), settlement_run_id = $3, updated_at = NOW()
		 WHERE id = $4
		 RETURNING `+jobColumns,
		status, actualCostCents, settlementRunID, id)

	job, err := scanJob(row)
	if err != nil {
		return models.Job{}, fmt.Errorf("finalize job: %w", err)
	}
	return job, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (models.Job, error) {
	var j models.Job
	var paramsJSON []byte
	if err := row.Scan(&j.ID, &j.UserID, &paramsJSON, &j.ScheduledAt, &j.EstimatedCostCents,
		&j.ActualCostCents, &j.Status, &j.SettlementRunID, &j.SettledAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return models.Job{}, err
	}
	if err := json.Unmarshal(paramsJSON, &j.TaskParams); err != nil {
		return models.Job{}, fmt.Errorf("unmarshal task params: %w", err)
	}
	return j, nil
}
