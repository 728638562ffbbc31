package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rahulvgmr/settleq/internal/fault"
	"github.com/rahulvgmr/settleq/internal/store"
	"github.com/rahulvgmr/settleq/internal/wallet"
	"github.com/rahulvgmr/settleq/pkg/models"
)

// Service is the business layer over the job store. It owns the two
// cross-entity units of work: job creation (insert + wallet hold) and
// settlement (ledger release+debit + job finalize). Settlement has exactly
// one implementation here; the worker-reporting path and the
// reconciliation repair path both go through it.
type Service struct {
	repo   *Repository
	wallet *wallet.Service
	txm    *store.TxManager
}

// NewService creates a jobs Service.
func NewService(repo *Repository, walletSvc *wallet.Service, txm *store.TxManager) *Service {
	return &Service{repo: repo, wallet: walletSvc, txm: txm}
}

// CreateJob inserts a PENDING job and places the wallet hold for its
// estimated cost in the same transaction. Either both happen or neither.
func (s *Service) CreateJob(ctx context.Context, p CreateParams) (models.Job, error) {
	if p.UserID == uuid.Nil {
		return models.Job{}, fault.New(fault.Validation, "user id is required")
	}
	if p.EstimatedCostCents <= 0 {
		// A hold must accompany every job, and holds are strictly positive.
		return models.Job{}, fault.New(fault.Validation, "estimated cost must be positive")
	}
	if p.ScheduledAt.IsZero() {
		p.ScheduledAt = time.Now().UTC()
	}

	var job models.Job
	err := s.txm.Execute(ctx, func(ctx context.Context, db store.DB) error {
		var err error
		job, err = s.repo.Create(ctx, db, p)
		if err != nil {
			return err
		}
		return s.wallet.PlaceHoldTx(ctx, db, job.UserID, job.EstimatedCostCents, job.ID)
	})
	if err != nil {
		return models.Job{}, err
	}
	return job, nil
}

// FetchAndRun claims the oldest pending job for a worker, stamping a fresh
// worker settlement run id. Returns (nil, nil) when no job is available.
func (s *Service) FetchAndRun(ctx context.Context) (*models.Job, error) {
	runID := "worker-" + uuid.NewString()

	var job *models.Job
	err := s.txm.Execute(ctx, func(ctx context.Context, db store.DB) error {
		var err error
		job, err = s.repo.DequeueOldestPending(ctx, db, runID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// FindByID returns the job or a NOT_FOUND error.
func (s *Service) FindByID(ctx context.Context, id uuid.UUID) (models.Job, error) {
	job, err := s.repo.FindByID(ctx, s.txm.Pool(), id)
	if err != nil {
		return models.Job{}, err
	}
	if job == nil {
		return models.Job{}, fault.New(fault.NotFound, "job not found")
	}
	return *job, nil
}

// List returns jobs, newest first, optionally filtered by status.
func (s *Service) List(ctx context.Context, filter Filter) ([]models.Job, error) {
	return s.repo.Find(ctx, s.txm.Pool(), filter)
}

// SettlementAttempt is one reported outcome for a job.
type SettlementAttempt struct {
	JobID           uuid.UUID
	Status          models.JobStatus
	ActualCostCents int64
	SettlementRunID string
}

// SettleJobAttempt turns a reported outcome into a finalized job plus
// ledger postings, atomically and exactly once. Duplicate attempts for an
// already-settled job return the existing job unchanged; they are a
// normal occurrence under worker retries, not an error.
func (s *Service) SettleJobAttempt(ctx context.Context, attempt SettlementAttempt) (models.Job, error) {
	var job models.Job
	err := s.txm.Execute(ctx, func(ctx context.Context, db store.DB) error {
		var err error
		job, err = s.SettleAttemptTx(ctx, db, attempt)
		return err
	})
	if err != nil {
		return models.Job{}, err
	}
	return job, nil
}

// SettleAttemptTx is the settlement state machine on an existing
// transaction handle, for callers that need to compose settlement with
// further writes in the same unit of work (the reconciliation apply path).
func (s *Service) SettleAttemptTx(ctx context.Context, db store.DB, attempt SettlementAttempt) (models.Job, error) {
	if attempt.Status != models.JobCompleted && attempt.Status != models.JobFailed {
		return models.Job{}, fault.Newf(fault.Validation, "status must be COMPLETED or FAILED, got %q", attempt.Status)
	}
	if attempt.ActualCostCents < 0 {
		return models.Job{}, fault.New(fault.Validation, "actual cost cannot be negative")
	}
	if attempt.SettlementRunID == "" {
		return models.Job{}, fault.New(fault.Validation, "settlement run id is required")
	}

	// Lock the row so concurrent attempts serialize on the idempotency gate.
	job, err := s.repo.FindByIDForUpdate(ctx, db, attempt.JobID)
	if err != nil {
		return models.Job{}, err
	}
	if job == nil {
		return models.Job{}, fault.New(fault.NotFound, "job not found")
	}

	// Idempotency gate: an already-settled job is returned unchanged.
	if job.Settled() {
		return *job, nil
	}

	// State-machine gate. A report matching the job's current terminal
	// status is also accepted: the job reached that status but its
	// settlement was never posted, and this attempt is the recovery.
	switch attempt.Status {
	case models.JobCompleted:
		if job.Status != models.JobRunning && job.Status != models.JobCompleted {
			return models.Job{}, fault.Newf(fault.InvalidTransition,
				"job cannot be completed from %s", job.Status)
		}
	case models.JobFailed:
		if job.Status != models.JobRunning && job.Status != models.JobPending && job.Status != models.JobFailed {
			return models.Job{}, fault.Newf(fault.InvalidTransition,
				"job cannot be failed from %s", job.Status)
		}
	}

	// A failed job never incurs a debit.
	finalCost := attempt.ActualCostCents
	if attempt.Status == models.JobFailed {
		finalCost = 0
	}

	if err := s.wallet.SettleTx(ctx, db, job.UserID, job.ID, job.EstimatedCostCents, finalCost); err != nil {
		return models.Job{}, err
	}

	return s.repo.Finalize(ctx, db, job.ID, attempt.Status, finalCost, attempt.SettlementRunID)
}
