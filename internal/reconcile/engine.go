package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rahulvgmr/settleq/internal/fault"
	"github.com/rahulvgmr/settleq/internal/jobs"
	"github.com/rahulvgmr/settleq/internal/store"
	"github.com/rahulvgmr/settleq/pkg/models"
)

// Engine scans for inconsistencies between the job table and the wallet
// ledger, previews candidate fixes, and applies them through the same
// settlement coordinator the worker path uses. Applying a fix is the only
// write it performs, and every applied fix leaves one audit record.
type Engine struct {
	repo       *Repository
	jobsRepo   *jobs.Repository
	jobsSvc    *jobs.Service
	txm        *store.TxManager
	stuckAfter time.Duration
}

// NewEngine creates a reconciliation Engine. stuckAfter is the RUNNING-age
// threshold for the stuck-job scan.
func NewEngine(repo *Repository, jobsRepo *jobs.Repository, jobsSvc *jobs.Service, txm *store.TxManager, stuckAfter time.Duration) *Engine {
	return &Engine{
		repo:       repo,
		jobsRepo:   jobsRepo,
		jobsSvc:    jobsSvc,
		txm:        txm,
		stuckAfter: stuckAfter,
	}
}

// ScanInconsistencies detects all drift candidates. Read-only.
func (e *Engine) ScanInconsistencies(ctx context.Context) ([]models.InconsistencyReport, error) {
	reports := []models.InconsistencyReport{}

	stuck, err := e.repo.FindStuckRunningJobs(ctx, e.txm.Pool(), e.stuckAfter)
	if err != nil {
		return nil, err
	}
	for _, job := range stuck {
		reports = append(reports, models.InconsistencyReport{
			JobID:   job.ID,
			UserID:  job.UserID,
			Type:    models.StuckRunning,
			Details: fmt.Sprintf("Job has been in RUNNING state for over %s.", e.stuckAfter),
			Job:     job,
		})
	}

	unsettled, err := e.repo.FindUnsettledFinalizedJobs(ctx, e.txm.Pool())
	if err != nil {
		return nil, err
	}
	for _, job := range unsettled {
		incType := models.UnsettledCompleted
		if job.Status == models.JobFailed {
			incType = models.UnsettledFailed
		}
		reports = append(reports, models.InconsistencyReport{
			JobID:   job.ID,
			UserID:  job.UserID,
			Type:    incType,
			Details: fmt.Sprintf("Job is marked %s but has not been settled in the wallet.", job.Status),
			Job:     job,
		})
	}

	return reports, nil
}

// PreviewFix computes the effect of a candidate fix without applying it.
func (e *Engine) PreviewFix(ctx context.Context, jobID uuid.UUID, fixType models.FixType) (models.FixPreview, error) {
	job, err := e.jobsRepo.FindByID(ctx, e.txm.Pool(), jobID)
	if err != nil {
		return models.FixPreview{}, err
	}
	if job == nil {
		return models.FixPreview{}, fault.New(fault.NotFound, "job not found")
	}

	switch fixType {
	case models.ForceFailJob:
		return models.FixPreview{
			JobID:       jobID,
			FixType:     fixType,
			Description: "Marks the job as FAILED, releases the original wallet hold, and debits 0.",
			JobUpdate: models.JobUpdate{
				Status:          models.JobFailed,
				ActualCostCents: 0,
				SetsSettledAt:   true,
			},
			WalletActions: []models.WalletAction{
				{Kind: models.EntryRelease, AmountCents: job.EstimatedCostCents},
				{Kind: models.EntryDebit, AmountCents: 0},
			},
		}, nil
	case models.ForceSettleAsCompleted:
		var actual int64
		if job.ActualCostCents != nil {
			actual = *job.ActualCostCents
		}
		return models.FixPreview{
			JobID:       jobID,
			FixType:     fixType,
			Description: "Settles a COMPLETED job that was missed, debiting the recorded actual cost.",
			JobUpdate: models.JobUpdate{
				Status:          models.JobCompleted,
				ActualCostCents: actual,
				SetsSettledAt:   true,
			},
			WalletActions: []models.WalletAction{
				{Kind: models.EntryRelease, AmountCents: job.EstimatedCostCents},
				{Kind: models.EntryDebit, AmountCents: actual},
			},
		}, nil
	default:
		return models.FixPreview{}, fault.Newf(fault.UnknownFixType, "unknown fix type %q", fixType)
	}
}

// ApplyParams identifies the fix to apply and the operator applying it.
type ApplyParams struct {
	JobID    uuid.UUID
	FixType  models.FixType
	Operator string
	Notes    string
}

// ApplyFix applies a manual repair: it snapshots the job, dispatches the
// fix through the settlement coordinator, and appends the audit record,
// all in one transaction.
func (e *Engine) ApplyFix(ctx context.Context, p ApplyParams) (models.Job, error) {
	if p.Operator == "" {
		return models.Job{}, fault.New(fault.Validation, "operator is required")
	}

	// Run ids from manual fixes are distinguishable from worker run ids.
	runID := fmt.Sprintf("admin-fix-%s-%d", strings.ToLower(string(p.FixType)), time.Now().UnixMilli())

	var final models.Job
	err := e.txm.Execute(ctx, func(ctx context.Context, db store.DB) error {
		before, err := e.jobsRepo.FindByID(ctx, db, p.JobID)
		if err != nil {
			return err
		}
		if before == nil {
			return fault.New(fault.NotFound, "job not found")
		}

		switch p.FixType {
		case models.ForceFailJob:
			final, err = e.jobsSvc.SettleAttemptTx(ctx, db, jobs.SettlementAttempt{
				JobID:           p.JobID,
				Status:          models.JobFailed,
				ActualCostCents: 0,
				SettlementRunID: runID,
			})
		case models.ForceSettleAsCompleted:
			// Recovery from a missed settlement callback only; the status
			// must already be COMPLETED.
			if before.Status != models.JobCompleted {
				return fault.New(fault.InvalidPrecondition,
					"can only force-settle a job already marked as COMPLETED")
			}
			var actual int64
			if before.ActualCostCents != nil {
				actual = *before.ActualCostCents
			}
			final, err = e.jobsSvc.SettleAttemptTx(ctx, db, jobs.SettlementAttempt{
				JobID:           p.JobID,
				Status:          models.JobCompleted,
				ActualCostCents: actual,
				SettlementRunID: runID,
			})
		default:
			return fault.Newf(fault.UnknownFixType, "unknown fix type %q", p.FixType)
		}
		if err != nil {
			return err
		}

		prevJSON, err := json.Marshal(before)
		if err != nil {
			return fmt.Errorf("marshal previous state: %w", err)
		}
		newJSON, err := json.Marshal(final)
		if err != nil {
			return fmt.Errorf("marshal new state: %w", err)
		}

		return e.repo.AppendLog(ctx, db, models.ReconciliationLog{
			JobID:         p.JobID,
			UserID:        before.UserID,
			FixType:       p.FixType,
			PreviousState: prevJSON,
			NewState:      newJSON,
			Operator:      p.Operator,
			Notes:         p.Notes,
		})
	})
	if err != nil {
		return models.Job{}, err
	}
	return final, nil
}

// AuditLogs returns the full repair audit trail, newest first.
func (e *Engine) AuditLogs(ctx context.Context) ([]models.ReconciliationLog, error) {
	return e.repo.ListLogs(ctx, e.txm.Pool())
}
