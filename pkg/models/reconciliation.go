package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// InconsistencyType classifies drift between job state and ledger state.
type InconsistencyType string

const (
	// StuckRunning marks jobs in RUNNING past the configured threshold.
	StuckRunning InconsistencyType = "STUCK_RUNNING"
	// UnsettledCompleted marks COMPLETED jobs without a ledger settlement.
	UnsettledCompleted InconsistencyType = "UNSETTLED_COMPLETED"
	// UnsettledFailed marks FAILED jobs without a ledger settlement.
	UnsettledFailed InconsistencyType = "UNSETTLED_FAILED"
)

// InconsistencyReport is one detected drift candidate, with enough context
// for an operator to decide on a fix.
type InconsistencyReport struct {
	JobID   uuid.UUID         `json:"job_id"`
	UserID  uuid.UUID         `json:"user_id"`
	Type    InconsistencyType `json:"type"`
	Details string            `json:"details"`
	Job     Job               `json:"job"`
}

// FixType identifies a manual repair action.
type FixType string

const (
	// ForceFailJob settles a job as FAILED, releasing its hold and debiting zero.
	ForceFailJob FixType = "FORCE_FAIL_JOB"
	// ForceSettleAsCompleted settles a job already marked COMPLETED whose
	// settlement callback was missed. It does not change the status.
	ForceSettleAsCompleted FixType = "FORCE_SETTLE_AS_COMPLETED"
)

// Valid reports whether t is a known fix type.
func (t FixType) Valid() bool {
	return t == ForceFailJob || t == ForceSettleAsCompleted
}

// WalletAction describes one ledger posting a fix would make.
type WalletAction struct {
	Kind        EntryKind `json:"kind"`
	AmountCents int64     `json:"amount_cents"`
}

// JobUpdate describes the job-row change a fix would make.
type JobUpdate struct {
	Status          JobStatus `json:"status"`
	ActualCostCents int64     `json:"actual_cost_cents"`
	SetsSettledAt   bool      `json:"sets_settled_at"`
}

// FixPreview describes the effect of a candidate fix without applying it.
type FixPreview struct {
	JobID         uuid.UUID      `json:"job_id"`
	FixType       FixType        `json:"fix_type"`
	Description   string         `json:"description"`
	JobUpdate     JobUpdate      `json:"job_update"`
	WalletActions []WalletAction `json:"wallet_actions"`
}

// ReconciliationLog is one write-once audit record of a manual repair.
// It is never consulted by any control-flow decision.
type ReconciliationLog struct {
	ID            int64           `json:"id"`
	JobID         uuid.UUID       `json:"job_id"`
	UserID        uuid.UUID       `json:"user_id"`
	FixType       FixType         `json:"fix_type"`
	PreviousState json.RawMessage `json:"previous_state"`
	NewState      json.RawMessage `json:"new_state"`
	Operator      string          `json:"operator"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
