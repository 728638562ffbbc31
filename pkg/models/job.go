package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an automation job.
// Valid transitions: PENDING -> RUNNING -> {COMPLETED, FAILED}.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Valid reports whether s is a known status value.
func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobRunning, JobCompleted, JobFailed:
		return true
	}
	return false
}

// Job is one billed automation task. Rows are never deleted; terminal
// status and settlement fields are written only by the settlement path.
type Job struct {
	ID                 uuid.UUID      `json:"id"`
	UserID             uuid.UUID      `json:"user_id"`
	TaskParams         map[string]any `json:"task_params"`
	ScheduledAt        time.Time      `json:"scheduled_at"`
	EstimatedCostCents int64          `json:"estimated_cost_cents"`
	ActualCostCents    *int64         `json:"actual_cost_cents,omitempty"`
	Status             JobStatus      `json:"status"`
	SettlementRunID    *string        `json:"settlement_run_id,omitempty"`
	SettledAt          *time.Time     `json:"settled_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Settled reports whether the job's settlement has been posted to the ledger.
// A terminal job with Settled() == false is a detectable inconsistency.
func (j *Job) Settled() bool {
	return j.SettledAt != nil
}
