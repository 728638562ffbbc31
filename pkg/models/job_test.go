package models_test

import (
	"testing"
	"time"

	"github.com/rahulvgmr/settleq/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestJobStatus_Valid(t *testing.T) {
	for _, status := range []models.JobStatus{
		models.JobPending, models.JobRunning, models.JobCompleted, models.JobFailed,
	} {
		assert.True(t, status.Valid())
	}
	assert.False(t, models.JobStatus("CANCELLED").Valid())
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, models.JobPending.Terminal())
	assert.False(t, models.JobRunning.Terminal())
	assert.True(t, models.JobCompleted.Terminal())
	assert.True(t, models.JobFailed.Terminal())
}

func TestJob_Settled(t *testing.T) {
	var job models.Job
	assert.False(t, job.Settled())

	now := time.Now()
	job.SettledAt = &now
	assert.True(t, job.Settled())
}
