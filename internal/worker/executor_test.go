package worker

import (
	"context"
	"testing"
	"time"

	"github.com/rahulvgmr/settleq/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedExecutor_HonorsTaskParams(t *testing.T) {
	job := models.Job{TaskParams: map[string]any{
		"duration_ms": float64(1),
		"cost_cents":  float64(75),
	}}

	cost, err := SimulatedExecutor(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, int64(75), cost)
}

func TestSimulatedExecutor_ShouldFail(t *testing.T) {
	job := models.Job{TaskParams: map[string]any{
		"duration_ms": float64(1),
		"should_fail": true,
	}}

	_, err := SimulatedExecutor(context.Background(), job)
	assert.Error(t, err)
}

func TestSimulatedExecutor_CancelledContext(t *testing.T) {
	job := models.Job{TaskParams: map[string]any{
		"duration_ms": float64(5000),
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := SimulatedExecutor(ctx, job)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAsInt(t *testing.T) {
	v, ok := asInt(float64(7))
	assert.True(t, ok)
	assert.Equal(t, 7, v)

	v, ok = asInt(int64(9))
	assert.True(t, ok)
	assert.Equal(t, 9, v)

	_, ok = asInt("nope")
	assert.False(t, ok)
}
