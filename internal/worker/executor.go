// Package worker implements the polling worker loop: fetch a job from the
// API, execute its payload under a timeout, and report the outcome back
// through the settlement endpoint with bounded retries.
package worker

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rahulvgmr/settleq/pkg/models"
)

// Executor runs a job's payload and returns the actual cost in cents.
// The real automation payload plugs in here; the default is simulated.
type Executor func(ctx context.Context, job models.Job) (int64, error)

// SimulatedExecutor mimics a real payload for local runs. Task params can
// steer it: "duration_ms" sleeps, "should_fail" forces a failure,
// "cost_cents" fixes the reported cost.
func SimulatedExecutor(ctx context.Context, job models.Job) (int64, error) {
	duration := time.Duration(1000+rand.Intn(5000)) * time.Millisecond
	if ms, ok := asInt(job.TaskParams["duration_ms"]); ok && ms > 0 {
		duration = time.Duration(ms) * time.Millisecond
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(duration):
	}

	if fail, ok := job.TaskParams["should_fail"].(bool); ok && fail {
		return 0, errors.New("simulated failure requested by task params")
	}

	if cents, ok := asInt(job.TaskParams["cost_cents"]); ok && cents >= 0 {
		return int64(cents), nil
	}
	return int64(rand.Intn(100)), nil
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case int64:
		return int(t), true
	default:
		return 0, false
	}
}
