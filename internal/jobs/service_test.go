package jobs_test

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rahulvgmr/settleq/internal/fault"
	"github.com/rahulvgmr/settleq/internal/jobs"
	"github.com/rahulvgmr/settleq/internal/store"
	"github.com/rahulvgmr/settleq/internal/wallet"
	"github.com/rahulvgmr/settleq/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("settleq_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

type fixture struct {
	jobs   *jobs.Service
	wallet *wallet.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	pool := setupTestDB(t)
	txm := store.NewTxManager(pool)
	walletSvc := wallet.NewService(wallet.NewRepository(), txm)
	return fixture{
		jobs:   jobs.NewService(jobs.NewRepository(), walletSvc, txm),
		wallet: walletSvc,
	}
}

// fundedUser credits a fresh user and returns its id.
func fundedUser(t *testing.T, f fixture, cents int64) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	_, err := f.wallet.Credit(context.Background(), userID, cents)
	require.NoError(t, err)
	return userID
}

func TestCreateJob_PlacesHold(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	f := newFixture(t)
	ctx := context.Background()
	userID := fundedUser(t, f, 1000)

	job, err := f.jobs.CreateJob(ctx, jobs.CreateParams{
		UserID:             userID,
		TaskParams:         map[string]any{"duration_ms": float64(100)},
		EstimatedCostCents: 500,
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Equal(t, int64(500), job.EstimatedCostCents)
	assert.False(t, job.Settled())

	balance, err := f.wallet.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance.PendingCents)
	assert.Equal(t, int64(500), balance.AvailableCents)
}

func TestCreateJob_InsufficientBalanceRollsBack(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	f := newFixture(t)
	ctx := context.Background()
	userID := fundedUser(t, f, 100)

	_, err := f.jobs.CreateJob(ctx, jobs.CreateParams{
		UserID:             userID,
		EstimatedCostCents: 500,
	})
	assert.True(t, fault.Is(err, fault.InsufficientBalance))

	// The insert and the hold share a transaction, so the job must not exist.
	list, err := f.jobs.List(ctx, jobs.Filter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateJob_RejectsNonPositiveEstimate(t *testing.T) {
	svc := jobs.NewService(jobs.NewRepository(), nil, nil)

	_, err := svc.CreateJob(context.Background(), jobs.CreateParams{
		UserID:             uuid.New(),
		EstimatedCostCents: 0,
	})
	assert.True(t, fault.Is(err, fault.Validation))
}

func TestFetchAndRun_ClaimsOldestFirst(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	f := newFixture(t)
	ctx := context.Background()
	userID := fundedUser(t, f, 10000)

	first, err := f.jobs.CreateJob(ctx, jobs.CreateParams{UserID: userID, EstimatedCostCents: 100})
	require.NoError(t, err)
	second, err := f.jobs.CreateJob(ctx, jobs.CreateParams{UserID: userID, EstimatedCostCents: 100})
	require.NoError(t, err)

	claimed, err := f.jobs.FetchAndRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first.ID, claimed.ID)
	assert.Equal(t, models.JobRunning, claimed.Status)
	require.NotNil(t, claimed.SettlementRunID)
	assert.Contains(t, *claimed.SettlementRunID, "worker-")

	claimed, err = f.jobs.FetchAndRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, second.ID, claimed.ID)

	claimed, err = f.jobs.FetchAndRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestFetchAndRun_ConcurrentWorkersClaimDistinctJobs(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	f := newFixture(t)
	ctx := context.Background()
	userID := fundedUser(t, f, 10000)

	const n = 4
	for i := 0; i < n; i++ {
		_, err := f.jobs.CreateJob(ctx, jobs.CreateParams{UserID: userID, EstimatedCostCents: 100})
		require.NoError(t, err)
	}

	results := make(chan *models.Job, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := f.jobs.FetchAndRun(ctx)
			if err != nil {
				results <- nil
				return
			}
			results <- job
		}()
	}
	wg.Wait()
	close(results)

	// SKIP LOCKED must hand each worker a different job.
	claimed := map[uuid.UUID]bool{}
	for job := range results {
		require.NotNil(t, job)
		claimed[job.ID] = true
	}
	assert.Len(t, claimed, n)
}

func TestSettle_CompletedRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	f := newFixture(t)
	ctx := context.Background()
	userID := fundedUser(t, f, 1000)

	created, err := f.jobs.CreateJob(ctx, jobs.CreateParams{UserID: userID, EstimatedCostCents: 500})
	require.NoError(t, err)

	claimed, err := f.jobs.FetchAndRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	settled, err := f.jobs.SettleJobAttempt(ctx, jobs.SettlementAttempt{
		JobID:           created.ID,
		Status:          models.JobCompleted,
		ActualCostCents: 300,
		SettlementRunID: *claimed.SettlementRunID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, settled.Status)
	assert.True(t, settled.Settled())
	require.NotNil(t, settled.ActualCostCents)
	assert.Equal(t, int64(300), *settled.ActualCostCents)

	balance, err := f.wallet.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(700), balance.BalanceCents)
	assert.Equal(t, int64(0), balance.PendingCents)
	assert.Equal(t, int64(700), balance.AvailableCents)
}

func TestSettle_FailedReleasesHoldWithoutDebit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	f := newFixture(t)
	ctx := context.Background()
	userID := fundedUser(t, f, 1000)

	created, err := f.jobs.CreateJob(ctx, jobs.CreateParams{UserID: userID, EstimatedCostCents: 500})
	require.NoError(t, err)
	_, err = f.jobs.FetchAndRun(ctx)
	require.NoError(t, err)

	// A failed job reports an actual cost, but it must never be debited.
	settled, err := f.jobs.SettleJobAttempt(ctx, jobs.SettlementAttempt{
		JobID:           created.ID,
		Status:          models.JobFailed,
		ActualCostCents: 300,
		SettlementRunID: "worker-" + uuid.NewString(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, settled.Status)
	require.NotNil(t, settled.ActualCostCents)
	assert.Equal(t, int64(0), *settled.ActualCostCents)

	balance, err := f.wallet.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance.BalanceCents)
	assert.Equal(t, int64(0), balance.PendingCents)
}

func TestSettle_IsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	f := newFixture(t)
	ctx := context.Background()
	userID := fundedUser(t, f, 1000)

	created, err := f.jobs.CreateJob(ctx, jobs.CreateParams{UserID: userID, EstimatedCostCents: 500})
	require.NoError(t, err)
	_, err = f.jobs.FetchAndRun(ctx)
	require.NoError(t, err)

	attempt := jobs.SettlementAttempt{
		JobID:           created.ID,
		Status:          models.JobCompleted,
		ActualCostCents: 300,
		SettlementRunID: "worker-" + uuid.NewString(),
	}

	first, err := f.jobs.SettleJobAttempt(ctx, attempt)
	require.NoError(t, err)

	// A duplicate report, even with different numbers, changes nothing.
	attempt.ActualCostCents = 999
	second, err := f.jobs.SettleJobAttempt(ctx, attempt)
	require.NoError(t, err)
	assert.Equal(t, first.SettledAt, second.SettledAt)
	require.NotNil(t, second.ActualCostCents)
	assert.Equal(t, int64(300), *second.ActualCostCents)

	entries, err := f.wallet.GetTransactions(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, entries, 4) // credit, hold, release, debit; no duplicates
}

func TestSettle_InvalidTransitionFromPending(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	f := newFixture(t)
	ctx := context.Background()
	userID := fundedUser(t, f, 1000)

	created, err := f.jobs.CreateJob(ctx, jobs.CreateParams{UserID: userID, EstimatedCostCents: 500})
	require.NoError(t, err)

	// A job that was never claimed cannot complete.
	_, err = f.jobs.SettleJobAttempt(ctx, jobs.SettlementAttempt{
		JobID:           created.ID,
		Status:          models.JobCompleted,
		SettlementRunID: "worker-" + uuid.NewString(),
	})
	assert.True(t, fault.Is(err, fault.InvalidTransition))
}

func TestSettle_UnknownJob(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	f := newFixture(t)

	_, err := f.jobs.SettleJobAttempt(context.Background(), jobs.SettlementAttempt{
		JobID:           uuid.New(),
		Status:          models.JobFailed,
		SettlementRunID: "worker-" + uuid.NewString(),
	})
	assert.True(t, fault.Is(err, fault.NotFound))
}

func TestSettle_ValidatesAttempt(t *testing.T) {
	svc := jobs.NewService(jobs.NewRepository(), nil, nil)
	ctx := context.Background()

	_, err := svc.SettleAttemptTx(ctx, nil, jobs.SettlementAttempt{
		JobID:           uuid.New(),
		Status:          models.JobRunning,
		SettlementRunID: "worker-x",
	})
	assert.True(t, fault.Is(err, fault.Validation))

	_, err = svc.SettleAttemptTx(ctx, nil, jobs.SettlementAttempt{
		JobID:           uuid.New(),
		Status:          models.JobCompleted,
		ActualCostCents: -1,
		SettlementRunID: "worker-x",
	})
	assert.True(t, fault.Is(err, fault.Validation))

	_, err = svc.SettleAttemptTx(ctx, nil, jobs.SettlementAttempt{
		JobID:  uuid.New(),
		Status: models.JobCompleted,
	})
	assert.True(t, fault.Is(err, fault.Validation))
}

func TestList_FiltersByStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	f := newFixture(t)
	ctx := context.Background()
	userID := fundedUser(t, f, 10000)

	_, err := f.jobs.CreateJob(ctx, jobs.CreateParams{UserID: userID, EstimatedCostCents: 100})
	require.NoError(t, err)
	_, err = f.jobs.CreateJob(ctx, jobs.CreateParams{UserID: userID, EstimatedCostCents: 100})
	require.NoError(t, err)
	_, err = f.jobs.FetchAndRun(ctx)
	require.NoError(t, err)

	pending, err := f.jobs.List(ctx, jobs.Filter{Status: models.JobPending})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	running, err := f.jobs.List(ctx, jobs.Filter{Status: models.JobRunning})
	require.NoError(t, err)
	assert.Len(t, running, 1)

	all, err := f.jobs.List(ctx, jobs.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
