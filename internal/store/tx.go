package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the querier handle every repository method operates on. Both
// *pgxpool.Pool and pgx.Tx satisfy it, so the same repository code runs
// against a plain connection or inside a transaction. Multi-step units of
// work must be given a transaction-scoped handle via TxManager.Execute.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxManager owns the begin/commit/rollback lifecycle around a unit of
// work. The handle it passes to work is transaction-scoped; a non-nil
// error from work rolls back the whole unit, otherwise it commits. The
// underlying connection is released in both cases.
type TxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager creates a TxManager over the given pool.
func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

// Execute runs work inside a single database transaction.
func (m *TxManager) Execute(ctx context.Context, work func(ctx context.Context, db DB) error) error {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	if err := work(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Pool returns the raw pool for single-statement reads that do not need a
// surrounding transaction.
func (m *TxManager) Pool() DB {
	return m.pool
}
