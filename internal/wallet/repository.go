// Package wallet implements the append-only wallet ledger. Balance,
// pending and available amounts are never stored; they are folded from
// the entry log on every read.
package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rahulvgmr/settleq/internal/store"
	"github.com/rahulvgmr/settleq/pkg/models"
)

// Repository performs the direct ledger queries. Every method requires an
// explicit store.DB handle; callers that need atomicity across several
// calls pass the same transaction handle to each.
type Repository struct{}

// NewRepository creates a wallet Repository.
func NewRepository() *Repository {
	return &Repository{}
}

// EntriesForUser returns all ledger entries for a user ordered by creation
// time ascending. Ordering does not affect the fold; it is kept for audit
// display.
func (r *Repository) EntriesForUser(ctx context.Context, db store.DB, userID uuid.UUID) ([]models.LedgerEntry, error) {
	rows, err := db.Query(ctx,
		`SELECT id, user_id, kind, amount_cents, reference_id, created_at
		 FROM wallet_entries WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query wallet entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Kind, &e.AmountCents, &e.ReferenceID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan wallet entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// InsertEntry appends one immutable entry to the ledger.
func (r *Repository) InsertEntry(ctx context.Context, db store.DB, userID uuid.UUID, kind models.EntryKind, amountCents int64, referenceID *uuid.UUID) (models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := db.QueryRow(ctx,
		`INSERT INTO wallet_entries (id, user_id, kind, amount_cents, reference_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, user_id, kind, amount_cents, reference_id, created_at`,
		uuid.New(), userID, kind, amountCents, referenceID,
	).Scan(&e.ID, &e.UserID, &e.Kind, &e.AmountCents, &e.ReferenceID, &e.CreatedAt)
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("insert wallet entry: %w", err)
	}
	return e, nil
}
