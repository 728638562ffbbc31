package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/rahulvgmr/settleq/internal/fault"
	"github.com/rahulvgmr/settleq/internal/store"
	"github.com/rahulvgmr/settleq/pkg/models"
)

// Service enforces the ledger rules: positive amounts, in-transaction
// balance checks, and the release+debit settlement shape. Methods ending
// in Tx require a transaction-scoped handle and are meant to be composed
// into larger units of work (job creation, settlement). The remaining
// methods open their own transaction via the TxManager.
type Service struct {
	repo *Repository
	txm  *store.TxManager
}

// NewService creates a wallet Service.
func NewService(repo *Repository, txm *store.TxManager) *Service {
	return &Service{repo: repo, txm: txm}
}

// BalanceTx folds the user's entries into a balance view using the given handle.
func (s *Service) BalanceTx(ctx context.Context, db store.DB, userID uuid.UUID) (models.BalanceView, error) {
	entries, err := s.repo.EntriesForUser(ctx, db, userID)
	if err != nil {
		return models.BalanceView{}, err
	}
	return models.Fold(entries), nil
}

// GetBalance returns the derived balance view for a user.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (models.BalanceView, error) {
	return s.BalanceTx(ctx, s.txm.Pool(), userID)
}

// GetTransactions returns the user's full entry history, oldest first.
func (s *Service) GetTransactions(ctx context.Context, userID uuid.UUID) ([]models.LedgerEntry, error) {
	return s.repo.EntriesForUser(ctx, s.txm.Pool(), userID)
}

// PlaceHoldTx reserves amountCents against the user's available balance,
// appending a hold entry linked to referenceID. The handle must be
// transaction-scoped: an advisory lock on the user serializes concurrent
// holds so that two of them cannot both observe sufficient balance.
func (s *Service) PlaceHoldTx(ctx context.Context, db store.DB, userID uuid.UUID, amountCents int64, referenceID uuid.UUID) error {
	if amountCents <= 0 {
		return fault.New(fault.Validation, "hold amount must be positive")
	}

	if _, err := db.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", userID.String()); err != nil {
		return err
	}

	balance, err := s.BalanceTx(ctx, db, userID)
	if err != nil {
		return err
	}
	if balance.AvailableCents < amountCents {
		return fault.Newf(fault.InsufficientBalance,
			"available balance %d is less than hold amount %d", balance.AvailableCents, amountCents)
	}

	_, err = s.repo.InsertEntry(ctx, db, userID, models.EntryHold, amountCents, &referenceID)
	return err
}

// PlaceHold is PlaceHoldTx in its own transaction.
func (s *Service) PlaceHold(ctx context.Context, userID uuid.UUID, amountCents int64, referenceID uuid.UUID) error {
	return s.txm.Execute(ctx, func(ctx context.Context, db store.DB) error {
		return s.PlaceHoldTx(ctx, db, userID, amountCents, referenceID)
	})
}

// SettleTx releases the original hold and debits the final cost, both
// linked to referenceID. No debit entry is written for a zero final
// amount. The difference between held and final amounts is never written
// explicitly; the ledger fold recovers it.
func (s *Service) SettleTx(ctx context.Context, db store.DB, userID uuid.UUID, referenceID uuid.UUID, heldCents, finalCents int64) error {
	if heldCents <= 0 {
		return fault.New(fault.Validation, "held amount must be positive")
	}
	if finalCents < 0 {
		return fault.New(fault.Validation, "final amount cannot be negative")
	}

	if _, err := s.repo.InsertEntry(ctx, db, userID, models.EntryRelease, heldCents, &referenceID); err != nil {
		return err
	}
	if finalCents > 0 {
		if _, err := s.repo.InsertEntry(ctx, db, userID, models.EntryDebit, finalCents, &referenceID); err != nil {
			return err
		}
	}
	return nil
}

// Credit appends a credit entry with no job reference (direct top-up).
func (s *Service) Credit(ctx context.Context, userID uuid.UUID, amountCents int64) (models.LedgerEntry, error) {
	if amountCents <= 0 {
		return models.LedgerEntry{}, fault.New(fault.Validation, "credit amount must be positive")
	}

	var entry models.LedgerEntry
	err := s.txm.Execute(ctx, func(ctx context.Context, db store.DB) error {
		var err error
		entry, err = s.repo.InsertEntry(ctx, db, userID, models.EntryCredit, amountCents, nil)
		return err
	})
	return entry, err
}
