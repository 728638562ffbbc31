package models

import (
	"time"

	"github.com/google/uuid"
)

// EntryKind classifies a ledger posting.
type EntryKind string

const (
	EntryCredit  EntryKind = "credit"
	EntryDebit   EntryKind = "debit"
	EntryHold    EntryKind = "hold"
	EntryRelease EntryKind = "release"
)

// Valid reports whether k is a known entry kind.
func (k EntryKind) Valid() bool {
	switch k {
	case EntryCredit, EntryDebit, EntryHold, EntryRelease:
		return true
	}
	return false
}

// LedgerEntry is one immutable posting to a user's wallet. Entries are
// append-only; amounts are strictly positive integer cents. ReferenceID
// links hold/release/debit entries to the job they belong to.
type LedgerEntry struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	Kind        EntryKind  `json:"kind"`
	AmountCents int64      `json:"amount_cents"`
	ReferenceID *uuid.UUID `json:"reference_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// BalanceView is the derived state of a wallet. It is never stored:
//
//	balance   = sum(credits) - sum(debits)
//	pending   = sum(holds) - sum(releases)
//	available = balance - pending
type BalanceView struct {
	BalanceCents   int64 `json:"balance_cents"`
	PendingCents   int64 `json:"pending_cents"`
	AvailableCents int64 `json:"available_cents"`
}

// Fold computes the balance view over a set of ledger entries. The result
// is order-independent; entry ordering is kept only for audit display.
func Fold(entries []LedgerEntry) BalanceView {
	var credits, debits, holds, releases int64
	for _, e := range entries {
		switch e.Kind {
		case EntryCredit:
			credits += e.AmountCents
		case EntryDebit:
			debits += e.AmountCents
		case EntryHold:
			holds += e.AmountCents
		case EntryRelease:
			releases += e.AmountCents
		}
	}
	balance := credits - debits
	pending := holds - releases
	return BalanceView{
		BalanceCents:   balance,
		PendingCents:   pending,
		AvailableCents: balance - pending,
	}
}
