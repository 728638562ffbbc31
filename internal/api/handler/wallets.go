package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rahulvgmr/settleq/internal/api/response"
	"github.com/rahulvgmr/settleq/internal/cache"
	"github.com/rahulvgmr/settleq/pkg/models"
)

const walletViewTTL = 10 * time.Second

// WalletService defines the wallet operations the handlers depend on.
type WalletService interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (models.BalanceView, error)
	GetTransactions(ctx context.Context, userID uuid.UUID) ([]models.LedgerEntry, error)
	Credit(ctx context.Context, userID uuid.UUID, amountCents int64) (models.LedgerEntry, error)
}

type walletView struct {
	Balance      models.BalanceView   `json:"balance"`
	Transactions []models.LedgerEntry `json:"transactions"`
}

// NewGetWalletHandler returns the handler for GET /admin/wallets/{userID}.
// The assembled view is cached briefly; the balance itself is always
// derived from the ledger, never stored.
func NewGetWalletHandler(svc WalletService, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(chi.URLParam(r, "userID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION", "userID must be a valid UUID", nil)
			return
		}

		key := cache.WalletViewKey(userID)
		if c != nil {
			if raw, ok, err := c.Get(r.Context(), key); err == nil && ok {
				var view walletView
				if json.Unmarshal(raw, &view) == nil {
					response.JSON(w, view)
					return
				}
			}
		}

		balance, err := svc.GetBalance(r.Context(), userID)
		if err != nil {
			writeError(w, err)
			return
		}
		entries, err := svc.GetTransactions(r.Context(), userID)
		if err != nil {
			writeError(w, err)
			return
		}

		view := walletView{Balance: balance, Transactions: entries}
		if c != nil {
			if raw, err := json.Marshal(view); err == nil {
				c.Set(r.Context(), key, raw, walletViewTTL)
			}
		}
		response.JSON(w, view)
	}
}

// NewCreditWalletHandler returns the handler for
// POST /admin/wallets/{userID}/credit. Any cached view for the user is
// dropped so the top-up is visible immediately.
func NewCreditWalletHandler(svc WalletService, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(chi.URLParam(r, "userID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION", "userID must be a valid UUID", nil)
			return
		}

		var req struct {
			AmountCents int64 `json:"amount_cents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION", "Invalid JSON body", nil)
			return
		}

		entry, err := svc.Credit(r.Context(), userID, req.AmountCents)
		if err != nil {
			writeError(w, err)
			return
		}

		if c != nil {
			c.Delete(r.Context(), cache.WalletViewKey(userID))
		}
		response.Created(w, entry)
	}
}
