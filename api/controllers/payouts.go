package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sokohub/sokohub-backend/api/responses"
	ledgersvc "github.com/sokohub/sokohub-backend/internal/ledger"
	"github.com/sokohub/sokohub-backend/pkg/db/models"
	pkgerrors "github.com/sokohub/sokohub-backend/pkg/errors"
	"github.com/sokohub/sokohub-backend/pkg/logger"
)

// GetBalance returns the caller's seller balance and ledger entries.
func GetBalance(svc ledgersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.GetBalance(r.Context(), actor.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newBalanceResponse(balance))
	}
}

// PayoutEntry settles one pending ledger entry. Admin only.
func PayoutEntry(svc ledgersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		entryID, err := uuid.Parse(chi.URLParam(r, "entryID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid entry id"))
			return
		}

		result, err := svc.PayoutEntry(r.Context(), entryID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// PayoutSeller settles every pending ledger entry for a seller. Admin only.
func PayoutSeller(svc ledgersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		sellerID, err := uuid.Parse(chi.URLParam(r, "sellerID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid seller id"))
			return
		}

		result, err := svc.PayoutSeller(r.Context(), sellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// CreditSellerBacklog credits a seller's completed-but-uncredited orders.
// Admin only, used to repair the ledger after partial callback failures.
func CreditSellerBacklog(svc ledgersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		sellerID, err := uuid.Parse(chi.URLParam(r, "sellerID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid seller id"))
			return
		}

		result, err := svc.CreditBacklog(r.Context(), sellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

type balanceResponse struct {
	SellerID            uuid.UUID             `json:"seller_id"`
	CurrentBalanceCents int                   `json:"current_balance_cents"`
	TotalEarningsCents  int                   `json:"total_earnings_cents"`
	TotalOrders         int                   `json:"total_orders"`
	Entries             []ledgerEntryResponse `json:"entries"`
}

type ledgerEntryResponse struct {
	EntryID     uuid.UUID  `json:"entry_id"`
	OrderID     uuid.UUID  `json:"order_id"`
	Type        string     `json:"type"`
	AmountCents int        `json:"amount_cents"`
	Status      string     `json:"status"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func newBalanceResponse(balance *models.SellerBalance) balanceResponse {
	if balance == nil {
		return balanceResponse{}
	}
	entries := make([]ledgerEntryResponse, 0, len(balance.Entries))
	for _, entry := range balance.Entries {
		entries = append(entries, ledgerEntryResponse{
			EntryID:     entry.ID,
			OrderID:     entry.OrderID,
			Type:        string(entry.Type),
			AmountCents: entry.AmountCents,
			Status:      string(entry.Status),
			PaidAt:      entry.PaidAt,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return balanceResponse{
		SellerID:            balance.SellerID,
		CurrentBalanceCents: balance.CurrentBalanceCents,
		TotalEarningsCents:  balance.TotalEarningsCents,
		TotalOrders:         balance.TotalOrders,
		Entries:             entries,
	}
}
