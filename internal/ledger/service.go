package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/sokohub/sokohub-backend/internal/orders"
	"github.com/sokohub/sokohub-backend/pkg/db"
	"github.com/sokohub/sokohub-backend/pkg/db/models"
	"github.com/sokohub/sokohub-backend/pkg/enums"
	pkgerrors "github.com/sokohub/sokohub-backend/pkg/errors"
	"github.com/sokohub/sokohub-backend/pkg/logger"
)

// PayoutResult summarizes a payout operation.
type PayoutResult struct {
	SellerID    uuid.UUID `json:"sellerId"`
	EntriesPaid int64     `json:"entriesPaid"`
	AmountCents int       `json:"amountCents"`
}

// BacklogResult reports a backlog credit sweep for one seller.
type BacklogResult struct {
	SellerID       uuid.UUID `json:"sellerId"`
	OrdersCredited int       `json:"ordersCredited"`
	AmountCents    int       `json:"amountCents"`
}

// Service maintains seller earnings. Credit is the only write path that adds
// money; payouts only move entries from pending to paid and draw the balance
// down.
type Service interface {
	Credit(ctx context.Context, tx *gorm.DB, sellerID, orderID uuid.UUID, amountCents int) error
	CreditBacklog(ctx context.Context, sellerID uuid.UUID) (*BacklogResult, error)
	GetBalance(ctx context.Context, sellerID uuid.UUID) (*models.SellerBalance, error)
	PayoutEntry(ctx context.Context, entryID uuid.UUID) (*PayoutResult, error)
	PayoutSeller(ctx context.Context, sellerID uuid.UUID) (*PayoutResult, error)
}

type service struct {
	db     *db.Client
	repo   Repository
	orders orders.Repository
	log    *logger.Logger
	now    func() time.Time
}

func NewService(client *db.Client, repo Repository, orderRepo orders.Repository, log *logger.Logger) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{db: client, repo: repo, orders: orderRepo, log: log, now: time.Now}, nil
}

// Credit records a sale for the seller inside the caller's transaction. The
// unique index on the entry's order id makes a second credit for the same
// order fail, so the balance can never double-count a sale.
func (s *service) Credit(ctx context.Context, tx *gorm.DB, sellerID, orderID uuid.UUID, amountCents int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required for credit")
	}
	if amountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "credit amount must be positive")
	}
	repo := s.repo.WithTx(tx)

	entry := models.LedgerEntry{
		ID:          uuid.New(),
		SellerID:    sellerID,
		OrderID:     orderID,
		Type:        enums.LedgerEntryTypeSale,
		AmountCents: amountCents,
		Status:      enums.LedgerEntryStatusPending,
	}
	if err := repo.InsertEntry(ctx, &entry); err != nil {
		return err
	}
	return repo.UpsertBalanceForSale(ctx, sellerID, amountCents)
}

// CreditBacklog credits every completed order of the seller whose seller_paid
// flag is still false, one transaction per order so a bad row cannot block
// the rest. This is the recovery path for orders that settled while the
// ledger write was failing.
func (s *service) CreditBacklog(ctx context.Context, sellerID uuid.UUID) (*BacklogResult, error) {
	backlog, err := s.orders.FindUncreditedBySeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	result := BacklogResult{SellerID: sellerID}
	var errs error
	for i := range backlog {
		order := &backlog[i]

		credited := false
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			flipped, err := s.orders.WithTx(tx).MarkSellerPaid(ctx, order.ID)
			if err != nil {
				return err
			}
			if !flipped {
				return nil
			}
			credited = true
			return s.Credit(ctx, tx, order.SellerID, order.ID, order.TotalPriceCents)
		})
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if credited {
			result.OrdersCredited++
			result.AmountCents += order.TotalPriceCents
		}
	}
	if errs != nil {
		return nil, errs
	}

	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"seller_id":       sellerID.String(),
		"orders_credited": result.OrdersCredited,
		"amount_cents":    result.AmountCents,
	}), "seller backlog credited")

	return &result, nil
}

func (s *service) GetBalance(ctx context.Context, sellerID uuid.UUID) (*models.SellerBalance, error) {
	return s.repo.FindBalance(ctx, sellerID)
}

// PayoutEntry settles a single pending ledger entry. An entry that is already
// paid yields a zero result instead of an error, so retried payout calls
// cannot move money twice.
func (s *service) PayoutEntry(ctx context.Context, entryID uuid.UUID) (*PayoutResult, error) {
	entry, err := s.repo.FindEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	result := PayoutResult{SellerID: entry.SellerID}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		paid, err := repo.MarkEntryPaid(ctx, entry.ID, s.now().UTC())
		if err != nil {
			return err
		}
		if !paid {
			return nil
		}
		result.EntriesPaid = 1
		result.AmountCents = entry.AmountCents
		return repo.DecrementBalance(ctx, entry.SellerID, entry.AmountCents)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"seller_id":    entry.SellerID.String(),
		"entry_id":     entry.ID.String(),
		"amount_cents": result.AmountCents,
		"entries_paid": result.EntriesPaid,
	}), "ledger entry payout processed")

	return &result, nil
}

// PayoutSeller settles every pending entry for the seller and deducts their
// sum from the withdrawable balance. The sum is computed inside the same
// transaction that marks the entries paid, so a credit landing concurrently
// is either settled and deducted or left pending for the next run. With
// nothing pending it returns a zero result rather than an error, so repeated
// payout runs are harmless.
func (s *service) PayoutSeller(ctx context.Context, sellerID uuid.UUID) (*PayoutResult, error) {
	result := PayoutResult{SellerID: sellerID}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		pending, err := repo.SumPendingBySeller(ctx, sellerID)
		if err != nil {
			return err
		}
		paid, err := repo.MarkAllEntriesPaid(ctx, sellerID, s.now().UTC())
		if err != nil {
			return err
		}
		result.EntriesPaid = paid
		if paid == 0 {
			return nil
		}
		result.AmountCents = pending
		return repo.DecrementBalance(ctx, sellerID, pending)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"seller_id":    sellerID.String(),
		"entries_paid": result.EntriesPaid,
		"amount_cents": result.AmountCents,
	}), "seller paid out")

	return &result, nil
}
