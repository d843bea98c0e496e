package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sokohub/sokohub-backend/pkg/db"
	"github.com/sokohub/sokohub-backend/pkg/db/models"
	"github.com/sokohub/sokohub-backend/pkg/enums"
	pkgerrors "github.com/sokohub/sokohub-backend/pkg/errors"
)

// Repository persists seller balances and their ledger entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	InsertEntry(ctx context.Context, entry *models.LedgerEntry) error
	UpsertBalanceForSale(ctx context.Context, sellerID uuid.UUID, amountCents int) error
	FindEntry(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error)
	FindBalance(ctx context.Context, sellerID uuid.UUID) (*models.SellerBalance, error)
	MarkEntryPaid(ctx context.Context, id uuid.UUID, paidAt any) (bool, error)
	MarkAllEntriesPaid(ctx context.Context, sellerID uuid.UUID, paidAt any) (int64, error)
	SumPendingBySeller(ctx context.Context, sellerID uuid.UUID) (int, error)
	DecrementBalance(ctx context.Context, sellerID uuid.UUID, amountCents int) error
}

type repository struct {
	db *db.Client
	tx *gorm.DB
}

func NewRepository(client *db.Client) Repository {
	if client == nil {
		return nil
	}
	return &repository{db: client}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: r.db, tx: tx}
}

func (r *repository) conn(ctx context.Context) *gorm.DB {
	if r.tx != nil {
		return r.tx.WithContext(ctx)
	}
	return r.db.DB().WithContext(ctx)
}

func (r *repository) InsertEntry(ctx context.Context, entry *models.LedgerEntry) error {
	if err := r.conn(ctx).Create(entry).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order already credited")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert ledger entry")
	}
	return nil
}

// UpsertBalanceForSale creates the seller balance row on first sale and
// increments the running totals on every subsequent one.
func (r *repository) UpsertBalanceForSale(ctx context.Context, sellerID uuid.UUID, amountCents int) error {
	balance := models.SellerBalance{
		SellerID:            sellerID,
		CurrentBalanceCents: amountCents,
		TotalEarningsCents:  amountCents,
		TotalOrders:         1,
	}
	err := r.conn(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "seller_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"current_balance_cents": gorm.Expr("seller_balances.current_balance_cents + ?", amountCents),
			"total_earnings_cents":  gorm.Expr("seller_balances.total_earnings_cents + ?", amountCents),
			"total_orders":          gorm.Expr("seller_balances.total_orders + 1"),
		}),
	}).Create(&balance).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert seller balance")
	}
	return nil
}

func (r *repository) FindEntry(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.conn(ctx).First(&entry, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ledger entry not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find ledger entry")
	}
	return &entry, nil
}

func (r *repository) FindBalance(ctx context.Context, sellerID uuid.UUID) (*models.SellerBalance, error) {
	var balance models.SellerBalance
	err := r.conn(ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at DESC")
		}).
		First(&balance, "seller_id = ?", sellerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "seller has no balance yet")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find seller balance")
	}
	return &balance, nil
}

func (r *repository) MarkEntryPaid(ctx context.Context, id uuid.UUID, paidAt any) (bool, error) {
	res := r.conn(ctx).
		Model(&models.LedgerEntry{}).
		Where("id = ? AND status = ?", id, enums.LedgerEntryStatusPending).
		Updates(map[string]any{
			"status":  enums.LedgerEntryStatusPaid,
			"paid_at": paidAt,
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mark entry paid")
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MarkAllEntriesPaid(ctx context.Context, sellerID uuid.UUID, paidAt any) (int64, error) {
	res := r.conn(ctx).
		Model(&models.LedgerEntry{}).
		Where("seller_id = ? AND status = ?", sellerID, enums.LedgerEntryStatusPending).
		Updates(map[string]any{
			"status":  enums.LedgerEntryStatusPaid,
			"paid_at": paidAt,
		})
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mark entries paid")
	}
	return res.RowsAffected, nil
}

// SumPendingBySeller totals the seller's unsettled entries. Callers run it in
// the same transaction as the settlement so the sum matches the rows settled.
func (r *repository) SumPendingBySeller(ctx context.Context, sellerID uuid.UUID) (int, error) {
	var total int
	err := r.conn(ctx).
		Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("seller_id = ? AND status = ?", sellerID, enums.LedgerEntryStatusPending).
		Scan(&total).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum pending entries")
	}
	return total, nil
}

func (r *repository) DecrementBalance(ctx context.Context, sellerID uuid.UUID, amountCents int) error {
	res := r.conn(ctx).
		Model(&models.SellerBalance{}).
		Where("seller_id = ? AND current_balance_cents >= ?", sellerID, amountCents).
		Update("current_balance_cents", gorm.Expr("current_balance_cents - ?", amountCents))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement balance")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "balance is lower than the payout amount")
	}
	return nil
}
