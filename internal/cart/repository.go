package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sokohub/sokohub-backend/pkg/db"
	"github.com/sokohub/sokohub-backend/pkg/db/models"
	pkgerrors "github.com/sokohub/sokohub-backend/pkg/errors"
)

// Repository reads and clears a buyer's cart.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.CartItem, error)
	RemoveItems(ctx context.Context, buyerID uuid.UUID, productIDs []uuid.UUID) error
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

func (r *repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.conn(ctx).
		Preload("Product").
		Where("buyer_id = ?", buyerID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cart items")
	}
	return items, nil
}

// RemoveItems deletes the checked-out items only, leaving skipped ones in the
// cart for the buyer to deal with.
func (r *repository) RemoveItems(ctx context.Context, buyerID uuid.UUID, productIDs []uuid.UUID) error {
	if len(productIDs) == 0 {
		return nil
	}
	err := r.conn(ctx).
		Where("buyer_id = ? AND product_id IN ?", buyerID, productIDs).
		Delete(&models.CartItem{}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart items")
	}
	return nil
}
