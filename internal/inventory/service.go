package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sokohub/sokohub-backend/pkg/db/models"
	"github.com/sokohub/sokohub-backend/pkg/enums"
	pkgerrors "github.com/sokohub/sokohub-backend/pkg/errors"
)

// Service owns every transition of a product's availability status. All three
// operations are single conditional writes so concurrent callers race on the
// database row, not on stale reads.
type Service interface {
	Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID) error
	Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID) error
	FinalizeSold(ctx context.Context, tx *gorm.DB, productID uuid.UUID) error
}

type service struct {
	now func() time.Time
}

// NewService builds the inventory state machine.
func NewService() Service {
	return &service{now: time.Now}
}

// Reserve flips available -> reserved. Exactly one of two concurrent callers
// wins; the loser gets a Conflict and must treat the product as unavailable.
func (s *service) Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required for reserve")
	}
	res := tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND status = ?", productID, enums.ProductStatusAvailable).
		Updates(map[string]any{
			"status":      enums.ProductStatusReserved,
			"reserved_at": s.now().UTC(),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve product")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "product is no longer available")
	}
	return nil
}

// Release flips reserved -> available. Calling it on a product that is not
// reserved is a no-op, which makes webhook redelivery and reconciler retries
// safe.
func (s *service) Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required for release")
	}
	res := tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND status = ?", productID, enums.ProductStatusReserved).
		Updates(map[string]any{
			"status":      enums.ProductStatusAvailable,
			"reserved_at": nil,
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release product")
	}
	return nil
}

// FinalizeSold flips reserved -> sold once payment completes. Already-sold is
// a no-op; any other state means the reservation was lost and the caller must
// not pretend the sale settled.
func (s *service) FinalizeSold(ctx context.Context, tx *gorm.DB, productID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required for finalize")
	}
	res := tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND status = ?", productID, enums.ProductStatusReserved).
		Updates(map[string]any{
			"status":      enums.ProductStatusSold,
			"reserved_at": nil,
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "finalize product")
	}
	if res.RowsAffected == 0 {
		var product models.Product
		err := tx.WithContext(ctx).Select("status").First(&product, "id = ?", productID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product status")
		}
		if product.Status == enums.ProductStatusSold {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict, "product is not reserved")
	}
	return nil
}
