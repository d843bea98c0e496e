package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sokohub/sokohub-backend/pkg/db"
	"github.com/sokohub/sokohub-backend/pkg/db/models"
	"github.com/sokohub/sokohub-backend/pkg/enums"
	pkgerrors "github.com/sokohub/sokohub-backend/pkg/errors"
	"github.com/sokohub/sokohub-backend/pkg/pagination"
)

// Repository persists orders. Status and payment-status changes go through the
// conditional update helpers so concurrent writers cannot clobber each other.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Order, error)
	FindByPaymentRef(ctx context.Context, ref string) ([]models.Order, error)
	FindUncreditedBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Order, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
	FindStalePendingByProduct(ctx context.Context, productID uuid.UUID) ([]models.Order, error)
	HasPendingYoungerThan(ctx context.Context, productID uuid.UUID, cutoff time.Time) (bool, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, fields map[string]any) (bool, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to enums.PaymentStatus, fields map[string]any) (bool, error)
	MarkSellerPaid(ctx context.Context, id uuid.UUID) (bool, error)
	TagPaymentRef(ctx context.Context, sessionID uuid.UUID, ref string) error
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

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if err := r.conn(ctx).Create(order).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.conn(ctx).First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order")
	}
	return &order, nil
}

func (r *repository) FindBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Order, error) {
	var list []models.Order
	err := r.conn(ctx).
		Where("checkout_session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find session orders")
	}
	return list, nil
}

func (r *repository) FindByPaymentRef(ctx context.Context, ref string) ([]models.Order, error) {
	var list []models.Order
	err := r.conn(ctx).
		Where("payment_ref = ?", ref).
		Order("created_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find orders by payment ref")
	}
	return list, nil
}

// FindUncreditedBySeller lists the seller's completed orders that never got a
// ledger credit, oldest first.
func (r *repository) FindUncreditedBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Order, error) {
	var list []models.Order
	err := r.conn(ctx).
		Where("seller_id = ? AND payment_status = ? AND seller_paid = ?", sellerID, enums.PaymentStatusCompleted, false).
		Order("created_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find uncredited orders")
	}
	return list, nil
}

func (r *repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	return r.list(ctx, "buyer_id = ?", buyerID, params)
}

func (r *repository) ListBySeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	return r.list(ctx, "seller_id = ?", sellerID, params)
}

func (r *repository) list(ctx context.Context, cond string, arg uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := r.conn(ctx).
		Where(cond, arg).
		Order("created_at DESC, id DESC").
		Limit(limit + 1)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if cursor != nil {
		query = query.Where("created_at < ? OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var list []models.Order
	if err := query.Find(&list).Error; err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	next := ""
	if len(list) > limit {
		list = list[:limit]
		last := list[len(list)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return list, next, nil
}

// FindStalePendingByProduct loads pending orders for a product so the
// reconciler can cancel them alongside the reservation release.
func (r *repository) FindStalePendingByProduct(ctx context.Context, productID uuid.UUID) ([]models.Order, error) {
	var list []models.Order
	err := r.conn(ctx).
		Where("product_id = ? AND status = ?", productID, enums.OrderStatusPending).
		Find(&list).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find stale pending orders")
	}
	return list, nil
}

// HasPendingYoungerThan reports whether any pending order for the product was
// created after the cutoff. Such a product is mid-checkout, not stale.
func (r *repository) HasPendingYoungerThan(ctx context.Context, productID uuid.UUID, cutoff time.Time) (bool, error) {
	var count int64
	err := r.conn(ctx).
		Model(&models.Order{}).
		Where("product_id = ? AND status = ? AND created_at > ?", productID, enums.OrderStatusPending, cutoff).
		Count(&count).Error
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count recent pending orders")
	}
	return count > 0, nil
}

// UpdateStatus applies a compare-and-set status move with any extra columns.
// It returns false when the order was no longer in the expected state.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.conn(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update order status")
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to enums.PaymentStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{"payment_status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.conn(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update payment status")
	}
	return res.RowsAffected > 0, nil
}

// MarkSellerPaid flips seller_paid exactly once. The false return on a repeat
// call is what keeps ledger credits from doubling on webhook redelivery.
func (r *repository) MarkSellerPaid(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.conn(ctx).
		Model(&models.Order{}).
		Where("id = ? AND seller_paid = ?", id, false).
		Update("seller_paid", true)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mark seller paid")
	}
	return res.RowsAffected > 0, nil
}

// TagPaymentRef stamps the gateway correlation id onto every order of a
// checkout session.
func (r *repository) TagPaymentRef(ctx context.Context, sessionID uuid.UUID, ref string) error {
	err := r.conn(ctx).
		Model(&models.Order{}).
		Where("checkout_session_id = ?", sessionID).
		Update("payment_ref", ref).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "tag payment ref")
	}
	return nil
}
