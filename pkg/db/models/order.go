package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sokohub/sokohub-backend/pkg/enums"
)

// Order is one (seller, product) line produced from a cart checkout. Orders
// are never deleted; cancellation and refund are terminal states.
type Order struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID         uuid.UUID `gorm:"column:buyer_id;type:uuid;not null"`
	SellerID        uuid.UUID `gorm:"column:seller_id;type:uuid;not null"`
	ProductID       uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Qty             int       `gorm:"column:qty;not null;default:1"`
	TotalPriceCents int       `gorm:"column:total_price_cents;not null"`

	Status        enums.OrderStatus   `gorm:"column:status;not null;default:'pending'"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;not null;default:'pending'"`

	// CheckoutSessionID groups the orders produced from one cart checkout.
	CheckoutSessionID uuid.UUID `gorm:"column:checkout_session_id;type:uuid;not null;index"`
	// PaymentRef is the gateway correlation id shared by every order in the
	// session; the webhook looks orders up by it.
	PaymentRef     *string `gorm:"column:payment_ref;index"`
	PaymentReceipt *string `gorm:"column:payment_receipt"`
	PaymentPhone   string  `gorm:"column:payment_phone;not null"`

	// SellerPaid guards the ledger credit: flipped true in the same
	// transaction that writes the sale entry so an order is credited at
	// most once.
	SellerPaid bool `gorm:"column:seller_paid;not null;default:false"`

	ShippingAddress string  `gorm:"column:shipping_address;not null"`
	CancelReason    *string `gorm:"column:cancel_reason"`

	CancelledAt *time.Time `gorm:"column:cancelled_at"`
	DeliveredAt *time.Time `gorm:"column:delivered_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
