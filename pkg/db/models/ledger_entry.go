package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sokohub/sokohub-backend/pkg/enums"
)

// LedgerEntry records an immutable earnings event for a seller. The unique
// index on order_id is the database-level backstop for the seller_paid guard:
// an order contributes at most one sale entry.
type LedgerEntry struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID    uuid.UUID               `gorm:"column:seller_id;type:uuid;not null;index"`
	OrderID     uuid.UUID               `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	Type        enums.LedgerEntryType   `gorm:"column:type;not null"`
	AmountCents int                     `gorm:"column:amount_cents;not null"`
	Status      enums.LedgerEntryStatus `gorm:"column:status;not null;default:'pending'"`
	PaidAt      *time.Time              `gorm:"column:paid_at"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
}
