package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sokohub/sokohub-backend/pkg/enums"
)

// Product represents a student listing. Price is snapshotted onto orders at
// checkout; the status column is owned by the inventory service and must not
// be written directly anywhere else.
type Product struct {
	ID         uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID   uuid.UUID           `gorm:"column:seller_id;type:uuid;not null"`
	Title      string              `gorm:"column:title;not null"`
	Apartment  *string             `gorm:"column:apartment"`
	PriceCents int                 `gorm:"column:price_cents;not null"`
	Status     enums.ProductStatus `gorm:"column:status;not null;default:'available'"`
	// ReservedAt is set when the product enters reserved and cleared on
	// release; the stale-reservation reconciler keys off it.
	ReservedAt *time.Time `gorm:"column:reserved_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
