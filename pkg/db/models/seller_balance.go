package models

import (
	"time"

	"github.com/google/uuid"
)

// SellerBalance is the derived running balance for one seller. It must stay
// replayable from the ledger entries: every credit and payout touches both in
// the same transaction.
type SellerBalance struct {
	ID                  uuid.UUID     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID            uuid.UUID     `gorm:"column:seller_id;type:uuid;not null;uniqueIndex"`
	CurrentBalanceCents int           `gorm:"column:current_balance_cents;not null;default:0"`
	TotalEarningsCents  int           `gorm:"column:total_earnings_cents;not null;default:0"`
	TotalOrders         int           `gorm:"column:total_orders;not null;default:0"`
	Entries             []LedgerEntry `gorm:"foreignKey:SellerID;references:SellerID"`
	CreatedAt           time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}
