package helpers

import (
	"github.com/google/uuid"

	"github.com/sokohub/sokohub-backend/pkg/db/models"
)

// SellerGroup is one seller's slice of a multi-seller cart.
type SellerGroup struct {
	SellerID      uuid.UUID
	Items         []models.CartItem
	SubtotalCents int
}

// GroupBySeller splits cart items into per-seller groups, preserving the
// cart's item order within each group. Items without a loaded product are
// skipped; the caller filters those out beforehand.
func GroupBySeller(items []models.CartItem) []SellerGroup {
	index := map[uuid.UUID]int{}
	groups := []SellerGroup{}
	for _, item := range items {
		if item.Product == nil {
			continue
		}
		sellerID := item.Product.SellerID
		i, ok := index[sellerID]
		if !ok {
			i = len(groups)
			index[sellerID] = i
			groups = append(groups, SellerGroup{SellerID: sellerID})
		}
		groups[i].Items = append(groups[i].Items, item)
		groups[i].SubtotalCents += item.Product.PriceCents * item.Qty
	}
	return groups
}
