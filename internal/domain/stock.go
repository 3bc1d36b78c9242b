package domain

import (
	"time"

	"github.com/google/uuid"
)

// Stock adjustment types. "order" entries are written by checkout
// reservations; the others by administrative adjustments.
const (
	AdjustmentTypeIncrease = "increase"
	AdjustmentTypeDecrease = "decrease"
	AdjustmentTypeSet      = "set"
	AdjustmentTypeOrder    = "order"
)

// ValidAdjustmentType reports whether t is an adjustment type accepted by the
// admin adjust endpoint. "order" is excluded: it is reserved for checkout.
func ValidAdjustmentType(t string) bool {
	switch t {
	case AdjustmentTypeIncrease, AdjustmentTypeDecrease, AdjustmentTypeSet:
		return true
	}
	return false
}

// StockAdjustment is an append-only audit record of one inventory-changing
// event. Records are never mutated or deleted. Quantity is the signed delta
// applied to the product's stock.
type StockAdjustment struct {
	ID        uuid.UUID `json:"id" db:"id"`
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	Type      string    `json:"adjustment_type" db:"adjustment_type"`
	Quantity  int       `json:"quantity" db:"quantity"`
	Reason    string    `json:"reason" db:"reason"`
	Notes     string    `json:"notes" db:"notes"`
	Actor     string    `json:"actor" db:"actor"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
