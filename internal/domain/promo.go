package domain

import (
	"time"

	"github.com/google/uuid"
)

// Discount types supported by promo codes.
const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)

// PromoCode represents a promotional discount code. Codes are stored
// upper-cased and matched case-insensitively. UsageCount is monotonic and is
// only ever incremented by the order processor, once per committed order.
type PromoCode struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	Code              string     `json:"code" db:"code"`
	Description       string     `json:"description" db:"description"`
	DiscountType      string     `json:"discount_type" db:"discount_type"`
	DiscountValue     float64    `json:"discount_value" db:"discount_value"`
	MinOrderAmount    *float64   `json:"min_order_amount" db:"min_order_amount"`
	MaxDiscountAmount *float64   `json:"max_discount_amount" db:"max_discount_amount"`
	UsageLimit        *int       `json:"usage_limit" db:"usage_limit"`
	UserUsageLimit    *int       `json:"user_usage_limit" db:"user_usage_limit"`
	UsageCount        int        `json:"usage_count" db:"usage_count"`
	ValidFrom         *time.Time `json:"valid_from" db:"valid_from"`
	ValidUntil        *time.Time `json:"valid_until" db:"valid_until"`
	IsActive          bool       `json:"is_active" db:"is_active"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// DiscountResult is the outcome of evaluating a promo code against an order
// amount. Amounts are rounded to two decimals.
type DiscountResult struct {
	Code           string  `json:"code"`
	DiscountAmount float64 `json:"discount_amount"`
	FinalAmount    float64 `json:"final_amount"`
}
