package domain

import (
	"time"

	"github.com/google/uuid"
)

// Order lifecycle statuses. Transitions are deliberately permissive: any
// non-terminal order may be moved to any status, including straight to
// cancelled. See service.OrderService.UpdateStatus.
const (
	OrderStatusPending    = "pending"
	OrderStatusConfirmed  = "confirmed"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// Payment statuses. Payment integration is out of scope; orders are created
// unpaid and the field is informational.
const (
	PaymentStatusUnpaid = "unpaid"
	PaymentStatusPaid   = "paid"
)

// ValidOrderStatus reports whether s is a known order status.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Order is created once at checkout. Only Status, Notes and UpdatedAt are
// mutable afterwards. Invariant: Total = Subtotal + ShippingCost −
// DiscountAmount, Total ≥ 0 and DiscountAmount ≤ Subtotal.
type Order struct {
	ID                 uuid.UUID   `json:"id" db:"id"`
	OrderNumber        string      `json:"order_number" db:"order_number"`
	CustomerName       string      `json:"customer_name" db:"customer_name"`
	CustomerEmail      string      `json:"customer_email" db:"customer_email"`
	CustomerPhone      string      `json:"customer_phone" db:"customer_phone"`
	ShippingAddress    string      `json:"shipping_address" db:"shipping_address"`
	ShippingCity       string      `json:"shipping_city" db:"shipping_city"`
	ShippingPostalCode string      `json:"shipping_postal_code" db:"shipping_postal_code"`
	Items              []OrderItem `json:"items"`
	Subtotal           float64     `json:"subtotal" db:"subtotal"`
	ShippingCost       float64     `json:"shipping_cost" db:"shipping_cost"`
	DiscountAmount     float64     `json:"discount_amount" db:"discount_amount"`
	Total              float64     `json:"total" db:"total"`
	PromoCode          string      `json:"promo_code,omitempty" db:"promo_code"`
	PaymentStatus      string      `json:"payment_status" db:"payment_status"`
	Status             string      `json:"status" db:"status"`
	Notes              string      `json:"notes" db:"notes"`
	CreatedAt          time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at" db:"updated_at"`
}

// OrderItem is a line item snapshot: name and unit price are copied from the
// product at checkout time and never re-read.
type OrderItem struct {
	ID        uuid.UUID `json:"id" db:"id"`
	OrderID   uuid.UUID `json:"order_id" db:"order_id"`
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	Name      string    `json:"name" db:"name"`
	Quantity  int       `json:"quantity" db:"quantity"`
	UnitPrice float64   `json:"unit_price" db:"unit_price"`
	ImageURL  string    `json:"image_url,omitempty" db:"image_url"`
}
