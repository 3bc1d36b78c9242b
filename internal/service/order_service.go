package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yacbhl71/DELICES-DALGERIE/internal/domain"
	"github.com/yacbhl71/DELICES-DALGERIE/internal/notify"
	"github.com/yacbhl71/DELICES-DALGERIE/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInvalidOrderStatus = errors.New("invalid order status")
)

// CartItem is one caller-supplied line of a checkout request. Name and unit
// price are the cart's snapshot of the product at browse time.
type CartItem struct {
	ProductID uuid.UUID
	Name      string
	Quantity  int
	UnitPrice float64
	ImageURL  string
}

// Cart is the checkout request body handed to CreateOrder.
type Cart struct {
	CustomerName       string
	CustomerEmail      string
	CustomerPhone      string
	ShippingAddress    string
	ShippingCity       string
	ShippingPostalCode string
	Items              []CartItem
	PromoCode          string
	Notes              string
}

// OrderService orchestrates checkout and the post-creation lifecycle.
type OrderService interface {
	// CreateOrder runs the checkout: subtotal, promo evaluation (soft-fail),
	// per-line inventory reservation with compensation on partial failure,
	// promo usage consumption, persistence, async notification.
	CreateOrder(ctx context.Context, cart *Cart) (*domain.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrders(ctx context.Context, status string, page, pageSize int) ([]*domain.Order, int, error)
	// UpdateStatus moves an order to a new lifecycle status. Transitions are
	// permissive: any known status may follow any other. Cancellation does
	// not restore stock or promo usage; that is a known gap kept from the
	// product's current behavior.
	UpdateStatus(ctx context.Context, id uuid.UUID, status, notes string) (*domain.Order, error)
}

type orderService struct {
	orderRepo    repository.OrderRepository
	inventory    InventoryService
	promo        PromoService
	notifier     notify.Notifier
	shippingCost float64
	logger       *zap.Logger
}

// NewOrderService creates a new instance of OrderService. shippingCost is
// the flat rate applied to every order; rate calculation is out of scope.
func NewOrderService(
	orderRepo repository.OrderRepository,
	inventory InventoryService,
	promo PromoService,
	notifier notify.Notifier,
	shippingCost float64,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		orderRepo:    orderRepo,
		inventory:    inventory,
		promo:        promo,
		notifier:     notifier,
		shippingCost: shippingCost,
		logger:       logger,
	}
}

// CreateOrder performs the checkout. Reservations are all-or-nothing: if any
// line fails, every reservation already taken for this order is released
// before the error is returned.
func (s *orderService) CreateOrder(ctx context.Context, cart *Cart) (*domain.Order, error) {
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}
	for _, item := range cart.Items {
		if item.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}

	subtotal := 0.0
	for _, item := range cart.Items {
		subtotal += item.UnitPrice * float64(item.Quantity)
	}
	subtotal = round2(subtotal)

	// Promo failures never block checkout: the order simply proceeds without
	// a discount. The explicit validation endpoint is where rejections
	// surface as hard errors.
	discountAmount := 0.0
	appliedCode := ""
	if cart.PromoCode != "" {
		result, err := s.promo.Evaluate(ctx, cart.PromoCode, subtotal, time.Now())
		if err != nil {
			s.logger.Info("Promo code rejected at checkout, continuing without discount",
				zap.String("code", cart.PromoCode),
				zap.Error(err),
			)
		} else {
			discountAmount = result.DiscountAmount
			appliedCode = result.Code
		}
	}

	total := round2(subtotal + s.shippingCost - discountAmount)
	if total < 0 {
		total = 0
	}

	reserved, err := s.reserveAll(ctx, cart.Items)
	if err != nil {
		return nil, err
	}

	if appliedCode != "" {
		if err := s.promo.ConsumeUsage(ctx, appliedCode); err != nil {
			// Lost the race on the last available use, or the code vanished.
			// All reservations are rolled back; the order does not happen.
			s.releaseAll(ctx, reserved)
			return nil, err
		}
	}

	now := time.Now()
	order := &domain.Order{
		ID:                 uuid.New(),
		OrderNumber:        newOrderNumber(now),
		CustomerName:       cart.CustomerName,
		CustomerEmail:      cart.CustomerEmail,
		CustomerPhone:      cart.CustomerPhone,
		ShippingAddress:    cart.ShippingAddress,
		ShippingCity:       cart.ShippingCity,
		ShippingPostalCode: cart.ShippingPostalCode,
		Subtotal:           subtotal,
		ShippingCost:       s.shippingCost,
		DiscountAmount:     discountAmount,
		Total:              total,
		PromoCode:          appliedCode,
		PaymentStatus:      domain.PaymentStatusUnpaid,
		Status:             domain.OrderStatusPending,
		Notes:              cart.Notes,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	for _, item := range cart.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:        uuid.New(),
			OrderID:   order.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			ImageURL:  item.ImageURL,
		})
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		s.releaseAll(ctx, reserved)
		// usage_count has no decrement path; a consumed use on a failed
		// persist stays consumed. Logged so it is at least visible.
		if appliedCode != "" {
			s.logger.Warn("Order persist failed after promo usage was consumed",
				zap.String("code", appliedCode),
			)
		}
		return nil, err
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.Float64("total", order.Total),
	)

	s.notifier.Notify(notify.EventOrderCreated, order)

	return order, nil
}

// reservation records one committed stock decrement. The effective amount
// can be less than the ordered quantity when a backorder clamps stock at
// zero; rolling back must restore only what was actually removed.
type reservation struct {
	productID uuid.UUID
	effective int
}

// reserveAll reserves every line item, releasing everything taken so far if
// any line fails. Untracked lines reserve nothing and need no compensation.
func (s *orderService) reserveAll(ctx context.Context, items []CartItem) ([]reservation, error) {
	reserved := make([]reservation, 0, len(items))
	for _, item := range items {
		change, err := s.inventory.Reserve(ctx, item.ProductID, item.Quantity)
		if err != nil {
			s.releaseAll(ctx, reserved)
			return nil, err
		}
		if change.Tracked {
			reserved = append(reserved, reservation{
				productID: item.ProductID,
				effective: change.OldStock - change.NewStock,
			})
		}
	}
	return reserved, nil
}

// releaseAll compensates successful reservations, most recent first. A
// failed release is logged and the rest still run.
func (s *orderService) releaseAll(ctx context.Context, reserved []reservation) {
	for i := len(reserved) - 1; i >= 0; i-- {
		res := reserved[i]
		if res.effective == 0 {
			continue
		}
		if err := s.inventory.Release(ctx, res.productID, res.effective); err != nil {
			s.logger.Error("Failed to release reservation during rollback",
				zap.String("product_id", res.productID.String()),
				zap.Int("quantity", res.effective),
				zap.Error(err),
			)
		}
	}
}

// GetOrder retrieves an order by ID
func (s *orderService) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.orderRepo.FindByID(ctx, id)
}

// ListOrders retrieves orders newest first with optional status filtering
func (s *orderService) ListOrders(ctx context.Context, status string, page, pageSize int) ([]*domain.Order, int, error) {
	return s.orderRepo.List(ctx, status, page, pageSize)
}

// UpdateStatus applies a lifecycle transition and dispatches the
// status-change notification.
func (s *orderService) UpdateStatus(ctx context.Context, id uuid.UUID, status, notes string) (*domain.Order, error) {
	if !domain.ValidOrderStatus(status) {
		return nil, ErrInvalidOrderStatus
	}

	order, err := s.orderRepo.UpdateStatus(ctx, id, status, notes)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order status updated",
		zap.String("order_id", order.ID.String()),
		zap.String("status", order.Status),
	)

	s.notifier.Notify(notify.EventOrderStatusChanged, order)

	return order, nil
}

// newOrderNumber builds the human-facing order number, e.g. CMD-20250901-4F7A21C3.
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("CMD-%s-%s", now.Format("20060102"), suffix)
}
