package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"

	"github.com/yacbhl71/DELICES-DALGERIE/internal/domain"
	"github.com/yacbhl71/DELICES-DALGERIE/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Mock order repository for testing
type mockOrderRepository struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]*domain.Order
	createErr error
}

func newMockOrderRepository() *mockOrderRepository {
	return &mockOrderRepository{
		orders: make(map[uuid.UUID]*domain.Order),
	}
}

func (m *mockOrderRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *mockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	copied := *order
	m.orders[order.ID] = &copied
	return nil
}

func (m *mockOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, exists := m.orders[id]
	if !exists {
		return nil, repository.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (m *mockOrderRepository) List(ctx context.Context, status string, page, pageSize int) ([]*domain.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := make([]*domain.Order, 0, len(m.orders))
	for _, order := range m.orders {
		if status != "" && order.Status != status {
			continue
		}
		copied := *order
		orders = append(orders, &copied)
	}
	return orders, len(orders), nil
}

func (m *mockOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status, notes string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, exists := m.orders[id]
	if !exists {
		return nil, repository.ErrOrderNotFound
	}
	order.Status = status
	if notes != "" {
		order.Notes = notes
	}
	copied := *order
	return &copied, nil
}

// captureNotifier records dispatched events synchronously.
type captureNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *captureNotifier) Notify(event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *captureNotifier) captured() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

// checkoutFixture wires an order service over fresh mocks.
type checkoutFixture struct {
	orderRepo      *mockOrderRepository
	productRepo    *mockProductRepository
	adjustmentRepo *mockStockAdjustmentRepository
	promoRepo      *mockPromoCodeRepository
	notifier       *captureNotifier
	service        OrderService
}

func newCheckoutFixture(shippingCost float64) *checkoutFixture {
	f := &checkoutFixture{
		orderRepo:      newMockOrderRepository(),
		productRepo:    newMockProductRepository(),
		adjustmentRepo: newMockStockAdjustmentRepository(),
		promoRepo:      newMockPromoCodeRepository(),
		notifier:       &captureNotifier{},
	}
	logger := zap.NewNop()
	inventory := NewInventoryService(f.productRepo, f.adjustmentRepo, logger)
	promo := NewPromoService(f.promoRepo)
	f.service = NewOrderService(f.orderRepo, inventory, promo, f.notifier, shippingCost, logger)
	return f
}

func testCart(items ...CartItem) *Cart {
	return &Cart{
		CustomerName:       "Amina Benali",
		CustomerEmail:      "amina@example.com",
		CustomerPhone:      "+213550123456",
		ShippingAddress:    "12 rue Didouche Mourad",
		ShippingCity:       "Alger",
		ShippingPostalCode: "16000",
		Items:              items,
	}
}

func TestCreateOrder_TotalsWithPercentagePromo(t *testing.T) {
	f := newCheckoutFixture(0)
	p1 := trackedProduct(20)
	p2 := trackedProduct(20)
	f.productRepo.put(p1)
	f.productRepo.put(p2)
	f.promoRepo.put(&domain.PromoCode{
		Code:           "BIENVENUE20",
		DiscountType:   domain.DiscountTypePercentage,
		DiscountValue:  20,
		MinOrderAmount: floatPtr(30),
		IsActive:       true,
	})

	cart := testCart(
		CartItem{ProductID: p1.ID, Name: "Baklawa", Quantity: 3, UnitPrice: 24.99},
		CartItem{ProductID: p2.ID, Name: "Kalb el louz", Quantity: 1, UnitPrice: 13.00},
	)
	cart.PromoCode = "BIENVENUE20"

	order, err := f.service.CreateOrder(context.Background(), cart)
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	if order.Subtotal != 87.97 {
		t.Errorf("Expected subtotal 87.97, got %v", order.Subtotal)
	}
	if order.DiscountAmount != 17.59 {
		t.Errorf("Expected discount 17.59, got %v", order.DiscountAmount)
	}
	if order.Total != 70.38 {
		t.Errorf("Expected total 70.38, got %v", order.Total)
	}
	if order.PromoCode != "BIENVENUE20" {
		t.Errorf("Expected promo code recorded on the order, got %q", order.PromoCode)
	}
	if order.Status != domain.OrderStatusPending {
		t.Errorf("Expected pending status, got %s", order.Status)
	}
	if order.PaymentStatus != domain.PaymentStatusUnpaid {
		t.Errorf("Expected unpaid payment status, got %s", order.PaymentStatus)
	}
	if count := f.promoRepo.usageCount("BIENVENUE20"); count != 1 {
		t.Errorf("Expected promo usage consumed once, got %d", count)
	}
	if stock := f.productRepo.stock(p1.ID); stock != 17 {
		t.Errorf("Expected stock 17 after reserving 3, got %d", stock)
	}
	if events := f.notifier.captured(); len(events) != 1 || events[0] != "order.created" {
		t.Errorf("Expected one order.created event, got %v", events)
	}
}

func TestCreateOrder_FixedPromoAndShipping(t *testing.T) {
	f := newCheckoutFixture(5.00)
	p := trackedProduct(10)
	f.productRepo.put(p)
	f.promoRepo.put(&domain.PromoCode{
		Code:          "ETE2025",
		DiscountType:  domain.DiscountTypeFixed,
		DiscountValue: 10,
		IsActive:      true,
	})

	cart := testCart(CartItem{ProductID: p.ID, Name: "Plateau dégustation", Quantity: 2, UnitPrice: 37.75})
	cart.PromoCode = "ete2025"

	order, err := f.service.CreateOrder(context.Background(), cart)
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	if order.Subtotal != 75.50 {
		t.Errorf("Expected subtotal 75.50, got %v", order.Subtotal)
	}
	if order.DiscountAmount != 10.00 {
		t.Errorf("Expected discount 10.00, got %v", order.DiscountAmount)
	}
	// 75.50 + 5.00 shipping - 10.00
	if order.Total != 70.50 {
		t.Errorf("Expected total 70.50, got %v", order.Total)
	}
}

func TestCreateOrder_PromoRejectionIsSoftFail(t *testing.T) {
	f := newCheckoutFixture(0)
	p := trackedProduct(10)
	f.productRepo.put(p)
	f.promoRepo.put(&domain.PromoCode{
		Code:           "BIENVENUE20",
		DiscountType:   domain.DiscountTypePercentage,
		DiscountValue:  20,
		MinOrderAmount: floatPtr(30),
		IsActive:       true,
	})

	cart := testCart(CartItem{ProductID: p.ID, Name: "Thé à la menthe", Quantity: 1, UnitPrice: 4.50})
	cart.PromoCode = "BIENVENUE20"

	order, err := f.service.CreateOrder(context.Background(), cart)
	if err != nil {
		t.Fatalf("Expected checkout to proceed without the discount, got %v", err)
	}

	if order.DiscountAmount != 0 {
		t.Errorf("Expected no discount, got %v", order.DiscountAmount)
	}
	if order.PromoCode != "" {
		t.Errorf("Expected no promo code on the order, got %q", order.PromoCode)
	}
	if order.Total != 4.50 {
		t.Errorf("Expected total 4.50, got %v", order.Total)
	}
	if count := f.promoRepo.usageCount("BIENVENUE20"); count != 0 {
		t.Errorf("Expected promo usage untouched, got %d", count)
	}
}

func TestCreateOrder_UnknownPromoIsSoftFail(t *testing.T) {
	f := newCheckoutFixture(0)
	p := trackedProduct(10)
	f.productRepo.put(p)

	cart := testCart(CartItem{ProductID: p.ID, Name: "Cornes de gazelle", Quantity: 1, UnitPrice: 18.00})
	cart.PromoCode = "FANTOME"

	order, err := f.service.CreateOrder(context.Background(), cart)
	if err != nil {
		t.Fatalf("Expected checkout to proceed, got %v", err)
	}
	if order.DiscountAmount != 0 || order.PromoCode != "" {
		t.Errorf("Expected order without discount, got %v / %q", order.DiscountAmount, order.PromoCode)
	}
}

func TestCreateOrder_CompensatesOnPartialReservationFailure(t *testing.T) {
	f := newCheckoutFixture(0)
	p1 := trackedProduct(10)
	p2 := trackedProduct(1)
	f.productRepo.put(p1)
	f.productRepo.put(p2)

	cart := testCart(
		CartItem{ProductID: p1.ID, Name: "Baklawa", Quantity: 4, UnitPrice: 24.99},
		CartItem{ProductID: p2.ID, Name: "Makroud", Quantity: 5, UnitPrice: 12.50},
	)

	_, err := f.service.CreateOrder(context.Background(), cart)
	var insufficientErr *repository.InsufficientStockError
	if !errors.As(err, &insufficientErr) {
		t.Fatalf("Expected InsufficientStockError, got %v", err)
	}
	if insufficientErr.ProductID != p2.ID {
		t.Errorf("Expected failure on second product, got %s", insufficientErr.ProductID)
	}

	// The first line's reservation must have been rolled back.
	if stock := f.productRepo.stock(p1.ID); stock != 10 {
		t.Errorf("Expected first product restored to 10, got %d", stock)
	}
	if stock := f.productRepo.stock(p2.ID); stock != 1 {
		t.Errorf("Expected second product untouched at 1, got %d", stock)
	}
	if f.orderRepo.count() != 0 {
		t.Error("Expected no order persisted")
	}
	if events := f.notifier.captured(); len(events) != 0 {
		t.Errorf("Expected no notifications, got %v", events)
	}

	// The trail shows the reservation and its rollback.
	records := f.adjustmentRepo.forProduct(p1.ID)
	if len(records) != 2 {
		t.Fatalf("Expected reservation + rollback records, got %d", len(records))
	}
	if records[0].Quantity != -4 || records[1].Quantity != 4 {
		t.Errorf("Expected deltas [-4, 4], got [%d, %d]", records[0].Quantity, records[1].Quantity)
	}
}

func TestCreateOrder_RollbackOfClampedBackorderRestoresOnlyEffectiveStock(t *testing.T) {
	f := newCheckoutFixture(0)
	backordered := trackedProduct(1)
	backordered.AllowBackorder = true
	soldOut := trackedProduct(0)
	f.productRepo.put(backordered)
	f.productRepo.put(soldOut)

	cart := testCart(
		CartItem{ProductID: backordered.ID, Name: "Baklawa", Quantity: 3, UnitPrice: 24.99},
		CartItem{ProductID: soldOut.ID, Name: "Makroud", Quantity: 1, UnitPrice: 12.50},
	)

	_, err := f.service.CreateOrder(context.Background(), cart)
	var insufficientErr *repository.InsufficientStockError
	if !errors.As(err, &insufficientErr) {
		t.Fatalf("Expected InsufficientStockError, got %v", err)
	}

	// The backordered line only decremented one unit before the clamp.
	// Rolling back must restore exactly that unit, not the ordered three:
	// anything more invents stock that never existed.
	if stock := f.productRepo.stock(backordered.ID); stock != 1 {
		t.Errorf("Expected backordered product restored to 1, got %d", stock)
	}
	if f.orderRepo.count() != 0 {
		t.Error("Expected no order persisted")
	}
}

func TestCreateOrder_RollsBackWhenPersistFails(t *testing.T) {
	f := newCheckoutFixture(0)
	p := trackedProduct(10)
	f.productRepo.put(p)
	f.orderRepo.createErr = errors.New("database unavailable")

	cart := testCart(CartItem{ProductID: p.ID, Name: "Baklawa", Quantity: 3, UnitPrice: 24.99})

	if _, err := f.service.CreateOrder(context.Background(), cart); err == nil {
		t.Fatal("Expected persist error to surface")
	}
	if stock := f.productRepo.stock(p.ID); stock != 10 {
		t.Errorf("Expected stock released back to 10, got %d", stock)
	}
	if events := f.notifier.captured(); len(events) != 0 {
		t.Errorf("Expected no notifications for a failed order, got %v", events)
	}
}

func TestCreateOrder_RollsBackWhenUsageExhausted(t *testing.T) {
	f := newCheckoutFixture(0)
	p := trackedProduct(10)
	f.productRepo.put(p)
	f.promoRepo.put(&domain.PromoCode{
		Code:          "ETE2025",
		DiscountType:  domain.DiscountTypeFixed,
		DiscountValue: 10,
		IsActive:      true,
	})
	f.promoRepo.incrementErr = repository.ErrPromoUsageExhausted

	cart := testCart(CartItem{ProductID: p.ID, Name: "Baklawa", Quantity: 2, UnitPrice: 24.99})
	cart.PromoCode = "ETE2025"

	if _, err := f.service.CreateOrder(context.Background(), cart); !errors.Is(err, repository.ErrPromoUsageExhausted) {
		t.Fatalf("Expected ErrPromoUsageExhausted, got %v", err)
	}
	if stock := f.productRepo.stock(p.ID); stock != 10 {
		t.Errorf("Expected stock released back to 10, got %d", stock)
	}
	if f.orderRepo.count() != 0 {
		t.Error("Expected no order persisted")
	}
}

func TestCreateOrder_RejectsBadCarts(t *testing.T) {
	f := newCheckoutFixture(0)
	p := trackedProduct(10)
	f.productRepo.put(p)

	if _, err := f.service.CreateOrder(context.Background(), testCart()); !errors.Is(err, ErrEmptyCart) {
		t.Errorf("Expected ErrEmptyCart, got %v", err)
	}

	cart := testCart(CartItem{ProductID: p.ID, Name: "Baklawa", Quantity: 0, UnitPrice: 24.99})
	if _, err := f.service.CreateOrder(context.Background(), cart); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("Expected ErrInvalidQuantity, got %v", err)
	}
	if stock := f.productRepo.stock(p.ID); stock != 10 {
		t.Errorf("Expected stock untouched, got %d", stock)
	}
}

func TestCreateOrder_TotalNeverNegative(t *testing.T) {
	f := newCheckoutFixture(0)
	p := trackedProduct(10)
	f.productRepo.put(p)
	f.promoRepo.put(&domain.PromoCode{
		Code:          "GENEREUX",
		DiscountType:  domain.DiscountTypeFixed,
		DiscountValue: 100,
		IsActive:      true,
	})

	cart := testCart(CartItem{ProductID: p.ID, Name: "Thé", Quantity: 1, UnitPrice: 4.50})
	cart.PromoCode = "GENEREUX"

	order, err := f.service.CreateOrder(context.Background(), cart)
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if order.Total != 0 {
		t.Errorf("Expected total clamped at 0, got %v", order.Total)
	}
}

func TestCreateOrder_OrderNumberFormat(t *testing.T) {
	f := newCheckoutFixture(0)
	p := trackedProduct(10)
	f.productRepo.put(p)

	cart := testCart(CartItem{ProductID: p.ID, Name: "Baklawa", Quantity: 1, UnitPrice: 24.99})

	order, err := f.service.CreateOrder(context.Background(), cart)
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	pattern := regexp.MustCompile(`^CMD-\d{8}-[0-9A-F]{8}$`)
	if !pattern.MatchString(order.OrderNumber) {
		t.Errorf("Order number %q does not match CMD-YYYYMMDD-XXXXXXXX", order.OrderNumber)
	}
}

func TestConcurrentCheckouts_LastPromoUseConsumedOnce(t *testing.T) {
	f := newCheckoutFixture(0)
	p := trackedProduct(100)
	f.productRepo.put(p)
	f.promoRepo.put(&domain.PromoCode{
		Code:          "UNIQUE",
		DiscountType:  domain.DiscountTypeFixed,
		DiscountValue: 5,
		IsActive:      true,
		UsageLimit:    intPtr(1),
	})

	const workers = 4
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cart := testCart(CartItem{ProductID: p.ID, Name: "Baklawa", Quantity: 1, UnitPrice: 24.99})
			cart.PromoCode = "UNIQUE"
			_, errs[i] = f.service.CreateOrder(context.Background(), cart)
		}(i)
	}
	wg.Wait()

	if count := f.promoRepo.usageCount("UNIQUE"); count != 1 {
		t.Errorf("Expected usage count exactly 1, got %d", count)
	}

	// Losers either failed on the usage guard or slipped past the evaluation
	// after the winner consumed the use and went through without a discount.
	discounted := 0
	orders, _, _ := f.orderRepo.List(context.Background(), "", 1, 100)
	for _, order := range orders {
		if order.PromoCode == "UNIQUE" {
			discounted++
		}
	}
	if discounted > 1 {
		t.Errorf("Expected at most one discounted order, got %d", discounted)
	}
	for _, err := range errs {
		if err != nil && !errors.Is(err, repository.ErrPromoUsageExhausted) {
			t.Errorf("Unexpected checkout error: %v", err)
		}
	}
}

func TestUpdateStatus_NotifiesOnTransition(t *testing.T) {
	f := newCheckoutFixture(0)
	p := trackedProduct(10)
	f.productRepo.put(p)

	order, err := f.service.CreateOrder(context.Background(), testCart(
		CartItem{ProductID: p.ID, Name: "Baklawa", Quantity: 1, UnitPrice: 24.99},
	))
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	updated, err := f.service.UpdateStatus(context.Background(), order.ID, domain.OrderStatusShipped, "left the bakery")
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if updated.Status != domain.OrderStatusShipped {
		t.Errorf("Expected shipped, got %s", updated.Status)
	}

	// Transitions are permissive, including moving backwards.
	if _, err := f.service.UpdateStatus(context.Background(), order.ID, domain.OrderStatusPending, ""); err != nil {
		t.Errorf("Expected backwards transition to be allowed, got %v", err)
	}

	events := f.notifier.captured()
	if len(events) != 3 || events[1] != "order.status_changed" || events[2] != "order.status_changed" {
		t.Errorf("Expected created + two status-change events, got %v", events)
	}
}

func TestUpdateStatus_RejectsUnknownStatus(t *testing.T) {
	f := newCheckoutFixture(0)

	if _, err := f.service.UpdateStatus(context.Background(), uuid.New(), "teleported", ""); !errors.Is(err, ErrInvalidOrderStatus) {
		t.Errorf("Expected ErrInvalidOrderStatus, got %v", err)
	}
	if _, err := f.service.UpdateStatus(context.Background(), uuid.New(), domain.OrderStatusShipped, ""); !errors.Is(err, repository.ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound, got %v", err)
	}
}
