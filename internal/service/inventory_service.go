package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yacbhl71/DELICES-DALGERIE/internal/domain"
	"github.com/yacbhl71/DELICES-DALGERIE/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidQuantity       = errors.New("quantity must be greater than zero")
	ErrInvalidAdjustmentType = errors.New("invalid adjustment type")
)

// checkout reservations are audited under this actor name
const reservationActor = "checkout"

// InventoryService is the inventory ledger: every stock mutation goes
// through an atomic conditional update on the product row and appends
// exactly one StockAdjustment audit record.
type InventoryService interface {
	// Reserve commits a quantity decrement for an order line. Untracked
	// products succeed as a no-op with no audit record.
	Reserve(ctx context.Context, productID uuid.UUID, quantity int) (repository.StockChange, error)
	// Release reverses a reservation when a later step of the same order
	// fails. Audited as an increase.
	Release(ctx context.Context, productID uuid.UUID, quantity int) error
	// Adjust applies an administrative increase/decrease/set and returns the
	// refreshed product. The audit delta is the actual effective change
	// (a decrease is floored at zero stock).
	Adjust(ctx context.Context, productID uuid.UUID, adjustmentType string, quantity int, reason, notes, actor string) (*domain.Product, error)
	// History returns the product's audit trail, newest first.
	History(ctx context.Context, productID uuid.UUID, limit int) ([]*domain.StockAdjustment, error)
}

type inventoryService struct {
	productRepo    repository.ProductRepository
	adjustmentRepo repository.StockAdjustmentRepository
	logger         *zap.Logger
}

// NewInventoryService creates a new instance of InventoryService
func NewInventoryService(
	productRepo repository.ProductRepository,
	adjustmentRepo repository.StockAdjustmentRepository,
	logger *zap.Logger,
) InventoryService {
	return &inventoryService{
		productRepo:    productRepo,
		adjustmentRepo: adjustmentRepo,
		logger:         logger,
	}
}

// Reserve decrements stock for one order line. The audit record carries the
// ordered quantity as a negative delta even when a backorder clamps the
// stored stock at zero: the shortfall is implicit.
func (s *inventoryService) Reserve(ctx context.Context, productID uuid.UUID, quantity int) (repository.StockChange, error) {
	if quantity <= 0 {
		return repository.StockChange{}, ErrInvalidQuantity
	}

	change, err := s.productRepo.ReserveStock(ctx, productID, quantity)
	if err != nil {
		return repository.StockChange{}, err
	}

	if !change.Tracked {
		return change, nil
	}

	if err := s.appendAdjustment(ctx, productID, domain.AdjustmentTypeOrder, -quantity, "order reservation", "", reservationActor); err != nil {
		// The ledger must not keep a decrement it cannot account for. Restore
		// only what the reservation actually removed: a backorder-clamped line
		// decremented less than the ordered quantity.
		if effective := change.OldStock - change.NewStock; effective > 0 {
			if _, relErr := s.productRepo.ReleaseStock(ctx, productID, effective); relErr != nil {
				s.logger.Error("Failed to release reservation after audit failure",
					zap.String("product_id", productID.String()),
					zap.Error(relErr),
				)
			}
		}
		return repository.StockChange{}, err
	}

	return change, nil
}

// Release restores a previously reserved quantity.
func (s *inventoryService) Release(ctx context.Context, productID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	change, err := s.productRepo.ReleaseStock(ctx, productID, quantity)
	if err != nil {
		return err
	}

	if !change.Tracked {
		return nil
	}

	return s.appendAdjustment(ctx, productID, domain.AdjustmentTypeIncrease, quantity, "order reservation rollback", "", reservationActor)
}

// Adjust applies an administrative stock change.
func (s *inventoryService) Adjust(ctx context.Context, productID uuid.UUID, adjustmentType string, quantity int, reason, notes, actor string) (*domain.Product, error) {
	if !domain.ValidAdjustmentType(adjustmentType) {
		return nil, ErrInvalidAdjustmentType
	}
	if quantity < 0 || (quantity == 0 && adjustmentType != domain.AdjustmentTypeSet) {
		return nil, ErrInvalidQuantity
	}

	change, err := s.productRepo.AdjustStock(ctx, productID, adjustmentType, quantity)
	if err != nil {
		return nil, err
	}

	delta := change.NewStock - change.OldStock
	if err := s.appendAdjustment(ctx, productID, adjustmentType, delta, reason, notes, actor); err != nil {
		// Put the stock back where it was rather than leave an unaudited change.
		if _, revErr := s.productRepo.AdjustStock(ctx, productID, domain.AdjustmentTypeSet, change.OldStock); revErr != nil {
			s.logger.Error("Failed to revert adjustment after audit failure",
				zap.String("product_id", productID.String()),
				zap.Error(revErr),
			)
		}
		return nil, err
	}

	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload product: %w", err)
	}

	return product, nil
}

// History returns the append-only adjustment trail for a product.
func (s *inventoryService) History(ctx context.Context, productID uuid.UUID, limit int) ([]*domain.StockAdjustment, error) {
	if _, err := s.productRepo.FindByID(ctx, productID); err != nil {
		return nil, err
	}
	return s.adjustmentRepo.ListByProduct(ctx, productID, limit)
}

func (s *inventoryService) appendAdjustment(ctx context.Context, productID uuid.UUID, adjustmentType string, delta int, reason, notes, actor string) error {
	return s.adjustmentRepo.Append(ctx, &domain.StockAdjustment{
		ID:        uuid.New(),
		ProductID: productID,
		Type:      adjustmentType,
		Quantity:  delta,
		Reason:    reason,
		Notes:     notes,
		Actor:     actor,
		CreatedAt: time.Now(),
	})
}
