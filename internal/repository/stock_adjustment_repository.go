package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/yacbhl71/DELICES-DALGERIE/internal/domain"

	"github.com/google/uuid"
)

// StockAdjustmentRepository defines the interface for the append-only audit
// trail of inventory changes. There is no update or delete: records are
// immutable once written.
type StockAdjustmentRepository interface {
	Append(ctx context.Context, adjustment *domain.StockAdjustment) error
	ListByProduct(ctx context.Context, productID uuid.UUID, limit int) ([]*domain.StockAdjustment, error)
}

type stockAdjustmentRepository struct {
	db *sql.DB
}

// NewStockAdjustmentRepository creates a new instance of StockAdjustmentRepository
func NewStockAdjustmentRepository(db *sql.DB) StockAdjustmentRepository {
	return &stockAdjustmentRepository{db: db}
}

// Append inserts one audit record
func (r *stockAdjustmentRepository) Append(ctx context.Context, adjustment *domain.StockAdjustment) error {
	query := `
		INSERT INTO stock_adjustments (id, product_id, adjustment_type, quantity, reason, notes, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		adjustment.ID,
		adjustment.ProductID,
		adjustment.Type,
		adjustment.Quantity,
		adjustment.Reason,
		adjustment.Notes,
		adjustment.Actor,
		adjustment.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to append stock adjustment: %w", err)
	}

	return nil
}

// ListByProduct retrieves a product's adjustment history, newest first,
// capped at limit.
func (r *stockAdjustmentRepository) ListByProduct(ctx context.Context, productID uuid.UUID, limit int) ([]*domain.StockAdjustment, error) {
	query := `
		SELECT id, product_id, adjustment_type, quantity, reason, notes, actor, created_at
		FROM stock_adjustments
		WHERE product_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock adjustments: %w", err)
	}
	defer rows.Close()

	adjustments := []*domain.StockAdjustment{}
	for rows.Next() {
		adjustment := &domain.StockAdjustment{}
		err := rows.Scan(
			&adjustment.ID,
			&adjustment.ProductID,
			&adjustment.Type,
			&adjustment.Quantity,
			&adjustment.Reason,
			&adjustment.Notes,
			&adjustment.Actor,
			&adjustment.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock adjustment: %w", err)
		}
		adjustments = append(adjustments, adjustment)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stock adjustments: %w", err)
	}

	return adjustments, nil
}
