package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/yacbhl71/DELICES-DALGERIE/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrPromoNotFound       = errors.New("promo code not found")
	ErrPromoCodeExists     = errors.New("promo code already exists")
	ErrPromoUsageExhausted = errors.New("promo code usage limit reached")
)

// PromoCodeRepository defines the interface for promo code data access
type PromoCodeRepository interface {
	Create(ctx context.Context, promo *domain.PromoCode) error
	Update(ctx context.Context, promo *domain.PromoCode) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.PromoCode, error)
	FindByCode(ctx context.Context, code string) (*domain.PromoCode, error)
	List(ctx context.Context) ([]*domain.PromoCode, error)

	// IncrementUsage bumps usage_count by one, guarded in SQL by the usage
	// limit so two checkouts racing the last available use cannot both win.
	// Returns ErrPromoUsageExhausted when the guard rejects the increment.
	IncrementUsage(ctx context.Context, code string) error
}

type promoCodeRepository struct {
	db *sql.DB
}

// NewPromoCodeRepository creates a new instance of PromoCodeRepository
func NewPromoCodeRepository(db *sql.DB) PromoCodeRepository {
	return &promoCodeRepository{db: db}
}

const promoColumns = `id, code, description, discount_type, discount_value,
	min_order_amount, max_discount_amount, usage_limit, user_usage_limit, usage_count,
	valid_from, valid_until, is_active, created_at, updated_at`

func scanPromoCode(row interface{ Scan(dest ...any) error }) (*domain.PromoCode, error) {
	promo := &domain.PromoCode{}
	err := row.Scan(
		&promo.ID,
		&promo.Code,
		&promo.Description,
		&promo.DiscountType,
		&promo.DiscountValue,
		&promo.MinOrderAmount,
		&promo.MaxDiscountAmount,
		&promo.UsageLimit,
		&promo.UserUsageLimit,
		&promo.UsageCount,
		&promo.ValidFrom,
		&promo.ValidUntil,
		&promo.IsActive,
		&promo.CreatedAt,
		&promo.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return promo, nil
}

// Create inserts a new promo code. Codes are stored upper-cased so lookups
// are case-insensitive.
func (r *promoCodeRepository) Create(ctx context.Context, promo *domain.PromoCode) error {
	query := `
		INSERT INTO promo_codes (id, code, description, discount_type, discount_value,
			min_order_amount, max_discount_amount, usage_limit, user_usage_limit, usage_count,
			valid_from, valid_until, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	promo.Code = strings.ToUpper(promo.Code)

	_, err := r.db.ExecContext(
		ctx,
		query,
		promo.ID,
		promo.Code,
		promo.Description,
		promo.DiscountType,
		promo.DiscountValue,
		promo.MinOrderAmount,
		promo.MaxDiscountAmount,
		promo.UsageLimit,
		promo.UserUsageLimit,
		promo.UsageCount,
		promo.ValidFrom,
		promo.ValidUntil,
		promo.IsActive,
		promo.CreatedAt,
		promo.UpdatedAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "promo_codes_code_key") {
			return ErrPromoCodeExists
		}
		return fmt.Errorf("failed to create promo code: %w", err)
	}

	return nil
}

// Update updates an existing promo code. usage_count is deliberately not
// touched here: it only moves through IncrementUsage.
func (r *promoCodeRepository) Update(ctx context.Context, promo *domain.PromoCode) error {
	query := `
		UPDATE promo_codes
		SET code = $2, description = $3, discount_type = $4, discount_value = $5,
		    min_order_amount = $6, max_discount_amount = $7, usage_limit = $8,
		    user_usage_limit = $9, valid_from = $10, valid_until = $11,
		    is_active = $12, updated_at = $13
		WHERE id = $1
	`

	promo.Code = strings.ToUpper(promo.Code)

	result, err := r.db.ExecContext(
		ctx,
		query,
		promo.ID,
		promo.Code,
		promo.Description,
		promo.DiscountType,
		promo.DiscountValue,
		promo.MinOrderAmount,
		promo.MaxDiscountAmount,
		promo.UsageLimit,
		promo.UserUsageLimit,
		promo.ValidFrom,
		promo.ValidUntil,
		promo.IsActive,
		promo.UpdatedAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "promo_codes_code_key") {
			return ErrPromoCodeExists
		}
		return fmt.Errorf("failed to update promo code: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrPromoNotFound
	}

	return nil
}

// Delete removes a promo code
func (r *promoCodeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM promo_codes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete promo code: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrPromoNotFound
	}

	return nil
}

// FindByID retrieves a promo code by ID
func (r *promoCodeRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.PromoCode, error) {
	query := fmt.Sprintf(`SELECT %s FROM promo_codes WHERE id = $1`, promoColumns)

	promo, err := scanPromoCode(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrPromoNotFound
		}
		return nil, fmt.Errorf("failed to find promo code by ID: %w", err)
	}

	return promo, nil
}

// FindByCode retrieves a promo code by its code string, case-insensitively.
func (r *promoCodeRepository) FindByCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	query := fmt.Sprintf(`SELECT %s FROM promo_codes WHERE code = $1`, promoColumns)

	promo, err := scanPromoCode(r.db.QueryRowContext(ctx, query, strings.ToUpper(code)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrPromoNotFound
		}
		return nil, fmt.Errorf("failed to find promo code: %w", err)
	}

	return promo, nil
}

// List retrieves all promo codes, newest first
func (r *promoCodeRepository) List(ctx context.Context) ([]*domain.PromoCode, error) {
	query := fmt.Sprintf(`SELECT %s FROM promo_codes ORDER BY created_at DESC`, promoColumns)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list promo codes: %w", err)
	}
	defer rows.Close()

	promos := []*domain.PromoCode{}
	for rows.Next() {
		promo, err := scanPromoCode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan promo code: %w", err)
		}
		promos = append(promos, promo)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating promo codes: %w", err)
	}

	return promos, nil
}

// IncrementUsage performs the atomic conditional usage increment.
func (r *promoCodeRepository) IncrementUsage(ctx context.Context, code string) error {
	query := `
		UPDATE promo_codes
		SET usage_count = usage_count + 1, updated_at = NOW()
		WHERE code = $1
		  AND (usage_limit IS NULL OR usage_count < usage_limit)
	`

	result, err := r.db.ExecContext(ctx, query, strings.ToUpper(code))
	if err != nil {
		return fmt.Errorf("failed to increment promo usage: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Either the code vanished or the limit was hit by a concurrent order.
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM promo_codes WHERE code = $1)`, strings.ToUpper(code),
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check promo code: %w", err)
		}
		if !exists {
			return ErrPromoNotFound
		}
		return ErrPromoUsageExhausted
	}

	return nil
}
