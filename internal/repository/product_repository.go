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
	ErrProductNotFound = errors.New("product not found")
)

// InsufficientStockError is returned when a reservation asks for more units
// than a tracked product has available and backorders are not allowed.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// SortOrder represents the sort direction
type SortOrder string

const (
	SortOrderAsc  SortOrder = "ASC"
	SortOrderDesc SortOrder = "DESC"
)

// StockChange is the outcome of an atomic stock mutation. Tracked is false
// when the product does not track inventory and the mutation was a no-op.
type StockChange struct {
	Tracked  bool
	OldStock int
	NewStock int
}

// ProductRepository defines the interface for product data access. The stock
// methods are single-statement conditional updates: the check and the
// decrement are evaluated by the database in one atomic operation so that
// concurrent reservations on the same product can never both pass a stale
// read.
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	List(ctx context.Context, categoryID *uuid.UUID, page, pageSize int, sortBy string, sortOrder SortOrder) ([]*domain.Product, int, error)
	Search(ctx context.Context, query string, page, pageSize int) ([]*domain.Product, int, error)

	// ReserveStock decrements stock by quantity iff stock_quantity >= quantity
	// or the product allows backorders. Stored stock is floored at zero. Fails
	// with *InsufficientStockError otherwise. No-op success for untracked
	// products.
	ReserveStock(ctx context.Context, id uuid.UUID, quantity int) (StockChange, error)
	// ReleaseStock increments stock by quantity. Used to compensate
	// reservations when a later step of the same order fails.
	ReleaseStock(ctx context.Context, id uuid.UUID, quantity int) (StockChange, error)
	// AdjustStock applies an administrative increase/decrease/set. Decrease is
	// floored at zero; set replaces the quantity outright.
	AdjustStock(ctx context.Context, id uuid.UUID, adjustmentType string, quantity int) (StockChange, error)
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

const productColumns = `id, name, description, price, category_id, image_url,
	track_inventory, stock_quantity, low_stock_threshold, allow_backorder, in_stock,
	created_at, updated_at`

func scanProduct(row interface{ Scan(dest ...any) error }) (*domain.Product, error) {
	product := &domain.Product{}
	err := row.Scan(
		&product.ID,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.CategoryID,
		&product.ImageURL,
		&product.TrackInventory,
		&product.StockQuantity,
		&product.LowStockThreshold,
		&product.AllowBackorder,
		&product.InStock,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return product, nil
}

// Create inserts a new product into the database using parameterized queries
func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (id, name, description, price, category_id, image_url,
			track_inventory, stock_quantity, low_stock_threshold, allow_backorder, in_stock,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	product.RecomputeInStock()

	_, err := r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Description,
		product.Price,
		product.CategoryID,
		product.ImageURL,
		product.TrackInventory,
		product.StockQuantity,
		product.LowStockThreshold,
		product.AllowBackorder,
		product.InStock,
		product.CreatedAt,
		product.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

// Update updates an existing product in the database using parameterized queries
func (r *productRepository) Update(ctx context.Context, product *domain.Product) error {
	query := `
		UPDATE products
		SET name = $2, description = $3, price = $4, category_id = $5,
		    image_url = $6, track_inventory = $7, stock_quantity = $8,
		    low_stock_threshold = $9, allow_backorder = $10, in_stock = $11,
		    updated_at = $12
		WHERE id = $1
	`

	product.RecomputeInStock()

	result, err := r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Description,
		product.Price,
		product.CategoryID,
		product.ImageURL,
		product.TrackInventory,
		product.StockQuantity,
		product.LowStockThreshold,
		product.AllowBackorder,
		product.InStock,
		product.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// Delete removes a product from the database using parameterized queries
func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM products WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// FindByID retrieves a product by ID using parameterized queries
func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM products WHERE id = $1`, productColumns)

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return product, nil
}

// ReserveStock performs the atomic check-and-decrement for an order line.
// The WHERE clause carries the availability condition so two concurrent
// reservations can never both succeed on the last units.
func (r *productRepository) ReserveStock(ctx context.Context, id uuid.UUID, quantity int) (StockChange, error) {
	query := `
		UPDATE products p
		SET stock_quantity = GREATEST(p.stock_quantity - $2, 0),
		    in_stock = (GREATEST(p.stock_quantity - $2, 0) > 0 OR p.allow_backorder),
		    updated_at = NOW()
		FROM (SELECT id, stock_quantity FROM products WHERE id = $1 FOR UPDATE) prev
		WHERE p.id = prev.id
		  AND p.track_inventory
		  AND (p.stock_quantity >= $2 OR p.allow_backorder)
		RETURNING prev.stock_quantity, p.stock_quantity
	`

	change := StockChange{Tracked: true}
	err := r.db.QueryRowContext(ctx, query, id, quantity).Scan(&change.OldStock, &change.NewStock)
	if err == nil {
		return change, nil
	}
	if err != sql.ErrNoRows {
		return StockChange{}, fmt.Errorf("failed to reserve stock: %w", err)
	}

	// No row matched: untracked product, unknown product, or not enough
	// stock. The follow-up read only classifies the failure.
	return r.classifyStockMiss(ctx, id, quantity)
}

// ReleaseStock reverses a reservation (compensation path). Untracked
// products are a no-op, mirroring ReserveStock.
func (r *productRepository) ReleaseStock(ctx context.Context, id uuid.UUID, quantity int) (StockChange, error) {
	query := `
		UPDATE products p
		SET stock_quantity = p.stock_quantity + $2,
		    in_stock = (p.stock_quantity + $2 > 0 OR p.allow_backorder),
		    updated_at = NOW()
		FROM (SELECT id, stock_quantity FROM products WHERE id = $1 FOR UPDATE) prev
		WHERE p.id = prev.id AND p.track_inventory
		RETURNING prev.stock_quantity, p.stock_quantity
	`

	change := StockChange{Tracked: true}
	err := r.db.QueryRowContext(ctx, query, id, quantity).Scan(&change.OldStock, &change.NewStock)
	if err == nil {
		return change, nil
	}
	if err != sql.ErrNoRows {
		return StockChange{}, fmt.Errorf("failed to release stock: %w", err)
	}

	return r.classifyStockMiss(ctx, id, 0)
}

// AdjustStock applies an administrative stock change in a single statement.
func (r *productRepository) AdjustStock(ctx context.Context, id uuid.UUID, adjustmentType string, quantity int) (StockChange, error) {
	var expr string
	switch adjustmentType {
	case domain.AdjustmentTypeIncrease:
		expr = "p.stock_quantity + $2"
	case domain.AdjustmentTypeDecrease:
		expr = "GREATEST(p.stock_quantity - $2, 0)"
	case domain.AdjustmentTypeSet:
		expr = "GREATEST($2, 0)"
	default:
		return StockChange{}, fmt.Errorf("unknown adjustment type %q", adjustmentType)
	}

	query := fmt.Sprintf(`
		UPDATE products p
		SET stock_quantity = %[1]s,
		    in_stock = CASE WHEN p.track_inventory
		               THEN (%[1]s > 0 OR p.allow_backorder)
		               ELSE p.in_stock END,
		    updated_at = NOW()
		FROM (SELECT id, stock_quantity FROM products WHERE id = $1 FOR UPDATE) prev
		WHERE p.id = prev.id
		RETURNING prev.stock_quantity, p.stock_quantity
	`, expr)

	change := StockChange{Tracked: true}
	err := r.db.QueryRowContext(ctx, query, id, quantity).Scan(&change.OldStock, &change.NewStock)
	if err != nil {
		if err == sql.ErrNoRows {
			return StockChange{}, ErrProductNotFound
		}
		return StockChange{}, fmt.Errorf("failed to adjust stock: %w", err)
	}

	return change, nil
}

func (r *productRepository) classifyStockMiss(ctx context.Context, id uuid.UUID, requested int) (StockChange, error) {
	var tracked bool
	var stock int
	err := r.db.QueryRowContext(ctx,
		`SELECT track_inventory, stock_quantity FROM products WHERE id = $1`, id,
	).Scan(&tracked, &stock)
	if err != nil {
		if err == sql.ErrNoRows {
			return StockChange{}, ErrProductNotFound
		}
		return StockChange{}, fmt.Errorf("failed to read product stock: %w", err)
	}

	if !tracked {
		return StockChange{Tracked: false, OldStock: stock, NewStock: stock}, nil
	}

	return StockChange{}, &InsufficientStockError{
		ProductID: id,
		Requested: requested,
		Available: stock,
	}
}

// List retrieves products with optional category filtering, pagination, and sorting
func (r *productRepository) List(ctx context.Context, categoryID *uuid.UUID, page, pageSize int, sortBy string, sortOrder SortOrder) ([]*domain.Product, int, error) {
	// Validate sort field to prevent SQL injection
	validSortFields := map[string]bool{
		"name":           true,
		"price":          true,
		"created_at":     true,
		"stock_quantity": true,
	}

	if !validSortFields[sortBy] {
		sortBy = "created_at" // Default sort field
	}

	// Validate sort order
	if sortOrder != SortOrderAsc && sortOrder != SortOrderDesc {
		sortOrder = SortOrderDesc // Default sort order
	}

	// Build the WHERE clause
	whereClause := ""
	args := []interface{}{}
	argIndex := 1

	if categoryID != nil {
		whereClause = fmt.Sprintf("WHERE category_id = $%d", argIndex)
		args = append(args, *categoryID)
		argIndex++
	}

	// Count total products
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM products %s", whereClause)
	var total int
	err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	// Calculate offset
	offset := (page - 1) * pageSize

	// Build the main query with sorting and pagination
	query := fmt.Sprintf(`
		SELECT %s
		FROM products
		%s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d
	`, productColumns, whereClause, sortBy, sortOrder, argIndex, argIndex+1)

	args = append(args, pageSize, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating products: %w", err)
	}

	return products, total, nil
}

// Search searches for products by name or description with pagination
func (r *productRepository) Search(ctx context.Context, query string, page, pageSize int) ([]*domain.Product, int, error) {
	// If query is empty, return all products
	if strings.TrimSpace(query) == "" {
		return r.List(ctx, nil, page, pageSize, "created_at", SortOrderDesc)
	}

	// Use ILIKE for case-insensitive search
	searchPattern := "%" + query + "%"

	// Count total matching products
	countQuery := `
		SELECT COUNT(*)
		FROM products
		WHERE name ILIKE $1 OR description ILIKE $1
	`
	var total int
	err := r.db.QueryRowContext(ctx, countQuery, searchPattern).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count search results: %w", err)
	}

	// Calculate offset
	offset := (page - 1) * pageSize

	// Search products
	searchQuery := fmt.Sprintf(`
		SELECT %s
		FROM products
		WHERE name ILIKE $1 OR description ILIKE $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, productColumns)

	rows, err := r.db.QueryContext(ctx, searchQuery, searchPattern, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating search results: %w", err)
	}

	return products, total, nil
}
