package domain

import (
	"time"

	"github.com/google/uuid"
)

// Product represents a product in the catalog.
//
// When TrackInventory is true, InStock is derived: it must equal
// stock_quantity > 0 OR allow_backorder, and is recomputed by every stock
// mutation. When false, the stock fields are ignored and InStock is whatever
// the admin set it to.
type Product struct {
	ID                uuid.UUID `json:"id" db:"id"`
	Name              string    `json:"name" db:"name"`
	Description       string    `json:"description" db:"description"`
	Price             float64   `json:"price" db:"price"`
	CategoryID        uuid.UUID `json:"category_id" db:"category_id"`
	ImageURL          string    `json:"image_url" db:"image_url"`
	TrackInventory    bool      `json:"track_inventory" db:"track_inventory"`
	StockQuantity     int       `json:"stock_quantity" db:"stock_quantity"`
	LowStockThreshold int       `json:"low_stock_threshold" db:"low_stock_threshold"`
	AllowBackorder    bool      `json:"allow_backorder" db:"allow_backorder"`
	InStock           bool      `json:"in_stock" db:"in_stock"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// LowStock reports whether the product is tracked and at or below its
// low-stock threshold without being out of stock.
func (p *Product) LowStock() bool {
	return p.TrackInventory && p.StockQuantity > 0 && p.StockQuantity <= p.LowStockThreshold
}

// RecomputeInStock restores the derived InStock flag for tracked products.
// Untracked products keep their manually set flag.
func (p *Product) RecomputeInStock() {
	if p.TrackInventory {
		p.InStock = p.StockQuantity > 0 || p.AllowBackorder
	}
}

// Category represents a product category
type Category struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
