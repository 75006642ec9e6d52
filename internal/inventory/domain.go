package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/stocksense/stocksense/internal/shared"
)

// Status enumerates derived product states.
type Status string

const (
	// StatusActive means the product has stock on hand.
	StatusActive Status = "active"
	// StatusOutOfStock means the quantity reached zero.
	StatusOutOfStock Status = "out_of_stock"
)

// StatusFor derives the status from a quantity. Every quantity mutation goes
// through this single function so status and quantity never disagree at rest.
func StatusFor(quantity int64) Status {
	if quantity <= 0 {
		return StatusOutOfStock
	}
	return StatusActive
}

var nameFolder = cases.Fold()

// NormalizeName case-folds a product name for storage and matching.
// Whitespace and punctuation are preserved; matching is exact apart from case.
func NormalizeName(name string) string {
	return nameFolder.String(name)
}

// Product is a live inventory record scoped to one owner.
type Product struct {
	ID             uuid.UUID `json:"id"`
	OwnerID        int64     `json:"ownerId"`
	Name           string    `json:"name"`
	NormalizedName string    `json:"normalizedName"`
	SKU            string    `json:"sku,omitempty"`
	Category       string    `json:"category,omitempty"`
	Unit           string    `json:"unit"`
	Price          float64   `json:"price"`
	Quantity       int64     `json:"quantity"`
	MinStockLevel  int64     `json:"minStockLevel"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// LowStock reports whether the quantity fell below the reorder threshold.
func (p Product) LowStock() bool {
	return p.Quantity < p.MinStockLevel
}

// ArchivedUnit records one removal event: the slice of quantity taken from a
// product at one point in time. A whole-record delete archives the full
// remaining quantity; a voice partial delete archives only what was removed.
// ProductID may be stale — restore resolves by (owner, name) instead.
type ArchivedUnit struct {
	ID            uuid.UUID `json:"id"`
	ProductID     uuid.UUID `json:"productId"`
	OwnerID       int64     `json:"ownerId"`
	Name          string    `json:"name"`
	SKU           string    `json:"sku,omitempty"`
	Category      string    `json:"category,omitempty"`
	Unit          string    `json:"unit"`
	Price         float64   `json:"price"`
	Quantity      int64     `json:"quantity"`
	MinStockLevel int64     `json:"minStockLevel"`
	DeletedAt     time.Time `json:"deletedAt"`
}

// CreateInput describes a new product. Zero values for Unit and MinStockLevel
// are replaced with the defaults ("pcs", 5) by the service.
type CreateInput struct {
	Name          string
	SKU           string
	Category      string
	Unit          string
	Price         float64
	Quantity      int64
	MinStockLevel int64
}

// UpdateInput carries optional field edits; nil means keep the current value.
type UpdateInput struct {
	Name          *string
	SKU           *string
	Category      *string
	Unit          *string
	Price         *float64
	Quantity      *int64
	MinStockLevel *int64
}

// ListFilter narrows product listings.
type ListFilter struct {
	Query    string
	Category string
	LowStock bool
	Page     int
	Limit    int
}

// MultiDeleteResult reports how many products were archived and removed.
// The two counts advance together; a mismatch signals a partial failure.
type MultiDeleteResult struct {
	ArchivedCount int `json:"archivedCount"`
	DeletedCount  int `json:"deletedCount"`
}

// VoiceDeleteResult is the itemized report of a voice-driven removal batch.
// Message is set only when the command yielded no recognizable intents.
type VoiceDeleteResult struct {
	Updated []string `json:"updated"`
	Errors  []string `json:"errors"`
	Message string   `json:"message,omitempty"`
}

// Stats summarises one owner's inventory for the dashboard.
type Stats struct {
	TotalProducts int64     `json:"totalProducts"`
	TotalQuantity int64     `json:"totalQuantity"`
	LowStockCount int64     `json:"lowStockCount"`
	Recent        []Product `json:"recent"`
}

// CategoryProductTotal is one row of the per-category rollup.
type CategoryProductTotal struct {
	Category string  `json:"category"`
	Name     string  `json:"name"`
	Unit     string  `json:"unit"`
	Quantity int64   `json:"quantity"`
	Value    float64 `json:"value"`
}

// CategoryTotals groups rollup rows under one category.
type CategoryTotals struct {
	Category string                 `json:"category"`
	Stock    int64                  `json:"stock"`
	Value    float64                `json:"value"`
	Products []CategoryProductTotal `json:"products"`
}

// CategorySummary is the full per-category report with grand totals.
type CategorySummary struct {
	Categories    []CategoryTotals `json:"categories"`
	GrandQuantity int64            `json:"grandTotalQuantity"`
	GrandValue    float64          `json:"grandTotalValue"`
}

var (
	// ErrProductNotFound indicates a missing product or an owner mismatch.
	ErrProductNotFound = fmt.Errorf("product: %w", shared.ErrNotFound)
	// ErrArchiveNotFound indicates a missing archived unit or an owner mismatch.
	ErrArchiveNotFound = fmt.Errorf("archived unit: %w", shared.ErrNotFound)
	// ErrNameRequired indicates a create request without a product name.
	ErrNameRequired = fmt.Errorf("name is required: %w", shared.ErrValidation)
	// ErrNegativeQuantity indicates a negative quantity in input.
	ErrNegativeQuantity = fmt.Errorf("quantity must not be negative: %w", shared.ErrValidation)
	// ErrNegativePrice indicates a negative price in input.
	ErrNegativePrice = fmt.Errorf("price must not be negative: %w", shared.ErrValidation)
	// ErrInsufficientStock is itemized inside voice-delete reports; it never
	// fails the batch.
	ErrInsufficientStock = errors.New("insufficient stock")
)
