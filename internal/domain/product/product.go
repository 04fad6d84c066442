package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID      string
	StoreID string
	Name    string
	Price   decimal.Decimal
	// Category is the display category; CategoryIDs is the full set used
	// for discount targeting and always includes Category.
	Category    string
	CategoryIDs []string
	Image       Image
}

// Image holds responsive image URLs for a product.
type Image struct {
	Thumbnail string
	Mobile    string
	Tablet    string
	Desktop   string
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context, storeID string) ([]Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
