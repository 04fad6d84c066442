package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order not found")

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPlaced    Status = "placed"
	StatusCancelled Status = "cancelled"
)

// Order represents a placed customer order with pricing and discount details.
type Order struct {
	ID             string
	StoreID        string
	CustomerID     string
	Status         Status
	Items          []Item
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	ShippingAmount decimal.Decimal
	FreeShipping   bool
	Total          decimal.Decimal
	CouponCode     string
	AppliedRuleIDs []string
	CreatedAt      time.Time
}

// Item is a priced order line. Discount is the share of the order's
// discount allocated to the line; Refunded counts units already refunded.
type Item struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
	Discount  decimal.Decimal `json:"discount"`
	Refunded  int             `json:"refunded,omitempty"`
}

// Item returns the line with the given id.
func (o *Order) Item(id string) (*Item, bool) {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return &o.Items[i], true
		}
	}
	return nil, false
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, order *Order) error
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*Order, error)
	// UpdatePricing rewrites the discount-dependent fields of an order: its
	// items (including refunded quantities), totals, applied rules and
	// coupon code.
	UpdatePricing(ctx context.Context, order *Order) error
	// SetStatus returns ErrNotFound for unknown ids.
	SetStatus(ctx context.Context, id string, status Status) error
}
