// Package customer resolves the per-customer facts discount eligibility
// depends on: group membership, region, first-order status and prior
// redemptions.
package customer

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no profile exists for a customer id.
var ErrNotFound = errors.New("customer not found")

// Profile is the stored customer record.
type Profile struct {
	ID       string
	StoreID  string
	GroupIDs []string
	RegionID string
}

// History summarizes the customer's non-cancelled orders.
type History struct {
	OrderCount int
	// RuleUsage maps rule id to redemptions by this customer.
	RuleUsage map[string]int
}

// Repository reads customer profiles and order history.
type Repository interface {
	// GetProfile returns ErrNotFound for unknown customers.
	GetProfile(ctx context.Context, id string) (*Profile, error)
	History(ctx context.Context, id string) (*History, error)
}

// Facts is everything eligibility needs to know about a customer.
type Facts struct {
	CustomerID   string
	GroupIDs     []string
	RegionID     string
	IsFirstOrder bool
	RuleUsage    map[string]int
}

// Resolver builds Facts from a Repository.
type Resolver struct {
	repo Repository
}

// NewResolver creates a Resolver.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the facts for id. Guests (empty id) get empty facts and
// never count as first orders. A customer without a stored profile is
// treated as having no groups or region.
func (r *Resolver) Resolve(ctx context.Context, id string) (*Facts, error) {
	if id == "" {
		return &Facts{RuleUsage: map[string]int{}}, nil
	}

	facts := &Facts{CustomerID: id}
	p, err := r.repo.GetProfile(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, errors.Wrap(err, "get profile")
	default:
		facts.GroupIDs = p.GroupIDs
		facts.RegionID = p.RegionID
	}

	h, err := r.repo.History(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get history")
	}
	facts.IsFirstOrder = h.OrderCount == 0
	facts.RuleUsage = h.RuleUsage
	if facts.RuleUsage == nil {
		facts.RuleUsage = map[string]int{}
	}
	return facts, nil
}
