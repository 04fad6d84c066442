package memory

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-promotions/internal/domain/order"
)

var _ order.Repository = (*Store)(nil)

// Create persists a new order.
func (s *Store) Create(_ context.Context, ord *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[ord.ID]; ok {
		return errors.Errorf("order %s already exists", ord.ID)
	}
	s.orders[ord.ID] = cloneOrder(ord)
	return nil
}

// Get returns a copy of an order.
func (s *Store) Get(_ context.Context, id string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ord, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return cloneOrder(ord), nil
}

// UpdatePricing rewrites the discount-dependent fields of an order.
func (s *Store) UpdatePricing(_ context.Context, ord *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[ord.ID]
	if !ok {
		return order.ErrNotFound
	}
	stored.Items = append([]order.Item(nil), ord.Items...)
	stored.DiscountAmount = ord.DiscountAmount
	stored.FreeShipping = ord.FreeShipping
	stored.Total = ord.Total
	stored.AppliedRuleIDs = append([]string(nil), ord.AppliedRuleIDs...)
	stored.CouponCode = ord.CouponCode
	return nil
}

// SetStatus changes the order status.
func (s *Store) SetStatus(_ context.Context, id string, status order.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	stored.Status = status
	return nil
}
