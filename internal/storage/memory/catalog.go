package memory

import (
	"context"
	"sort"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-promotions/internal/domain/auth"
	"github.com/xenking/kart-promotions/internal/domain/customer"
	"github.com/xenking/kart-promotions/internal/domain/order"
	"github.com/xenking/kart-promotions/internal/domain/product"
)

var (
	_ product.Repository  = (*Store)(nil)
	_ customer.Repository = (*Store)(nil)
	_ auth.Repository     = (*Store)(nil)
)

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// List returns the store's products ordered by id. An empty store id lists
// every product.
func (s *Store) List(_ context.Context, storeID string) ([]product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]product.Product, 0, len(s.products))
	for _, p := range s.products {
		if storeID == "" || p.StoreID == storeID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetByIDs returns the products matching ids; unknown ids are skipped.
func (s *Store) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// PutCustomer inserts or replaces a customer profile.
func (s *Store) PutCustomer(p customer.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[p.ID] = p
}

// GetProfile returns a customer profile.
func (s *Store) GetProfile(_ context.Context, id string) (*customer.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.customers[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return &p, nil
}

// History counts the customer's non-cancelled orders and their redemptions.
func (s *Store) History(_ context.Context, id string) (*customer.History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := &customer.History{RuleUsage: map[string]int{}}
	live := make(map[string]bool)
	for _, o := range s.orders {
		if o.CustomerID == id && o.Status != order.StatusCancelled {
			h.OrderCount++
			live[o.ID] = true
		}
	}
	for k, r := range s.redemptions {
		if r.CustomerID == id && live[k.orderID] {
			h.RuleUsage[k.ruleID]++
		}
	}
	return h, nil
}

// PutAPIKey stores a key by its hash.
func (s *Store) PutAPIKey(k auth.APIKeyInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apikeys[k.KeyHash] = k
}

// FindByHash looks up an API key by its HMAC hash.
func (s *Store) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.apikeys[hash]
	if !ok {
		return nil, errors.Wrap(auth.ErrNotFound, "find by hash")
	}
	return &k, nil
}
