// Package memory is an in-process implementation of every repository the
// service needs. Rule counters are versioned; the ledger applies
// redemptions with optimistic compare-and-swap and retries on conflict.
package memory

import (
	"sync"

	"github.com/xenking/kart-promotions/internal/domain/auth"
	"github.com/xenking/kart-promotions/internal/domain/customer"
	"github.com/xenking/kart-promotions/internal/domain/discount"
	"github.com/xenking/kart-promotions/internal/domain/ledger"
	"github.com/xenking/kart-promotions/internal/domain/order"
	"github.com/xenking/kart-promotions/internal/domain/product"
)

type ruleRecord struct {
	rule    discount.Rule
	version uint64
}

type redemptionKey struct {
	orderID string
	ruleID  string
}

// Store holds all state behind a single lock.
type Store struct {
	mu sync.RWMutex

	rules       map[string]*ruleRecord
	codes       map[string]string // store id + upper code -> rule id
	redemptions map[redemptionKey]ledger.Redemption

	products  map[string]product.Product
	customers map[string]customer.Profile
	orders    map[string]*order.Order
	apikeys   map[string]auth.APIKeyInfo
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		rules:       make(map[string]*ruleRecord),
		codes:       make(map[string]string),
		redemptions: make(map[redemptionKey]ledger.Redemption),
		products:    make(map[string]product.Product),
		customers:   make(map[string]customer.Profile),
		orders:      make(map[string]*order.Order),
		apikeys:     make(map[string]auth.APIKeyInfo),
	}
}

func codeKey(storeID, code string) string {
	return storeID + "\x00" + discount.NormalizeCode(code)
}

func cloneRule(r discount.Rule) discount.Rule {
	if r.Budget != nil {
		b := *r.Budget
		r.Budget = &b
	}
	r.CustomerIDs = append([]string(nil), r.CustomerIDs...)
	r.CustomerGroupIDs = append([]string(nil), r.CustomerGroupIDs...)
	r.RegionIDs = append([]string(nil), r.RegionIDs...)
	return r
}

func cloneOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Items = append([]order.Item(nil), o.Items...)
	cp.AppliedRuleIDs = append([]string(nil), o.AppliedRuleIDs...)
	return &cp
}
