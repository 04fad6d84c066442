package discount

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-promotions/internal/domain/money"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func nd(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(d(v))
}

func item(id, price string, qty int, categories ...string) Item {
	unit := d(price)
	return Item{
		ID:          id,
		ProductID:   "prod-" + id,
		CategoryIDs: categories,
		Quantity:    qty,
		UnitPrice:   unit,
		TotalPrice:  money.LineTotal(unit, qty),
	}
}

func cart(items ...Item) *Context {
	sum := money.Zero
	for _, it := range items {
		sum = money.Add(sum, it.TotalPrice)
	}
	return &Context{
		StoreID:  "store-1",
		Items:    items,
		Subtotal: sum,
	}
}

func automaticRule(id string, effect Effect) Rule {
	return Rule{
		ID:           id,
		StoreID:      "store-1",
		Effect:       effect,
		Target:       Target{AppliesTo: AppliesToAll},
		IsActive:     true,
		IsAutomatic:  true,
		IsCombinable: true,
		CreatedAt:    testNow.Add(-time.Hour),
	}
}

func couponRule(id, code string, effect Effect) Rule {
	r := automaticRule(id, effect)
	r.Code = code
	r.IsAutomatic = false
	return r
}

func newTestEngine(p Policy) *Engine {
	e := NewEngine(p)
	e.now = func() time.Time { return testNow }
	return e
}

func sumAllocations(m map[string]decimal.Decimal) decimal.Decimal {
	sum := money.Zero
	for _, v := range m {
		sum = money.Add(sum, v)
	}
	return sum
}
