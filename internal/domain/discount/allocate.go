package discount

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-promotions/internal/domain/money"
)

// Distribute spreads amount across items in proportion to their total price.
// Every item but the last gets its share truncated to minor units; the last
// item absorbs the remainder, so the allocations always sum to amount.
// Refund proration relies on this being deterministic for a given input.
func Distribute(amount decimal.Decimal, items []Item) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(items))
	if len(items) == 0 {
		return out
	}

	whole := subtotal(items)
	allocated := money.Zero
	last := len(items) - 1
	for _, item := range items[:last] {
		share := money.Share(amount, item.TotalPrice, whole)
		out[item.ID] = money.Add(out[item.ID], share)
		allocated = money.Add(allocated, share)
	}
	out[items[last].ID] = money.Add(out[items[last].ID], money.Sub(amount, allocated))
	return out
}
