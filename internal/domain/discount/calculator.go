package discount

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-promotions/internal/domain/money"
)

// Computation is the monetary effect of one rule.
type Computation struct {
	Amount       decimal.Decimal
	Items        map[string]decimal.Decimal
	FreeShipping bool
}

// Compute calculates the rule's effect on its targeted items. Items must be
// the output of TargetedItems for the same rule.
func Compute(r *Rule, targeted []Item) Computation {
	switch e := r.Effect.(type) {
	case Percentage:
		amount := money.Percent(subtotal(targeted), e.Value)
		amount = money.Cap(amount, r.MaximumDiscountAmount)
		return Computation{Amount: amount, Items: Distribute(amount, targeted)}
	case FixedAmount:
		amount := money.Min(money.Round(e.Value), subtotal(targeted))
		amount = money.Cap(amount, r.MaximumDiscountAmount)
		return Computation{Amount: amount, Items: Distribute(amount, targeted)}
	case FreeShipping:
		return Computation{Amount: money.Zero, Items: map[string]decimal.Decimal{}, FreeShipping: true}
	case BuyXGetY:
		return computeBuyXGetY(r, e, targeted)
	default:
		return Computation{Amount: money.Zero, Items: map[string]decimal.Decimal{}}
	}
}

// unit is one physical unit of a cart item.
type unit struct {
	itemID string
	price  decimal.Decimal
}

func computeBuyXGetY(r *Rule, e BuyXGetY, targeted []Item) Computation {
	units := make([]unit, 0, totalQuantity(targeted))
	for _, item := range targeted {
		for range item.Quantity {
			units = append(units, unit{itemID: item.ID, price: item.UnitPrice})
		}
	}
	sort.SliceStable(units, func(i, j int) bool {
		return units[i].price.LessThan(units[j].price)
	})

	size := e.GroupSize()
	groups := len(units) / size

	amount := money.Zero
	items := make(map[string]decimal.Decimal)
	for g := range groups {
		group := units[g*size : (g+1)*size]
		// group is sorted ascending, so the rewarded units lead it.
		for _, u := range group[:e.GetQuantity] {
			off := money.Percent(u.price, e.DiscountPercentage)
			amount = money.Add(amount, off)
			items[u.itemID] = money.Add(items[u.itemID], off)
		}
	}

	if capped := money.Cap(amount, r.MaximumDiscountAmount); !capped.Equal(amount) {
		rewarded := make([]Item, 0, len(items))
		for _, item := range targeted {
			if share, ok := items[item.ID]; ok {
				rewarded = append(rewarded, Item{ID: item.ID, TotalPrice: share})
			}
		}
		return Computation{Amount: capped, Items: Distribute(capped, rewarded)}
	}
	return Computation{Amount: amount, Items: items}
}

func subtotal(items []Item) decimal.Decimal {
	sum := money.Zero
	for _, item := range items {
		sum = money.Add(sum, item.TotalPrice)
	}
	return sum
}
