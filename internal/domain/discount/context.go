package discount

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-promotions/internal/domain/money"
)

// Item is the line-item view used for evaluation.
type Item struct {
	ID          string
	ProductID   string
	VariantID   string
	CategoryIDs []string
	Quantity    int
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
}

// Context is the fully materialized evaluation input. The caller resolves
// categories, customer groups, region, first-order status and per-customer
// redemption counts before evaluating.
type Context struct {
	StoreID          string
	CustomerID       string
	CustomerGroupIDs []string
	RegionID         string
	Items            []Item
	Subtotal         decimal.Decimal
	ShippingAmount   decimal.Decimal
	CouponCode       string
	IsFirstOrder     bool
	// CustomerUsage maps rule id to the customer's prior redemptions.
	CustomerUsage map[string]int
}

// HasCustomer reports whether the cart belongs to a known customer.
func (c *Context) HasCustomer() bool {
	return c.CustomerID != ""
}

// Validate asserts the caller-supplied totals. Subtotal is checked, never
// recomputed.
func (c *Context) Validate() error {
	sum := money.Zero
	for _, item := range c.Items {
		if item.Quantity < 0 {
			return invariantf("item %s: negative quantity %d", item.ID, item.Quantity)
		}
		if item.UnitPrice.IsNegative() || item.TotalPrice.IsNegative() {
			return invariantf("item %s: negative price", item.ID)
		}
		sum = money.Add(sum, item.TotalPrice)
	}
	if !sum.Equal(c.Subtotal) {
		return invariantf("subtotal %s does not match item totals %s", c.Subtotal, sum)
	}
	if c.ShippingAmount.IsNegative() {
		return invariantf("negative shipping amount %s", c.ShippingAmount)
	}
	return nil
}

// Applied is one rule's contribution to a result.
type Applied struct {
	RuleID       string
	Code         string
	Type         Type
	CampaignName string
	Amount       decimal.Decimal
	FreeShipping bool
	Items        map[string]decimal.Decimal
}

// Result is the outcome of an evaluation.
type Result struct {
	// IsValid is false only when an explicitly supplied coupon failed.
	IsValid        bool
	Errors         []string
	DiscountAmount decimal.Decimal
	FreeShipping   bool
	ItemDiscounts  map[string]decimal.Decimal
	AppliedRuleIDs []string
	Applied        []Applied
	// Informational carries the automatic-only evaluation when the requested
	// coupon failed, so the cart keeps showing its automatic discounts.
	Informational *Result
}

// RuleRepository is the rule storage collaborator.
type RuleRepository interface {
	ListAutomaticRules(ctx context.Context, storeID string) ([]Rule, error)
	// FindByCode returns ErrRuleNotFound when the store has no such code.
	FindByCode(ctx context.Context, storeID, code string) (*Rule, error)
}

// Without returns a copy of the result with the given rules removed and the
// totals recomputed from the remaining per-rule breakdown.
func (r *Result) Without(ruleIDs ...string) *Result {
	drop := make(map[string]bool, len(ruleIDs))
	for _, id := range ruleIDs {
		drop[id] = true
	}

	out := &Result{
		IsValid:        r.IsValid,
		Errors:         r.Errors,
		DiscountAmount: money.Zero,
		ItemDiscounts:  map[string]decimal.Decimal{},
		AppliedRuleIDs: []string{},
		Informational:  r.Informational,
	}
	for _, a := range r.Applied {
		if drop[a.RuleID] {
			continue
		}
		out.DiscountAmount = money.Add(out.DiscountAmount, a.Amount)
		out.FreeShipping = out.FreeShipping || a.FreeShipping
		for id, v := range a.Items {
			out.ItemDiscounts[id] = money.Add(out.ItemDiscounts[id], v)
		}
		out.AppliedRuleIDs = append(out.AppliedRuleIDs, a.RuleID)
		out.Applied = append(out.Applied, a)
	}
	return out
}
