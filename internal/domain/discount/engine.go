package discount

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-promotions/internal/domain/money"
)

// Engine evaluates carts against discount rules. It holds no mutable state
// and performs no I/O; Evaluate is safe for concurrent use.
type Engine struct {
	policy Policy
	now    func() time.Time
}

// NewEngine creates an Engine applying the given stacking policy.
func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy, now: time.Now}
}

// Policy returns the stacking policy the engine was built with.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Evaluate computes the discounts for dc. automatic holds the store's
// automatic rules; coupon is the rule found for dc.CouponCode, or nil when
// no code was supplied or the lookup found nothing.
//
// An error is returned only for invariant violations. A failed coupon
// yields an invalid Result whose Informational field carries the
// automatic-only evaluation.
func (e *Engine) Evaluate(dc *Context, automatic []Rule, coupon *Rule) (*Result, error) {
	if err := dc.Validate(); err != nil {
		return nil, err
	}
	for i := range automatic {
		if err := automatic[i].Validate(); err != nil {
			return nil, err
		}
	}
	if coupon != nil {
		if err := coupon.Validate(); err != nil {
			return nil, err
		}
	}

	now := e.now()
	candidates := e.automaticCandidates(dc, automatic, now)
	if dc.CouponCode == "" {
		return e.apply(dc, candidates), nil
	}

	c, failure := e.couponCandidate(dc, coupon, now)
	if failure != "" {
		return &Result{
			IsValid:        false,
			Errors:         []string{failure},
			DiscountAmount: money.Zero,
			ItemDiscounts:  map[string]decimal.Decimal{},
			AppliedRuleIDs: []string{},
			Informational:  e.apply(dc, candidates),
		}, nil
	}

	merged := make([]Candidate, 0, len(candidates)+1)
	for _, a := range candidates {
		if a.Rule.ID != c.Rule.ID {
			merged = append(merged, a)
		}
	}
	if !isZeroEffect(c.Computation) {
		merged = append(merged, c)
	}
	return e.apply(dc, merged), nil
}

func (e *Engine) automaticCandidates(dc *Context, rules []Rule, now time.Time) []Candidate {
	var out []Candidate
	for i := range rules {
		r := &rules[i]
		if !r.IsAutomaticCandidate() {
			continue
		}
		if ok, _ := CheckEligibility(r, dc, now); !ok {
			continue
		}
		comp := Compute(r, TargetedItems(r, dc.Items))
		if isZeroEffect(comp) || !withinSpendBudget(r, comp.Amount) {
			continue
		}
		out = append(out, Candidate{Rule: r, Computation: comp})
	}
	return out
}

// couponCandidate validates the explicitly requested rule. A non-empty
// failure is the shopper-facing error.
func (e *Engine) couponCandidate(dc *Context, r *Rule, now time.Time) (Candidate, string) {
	if r == nil || !r.MatchesCode(dc.CouponCode) {
		return Candidate{}, fmt.Sprintf("coupon code %q is not valid", dc.CouponCode)
	}
	if ok, reason := CheckEligibility(r, dc, now); !ok {
		return Candidate{}, fmt.Sprintf("coupon code %q %s", dc.CouponCode, reason.Message())
	}
	comp := Compute(r, TargetedItems(r, dc.Items))
	if !withinSpendBudget(r, comp.Amount) {
		return Candidate{}, fmt.Sprintf("coupon code %q %s", dc.CouponCode, ReasonBudgetExhausted.Message())
	}
	return Candidate{Rule: r, Computation: comp}, ""
}

func (e *Engine) apply(dc *Context, candidates []Candidate) *Result {
	res := &Result{
		IsValid:        true,
		DiscountAmount: money.Zero,
		ItemDiscounts:  map[string]decimal.Decimal{},
		AppliedRuleIDs: []string{},
	}

	headroom := dc.Subtotal
	for _, c := range Resolve(candidates, e.policy) {
		comp := c.Computation
		if comp.Amount.GreaterThan(headroom) {
			comp = Computation{
				Amount:       headroom,
				Items:        Distribute(headroom, weightedItems(dc.Items, comp.Items)),
				FreeShipping: comp.FreeShipping,
			}
		}
		headroom = money.Sub(headroom, comp.Amount)

		res.DiscountAmount = money.Add(res.DiscountAmount, comp.Amount)
		res.FreeShipping = res.FreeShipping || comp.FreeShipping
		for id, v := range comp.Items {
			res.ItemDiscounts[id] = money.Add(res.ItemDiscounts[id], v)
		}
		res.AppliedRuleIDs = append(res.AppliedRuleIDs, c.Rule.ID)
		res.Applied = append(res.Applied, Applied{
			RuleID:       c.Rule.ID,
			Code:         c.Rule.Code,
			Type:         c.Rule.Type(),
			CampaignName: c.Rule.CampaignName,
			Amount:       comp.Amount,
			FreeShipping: comp.FreeShipping,
			Items:        comp.Items,
		})
	}
	return res
}

// weightedItems turns an allocation back into items, in cart order, so it
// can be re-distributed after clamping.
func weightedItems(cart []Item, alloc map[string]decimal.Decimal) []Item {
	out := make([]Item, 0, len(alloc))
	seen := make(map[string]bool, len(alloc))
	for _, item := range cart {
		share, ok := alloc[item.ID]
		if !ok || seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		out = append(out, Item{ID: item.ID, TotalPrice: share})
	}
	return out
}

func withinSpendBudget(r *Rule, amount decimal.Decimal) bool {
	b := r.Budget
	if b == nil || b.Type != BudgetSpend {
		return true
	}
	return money.Add(b.Used, amount).LessThanOrEqual(b.Limit)
}

func isZeroEffect(c Computation) bool {
	return !c.FreeShipping && c.Amount.IsZero()
}
