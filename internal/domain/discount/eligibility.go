package discount

import (
	"time"
)

// Reason identifies the eligibility check a rule failed. The empty Reason
// means the rule passed.
type Reason string

const (
	ReasonNone                      Reason = ""
	ReasonInactive                  Reason = "inactive"
	ReasonNotStarted                Reason = "not_started"
	ReasonExpired                   Reason = "expired"
	ReasonUsageLimitReached         Reason = "usage_limit_reached"
	ReasonCustomerUsageLimitReached Reason = "customer_usage_limit_reached"
	ReasonBudgetExhausted           Reason = "budget_exhausted"
	ReasonFirstOrderOnly            Reason = "first_order_only"
	ReasonMinimumOrderAmount        Reason = "minimum_order_amount"
	ReasonMaximumOrderAmount        Reason = "maximum_order_amount"
	ReasonMinimumQuantity           Reason = "minimum_quantity"
	ReasonNoTargetedItems           Reason = "no_targeted_items"
	ReasonCustomerNotEligible       Reason = "customer_not_eligible"
	ReasonCustomerGroupNotEligible  Reason = "customer_group_not_eligible"
	ReasonRegionNotEligible         Reason = "region_not_eligible"
	ReasonCodeRequired              Reason = "code_required"
	ReasonCodeMismatch              Reason = "code_mismatch"
)

var reasonMessages = map[Reason]string{
	ReasonInactive:                  "is not active",
	ReasonNotStarted:                "is not valid yet",
	ReasonExpired:                   "has expired",
	ReasonUsageLimitReached:         "has reached its usage limit",
	ReasonCustomerUsageLimitReached: "has already been used the maximum number of times by this customer",
	ReasonBudgetExhausted:           "has exhausted its campaign budget",
	ReasonFirstOrderOnly:            "is only valid on a first order",
	ReasonMinimumOrderAmount:        "requires a higher order amount",
	ReasonMaximumOrderAmount:        "is not valid for orders this large",
	ReasonMinimumQuantity:           "requires more eligible items",
	ReasonNoTargetedItems:           "does not apply to any item in the cart",
	ReasonCustomerNotEligible:       "is not available to this customer",
	ReasonCustomerGroupNotEligible:  "is not available to this customer group",
	ReasonRegionNotEligible:         "is not available in this region",
	ReasonCodeRequired:              "requires a coupon code",
	ReasonCodeMismatch:              "does not match the supplied code",
}

// Message renders the reason as the tail of a shopper-facing sentence.
func (r Reason) Message() string {
	if m, ok := reasonMessages[r]; ok {
		return m
	}
	return string(r)
}

// CheckEligibility runs the eligibility checks in their fixed order and
// stops at the first failure. Spend budgets are only checked for exhaustion
// here; headroom for the computed amount is verified after calculation.
func CheckEligibility(r *Rule, dc *Context, now time.Time) (bool, Reason) {
	if reason := checkEligibility(r, dc, now); reason != ReasonNone {
		return false, reason
	}
	return true, ReasonNone
}

func checkEligibility(r *Rule, dc *Context, now time.Time) Reason {
	if !r.IsActive {
		return ReasonInactive
	}
	if r.StartsAt != nil && now.Before(*r.StartsAt) {
		return ReasonNotStarted
	}
	if r.EndsAt != nil && now.After(*r.EndsAt) {
		return ReasonExpired
	}
	if r.UsageLimit > 0 && r.UsageCount >= r.UsageLimit {
		return ReasonUsageLimitReached
	}
	if r.UsageLimitPerCustomer > 0 && dc.HasCustomer() &&
		dc.CustomerUsage[r.ID] >= r.UsageLimitPerCustomer {
		return ReasonCustomerUsageLimitReached
	}
	if b := r.Budget; b != nil && b.Used.GreaterThanOrEqual(b.Limit) {
		return ReasonBudgetExhausted
	}
	if r.FirstOrderOnly && !dc.IsFirstOrder {
		return ReasonFirstOrderOnly
	}
	if r.MinimumOrderAmount.Valid && dc.Subtotal.LessThan(r.MinimumOrderAmount.Decimal) {
		return ReasonMinimumOrderAmount
	}
	if r.MaximumOrderAmount.Valid && dc.Subtotal.GreaterThan(r.MaximumOrderAmount.Decimal) {
		return ReasonMaximumOrderAmount
	}

	targeted := TargetedItems(r, dc.Items)
	if r.MinimumQuantity > 0 && totalQuantity(targeted) < r.MinimumQuantity {
		return ReasonMinimumQuantity
	}
	if r.Target.AppliesTo != AppliesToAll && r.Target.AppliesTo != "" && len(targeted) == 0 {
		return ReasonNoTargetedItems
	}

	if len(r.CustomerIDs) > 0 && !contains(r.CustomerIDs, dc.CustomerID) {
		return ReasonCustomerNotEligible
	}
	if len(r.CustomerGroupIDs) > 0 && !intersects(dc.CustomerGroupIDs, r.CustomerGroupIDs) {
		return ReasonCustomerGroupNotEligible
	}
	if len(r.RegionIDs) > 0 && !contains(r.RegionIDs, dc.RegionID) {
		return ReasonRegionNotEligible
	}

	if r.HasCode() {
		if dc.CouponCode == "" {
			return ReasonCodeRequired
		}
		if !r.MatchesCode(dc.CouponCode) {
			return ReasonCodeMismatch
		}
	}
	return ReasonNone
}

// TargetedItems returns the items in scope of the rule, in cart order.
func TargetedItems(r *Rule, items []Item) []Item {
	targeted := make([]Item, 0, len(items))
	for _, item := range items {
		if item.Quantity > 0 && r.Target.Matches(item) {
			targeted = append(targeted, item)
		}
	}
	return targeted
}

func totalQuantity(items []Item) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}
