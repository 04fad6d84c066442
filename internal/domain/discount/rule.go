package discount

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Type enumerates the supported discount archetypes.
type Type string

const (
	// TypePercentage takes a percentage off the targeted items.
	TypePercentage Type = "percentage"
	// TypeFixedAmount takes a fixed amount off the targeted items.
	TypeFixedAmount Type = "fixed_amount"
	// TypeFreeShipping waives the shipping charge.
	TypeFreeShipping Type = "free_shipping"
	// TypeBuyXGetY discounts the cheapest units of every complete group.
	TypeBuyXGetY Type = "buy_x_get_y"
)

// AppliesTo selects which cart items a rule targets.
type AppliesTo string

const (
	AppliesToAll                AppliesTo = "all"
	AppliesToSpecificProducts   AppliesTo = "specific_products"
	AppliesToSpecificCategories AppliesTo = "specific_categories"
)

// BudgetType tells what a campaign budget counts.
type BudgetType string

const (
	// BudgetSpend caps the cumulative discount amount granted.
	BudgetSpend BudgetType = "spend"
	// BudgetUsage caps the number of redemptions.
	BudgetUsage BudgetType = "usage"
)

// Effect is the archetype-specific payload of a rule. The set of
// implementations is closed: Percentage, FixedAmount, FreeShipping, BuyXGetY.
type Effect interface {
	Type() Type
	effect()
}

// Percentage takes Value percent off the targeted subtotal.
type Percentage struct {
	Value decimal.Decimal
}

// FixedAmount takes Value off the targeted subtotal, never below zero.
type FixedAmount struct {
	Value decimal.Decimal
}

// FreeShipping waives shipping.
type FreeShipping struct{}

// BuyXGetY rewards GetQuantity units out of every BuyQuantity+GetQuantity.
type BuyXGetY struct {
	BuyQuantity        int
	GetQuantity        int
	DiscountPercentage decimal.Decimal
}

func (Percentage) Type() Type   { return TypePercentage }
func (FixedAmount) Type() Type  { return TypeFixedAmount }
func (FreeShipping) Type() Type { return TypeFreeShipping }
func (BuyXGetY) Type() Type     { return TypeBuyXGetY }

func (Percentage) effect()   {}
func (FixedAmount) effect()  {}
func (FreeShipping) effect() {}
func (BuyXGetY) effect()     {}

// GroupSize is the number of units forming one complete group.
func (b BuyXGetY) GroupSize() int {
	return b.BuyQuantity + b.GetQuantity
}

// Target restricts which items a rule affects.
type Target struct {
	AppliesTo   AppliesTo
	ProductIDs  []string
	CategoryIDs []string
}

// Matches reports whether the item is in scope of the target.
func (t Target) Matches(item Item) bool {
	switch t.AppliesTo {
	case AppliesToSpecificProducts:
		return contains(t.ProductIDs, item.ProductID)
	case AppliesToSpecificCategories:
		for _, c := range item.CategoryIDs {
			if contains(t.CategoryIDs, c) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// Budget is a campaign-level ceiling.
type Budget struct {
	Type  BudgetType
	Limit decimal.Decimal
	Used  decimal.Decimal
}

// Rule is the immutable configuration of a discount. Zero-valued integer
// limits mean "unset"; money caps use NullDecimal.
type Rule struct {
	ID          string
	StoreID     string
	Code        string
	Description string
	Effect      Effect
	Target      Target

	MinimumOrderAmount    decimal.NullDecimal
	MaximumOrderAmount    decimal.NullDecimal
	MaximumDiscountAmount decimal.NullDecimal
	MinimumQuantity       int

	UsageLimit            int
	UsageLimitPerCustomer int
	UsageCount            int

	StartsAt *time.Time
	EndsAt   *time.Time

	IsActive       bool
	IsPublic       bool
	FirstOrderOnly bool

	CustomerIDs      []string
	CustomerGroupIDs []string
	RegionIDs        []string

	IsAutomatic  bool
	Priority     int
	IsCombinable bool

	CampaignName string
	Budget       *Budget

	CreatedAt time.Time
}

// Type returns the archetype of the rule's effect.
func (r *Rule) Type() Type {
	if r.Effect == nil {
		return ""
	}
	return r.Effect.Type()
}

// HasCode reports whether the rule requires an explicit coupon code.
func (r *Rule) HasCode() bool {
	return r.Code != ""
}

// NormalizeCode is the form codes are compared and indexed in: trimmed and
// upper-cased with Unicode case mapping.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// MatchesCode compares codes case-insensitively.
func (r *Rule) MatchesCode(code string) bool {
	return r.HasCode() && NormalizeCode(code) == NormalizeCode(r.Code)
}

// IsAutomaticCandidate reports whether the rule may apply without a code.
func (r *Rule) IsAutomaticCandidate() bool {
	return r.IsAutomatic && !r.HasCode()
}

// Validate rejects contradictory configuration.
func (r *Rule) Validate() error {
	fail := func(format string, args ...any) error {
		return invariantf("rule %s: "+format, append([]any{r.ID}, args...)...)
	}

	if r.MinimumOrderAmount.Valid && r.MaximumOrderAmount.Valid &&
		r.MinimumOrderAmount.Decimal.GreaterThan(r.MaximumOrderAmount.Decimal) {
		return fail("minimum order amount %s exceeds maximum %s",
			r.MinimumOrderAmount.Decimal, r.MaximumOrderAmount.Decimal)
	}
	if r.MaximumDiscountAmount.Valid && r.MaximumDiscountAmount.Decimal.IsNegative() {
		return fail("negative maximum discount amount")
	}
	if r.MinimumQuantity < 0 || r.UsageLimit < 0 || r.UsageLimitPerCustomer < 0 || r.UsageCount < 0 {
		return fail("negative quantity or usage limit")
	}
	if r.StartsAt != nil && r.EndsAt != nil && r.EndsAt.Before(*r.StartsAt) {
		return fail("ends at %s before starts at %s", r.EndsAt, r.StartsAt)
	}

	switch e := r.Effect.(type) {
	case nil:
		return fail("no effect configured")
	case Percentage:
		if !validPercent(e.Value) {
			return fail("percentage %s out of range (0, 100]", e.Value)
		}
	case FixedAmount:
		if e.Value.IsNegative() {
			return fail("negative fixed amount %s", e.Value)
		}
	case BuyXGetY:
		if e.BuyQuantity < 1 || e.GetQuantity < 1 {
			return fail("buy %d get %d: quantities must be positive", e.BuyQuantity, e.GetQuantity)
		}
		if !validPercent(e.DiscountPercentage) {
			return fail("get discount percentage %s out of range (0, 100]", e.DiscountPercentage)
		}
	}

	switch r.Target.AppliesTo {
	case AppliesToAll, "":
	case AppliesToSpecificProducts:
		if len(r.Target.ProductIDs) == 0 {
			return fail("targets specific products but lists none")
		}
	case AppliesToSpecificCategories:
		if len(r.Target.CategoryIDs) == 0 {
			return fail("targets specific categories but lists none")
		}
	default:
		return fail("unknown applies-to %q", r.Target.AppliesTo)
	}

	if b := r.Budget; b != nil {
		if b.Type != BudgetSpend && b.Type != BudgetUsage {
			return fail("unknown budget type %q", b.Type)
		}
		if b.Limit.IsNegative() || b.Used.IsNegative() {
			return fail("negative budget")
		}
	}
	return nil
}

func validPercent(v decimal.Decimal) bool {
	return v.IsPositive() && v.LessThanOrEqual(decimal.NewFromInt(100))
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, v := range a {
		if contains(b, v) {
			return true
		}
	}
	return false
}
