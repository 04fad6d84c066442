package discount

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckEligibility(t *testing.T) {
	past := testNow.Add(-24 * time.Hour)
	future := testNow.Add(24 * time.Hour)

	tests := []struct {
		name string
		rule func() Rule
		ctx  func() *Context
		want Reason
	}{
		{
			name: "eligible",
			rule: func() Rule { return automaticRule("r1", Percentage{Value: d("10")}) },
			ctx:  func() *Context { return cart(item("i1", "100.00", 1)) },
			want: ReasonNone,
		},
		{
			name: "inactive",
			rule: func() Rule {
				r := automaticRule("r1", Percentage{Value: d("10")})
				r.IsActive = false
				return r
			},
			ctx:  func() *Context { return cart(item("i1", "100.00", 1)) },
			want: ReasonInactive,
		},
		{
			name: "not started",
			rule: func() Rule {
				r := automaticRule("r1", Percentage{Value: d("10")})
				r.StartsAt = &future
				return r
			},
			ctx:  func() *Context { return cart(item("i1", "100.00", 1)) },
			want: ReasonNotStarted,
		},
		{
			name: "expired",
			rule: func() Rule {
				r := automaticRule("r1", Percentage{Value: d("10")})
				r.EndsAt = &past
				return r
			},
			ctx:  func() *Context { return cart(item("i1", "100.00", 1)) },
			want: ReasonExpired,
		},
		{
			name: "window bounds are inclusive",
			rule: func() Rule {
				r := automaticRule("r1", Percentage{Value: d("10")})
				r.StartsAt, r.EndsAt = &testNow, &testNow
				return r
			},
			ctx:  func() *Context { return cart(item("i1", "100.00", 1)) },
			want: ReasonNone,
		},
		{
			name: "usage count equals limit",
			rule: func() Rule {
				r := automaticRule("r1", Percentage{Value: d("10")})
				r.UsageLimit, r.UsageCount = 5, 5
				return r
			},
			ctx:  func() *Context { return cart(item("i1", "100.00", 1)) },
			want: ReasonUsageLimitReached,
		},
		{
			name: "customer usage limit reached",
			rule: func() Rule {
				r := automaticRule("r1", Percentage{Value: d("10")})
				r.UsageLimitPerCustomer = 1
				return r
			},
			ctx: func() *Context {
				c := cart(item("i1", "100.00", 1))
				c.CustomerID = "cust-1"
				c.CustomerUsage = map[string]int{"r1": 1}
				return c
			},
			want: ReasonCustomerUsageLimitReached,
		},
		{
			name: "per customer limit ignored for guests",
			rule: func() Rule {
				r := automaticRule("r1", Percentage{Value: d("10")})
				r.UsageLimitPerCustomer = 1
				return r
			},
			ctx:  func() *Context { return cart(item("i1", "100.00", 1)) },
			want: ReasonNone,
		},
		{
			name: "usage budget exhausted",
			rule: func() Rule {
				r := automaticRule("r1", Percentage{Value: d("10")})
				r.Budget = &Budget{Type: BudgetUsage, Limit: d("3"), Used: d("3")}
				return r
			},
			ctx:  func() *Context { return cart(item("i1", "100.00", 1)) },
			want: ReasonBudgetExhausted,
		},
		{
			name: "first order only",
			rule: func() Rule {
				r := automaticRule("r1", Percentage{Value: d("10")})
				r.FirstOrderOnly = true
				return r
			},
			ctx:  func() *Context { return cart(item("i1", "100.00", 1)) },
			want: ReasonFirstOrderOnly,
		},
		{
			name: "below minimum order amount",
			rule: func() Rule {
				r := automaticRule("r1", Percentage{Value: d("10")})
				r.MinimumOrderAmount = nd("100.01")
				return r
			},
			ctx:  func() *Context { return cart(item("i1", "100.00", 1)) },
			want: ReasonMinimumOrderAmount,
		},
		{
			name: "above maximum order amount",
			rule: func() Rule {
				r := automaticRule("r1", Percentage{Value: d("10")})
				r.MaximumOrderAmount = nd("99.99")
				return r
			},
			ctx:  func() *Context { return cart(item("i1", "100.00", 1)) },
			want: ReasonMaximumOrderAmount,
		},
		{
			name: "minimum quantity counts targeted items only",
			rule: func() Rule {
				r := automaticRule("r1", Percentage{Value: d("10")})
				r.Target = Target{AppliesTo: AppliesToSpecificCategories, CategoryIDs: []string{"shoes"}}
				r.MinimumQuantity = 3
				return r
			},
			ctx: func() *Context {
				return cart(item("i1", "10.00", 2, "shoes"), item("i2", "10.00", 5, "hats"))
			},
			want: ReasonMinimumQuantity,
		},
		{
			name: "no targeted items",
			rule: func() Rule {
				r := automaticRule("r1", Percentage{Value: d("10")})
				r.Target = Target{AppliesTo: AppliesToSpecificProducts, ProductIDs: []string{"prod-x"}}
				return r
			},
			ctx:  func() *Context { return cart(item("i1", "10.00", 1)) },
			want: ReasonNoTargetedItems,
		},
		{
			name: "customer allow list without customer",
			rule: func() Rule {
				r := automaticRule("r1", Percentage{Value: d("10")})
				r.CustomerIDs = []string{"cust-1"}
				return r
			},
			ctx:  func() *Context { return cart(item("i1", "10.00", 1)) },
			want: ReasonCustomerNotEligible,
		},
		{
			name: "customer group mismatch",
			rule: func() Rule {
				r := automaticRule("r1", Percentage{Value: d("10")})
				r.CustomerGroupIDs = []string{"vip"}
				return r
			},
			ctx: func() *Context {
				c := cart(item("i1", "10.00", 1))
				c.CustomerID = "cust-1"
				c.CustomerGroupIDs = []string{"staff"}
				return c
			},
			want: ReasonCustomerGroupNotEligible,
		},
		{
			name: "region mismatch",
			rule: func() Rule {
				r := automaticRule("r1", Percentage{Value: d("10")})
				r.RegionIDs = []string{"eu"}
				return r
			},
			ctx: func() *Context {
				c := cart(item("i1", "10.00", 1))
				c.RegionID = "us"
				return c
			},
			want: ReasonRegionNotEligible,
		},
		{
			name: "coded rule without code",
			rule: func() Rule { return couponRule("r1", "SAVE", Percentage{Value: d("10")}) },
			ctx:  func() *Context { return cart(item("i1", "10.00", 1)) },
			want: ReasonCodeRequired,
		},
		{
			name: "coded rule with other code",
			rule: func() Rule { return couponRule("r1", "SAVE", Percentage{Value: d("10")}) },
			ctx: func() *Context {
				c := cart(item("i1", "10.00", 1))
				c.CouponCode = "OTHER"
				return c
			},
			want: ReasonCodeMismatch,
		},
		{
			name: "checks short circuit in order",
			rule: func() Rule {
				r := automaticRule("r1", Percentage{Value: d("10")})
				r.IsActive = false
				r.EndsAt = &past
				r.MinimumOrderAmount = nd("1000")
				return r
			},
			ctx:  func() *Context { return cart(item("i1", "10.00", 1)) },
			want: ReasonInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.rule()
			ok, reason := CheckEligibility(&r, tt.ctx(), testNow)
			assert.Equal(t, tt.want, reason)
			assert.Equal(t, tt.want == ReasonNone, ok)
		})
	}
}

func TestReason_Message(t *testing.T) {
	assert.Equal(t, "has expired", ReasonExpired.Message())
	assert.Equal(t, "mystery", Reason("mystery").Message())
}
