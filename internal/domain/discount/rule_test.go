package discount

import (
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRule_Validate(t *testing.T) {
	start := testNow
	end := testNow.Add(-time.Hour)

	tests := []struct {
		name    string
		mutate  func(r *Rule)
		wantErr bool
	}{
		{name: "valid percentage", mutate: func(*Rule) {}},
		{
			name:    "min above max order amount",
			mutate:  func(r *Rule) { r.MinimumOrderAmount, r.MaximumOrderAmount = nd("50"), nd("10") },
			wantErr: true,
		},
		{
			name:    "percentage above 100",
			mutate:  func(r *Rule) { r.Effect = Percentage{Value: d("100.01")} },
			wantErr: true,
		},
		{
			name:    "zero percentage",
			mutate:  func(r *Rule) { r.Effect = Percentage{Value: d("0")} },
			wantErr: true,
		},
		{
			name:   "exactly 100 percent",
			mutate: func(r *Rule) { r.Effect = Percentage{Value: d("100")} },
		},
		{
			name:    "negative fixed amount",
			mutate:  func(r *Rule) { r.Effect = FixedAmount{Value: d("-1")} },
			wantErr: true,
		},
		{
			name: "buy x get y without get quantity",
			mutate: func(r *Rule) {
				r.Effect = BuyXGetY{BuyQuantity: 2, GetQuantity: 0, DiscountPercentage: d("100")}
			},
			wantErr: true,
		},
		{
			name: "buy x get y with bad percentage",
			mutate: func(r *Rule) {
				r.Effect = BuyXGetY{BuyQuantity: 2, GetQuantity: 1, DiscountPercentage: d("150")}
			},
			wantErr: true,
		},
		{
			name:    "nil effect",
			mutate:  func(r *Rule) { r.Effect = nil },
			wantErr: true,
		},
		{
			name:    "specific products without ids",
			mutate:  func(r *Rule) { r.Target = Target{AppliesTo: AppliesToSpecificProducts} },
			wantErr: true,
		},
		{
			name:    "unknown applies to",
			mutate:  func(r *Rule) { r.Target = Target{AppliesTo: "brands"} },
			wantErr: true,
		},
		{
			name:    "ends before start",
			mutate:  func(r *Rule) { r.StartsAt, r.EndsAt = &start, &end },
			wantErr: true,
		},
		{
			name:    "negative usage limit",
			mutate:  func(r *Rule) { r.UsageLimit = -1 },
			wantErr: true,
		},
		{
			name:    "unknown budget type",
			mutate:  func(r *Rule) { r.Budget = &Budget{Type: "points", Limit: d("10")} },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := automaticRule("r1", Percentage{Value: d("10")})
			tt.mutate(&r)

			err := r.Validate()
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvariantViolation))

			var invErr *InvariantError
			require.ErrorAs(t, err, &invErr)
			assert.Contains(t, invErr.Detail, "rule r1")
		})
	}
}

func TestRule_MatchesCode(t *testing.T) {
	r := couponRule("r1", "SAVE10", Percentage{Value: d("10")})

	assert.True(t, r.MatchesCode("save10"))
	assert.True(t, r.MatchesCode(" SAVE10 "))
	assert.False(t, r.MatchesCode("SAVE20"))

	accented := couponRule("r3", "ÉTÉ15", Percentage{Value: d("15")})
	assert.True(t, accented.MatchesCode("été15"))
	assert.Equal(t, "ÉTÉ15", NormalizeCode(" été15 "))

	auto := automaticRule("r2", Percentage{Value: d("10")})
	assert.False(t, auto.MatchesCode(""))
	assert.True(t, auto.IsAutomaticCandidate())
	assert.False(t, r.IsAutomaticCandidate())
}

func TestTarget_Matches(t *testing.T) {
	shoe := item("i1", "10.00", 1, "shoes")
	hat := item("i2", "5.00", 1, "hats", "sale")

	byProduct := Target{AppliesTo: AppliesToSpecificProducts, ProductIDs: []string{"prod-i1"}}
	assert.True(t, byProduct.Matches(shoe))
	assert.False(t, byProduct.Matches(hat))

	byCategory := Target{AppliesTo: AppliesToSpecificCategories, CategoryIDs: []string{"sale"}}
	assert.False(t, byCategory.Matches(shoe))
	assert.True(t, byCategory.Matches(hat))

	assert.True(t, Target{AppliesTo: AppliesToAll}.Matches(shoe))
}
