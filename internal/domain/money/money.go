// Package money holds the decimal helpers every discount calculation goes
// through. Amounts are shopspring decimals kept at two fractional digits;
// intermediate results are rounded half-up before they enter a total.
package money

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits of a currency minor unit.
const Scale = 2

var (
	// Zero is the zero amount.
	Zero    = decimal.Zero
	hundred = decimal.NewFromInt(100)
)

// Round rounds d to minor units, half away from zero (half-up for the
// non-negative amounts this package deals with).
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Add returns the rounded sum of a and b.
func Add(a, b decimal.Decimal) decimal.Decimal {
	return Round(a.Add(b))
}

// Sub returns the rounded difference a - b.
func Sub(a, b decimal.Decimal) decimal.Decimal {
	return Round(a.Sub(b))
}

// Sum adds all values, rounding after each step.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := Zero
	for _, v := range values {
		total = Add(total, v)
	}
	return total
}

// LineTotal returns unit * qty rounded to minor units.
func LineTotal(unit decimal.Decimal, qty int) decimal.Decimal {
	return Round(unit.Mul(decimal.NewFromInt(int64(qty))))
}

// Percent returns pct percent of amount, rounded.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(pct).Div(hundred))
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	return decimal.Min(a, b)
}

// Cap limits d to limit when limit is set.
func Cap(d decimal.Decimal, limit decimal.NullDecimal) decimal.Decimal {
	if limit.Valid && d.GreaterThan(limit.Decimal) {
		return limit.Decimal
	}
	return d
}

// FloorAtZero clamps negative values to zero.
func FloorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return Zero
	}
	return d
}

// Share returns amount * part / whole truncated to minor units. The quotient
// is exact before truncation, so a sum of shares never exceeds amount.
// A non-positive whole yields zero.
func Share(amount, part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return Zero
	}
	q, _ := amount.Mul(part).QuoRem(whole, Scale)
	return q
}

// Cents builds an amount from an integer count of minor units.
func Cents(c int64) decimal.Decimal {
	return decimal.New(c, -Scale)
}

// Parse reads a decimal amount and rounds it to minor units.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, errors.Wrapf(err, "parse amount %q", s)
	}
	return Round(d), nil
}

// Format renders d with exactly two fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}
