// Package ledger records discount redemptions and keeps rule usage counters
// and campaign budgets consistent under concurrent order placement.
package ledger

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-promotions/internal/domain/discount"
	"github.com/xenking/kart-promotions/internal/domain/money"
)

var (
	// ErrUsageExhausted is returned when committing would exceed a rule's
	// usage limit.
	ErrUsageExhausted = errors.New("rule usage limit exhausted")
	// ErrBudgetExhausted is returned when committing would exceed a
	// campaign budget.
	ErrBudgetExhausted = errors.New("campaign budget exhausted")
	// ErrUnknownRule is returned by a Store for a rule id it does not hold.
	ErrUnknownRule = errors.New("unknown rule")
)

// Entry is one applied rule of an order.
type Entry struct {
	RuleID string
	Amount decimal.Decimal
}

// CommitRequest lists the rules applied to a placed order.
type CommitRequest struct {
	OrderID    string
	CustomerID string
	OrderTotal decimal.Decimal
	Entries    []Entry
}

// Redemption is the marker written once per (order, rule).
type Redemption struct {
	OrderID    string
	CustomerID string
	RuleID     string
	Amount     decimal.Decimal
	OrderTotal decimal.Decimal
	CreatedAt  time.Time
}

// Counter is the mutable accounting state of one rule.
type Counter struct {
	UsageCount int
	UsageLimit int
	Budget     *discount.Budget
}

// Mutation checks and advances a counter. Stores call it while the counter
// is serialized and persist the counter only when it returns nil.
type Mutation func(c *Counter) error

// Store persists counters and redemption markers. Apply must run the
// replay check, the mutation and the marker write atomically for the rule.
// It reports replayed when the marker already exists, in which case the
// mutation is not called.
type Store interface {
	Apply(ctx context.Context, red Redemption, mutate Mutation) (replayed bool, err error)
}

// Redeem is the Mutation for one redemption of amount.
func Redeem(amount decimal.Decimal) Mutation {
	return func(c *Counter) error {
		if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
			return ErrUsageExhausted
		}
		if b := c.Budget; b != nil {
			next := b.Used
			switch b.Type {
			case discount.BudgetUsage:
				next = money.Add(b.Used, decimal.NewFromInt(1))
			case discount.BudgetSpend:
				next = money.Add(b.Used, amount)
			}
			if next.GreaterThan(b.Limit) {
				return ErrBudgetExhausted
			}
			b.Used = next
		}
		c.UsageCount++
		return nil
	}
}
