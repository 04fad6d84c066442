package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-promotions/internal/domain/discount"
	"github.com/xenking/kart-promotions/internal/domain/ledger"
)

const (
	lockRuleCounterSQL = `SELECT usage_count, usage_limit, budget_type, budget_limit, budget_used
		FROM discount_rules WHERE id = $1 FOR UPDATE`

	redemptionExistsSQL = `SELECT EXISTS (
		SELECT 1 FROM redemptions WHERE order_id = $1 AND rule_id = $2)`

	updateRuleCounterSQL = `UPDATE discount_rules
		SET usage_count = $2, budget_used = $3
		WHERE id = $1`

	insertRedemptionSQL = `INSERT INTO redemptions (order_id, rule_id, customer_id, amount, order_total)
		VALUES ($1, $2, $3, $4, $5)`
)

var _ ledger.Store = (*LedgerStore)(nil)

// LedgerStore implements ledger.Store with a row lock on the rule.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore returns a LedgerStore that uses the given pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Apply locks the rule row, skips already recorded (order, rule) pairs and
// otherwise writes the mutated counter and the redemption marker in one
// transaction.
func (s *LedgerStore) Apply(ctx context.Context, red ledger.Redemption, mutate ledger.Mutation) (bool, error) {
	var replayed bool
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var (
			counter     ledger.Counter
			usageCount  int32
			usageLimit  int32
			budgetType  *string
			budgetLimit decimal.NullDecimal
			budgetUsed  decimal.Decimal
		)
		err := tx.QueryRow(ctx, lockRuleCounterSQL, red.RuleID).Scan(
			&usageCount, &usageLimit, &budgetType, &budgetLimit, &budgetUsed,
		)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errors.Wrapf(ledger.ErrUnknownRule, "rule %s", red.RuleID)
			}
			return errors.Wrap(err, "lock rule counter")
		}

		if err := tx.QueryRow(ctx, redemptionExistsSQL, red.OrderID, red.RuleID).Scan(&replayed); err != nil {
			return errors.Wrap(err, "check redemption")
		}
		if replayed {
			return nil
		}

		counter.UsageCount = int(usageCount)
		counter.UsageLimit = int(usageLimit)
		if budgetType != nil && budgetLimit.Valid {
			counter.Budget = &discount.Budget{
				Type:  discount.BudgetType(*budgetType),
				Limit: budgetLimit.Decimal,
				Used:  budgetUsed,
			}
		}
		if err := mutate(&counter); err != nil {
			return err
		}

		used := budgetUsed
		if counter.Budget != nil {
			used = counter.Budget.Used
		}
		if _, err := tx.Exec(ctx, updateRuleCounterSQL, red.RuleID, counter.UsageCount, used); err != nil {
			return errors.Wrap(err, "update rule counter")
		}
		if _, err := tx.Exec(ctx, insertRedemptionSQL,
			red.OrderID, red.RuleID, red.CustomerID, red.Amount, red.OrderTotal,
		); err != nil {
			return errors.Wrap(err, "insert redemption")
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return replayed, nil
}
