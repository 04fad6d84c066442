package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-promotions/internal/domain/discount"
	"github.com/xenking/kart-promotions/internal/domain/ledger"
)

const (
	readRuleCounterSQL = `SELECT usage_count, usage_limit, budget_type, budget_limit, budget_used
		FROM discount_rules WHERE id = ?`

	redemptionExistsSQL = `SELECT EXISTS (
		SELECT 1 FROM redemptions WHERE order_id = ? AND rule_id = ?)`

	updateRuleCounterSQL = `UPDATE discount_rules
		SET usage_count = ?, budget_used = ?
		WHERE id = ?`

	insertRedemptionSQL = `INSERT INTO redemptions
		(order_id, rule_id, customer_id, amount, order_total, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
)

var _ ledger.Store = (*Store)(nil)

// Apply skips already recorded (order, rule) pairs and otherwise writes the
// mutated counter and the redemption marker in one transaction.
func (s *Store) Apply(ctx context.Context, red ledger.Redemption, mutate ledger.Mutation) (replayed bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "begin")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var (
		counter     ledger.Counter
		budgetType  sql.NullString
		budgetLimit decimal.NullDecimal
		budgetUsed  decimal.Decimal
	)
	err = tx.QueryRowContext(ctx, readRuleCounterSQL, red.RuleID).Scan(
		&counter.UsageCount, &counter.UsageLimit, &budgetType, &budgetLimit, &budgetUsed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, errors.Wrapf(ledger.ErrUnknownRule, "rule %s", red.RuleID)
		}
		return false, errors.Wrap(err, "read rule counter")
	}

	if err = tx.QueryRowContext(ctx, redemptionExistsSQL, red.OrderID, red.RuleID).Scan(&replayed); err != nil {
		return false, errors.Wrap(err, "check redemption")
	}
	if replayed {
		return true, tx.Commit()
	}

	if budgetType.Valid && budgetLimit.Valid {
		counter.Budget = &discount.Budget{
			Type:  discount.BudgetType(budgetType.String),
			Limit: budgetLimit.Decimal,
			Used:  budgetUsed,
		}
	}
	if err = mutate(&counter); err != nil {
		return false, err
	}

	used := budgetUsed
	if counter.Budget != nil {
		used = counter.Budget.Used
	}
	if _, err = tx.ExecContext(ctx, updateRuleCounterSQL, counter.UsageCount, used, red.RuleID); err != nil {
		return false, errors.Wrap(err, "update rule counter")
	}
	if _, err = tx.ExecContext(ctx, insertRedemptionSQL,
		red.OrderID, red.RuleID, red.CustomerID, red.Amount, red.OrderTotal, at(time.Now()),
	); err != nil {
		return false, errors.Wrap(err, "insert redemption")
	}
	if err = tx.Commit(); err != nil {
		return false, errors.Wrap(err, "commit")
	}
	return false, nil
}
