package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-promotions/internal/domain/discount"
)

const ruleColumns = `id, store_id, code, description,
	type, value, buy_quantity, get_quantity,
	applies_to, product_ids, category_ids,
	minimum_order_amount, maximum_order_amount, maximum_discount_amount, minimum_quantity,
	usage_limit, usage_limit_per_customer, usage_count,
	starts_at, ends_at, is_active, is_public, first_order_only,
	customer_ids, customer_group_ids, region_ids,
	is_automatic, priority, is_combinable,
	campaign_name, budget_type, budget_limit, budget_used, created_at`

const (
	listAutomaticRulesSQL = `SELECT ` + ruleColumns + `
		FROM discount_rules
		WHERE store_id = $1 AND is_automatic AND code = ''
		ORDER BY id`

	findRuleByCodeSQL = `SELECT ` + ruleColumns + `
		FROM discount_rules
		WHERE store_id = $1 AND code <> '' AND UPPER(code) = UPPER($2)`

	getRuleSQL = `SELECT ` + ruleColumns + ` FROM discount_rules WHERE id = $1`

	upsertRuleSQL = `INSERT INTO discount_rules (` + ruleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34)
		ON CONFLICT (id) DO UPDATE SET
			store_id = EXCLUDED.store_id,
			code = EXCLUDED.code,
			description = EXCLUDED.description,
			type = EXCLUDED.type,
			value = EXCLUDED.value,
			buy_quantity = EXCLUDED.buy_quantity,
			get_quantity = EXCLUDED.get_quantity,
			applies_to = EXCLUDED.applies_to,
			product_ids = EXCLUDED.product_ids,
			category_ids = EXCLUDED.category_ids,
			minimum_order_amount = EXCLUDED.minimum_order_amount,
			maximum_order_amount = EXCLUDED.maximum_order_amount,
			maximum_discount_amount = EXCLUDED.maximum_discount_amount,
			minimum_quantity = EXCLUDED.minimum_quantity,
			usage_limit = EXCLUDED.usage_limit,
			usage_limit_per_customer = EXCLUDED.usage_limit_per_customer,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			is_active = EXCLUDED.is_active,
			is_public = EXCLUDED.is_public,
			first_order_only = EXCLUDED.first_order_only,
			customer_ids = EXCLUDED.customer_ids,
			customer_group_ids = EXCLUDED.customer_group_ids,
			region_ids = EXCLUDED.region_ids,
			is_automatic = EXCLUDED.is_automatic,
			priority = EXCLUDED.priority,
			is_combinable = EXCLUDED.is_combinable,
			campaign_name = EXCLUDED.campaign_name,
			budget_type = EXCLUDED.budget_type,
			budget_limit = EXCLUDED.budget_limit`
)

var _ discount.RuleRepository = (*RuleRepository)(nil)

// RuleRepository implements discount.RuleRepository backed by PostgreSQL.
type RuleRepository struct {
	pool *pgxpool.Pool
}

// NewRuleRepository returns a RuleRepository that uses the given pool.
func NewRuleRepository(pool *pgxpool.Pool) *RuleRepository {
	return &RuleRepository{pool: pool}
}

// ListAutomaticRules returns the store's code-less automatic rules.
func (r *RuleRepository) ListAutomaticRules(ctx context.Context, storeID string) ([]discount.Rule, error) {
	rows, err := r.pool.Query(ctx, listAutomaticRulesSQL, storeID)
	if err != nil {
		return nil, errors.Wrapf(err, "list automatic rules for store %q", storeID)
	}
	rules, err := pgx.CollectRows(rows, scanRule)
	if err != nil {
		return nil, errors.Wrapf(err, "scan automatic rules for store %q", storeID)
	}
	return rules, nil
}

// FindByCode looks up a rule by its code, case-insensitively. Returns
// discount.ErrRuleNotFound when the store has no such code.
func (r *RuleRepository) FindByCode(ctx context.Context, storeID, code string) (*discount.Rule, error) {
	rows, err := r.pool.Query(ctx, findRuleByCodeSQL, storeID, strings.TrimSpace(code))
	if err != nil {
		return nil, errors.Wrapf(err, "find rule by code %q", code)
	}
	rule, err := pgx.CollectExactlyOneRow(rows, scanRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrRuleNotFound
		}
		return nil, errors.Wrapf(err, "find rule by code %q", code)
	}
	return &rule, nil
}

// Get returns a rule by id.
func (r *RuleRepository) Get(ctx context.Context, id string) (*discount.Rule, error) {
	rows, err := r.pool.Query(ctx, getRuleSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get rule %s", id)
	}
	rule, err := pgx.CollectExactlyOneRow(rows, scanRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrRuleNotFound
		}
		return nil, errors.Wrapf(err, "get rule %s", id)
	}
	return &rule, nil
}

// Upsert validates and stores a rule. Usage counters and budget consumption
// of an existing rule are left untouched.
func (r *RuleRepository) Upsert(ctx context.Context, rule discount.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, upsertRuleSQL, ruleArgs(rule)...); err != nil {
		return errors.Wrapf(err, "upsert rule %s", rule.ID)
	}
	return nil
}

// CopyRules bulk-inserts rules with COPY. Existing ids or codes abort the
// whole batch.
func (r *RuleRepository) CopyRules(ctx context.Context, rules []discount.Rule) (int64, error) {
	for i := range rules {
		if err := rules[i].Validate(); err != nil {
			return 0, err
		}
	}
	n, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"discount_rules"},
		ruleColumnNames(),
		pgx.CopyFromSlice(len(rules), func(i int) ([]any, error) {
			return ruleArgs(rules[i]), nil
		}),
	)
	if err != nil {
		return n, errors.Wrap(err, "copy rules")
	}
	return n, nil
}

func ruleColumnNames() []string {
	cols := strings.Split(ruleColumns, ",")
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	return cols
}

func ruleArgs(r discount.Rule) []any {
	var (
		value     decimal.Decimal
		buy, get  int
		appliesTo = r.Target.AppliesTo
	)
	switch e := r.Effect.(type) {
	case discount.Percentage:
		value = e.Value
	case discount.FixedAmount:
		value = e.Value
	case discount.BuyXGetY:
		value = e.DiscountPercentage
		buy, get = e.BuyQuantity, e.GetQuantity
	}
	if appliesTo == "" {
		appliesTo = discount.AppliesToAll
	}

	var (
		budgetType  *string
		budgetLimit decimal.NullDecimal
		budgetUsed  = decimal.Zero
	)
	if b := r.Budget; b != nil {
		t := string(b.Type)
		budgetType = &t
		budgetLimit = decimal.NewNullDecimal(b.Limit)
		budgetUsed = b.Used
	}
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return []any{
		r.ID, r.StoreID, r.Code, r.Description,
		string(r.Type()), value, buy, get,
		string(appliesTo), nonNil(r.Target.ProductIDs), nonNil(r.Target.CategoryIDs),
		r.MinimumOrderAmount, r.MaximumOrderAmount, r.MaximumDiscountAmount, r.MinimumQuantity,
		r.UsageLimit, r.UsageLimitPerCustomer, r.UsageCount,
		r.StartsAt, r.EndsAt, r.IsActive, r.IsPublic, r.FirstOrderOnly,
		nonNil(r.CustomerIDs), nonNil(r.CustomerGroupIDs), nonNil(r.RegionIDs),
		r.IsAutomatic, r.Priority, r.IsCombinable,
		r.CampaignName, budgetType, budgetLimit, budgetUsed, createdAt,
	}
}

func scanRule(row pgx.CollectableRow) (discount.Rule, error) {
	var (
		rule        discount.Rule
		ruleType    string
		value       decimal.Decimal
		buy, get    int32
		appliesTo   string
		minQty      int32
		usageLimit  int32
		perCustomer int32
		usageCount  int32
		priority    int32
		budgetType  *string
		budgetLimit decimal.NullDecimal
		budgetUsed  decimal.Decimal
	)
	err := row.Scan(
		&rule.ID, &rule.StoreID, &rule.Code, &rule.Description,
		&ruleType, &value, &buy, &get,
		&appliesTo, &rule.Target.ProductIDs, &rule.Target.CategoryIDs,
		&rule.MinimumOrderAmount, &rule.MaximumOrderAmount, &rule.MaximumDiscountAmount, &minQty,
		&usageLimit, &perCustomer, &usageCount,
		&rule.StartsAt, &rule.EndsAt, &rule.IsActive, &rule.IsPublic, &rule.FirstOrderOnly,
		&rule.CustomerIDs, &rule.CustomerGroupIDs, &rule.RegionIDs,
		&rule.IsAutomatic, &priority, &rule.IsCombinable,
		&rule.CampaignName, &budgetType, &budgetLimit, &budgetUsed, &rule.CreatedAt,
	)
	if err != nil {
		return rule, err
	}

	switch discount.Type(ruleType) {
	case discount.TypePercentage:
		rule.Effect = discount.Percentage{Value: value}
	case discount.TypeFixedAmount:
		rule.Effect = discount.FixedAmount{Value: value}
	case discount.TypeFreeShipping:
		rule.Effect = discount.FreeShipping{}
	case discount.TypeBuyXGetY:
		rule.Effect = discount.BuyXGetY{
			BuyQuantity:        int(buy),
			GetQuantity:        int(get),
			DiscountPercentage: value,
		}
	default:
		return rule, errors.Errorf("rule %s: unknown type %q", rule.ID, ruleType)
	}

	rule.Target.AppliesTo = discount.AppliesTo(appliesTo)
	rule.MinimumQuantity = int(minQty)
	rule.UsageLimit = int(usageLimit)
	rule.UsageLimitPerCustomer = int(perCustomer)
	rule.UsageCount = int(usageCount)
	rule.Priority = int(priority)
	if budgetType != nil && budgetLimit.Valid {
		rule.Budget = &discount.Budget{
			Type:  discount.BudgetType(*budgetType),
			Limit: budgetLimit.Decimal,
			Used:  budgetUsed,
		}
	}
	return rule, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
