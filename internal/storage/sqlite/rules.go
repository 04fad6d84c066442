package sqlite

import (
	"context"
	"database/sql"

	"github.com/go-faster/errors"
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
		WHERE store_id = ? AND is_automatic = 1 AND code = ''
		ORDER BY id`

	findRuleByCodeSQL = `SELECT ` + ruleColumns + `
		FROM discount_rules
		WHERE store_id = ? AND code_key <> '' AND code_key = ?`

	getRuleSQL = `SELECT ` + ruleColumns + ` FROM discount_rules WHERE id = ?`

	upsertRuleSQL = `INSERT INTO discount_rules (` + ruleColumns + `, code_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			store_id = excluded.store_id,
			code = excluded.code,
			code_key = excluded.code_key,
			description = excluded.description,
			type = excluded.type,
			value = excluded.value,
			buy_quantity = excluded.buy_quantity,
			get_quantity = excluded.get_quantity,
			applies_to = excluded.applies_to,
			product_ids = excluded.product_ids,
			category_ids = excluded.category_ids,
			minimum_order_amount = excluded.minimum_order_amount,
			maximum_order_amount = excluded.maximum_order_amount,
			maximum_discount_amount = excluded.maximum_discount_amount,
			minimum_quantity = excluded.minimum_quantity,
			usage_limit = excluded.usage_limit,
			usage_limit_per_customer = excluded.usage_limit_per_customer,
			starts_at = excluded.starts_at,
			ends_at = excluded.ends_at,
			is_active = excluded.is_active,
			is_public = excluded.is_public,
			first_order_only = excluded.first_order_only,
			customer_ids = excluded.customer_ids,
			customer_group_ids = excluded.customer_group_ids,
			region_ids = excluded.region_ids,
			is_automatic = excluded.is_automatic,
			priority = excluded.priority,
			is_combinable = excluded.is_combinable,
			campaign_name = excluded.campaign_name,
			budget_type = excluded.budget_type,
			budget_limit = excluded.budget_limit`
)

var _ discount.RuleRepository = (*Store)(nil)

// ListAutomaticRules returns the store's code-less automatic rules.
func (s *Store) ListAutomaticRules(ctx context.Context, storeID string) ([]discount.Rule, error) {
	rows, err := s.db.QueryContext(ctx, listAutomaticRulesSQL, storeID)
	if err != nil {
		return nil, errors.Wrapf(err, "list automatic rules for store %q", storeID)
	}
	defer func() { _ = rows.Close() }()

	var rules []discount.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, errors.Wrapf(err, "scan automatic rules for store %q", storeID)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan automatic rules for store %q", storeID)
	}
	return rules, nil
}

// FindByCode looks up a rule by its code, case-insensitively. Returns
// discount.ErrRuleNotFound when the store has no such code.
func (s *Store) FindByCode(ctx context.Context, storeID, code string) (*discount.Rule, error) {
	rule, err := scanRule(s.db.QueryRowContext(ctx, findRuleByCodeSQL, storeID, discount.NormalizeCode(code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, discount.ErrRuleNotFound
		}
		return nil, errors.Wrapf(err, "find rule by code %q", code)
	}
	return &rule, nil
}

// Rule returns a rule by id.
func (s *Store) Rule(ctx context.Context, id string) (*discount.Rule, error) {
	rule, err := scanRule(s.db.QueryRowContext(ctx, getRuleSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, discount.ErrRuleNotFound
		}
		return nil, errors.Wrapf(err, "get rule %s", id)
	}
	return &rule, nil
}

// UpsertRule validates and stores a rule. Usage counters and budget
// consumption of an existing rule are left untouched.
func (s *Store) UpsertRule(ctx context.Context, rule discount.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, upsertRuleSQL, ruleArgs(rule)...); err != nil {
		return errors.Wrapf(err, "upsert rule %s", rule.ID)
	}
	return nil
}

func ruleArgs(r discount.Rule) []any {
	var (
		value     = decimal.Zero
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
		budgetType  sql.NullString
		budgetLimit decimal.NullDecimal
		budgetUsed  = decimal.Zero
	)
	if b := r.Budget; b != nil {
		budgetType = sql.NullString{String: string(b.Type), Valid: true}
		budgetLimit = decimal.NewNullDecimal(b.Limit)
		budgetUsed = b.Used
	}

	return []any{
		r.ID, r.StoreID, r.Code, r.Description,
		string(r.Type()), value, buy, get,
		string(appliesTo), stringList(r.Target.ProductIDs), stringList(r.Target.CategoryIDs),
		r.MinimumOrderAmount, r.MaximumOrderAmount, r.MaximumDiscountAmount, r.MinimumQuantity,
		r.UsageLimit, r.UsageLimitPerCustomer, r.UsageCount,
		timestamp{t: r.StartsAt}, timestamp{t: r.EndsAt}, r.IsActive, r.IsPublic, r.FirstOrderOnly,
		stringList(r.CustomerIDs), stringList(r.CustomerGroupIDs), stringList(r.RegionIDs),
		r.IsAutomatic, r.Priority, r.IsCombinable,
		r.CampaignName, budgetType, budgetLimit, budgetUsed, at(r.CreatedAt),
		discount.NormalizeCode(r.Code),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (discount.Rule, error) {
	var (
		rule             discount.Rule
		ruleType         string
		value            decimal.Decimal
		buy, get         int
		appliesTo        string
		productIDs       stringList
		categoryIDs      stringList
		customerIDs      stringList
		groupIDs         stringList
		regionIDs        stringList
		startsAt, endsAt timestamp
		createdAt        timestamp
		budgetType       sql.NullString
		budgetLimit      decimal.NullDecimal
		budgetUsed       decimal.Decimal
	)
	err := row.Scan(
		&rule.ID, &rule.StoreID, &rule.Code, &rule.Description,
		&ruleType, &value, &buy, &get,
		&appliesTo, &productIDs, &categoryIDs,
		&rule.MinimumOrderAmount, &rule.MaximumOrderAmount, &rule.MaximumDiscountAmount, &rule.MinimumQuantity,
		&rule.UsageLimit, &rule.UsageLimitPerCustomer, &rule.UsageCount,
		&startsAt, &endsAt, &rule.IsActive, &rule.IsPublic, &rule.FirstOrderOnly,
		&customerIDs, &groupIDs, &regionIDs,
		&rule.IsAutomatic, &rule.Priority, &rule.IsCombinable,
		&rule.CampaignName, &budgetType, &budgetLimit, &budgetUsed, &createdAt,
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
			BuyQuantity:        buy,
			GetQuantity:        get,
			DiscountPercentage: value,
		}
	default:
		return rule, errors.Errorf("rule %s: unknown type %q", rule.ID, ruleType)
	}

	rule.Target = discount.Target{
		AppliesTo:   discount.AppliesTo(appliesTo),
		ProductIDs:  productIDs,
		CategoryIDs: categoryIDs,
	}
	rule.CustomerIDs = customerIDs
	rule.CustomerGroupIDs = groupIDs
	rule.RegionIDs = regionIDs
	rule.StartsAt = startsAt.t
	rule.EndsAt = endsAt.t
	rule.CreatedAt = createdAt.time()
	if budgetType.Valid && budgetLimit.Valid {
		rule.Budget = &discount.Budget{
			Type:  discount.BudgetType(budgetType.String),
			Limit: budgetLimit.Decimal,
			Used:  budgetUsed,
		}
	}
	return rule, nil
}
