package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-promotions/internal/domain/customer"
)

const (
	getCustomerSQL = `SELECT id, store_id, group_ids, region_id FROM customers WHERE id = $1`

	countCustomerOrdersSQL = `SELECT COUNT(*) FROM orders
		WHERE customer_id = $1 AND status <> 'cancelled'`

	customerRuleUsageSQL = `SELECT r.rule_id, COUNT(*)
		FROM redemptions r
		JOIN orders o ON o.id = r.order_id
		WHERE r.customer_id = $1 AND o.status <> 'cancelled'
		GROUP BY r.rule_id`

	upsertCustomerSQL = `INSERT INTO customers (id, store_id, group_ids, region_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			store_id = EXCLUDED.store_id,
			group_ids = EXCLUDED.group_ids,
			region_id = EXCLUDED.region_id`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// GetProfile returns a customer profile.
func (r *CustomerRepository) GetProfile(ctx context.Context, id string) (*customer.Profile, error) {
	var p customer.Profile
	err := r.pool.QueryRow(ctx, getCustomerSQL, id).Scan(&p.ID, &p.StoreID, &p.GroupIDs, &p.RegionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get customer %q", id)
	}
	return &p, nil
}

// History counts the customer's non-cancelled orders and their redemptions.
func (r *CustomerRepository) History(ctx context.Context, id string) (*customer.History, error) {
	h := &customer.History{RuleUsage: map[string]int{}}

	if err := r.pool.QueryRow(ctx, countCustomerOrdersSQL, id).Scan(&h.OrderCount); err != nil {
		return nil, errors.Wrapf(err, "count orders of customer %q", id)
	}

	rows, err := r.pool.Query(ctx, customerRuleUsageSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "rule usage of customer %q", id)
	}
	var (
		ruleID string
		count  int
	)
	_, err = pgx.ForEachRow(rows, []any{&ruleID, &count}, func() error {
		h.RuleUsage[ruleID] = count
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan rule usage of customer %q", id)
	}
	return h, nil
}

// Upsert inserts or replaces a customer profile.
func (r *CustomerRepository) Upsert(ctx context.Context, p customer.Profile) error {
	_, err := r.pool.Exec(ctx, upsertCustomerSQL, p.ID, p.StoreID, nonNil(p.GroupIDs), p.RegionID)
	if err != nil {
		return errors.Wrapf(err, "upsert customer %s", p.ID)
	}
	return nil
}
