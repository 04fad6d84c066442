package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-promotions/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, store_id, customer_id, status, items,
		subtotal, discount_amount, shipping_amount, free_shipping, total,
		coupon_code, applied_rule_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	getOrderSQL = `SELECT id, store_id, customer_id, status, items,
		subtotal, discount_amount, shipping_amount, free_shipping, total,
		coupon_code, applied_rule_ids, created_at
		FROM orders WHERE id = $1`

	updateOrderPricingSQL = `UPDATE orders
		SET items = $2, discount_amount = $3, free_shipping = $4, total = $5, applied_rule_ids = $6,
			coupon_code = $7
		WHERE id = $1`

	setOrderStatusSQL = `UPDATE orders SET status = $2 WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The order items are serialized to JSON for
// storage in the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "marshal order items")
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.StoreID, o.CustomerID, string(o.Status), itemsJSON,
		o.Subtotal, o.DiscountAmount, o.ShippingAmount, o.FreeShipping, o.Total,
		o.CouponCode, nonNil(o.AppliedRuleIDs), o.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	return nil
}

// Get loads an order by id.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	return o, nil
}

// UpdatePricing rewrites the discount-dependent fields of an order.
func (r *OrderRepository) UpdatePricing(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "marshal order items")
	}
	tag, err := r.pool.Exec(ctx, updateOrderPricingSQL,
		o.ID, itemsJSON, o.DiscountAmount, o.FreeShipping, o.Total, nonNil(o.AppliedRuleIDs), o.CouponCode,
	)
	if err != nil {
		return errors.Wrapf(err, "update order %q pricing", o.ID)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// SetStatus changes the order status.
func (r *OrderRepository) SetStatus(ctx context.Context, id string, status order.Status) error {
	tag, err := r.pool.Exec(ctx, setOrderStatusSQL, id, string(status))
	if err != nil {
		return errors.Wrapf(err, "set order %q status", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o         order.Order
		status    string
		itemsJSON []byte
	)
	err := row.Scan(
		&o.ID, &o.StoreID, &o.CustomerID, &status, &itemsJSON,
		&o.Subtotal, &o.DiscountAmount, &o.ShippingAmount, &o.FreeShipping, &o.Total,
		&o.CouponCode, &o.AppliedRuleIDs, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = order.Status(status)
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, errors.Wrap(err, "unmarshal order items")
	}
	return &o, nil
}
