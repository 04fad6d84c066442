package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-promotions/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, store_id, customer_id, status, items,
		subtotal, discount_amount, shipping_amount, free_shipping, total,
		coupon_code, applied_rule_ids, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	getOrderSQL = `SELECT id, store_id, customer_id, status, items,
		subtotal, discount_amount, shipping_amount, free_shipping, total,
		coupon_code, applied_rule_ids, created_at
		FROM orders WHERE id = ?`

	updateOrderPricingSQL = `UPDATE orders
		SET items = ?, discount_amount = ?, free_shipping = ?, total = ?, applied_rule_ids = ?,
			coupon_code = ?
		WHERE id = ?`

	setOrderStatusSQL = `UPDATE orders SET status = ? WHERE id = ?`
)

var _ order.Repository = (*Store)(nil)

// Create persists a new order.
func (s *Store) Create(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "marshal order items")
	}

	_, err = s.db.ExecContext(ctx, createOrderSQL,
		o.ID, o.StoreID, o.CustomerID, string(o.Status), string(items),
		o.Subtotal, o.DiscountAmount, o.ShippingAmount, o.FreeShipping, o.Total,
		o.CouponCode, stringList(o.AppliedRuleIDs), at(o.CreatedAt),
	)
	if err != nil {
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	return nil
}

// Get loads an order by id.
func (s *Store) Get(ctx context.Context, id string) (*order.Order, error) {
	var (
		o         order.Order
		status    string
		items     string
		ruleIDs   stringList
		createdAt timestamp
	)
	err := s.db.QueryRowContext(ctx, getOrderSQL, id).Scan(
		&o.ID, &o.StoreID, &o.CustomerID, &status, &items,
		&o.Subtotal, &o.DiscountAmount, &o.ShippingAmount, &o.FreeShipping, &o.Total,
		&o.CouponCode, &ruleIDs, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
		return nil, errors.Wrap(err, "unmarshal order items")
	}
	o.Status = order.Status(status)
	o.AppliedRuleIDs = ruleIDs
	o.CreatedAt = createdAt.time()
	return &o, nil
}

// UpdatePricing rewrites the discount-dependent fields of an order.
func (s *Store) UpdatePricing(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "marshal order items")
	}
	res, err := s.db.ExecContext(ctx, updateOrderPricingSQL,
		string(items), o.DiscountAmount, o.FreeShipping, o.Total, stringList(o.AppliedRuleIDs), o.CouponCode, o.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "update order %q pricing", o.ID)
	}
	return requireRow(res)
}

// SetStatus changes the order status.
func (s *Store) SetStatus(ctx context.Context, id string, status order.Status) error {
	res, err := s.db.ExecContext(ctx, setOrderStatusSQL, string(status), id)
	if err != nil {
		return errors.Wrapf(err, "set order %q status", id)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return order.ErrNotFound
	}
	return nil
}
