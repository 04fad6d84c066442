package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-promotions/internal/domain/auth"
	"github.com/xenking/kart-promotions/internal/domain/customer"
	"github.com/xenking/kart-promotions/internal/domain/product"
)

const (
	productColumns = `id, store_id, name, price, category, category_ids,
		image_thumbnail, image_mobile, image_tablet, image_desktop`

	listProductsSQL = `SELECT ` + productColumns + `
		FROM products WHERE ?1 = '' OR store_id = ?1 ORDER BY id`

	upsertProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			store_id = excluded.store_id,
			name = excluded.name,
			price = excluded.price,
			category = excluded.category,
			category_ids = excluded.category_ids,
			image_thumbnail = excluded.image_thumbnail,
			image_mobile = excluded.image_mobile,
			image_tablet = excluded.image_tablet,
			image_desktop = excluded.image_desktop`

	getCustomerSQL = `SELECT id, store_id, group_ids, region_id FROM customers WHERE id = ?`

	countCustomerOrdersSQL = `SELECT COUNT(*) FROM orders
		WHERE customer_id = ? AND status <> 'cancelled'`

	customerRuleUsageSQL = `SELECT r.rule_id, COUNT(*)
		FROM redemptions r
		JOIN orders o ON o.id = r.order_id
		WHERE r.customer_id = ? AND o.status <> 'cancelled'
		GROUP BY r.rule_id`

	upsertCustomerSQL = `INSERT INTO customers (id, store_id, group_ids, region_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			store_id = excluded.store_id,
			group_ids = excluded.group_ids,
			region_id = excluded.region_id`

	getAPIKeyByHashSQL = `SELECT id, key_hash, name, scopes
		FROM api_keys WHERE key_hash = ? AND active = 1`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (key_hash) DO UPDATE SET name = excluded.name, scopes = excluded.scopes, active = 1`
)

var (
	_ product.Repository  = (*Store)(nil)
	_ customer.Repository = (*Store)(nil)
	_ auth.Repository     = (*Store)(nil)
)

// List returns the store's products ordered by id. An empty store id lists
// every product.
func (s *Store) List(ctx context.Context, storeID string) ([]product.Product, error) {
	rows, err := s.db.QueryContext(ctx, listProductsSQL, storeID)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, errors.Wrap(err, "scan products")
	}
	return products, nil
}

// GetByIDs returns the products matching ids; unknown ids are skipped.
func (s *Store) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + productColumns + ` FROM products WHERE id IN (?` +
		strings.Repeat(", ?", len(ids)-1) + `)`
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "get products by ids")
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, errors.Wrap(err, "scan products by ids")
	}
	return products, nil
}

// UpsertProduct inserts or replaces a product.
func (s *Store) UpsertProduct(ctx context.Context, p product.Product) error {
	_, err := s.db.ExecContext(ctx, upsertProductSQL,
		p.ID, p.StoreID, p.Name, p.Price, p.Category, stringList(p.CategoryIDs),
		p.Image.Thumbnail, p.Image.Mobile, p.Image.Tablet, p.Image.Desktop,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert product %s", p.ID)
	}
	return nil
}

func collectProducts(rows *sql.Rows) ([]product.Product, error) {
	defer func() { _ = rows.Close() }()

	var products []product.Product
	for rows.Next() {
		var (
			p          product.Product
			categories stringList
		)
		if err := rows.Scan(
			&p.ID, &p.StoreID, &p.Name, &p.Price, &p.Category, &categories,
			&p.Image.Thumbnail, &p.Image.Mobile, &p.Image.Tablet, &p.Image.Desktop,
		); err != nil {
			return nil, err
		}
		p.CategoryIDs = categories
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetProfile returns a customer profile.
func (s *Store) GetProfile(ctx context.Context, id string) (*customer.Profile, error) {
	var (
		p      customer.Profile
		groups stringList
	)
	err := s.db.QueryRowContext(ctx, getCustomerSQL, id).Scan(&p.ID, &p.StoreID, &groups, &p.RegionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get customer %q", id)
	}
	p.GroupIDs = groups
	return &p, nil
}

// History counts the customer's non-cancelled orders and their redemptions.
func (s *Store) History(ctx context.Context, id string) (*customer.History, error) {
	h := &customer.History{RuleUsage: map[string]int{}}

	if err := s.db.QueryRowContext(ctx, countCustomerOrdersSQL, id).Scan(&h.OrderCount); err != nil {
		return nil, errors.Wrapf(err, "count orders of customer %q", id)
	}

	rows, err := s.db.QueryContext(ctx, customerRuleUsageSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "rule usage of customer %q", id)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			ruleID string
			count  int
		)
		if err := rows.Scan(&ruleID, &count); err != nil {
			return nil, errors.Wrapf(err, "scan rule usage of customer %q", id)
		}
		h.RuleUsage[ruleID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan rule usage of customer %q", id)
	}
	return h, nil
}

// UpsertCustomer inserts or replaces a customer profile.
func (s *Store) UpsertCustomer(ctx context.Context, p customer.Profile) error {
	_, err := s.db.ExecContext(ctx, upsertCustomerSQL, p.ID, p.StoreID, stringList(p.GroupIDs), p.RegionID)
	if err != nil {
		return errors.Wrapf(err, "upsert customer %s", p.ID)
	}
	return nil
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
func (s *Store) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var (
		info   auth.APIKeyInfo
		scopes stringList
	)
	err := s.db.QueryRowContext(ctx, getAPIKeyByHashSQL, hash).Scan(
		&info.ID, &info.KeyHash, &info.Name, &scopes,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, errors.Wrap(err, "find api key by hash")
	}
	info.Scopes = scopes
	return &info, nil
}

// UpsertAPIKey stores a key, reactivating it if it already exists.
func (s *Store) UpsertAPIKey(ctx context.Context, info auth.APIKeyInfo) error {
	_, err := s.db.ExecContext(ctx, upsertAPIKeySQL, info.ID, info.KeyHash, info.Name, stringList(info.Scopes))
	if err != nil {
		return errors.Wrapf(err, "upsert api key %s", info.ID)
	}
	return nil
}
