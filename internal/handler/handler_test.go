package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/kart-promotions/internal/domain/auth"
	"github.com/xenking/kart-promotions/internal/domain/customer"
	"github.com/xenking/kart-promotions/internal/domain/discount"
	"github.com/xenking/kart-promotions/internal/domain/ledger"
	"github.com/xenking/kart-promotions/internal/domain/order"
	"github.com/xenking/kart-promotions/internal/domain/product"
	"github.com/xenking/kart-promotions/internal/storage/memory"
	"github.com/xenking/kart-promotions/pkg/httpmiddleware"
)

const (
	testPepper  = "test-pepper"
	fullKey     = "full-access-key"
	readOnlyKey = "read-only-key"
)

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type resultBody struct {
	IsValid        bool               `json:"isValid"`
	Errors         []string           `json:"errors"`
	DiscountAmount float64            `json:"discountAmount"`
	FreeShipping   bool               `json:"freeShipping"`
	ItemDiscounts  map[string]float64 `json:"itemDiscounts"`
	AppliedRuleIDs []string           `json:"appliedRuleIds"`
	Informational  *resultBody        `json:"informational"`
}

type itemBody struct {
	ID        string  `json:"id"`
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Total     float64 `json:"total"`
	Discount  float64 `json:"discount"`
	Refunded  int     `json:"refunded"`
}

type orderBody struct {
	ID             string      `json:"id"`
	Status         string      `json:"status"`
	Items          []itemBody  `json:"items"`
	Subtotal       float64     `json:"subtotal"`
	DiscountAmount float64     `json:"discountAmount"`
	Total          float64     `json:"total"`
	AppliedRuleIDs []string    `json:"appliedRuleIds"`
	Discounts      *resultBody `json:"discounts"`
}

type productBody struct {
	ID    string  `json:"id"`
	Price float64 `json:"price"`
	Image struct {
		Thumbnail string `json:"thumbnail"`
	} `json:"image"`
}

type mockProductRepo struct {
	err error
}

func (m *mockProductRepo) List(context.Context, string) ([]product.Product, error) {
	return nil, m.err
}

func (m *mockProductRepo) GetByIDs(context.Context, []string) ([]product.Product, error) {
	return nil, m.err
}

type fixture struct {
	store *memory.Store
	mux   *http.ServeMux
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	store.PutProduct(product.Product{
		ID: "p1", StoreID: "store-1", Name: "Lemonade", Price: decimal.NewFromInt(10),
		Category: "drinks", CategoryIDs: []string{"drinks"},
		Image: product.Image{Thumbnail: "/lemonade.jpg"},
	})
	store.PutProduct(product.Product{
		ID: "p2", StoreID: "store-1", Name: "Waffle", Price: decimal.NewFromInt(20),
		Category: "food", CategoryIDs: []string{"food"},
	})

	rules := []discount.Rule{
		{
			ID: "auto10", StoreID: "store-1", Description: "10% off everything",
			Effect: discount.Percentage{Value: decimal.NewFromInt(10)},
			Target: discount.Target{AppliesTo: discount.AppliesToAll},
			IsActive: true, IsAutomatic: true, IsCombinable: true, IsPublic: true,
			CreatedAt: created,
		},
		{
			ID: "save5", StoreID: "store-1", Code: "SAVE5",
			Effect: discount.FixedAmount{Value: decimal.NewFromInt(5)},
			Target: discount.Target{AppliesTo: discount.AppliesToAll},
			IsActive: true, IsCombinable: true,
			CreatedAt: created.Add(time.Hour),
		},
		{
			ID: "once", StoreID: "store-1", Code: "ONCE",
			Effect: discount.FixedAmount{Value: decimal.NewFromInt(1)},
			Target: discount.Target{AppliesTo: discount.AppliesToAll},
			IsActive: true, IsCombinable: true, UsageLimit: 1,
			CreatedAt: created.Add(time.Hour),
		},
	}
	for _, r := range rules {
		require.NoError(t, store.PutRule(r))
	}

	store.PutAPIKey(auth.APIKeyInfo{ID: "k-full", KeyHash: auth.HashKey(fullKey, []byte(testPepper))})
	store.PutAPIKey(auth.APIKeyInfo{
		ID: "k-ro", KeyHash: auth.HashKey(readOnlyKey, []byte(testPepper)),
		Scopes: []string{ScopeOrdersRead},
	})

	return &fixture{store: store, mux: newMux(t, store, store)}
}

func newMux(t *testing.T, store *memory.Store, products product.Repository) *http.ServeMux {
	t.Helper()
	led, err := ledger.NewService(store, ledger.Options{
		MeterProvider:  metricnoop.NewMeterProvider(),
		TracerProvider: tracenoop.NewTracerProvider(),
	})
	require.NoError(t, err)

	discounts := discount.NewService(store, discount.NewEngine(discount.Policy{StackingEnabled: true}))
	orders := order.NewService(products, customer.NewResolver(store), discounts, led, store)
	h := NewHandler(Config{ImageBaseURL: "https://cdn.example"}, products, discounts, orders,
		NewSecurityHandler(store, []byte(testPepper)))

	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func (f *fixture) do(t *testing.T, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	if key != "" {
		req.Header.Set(httpmiddleware.APIKeyHeader, key)
	}
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func cartBody(coupon string) map[string]any {
	return map[string]any{
		"storeId":    "store-1",
		"customerId": "cust-1",
		"couponCode": coupon,
		"items": []map[string]any{
			{"productId": "p1", "quantity": 2},
			{"productId": "p2", "quantity": 1},
		},
	}
}

func TestListProducts(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/products?storeId=store-1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	products := decode[[]productBody](t, w)
	require.Len(t, products, 2)
	assert.Equal(t, "p1", products[0].ID)
	assert.Equal(t, 10.0, products[0].Price)
	assert.Equal(t, "https://cdn.example/lemonade.jpg", products[0].Image.Thumbnail)
}

func TestListProducts_RepositoryError(t *testing.T) {
	f := &fixture{mux: newMux(t, memory.New(), &mockProductRepo{err: errors.New("db down")})}

	w := f.do(t, http.MethodGet, "/api/products", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode[errorBody](t, w)
	assert.Equal(t, "internal server error", body.Message)
}

func TestListPublicRules(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/rules/public?storeId=store-1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rules := decode[[]map[string]any](t, w)
	require.Len(t, rules, 1)
	assert.Equal(t, "auto10", rules[0]["id"])
	assert.Equal(t, "percentage", rules[0]["type"])

	w = f.do(t, http.MethodGet, "/api/rules/public", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		key  string
		want int
	}{
		{name: "missing key", key: "", want: http.StatusUnauthorized},
		{name: "unknown key", key: "nope", want: http.StatusUnauthorized},
		{name: "missing scope", key: readOnlyKey, want: http.StatusForbidden},
		{name: "authorized", key: fullKey, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/discounts/evaluate", tt.key, cartBody(""))
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			if tt.want != http.StatusOK {
				assert.Equal(t, tt.want, decode[errorBody](t, w).Code)
			}
		})
	}
}

func TestEvaluateDiscounts(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/discounts/evaluate", fullKey, cartBody("save5"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode[struct {
		Subtotal  float64    `json:"subtotal"`
		Total     float64    `json:"total"`
		Discounts resultBody `json:"discounts"`
	}](t, w)
	assert.Equal(t, 40.0, body.Subtotal)
	assert.Equal(t, 31.0, body.Total)
	assert.True(t, body.Discounts.IsValid)
	assert.Equal(t, 9.0, body.Discounts.DiscountAmount)
	assert.Equal(t, []string{"auto10", "save5"}, body.Discounts.AppliedRuleIDs)
	assert.InDelta(t, 9.0, body.Discounts.ItemDiscounts["1"]+body.Discounts.ItemDiscounts["2"], 0.001)

	// Nothing is committed by a preview.
	rule, ok := f.store.Rule("save5")
	require.True(t, ok)
	assert.Zero(t, rule.UsageCount)
}

func TestEvaluateDiscounts_UnknownCoupon(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/discounts/evaluate", fullKey, cartBody("BOGUS"))
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[struct {
		Total     float64    `json:"total"`
		Discounts resultBody `json:"discounts"`
	}](t, w)
	assert.False(t, body.Discounts.IsValid)
	assert.Equal(t, []string{`coupon code "BOGUS" is not valid`}, body.Discounts.Errors)
	require.NotNil(t, body.Discounts.Informational)
	assert.Equal(t, 4.0, body.Discounts.Informational.DiscountAmount)
	assert.Equal(t, 36.0, body.Total)
}

func TestPlaceOrder(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/orders", fullKey, cartBody("SAVE5"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	o := decode[orderBody](t, w)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, "placed", o.Status)
	assert.Equal(t, 40.0, o.Subtotal)
	assert.Equal(t, 9.0, o.DiscountAmount)
	assert.Equal(t, 31.0, o.Total)
	assert.Equal(t, []string{"auto10", "save5"}, o.AppliedRuleIDs)
	require.Len(t, o.Items, 2)

	rule, _ := f.store.Rule("save5")
	assert.Equal(t, 1, rule.UsageCount)

	w = f.do(t, http.MethodGet, "/api/orders/"+o.ID, readOnlyKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, o.ID, decode[orderBody](t, w).ID)
}

func TestPlaceOrder_Errors(t *testing.T) {
	tests := []struct {
		name string
		body any
		want int
	}{
		{name: "malformed json", body: `{"items": [`, want: http.StatusBadRequest},
		{name: "wrong field type", body: `{"items": [{"productId": 1, "quantity": 1}]}`, want: http.StatusBadRequest},
		{name: "empty items", body: map[string]any{"items": []any{}}, want: http.StatusBadRequest},
		{
			name: "negative shipping",
			body: map[string]any{"shippingAmount": "-1", "items": []map[string]any{{"productId": "p1", "quantity": 1}}},
			want: http.StatusBadRequest,
		},
		{
			name: "zero quantity",
			body: map[string]any{"items": []map[string]any{{"productId": "p1", "quantity": 0}}},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "unknown product",
			body: map[string]any{"items": []map[string]any{{"productId": "nope", "quantity": 1}}},
			want: http.StatusUnprocessableEntity,
		},
		{name: "invalid coupon", body: cartBody("BOGUS"), want: http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			w := f.do(t, http.MethodPost, "/api/orders", fullKey, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.Equal(t, tt.want, decode[errorBody](t, w).Code)
		})
	}
}

func TestPlaceOrder_SingleUseCoupon(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/orders", fullKey, cartBody("once"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/orders", fullKey, cartBody("once"))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decode[errorBody](t, w).Message, `coupon code "once"`)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/orders", fullKey, cartBody(""))
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[orderBody](t, w).ID

	w = f.do(t, http.MethodPost, "/api/orders/"+id+"/cancel", readOnlyKey, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/api/orders/"+id+"/cancel", fullKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", decode[orderBody](t, w).Status)

	w = f.do(t, http.MethodPost, "/api/orders/"+id+"/cancel", fullKey, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/api/orders/missing/cancel", fullKey, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefundQuote(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/orders", fullKey, map[string]any{
		"storeId": "store-1",
		"items":   []map[string]any{{"productId": "p1", "quantity": 3}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode[orderBody](t, w).ID

	w = f.do(t, http.MethodGet, "/api/orders/"+id+"/items/1/refund?quantity=1", readOnlyKey, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	refund := decode[struct {
		Gross    float64 `json:"gross"`
		Discount float64 `json:"discount"`
		Amount   float64 `json:"amount"`
	}](t, w)
	assert.Equal(t, 10.0, refund.Gross)
	assert.Equal(t, 1.0, refund.Discount)
	assert.Equal(t, 9.0, refund.Amount)

	tests := []struct {
		path string
		want int
	}{
		{path: "/api/orders/" + id + "/items/1/refund?quantity=abc", want: http.StatusBadRequest},
		{path: "/api/orders/" + id + "/items/1/refund?quantity=4", want: http.StatusUnprocessableEntity},
		{path: "/api/orders/" + id + "/items/9/refund?quantity=1", want: http.StatusNotFound},
		{path: "/api/orders/missing/items/1/refund?quantity=1", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		w := f.do(t, http.MethodGet, tt.path, fullKey, nil)
		assert.Equal(t, tt.want, w.Code, tt.path)
	}
}

func TestRefund(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/orders", fullKey, map[string]any{
		"storeId": "store-1",
		"items":   []map[string]any{{"productId": "p1", "quantity": 3}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode[orderBody](t, w).ID
	path := "/api/orders/" + id + "/items/1/refund"

	w = f.do(t, http.MethodPost, path, readOnlyKey, map[string]any{"quantity": 1})
	assert.Equal(t, http.StatusForbidden, w.Code)

	type refundBody struct {
		Discount  float64 `json:"discount"`
		Amount    float64 `json:"amount"`
		Remaining int     `json:"remaining"`
	}
	var off float64
	for i := range 3 {
		w = f.do(t, http.MethodPost, path, fullKey, map[string]any{"quantity": 1})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		refund := decode[refundBody](t, w)
		assert.Equal(t, 2-i, refund.Remaining)
		off += refund.Discount
	}
	assert.InDelta(t, 3.0, off, 0.001)

	w = f.do(t, http.MethodGet, "/api/orders/"+id, readOnlyKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, decode[orderBody](t, w).Items[0].Refunded)

	w = f.do(t, http.MethodPost, path, fullKey, map[string]any{"quantity": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(t, http.MethodPost, path, fullKey, map[string]any{"quantity": "one"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
