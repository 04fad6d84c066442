package order

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-promotions/internal/domain/customer"
	"github.com/xenking/kart-promotions/internal/domain/discount"
	"github.com/xenking/kart-promotions/internal/domain/ledger"
	"github.com/xenking/kart-promotions/internal/domain/money"
	"github.com/xenking/kart-promotions/internal/domain/product"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems       = errors.New("items required")
	ErrAlreadyCancelled = errors.New("order already cancelled")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a non-positive or out of range quantity.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity %d for product %s", e.Quantity, e.ProductID)
}

// CouponRejectedError carries the shopper-facing reason a coupon failed.
type CouponRejectedError struct {
	Code   string
	Reason string
}

func (e *CouponRejectedError) Error() string {
	return e.Reason
}

// Unwrap lets errors.Is match discount.ErrInvalidCoupon.
func (e *CouponRejectedError) Unwrap() error {
	return discount.ErrInvalidCoupon
}

// ItemNotFoundError indicates an order has no line with the given id.
type ItemNotFoundError struct {
	OrderID string
	ItemID  string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("order %s has no item %s", e.OrderID, e.ItemID)
}

// CommitError reports an order that was cancelled because its redemptions
// could not be recorded. Committed lists the rules whose counters had already
// been incremented; they are not given back.
type CommitError struct {
	OrderID   string
	Committed []string
	Err       error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("order %s cancelled: %v", e.OrderID, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// Evaluator computes discounts for a cart.
type Evaluator interface {
	Evaluate(ctx context.Context, dc *discount.Context) (*discount.Result, error)
}

// Committer records redemptions.
type Committer interface {
	Commit(ctx context.Context, req ledger.CommitRequest) (*ledger.CommitResult, error)
}

// CustomerResolver resolves eligibility facts for a customer.
type CustomerResolver interface {
	Resolve(ctx context.Context, id string) (*customer.Facts, error)
}

// LineItem is a requested product and quantity.
type LineItem struct {
	ProductID string
	Quantity  int
}

// PlaceOrderRequest holds the input for quoting or placing an order.
type PlaceOrderRequest struct {
	StoreID    string
	CustomerID string
	// RegionID overrides the customer's stored region, e.g. the shipping
	// destination of this order.
	RegionID       string
	Items          []LineItem
	CouponCode     string
	ShippingAmount decimal.Decimal
}

// Quote is a priced cart with its discount evaluation.
type Quote struct {
	Items    []Item
	Products []product.Product
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
	Result   *discount.Result
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order     *Order
	Products  []product.Product
	Discounts *discount.Result
	// Dropped lists rules that were evaluated as applicable but lost a
	// commit race and were removed from the order.
	Dropped []string
}

// Refund is the amount due for returning part of an order line. Remaining
// is the number of units of the line still refundable afterwards.
type Refund struct {
	OrderID   string
	ItemID    string
	Quantity  int
	Gross     decimal.Decimal
	Discount  decimal.Decimal
	Amount    decimal.Decimal
	Remaining int
}

// Service encapsulates order placement business logic.
type Service struct {
	products  product.Repository
	customers CustomerResolver
	discounts Evaluator
	ledger    Committer
	orders    Repository
	now       func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	customers CustomerResolver,
	discounts Evaluator,
	committer Committer,
	orders Repository,
) *Service {
	return &Service{
		products:  products,
		customers: customers,
		discounts: discounts,
		ledger:    committer,
		orders:    orders,
		now:       time.Now,
	}
}

// Quote prices the cart and evaluates its discounts without persisting
// anything. An invalid coupon is reported through Result, not as an error.
func (s *Service) Quote(ctx context.Context, req PlaceOrderRequest) (*Quote, error) {
	q, _, err := s.quote(ctx, req)
	return q, err
}

// PlaceOrder prices the cart, rejects an invalid coupon, persists the order
// and commits its redemptions. Rules that are exhausted by a concurrent
// order by the time of the commit are removed and the order is repriced.
// Any other commit failure cancels the order and returns a *CommitError.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	q, dc, err := s.quote(ctx, req)
	if err != nil {
		return nil, err
	}
	res := q.Result
	if !res.IsValid {
		reason := "invalid coupon code"
		if len(res.Errors) > 0 {
			reason = res.Errors[0]
		}
		return nil, &CouponRejectedError{Code: req.CouponCode, Reason: reason}
	}

	o := &Order{
		ID:             uuid.New().String(),
		StoreID:        dc.StoreID,
		CustomerID:     dc.CustomerID,
		Status:         StatusPlaced,
		Items:          q.Items,
		Subtotal:       q.Subtotal,
		ShippingAmount: q.Shipping,
		CreatedAt:      s.now(),
	}
	applyPricing(o, res)

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	cr, err := s.ledger.Commit(ctx, commitRequest(o, res))
	if err != nil {
		return nil, s.abandon(ctx, o, nil, errors.Wrap(err, "commit redemptions"))
	}

	var (
		committed []string
		dropped   []string
		failure   error
	)
	for _, out := range cr.Outcomes {
		switch {
		case out.Status != ledger.StatusFailed:
			committed = append(committed, out.RuleID)
		case errors.Is(out.Err, ledger.ErrUsageExhausted), errors.Is(out.Err, ledger.ErrBudgetExhausted):
			dropped = append(dropped, out.RuleID)
		case failure == nil:
			failure = errors.Wrapf(out.Err, "commit redemption for rule %s", out.RuleID)
		}
	}
	if failure != nil {
		return nil, s.abandon(ctx, o, committed, failure)
	}

	if len(dropped) > 0 {
		zctx.From(ctx).Warn("Dropping exhausted rules from order",
			zap.String("order_id", o.ID),
			zap.Strings("rules", dropped),
		)
		res = res.Without(dropped...)
		applyPricing(o, res)
		if err := s.orders.UpdatePricing(ctx, o); err != nil {
			return nil, errors.Wrap(err, "update order pricing")
		}
	}

	return &PlaceOrderResult{
		Order:     o,
		Products:  q.Products,
		Discounts: res,
		Dropped:   dropped,
	}, nil
}

// abandon cancels an order whose redemptions could not all be recorded so
// that it does not count as a prior order or redemption of its customer.
func (s *Service) abandon(ctx context.Context, o *Order, committed []string, cause error) error {
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))
	if err := s.orders.SetStatus(context.WithoutCancel(ctx), o.ID, StatusCancelled); err != nil {
		lg.Error("Cancel order after commit failure", zap.Error(err))
	}
	lg.Error("Order cancelled after commit failure",
		zap.Strings("committed_rules", committed),
		zap.Error(cause),
	)
	return &CommitError{OrderID: o.ID, Committed: committed, Err: cause}
}

// Get returns an order by id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// Cancel marks an order cancelled. Cancelled orders no longer count as
// prior orders or redemptions of their customer; rule counters and budgets
// are not given back.
func (s *Service) Cancel(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if o.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}
	if err := s.orders.SetStatus(ctx, id, StatusCancelled); err != nil {
		return nil, errors.Wrap(err, "set order status")
	}
	o.Status = StatusCancelled
	return o, nil
}

// RefundQuote computes the refund for returning quantity units of an order
// line without recording it. The line's discount is spread over its units
// the same way cart discounts are spread over items, and units are paid out
// in order after those already refunded, so refunding every unit one at a
// time returns exactly the line's net total.
func (s *Service) RefundQuote(ctx context.Context, orderID, itemID string, quantity int) (*Refund, error) {
	_, line, err := s.refundLine(ctx, orderID, itemID, quantity)
	if err != nil {
		return nil, err
	}
	return quoteRefund(orderID, line, quantity), nil
}

// Refund records the return of quantity units of an order line and returns
// the amount due. Concurrent refunds of the same order are last writer wins.
func (s *Service) Refund(ctx context.Context, orderID, itemID string, quantity int) (*Refund, error) {
	o, line, err := s.refundLine(ctx, orderID, itemID, quantity)
	if err != nil {
		return nil, err
	}
	r := quoteRefund(orderID, line, quantity)
	line.Refunded += quantity
	if err := s.orders.UpdatePricing(ctx, o); err != nil {
		return nil, errors.Wrap(err, "update order items")
	}

	zctx.From(ctx).Info("Refund recorded",
		zap.String("order_id", orderID),
		zap.String("item_id", itemID),
		zap.Int("quantity", quantity),
		zap.String("amount", money.Format(r.Amount)),
	)
	return r, nil
}

func (s *Service) refundLine(ctx context.Context, orderID, itemID string, quantity int) (*Order, *Item, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "get order")
	}
	if o.Status == StatusCancelled {
		return nil, nil, ErrAlreadyCancelled
	}
	line, ok := o.Item(itemID)
	if !ok {
		return nil, nil, &ItemNotFoundError{OrderID: orderID, ItemID: itemID}
	}
	if quantity <= 0 || quantity > line.Quantity-line.Refunded {
		return nil, nil, &InvalidQuantityError{ProductID: line.ProductID, Quantity: quantity}
	}
	return o, line, nil
}

// quoteRefund pays out the unit shares [Refunded, Refunded+quantity) of the
// line's discount.
func quoteRefund(orderID string, line *Item, quantity int) *Refund {
	units := make([]discount.Item, line.Quantity)
	for i := range units {
		units[i] = discount.Item{ID: strconv.Itoa(i), TotalPrice: line.UnitPrice}
	}
	shares := discount.Distribute(line.Discount, units)

	off := money.Zero
	for i := line.Refunded; i < line.Refunded+quantity; i++ {
		off = money.Add(off, shares[strconv.Itoa(i)])
	}
	gross := money.LineTotal(line.UnitPrice, quantity)

	return &Refund{
		OrderID:   orderID,
		ItemID:    line.ID,
		Quantity:  quantity,
		Gross:     gross,
		Discount:  off,
		Amount:    money.FloorAtZero(money.Sub(gross, off)),
		Remaining: line.Quantity - line.Refunded - quantity,
	}
}

func (s *Service) quote(ctx context.Context, req PlaceOrderRequest) (*Quote, *discount.Context, error) {
	if len(req.Items) == 0 {
		return nil, nil, ErrEmptyItems
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, nil, &InvalidQuantityError{ProductID: item.ProductID, Quantity: item.Quantity}
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, nil, errors.Wrap(err, "get products")
	}
	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	facts, err := s.customers.Resolve(ctx, req.CustomerID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "resolve customer")
	}

	q := &Quote{
		Items:    make([]Item, len(req.Items)),
		Products: make([]product.Product, len(req.Items)),
		Subtotal: money.Zero,
		Shipping: money.Round(req.ShippingAmount),
	}
	dc := &discount.Context{
		StoreID:          req.StoreID,
		CustomerID:       req.CustomerID,
		CustomerGroupIDs: facts.GroupIDs,
		RegionID:         facts.RegionID,
		Items:            make([]discount.Item, len(req.Items)),
		ShippingAmount:   q.Shipping,
		CouponCode:       req.CouponCode,
		IsFirstOrder:     facts.IsFirstOrder,
		CustomerUsage:    facts.RuleUsage,
	}
	if req.RegionID != "" {
		dc.RegionID = req.RegionID
	}

	for i, item := range req.Items {
		p, ok := productMap[item.ProductID]
		if !ok {
			return nil, nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		if dc.StoreID == "" {
			dc.StoreID = p.StoreID
		}

		lineID := strconv.Itoa(i + 1)
		total := money.LineTotal(p.Price, item.Quantity)
		q.Products[i] = p
		q.Items[i] = Item{
			ID:        lineID,
			ProductID: p.ID,
			Quantity:  item.Quantity,
			UnitPrice: p.Price,
			Total:     total,
			Discount:  money.Zero,
		}
		dc.Items[i] = discount.Item{
			ID:          lineID,
			ProductID:   p.ID,
			CategoryIDs: p.CategoryIDs,
			Quantity:    item.Quantity,
			UnitPrice:   p.Price,
			TotalPrice:  total,
		}
		q.Subtotal = money.Add(q.Subtotal, total)
	}
	dc.Subtotal = q.Subtotal

	res, err := s.discounts.Evaluate(ctx, dc)
	if err != nil {
		return nil, nil, errors.Wrap(err, "evaluate discounts")
	}
	q.Result = res

	effective := res
	if !res.IsValid && res.Informational != nil {
		effective = res.Informational
	}
	for i := range q.Items {
		q.Items[i].Discount = money.Round(effective.ItemDiscounts[q.Items[i].ID])
	}
	q.Total = orderTotal(q.Subtotal, effective.DiscountAmount, q.Shipping, effective.FreeShipping)
	return q, dc, nil
}

// applyPricing copies the discount result onto the order. The coupon code is
// kept only while a coded rule is applied.
func applyPricing(o *Order, res *discount.Result) {
	o.CouponCode = appliedCoupon(res)
	o.DiscountAmount = res.DiscountAmount
	o.FreeShipping = res.FreeShipping
	o.AppliedRuleIDs = res.AppliedRuleIDs
	for i := range o.Items {
		o.Items[i].Discount = money.Round(res.ItemDiscounts[o.Items[i].ID])
	}
	o.Total = orderTotal(o.Subtotal, o.DiscountAmount, o.ShippingAmount, o.FreeShipping)
}

func appliedCoupon(res *discount.Result) string {
	for _, a := range res.Applied {
		if a.Code != "" {
			return a.Code
		}
	}
	return ""
}

// orderTotal is subtotal minus discount, floored at zero, plus shipping
// unless it is waived.
func orderTotal(subtotal, discountAmount, shipping decimal.Decimal, freeShipping bool) decimal.Decimal {
	total := money.FloorAtZero(money.Sub(subtotal, discountAmount))
	if !freeShipping {
		total = money.Add(total, shipping)
	}
	return total
}

func commitRequest(o *Order, res *discount.Result) ledger.CommitRequest {
	entries := make([]ledger.Entry, len(res.Applied))
	for i, a := range res.Applied {
		entries[i] = ledger.Entry{RuleID: a.RuleID, Amount: a.Amount}
	}
	return ledger.CommitRequest{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		OrderTotal: o.Total,
		Entries:    entries,
	}
}
