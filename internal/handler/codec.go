package handler

import (
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-promotions/internal/domain/discount"
	"github.com/xenking/kart-promotions/internal/domain/money"
	"github.com/xenking/kart-promotions/internal/domain/order"
	"github.com/xenking/kart-promotions/internal/domain/product"
)

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return nil, badRequest("read body: %v", err)
	}
	return data, nil
}

// decodeOrderRequest parses the cart body shared by evaluate and place order.
func decodeOrderRequest(data []byte) (order.PlaceOrderRequest, error) {
	var req order.PlaceOrderRequest
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "storeId":
			req.StoreID, err = d.Str()
		case "customerId":
			req.CustomerID, err = d.Str()
		case "regionId":
			req.RegionID, err = d.Str()
		case "couponCode":
			req.CouponCode, err = d.Str()
		case "shippingAmount":
			req.ShippingAmount, err = decodeMoney(d)
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				var item order.LineItem
				if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
					var err error
					switch string(key) {
					case "productId":
						item.ProductID, err = d.Str()
					case "quantity":
						item.Quantity, err = d.Int()
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				req.Items = append(req.Items, item)
				return nil
			})
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "field %q", key)
	})
	if err != nil {
		return req, badRequest("invalid request body: %v", err)
	}
	if req.ShippingAmount.IsNegative() {
		return req, badRequest("shippingAmount must not be negative")
	}
	return req, nil
}

// decodeRefundRequest parses {"quantity": N}.
func decodeRefundRequest(data []byte) (int, error) {
	var quantity int
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "quantity":
			quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "field %q", key)
	})
	if err != nil {
		return 0, badRequest("invalid request body: %v", err)
	}
	return quantity, nil
}

// decodeMoney accepts a JSON number or a decimal string.
func decodeMoney(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return money.Parse(s)
	case jx.Null:
		return decimal.Zero, d.Null()
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return money.Parse(n.String())
	}
}

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(money.Format(d)))
}

func encodeStrings(e *jx.Encoder, ss []string) {
	e.ArrStart()
	for _, s := range ss {
		e.Str(s)
	}
	e.ArrEnd()
}

func encodeTime(e *jx.Encoder, t *time.Time) {
	if t == nil {
		e.Null()
		return
	}
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeResult(e *jx.Encoder, res *discount.Result) {
	e.ObjStart()
	e.FieldStart("isValid")
	e.Bool(res.IsValid)
	e.FieldStart("errors")
	encodeStrings(e, res.Errors)
	e.FieldStart("discountAmount")
	encodeMoney(e, res.DiscountAmount)
	e.FieldStart("freeShipping")
	e.Bool(res.FreeShipping)

	ids := make([]string, 0, len(res.ItemDiscounts))
	for id := range res.ItemDiscounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	e.FieldStart("itemDiscounts")
	e.ObjStart()
	for _, id := range ids {
		e.FieldStart(id)
		encodeMoney(e, res.ItemDiscounts[id])
	}
	e.ObjEnd()

	e.FieldStart("appliedRuleIds")
	encodeStrings(e, res.AppliedRuleIDs)
	e.FieldStart("applied")
	e.ArrStart()
	for _, a := range res.Applied {
		e.ObjStart()
		e.FieldStart("ruleId")
		e.Str(a.RuleID)
		if a.Code != "" {
			e.FieldStart("code")
			e.Str(a.Code)
		}
		e.FieldStart("type")
		e.Str(string(a.Type))
		if a.CampaignName != "" {
			e.FieldStart("campaignName")
			e.Str(a.CampaignName)
		}
		e.FieldStart("amount")
		encodeMoney(e, a.Amount)
		e.FieldStart("freeShipping")
		e.Bool(a.FreeShipping)
		e.ObjEnd()
	}
	e.ArrEnd()

	if res.Informational != nil {
		e.FieldStart("informational")
		encodeResult(e, res.Informational)
	}
	e.ObjEnd()
}

func encodeItems(e *jx.Encoder, items []order.Item) {
	e.ArrStart()
	for _, it := range items {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(it.ID)
		e.FieldStart("productId")
		e.Str(it.ProductID)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("unitPrice")
		encodeMoney(e, it.UnitPrice)
		e.FieldStart("total")
		encodeMoney(e, it.Total)
		e.FieldStart("discount")
		encodeMoney(e, it.Discount)
		if it.Refunded > 0 {
			e.FieldStart("refunded")
			e.Int(it.Refunded)
		}
		e.ObjEnd()
	}
	e.ArrEnd()
}

// encodeOrderFields writes the order fields into an already open object.
func encodeOrderFields(e *jx.Encoder, o *order.Order) {
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("storeId")
	e.Str(o.StoreID)
	if o.CustomerID != "" {
		e.FieldStart("customerId")
		e.Str(o.CustomerID)
	}
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("items")
	encodeItems(e, o.Items)
	e.FieldStart("subtotal")
	encodeMoney(e, o.Subtotal)
	e.FieldStart("discountAmount")
	encodeMoney(e, o.DiscountAmount)
	e.FieldStart("shippingAmount")
	encodeMoney(e, o.ShippingAmount)
	e.FieldStart("freeShipping")
	e.Bool(o.FreeShipping)
	e.FieldStart("total")
	encodeMoney(e, o.Total)
	if o.CouponCode != "" {
		e.FieldStart("couponCode")
		e.Str(o.CouponCode)
	}
	e.FieldStart("appliedRuleIds")
	encodeStrings(e, o.AppliedRuleIDs)
	e.FieldStart("createdAt")
	encodeTime(e, &o.CreatedAt)
}

func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	base := h.imageBaseURL
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("price")
	encodeMoney(e, p.Price)
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("categoryIds")
	encodeStrings(e, p.CategoryIDs)
	e.FieldStart("image")
	e.ObjStart()
	e.FieldStart("thumbnail")
	e.Str(base + p.Image.Thumbnail)
	e.FieldStart("mobile")
	e.Str(base + p.Image.Mobile)
	e.FieldStart("tablet")
	e.Str(base + p.Image.Tablet)
	e.FieldStart("desktop")
	e.Str(base + p.Image.Desktop)
	e.ObjEnd()
	e.ObjEnd()
}

func (h *Handler) encodeProducts(e *jx.Encoder, products []product.Product) {
	e.ArrStart()
	for _, p := range products {
		h.encodeProduct(e, p)
	}
	e.ArrEnd()
}

func encodeRule(e *jx.Encoder, r discount.Rule) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(r.ID)
	e.FieldStart("type")
	e.Str(string(r.Type()))
	if r.Description != "" {
		e.FieldStart("description")
		e.Str(r.Description)
	}
	if r.CampaignName != "" {
		e.FieldStart("campaignName")
		e.Str(r.CampaignName)
	}
	switch eff := r.Effect.(type) {
	case discount.Percentage:
		e.FieldStart("value")
		encodeMoney(e, eff.Value)
	case discount.FixedAmount:
		e.FieldStart("value")
		encodeMoney(e, eff.Value)
	case discount.BuyXGetY:
		e.FieldStart("buyQuantity")
		e.Int(eff.BuyQuantity)
		e.FieldStart("getQuantity")
		e.Int(eff.GetQuantity)
		e.FieldStart("value")
		encodeMoney(e, eff.DiscountPercentage)
	}
	e.FieldStart("appliesTo")
	e.Str(string(r.Target.AppliesTo))
	if r.MinimumOrderAmount.Valid {
		e.FieldStart("minimumOrderAmount")
		encodeMoney(e, r.MinimumOrderAmount.Decimal)
	}
	if r.MaximumDiscountAmount.Valid {
		e.FieldStart("maximumDiscountAmount")
		encodeMoney(e, r.MaximumDiscountAmount.Decimal)
	}
	e.FieldStart("firstOrderOnly")
	e.Bool(r.FirstOrderOnly)
	e.FieldStart("priority")
	e.Int(r.Priority)
	e.FieldStart("startsAt")
	encodeTime(e, r.StartsAt)
	e.FieldStart("endsAt")
	encodeTime(e, r.EndsAt)
	e.ObjEnd()
}
