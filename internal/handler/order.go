package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/jx"

	"github.com/xenking/kart-promotions/internal/domain/order"
)

// PlaceOrder serves POST /api/orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data, err := readBody(w, r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	req, err := decodeOrderRequest(data)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	res, err := h.orders.PlaceOrder(ctx, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	encodeOrderFields(&e, res.Order)
	e.FieldStart("products")
	h.encodeProducts(&e, res.Products)
	e.FieldStart("discounts")
	encodeResult(&e, res.Discounts)
	if len(res.Dropped) > 0 {
		e.FieldStart("droppedRuleIds")
		encodeStrings(&e, res.Dropped)
	}
	e.ObjEnd()
	writeJSON(w, http.StatusCreated, &e)
}

// GetOrder serves GET /api/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o, err := h.orders.Get(ctx, r.PathValue("id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeOrder(w, o)
}

// CancelOrder serves POST /api/orders/{id}/cancel.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o, err := h.orders.Cancel(ctx, r.PathValue("id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeOrder(w, o)
}

// RefundQuote serves GET /api/orders/{id}/items/{itemId}/refund?quantity=N.
func (h *Handler) RefundQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	quantity, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil {
		writeError(ctx, w, badRequest("quantity must be an integer"))
		return
	}

	refund, err := h.orders.RefundQuote(ctx, r.PathValue("id"), r.PathValue("itemId"), quantity)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeRefund(w, refund)
}

// Refund serves POST /api/orders/{id}/items/{itemId}/refund.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data, err := readBody(w, r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	quantity, err := decodeRefundRequest(data)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	refund, err := h.orders.Refund(ctx, r.PathValue("id"), r.PathValue("itemId"), quantity)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeRefund(w, refund)
}

func writeRefund(w http.ResponseWriter, refund *order.Refund) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(refund.OrderID)
	e.FieldStart("itemId")
	e.Str(refund.ItemID)
	e.FieldStart("quantity")
	e.Int(refund.Quantity)
	e.FieldStart("gross")
	encodeMoney(&e, refund.Gross)
	e.FieldStart("discount")
	encodeMoney(&e, refund.Discount)
	e.FieldStart("amount")
	encodeMoney(&e, refund.Amount)
	e.FieldStart("remaining")
	e.Int(refund.Remaining)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

func writeOrder(w http.ResponseWriter, o *order.Order) {
	var e jx.Encoder
	e.ObjStart()
	encodeOrderFields(&e, o)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}
