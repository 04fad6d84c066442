package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// EvaluateDiscounts serves POST /api/discounts/evaluate: a cart preview
// that never persists or commits anything.
func (h *Handler) EvaluateDiscounts(w http.ResponseWriter, r *http.Request) {
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

	q, err := h.orders.Quote(ctx, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("items")
	encodeItems(&e, q.Items)
	e.FieldStart("subtotal")
	encodeMoney(&e, q.Subtotal)
	e.FieldStart("shippingAmount")
	encodeMoney(&e, q.Shipping)
	e.FieldStart("total")
	encodeMoney(&e, q.Total)
	e.FieldStart("discounts")
	encodeResult(&e, q.Result)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

// ListPublicRules serves GET /api/rules/public?storeId=.
func (h *Handler) ListPublicRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID := r.URL.Query().Get("storeId")
	if storeID == "" {
		writeError(ctx, w, badRequest("storeId is required"))
		return
	}

	rules, err := h.discounts.ListPublicRules(ctx, storeID)
	if err != nil {
		writeError(ctx, w, errors.Wrap(err, "list public rules"))
		return
	}

	var e jx.Encoder
	e.ArrStart()
	for _, rule := range rules {
		encodeRule(&e, rule)
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, &e)
}
