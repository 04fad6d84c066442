package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// ListProducts serves GET /api/products, optionally filtered by ?storeId=.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	products, err := h.products.List(ctx, r.URL.Query().Get("storeId"))
	if err != nil {
		writeError(ctx, w, errors.Wrap(err, "list products"))
		return
	}

	var e jx.Encoder
	h.encodeProducts(&e, products)
	writeJSON(w, http.StatusOK, &e)
}
