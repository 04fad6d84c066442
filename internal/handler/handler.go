// Package handler exposes the promotion engine over HTTP.
package handler

import (
	"net/http"

	"github.com/xenking/kart-promotions/internal/domain/discount"
	"github.com/xenking/kart-promotions/internal/domain/order"
	"github.com/xenking/kart-promotions/internal/domain/product"
)

// API key scopes.
const (
	ScopeDiscountsEvaluate = "discounts:evaluate"
	ScopeOrdersRead        = "orders:read"
	ScopeOrdersWrite       = "orders:write"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	ImageBaseURL string
}

// Handler serves the catalog, discount and order endpoints.
type Handler struct {
	products     product.Repository
	discounts    *discount.Service
	orders       *order.Service
	security     *SecurityHandler
	imageBaseURL string
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg Config,
	products product.Repository,
	discounts *discount.Service,
	orders *order.Service,
	security *SecurityHandler,
) *Handler {
	return &Handler{
		products:     products,
		discounts:    discounts,
		orders:       orders,
		security:     security,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/rules/public", h.ListPublicRules)

	mux.Handle("POST /api/discounts/evaluate", h.security.Require(ScopeDiscountsEvaluate, h.EvaluateDiscounts))
	mux.Handle("POST /api/orders", h.security.Require(ScopeOrdersWrite, h.PlaceOrder))
	mux.Handle("GET /api/orders/{id}", h.security.Require(ScopeOrdersRead, h.GetOrder))
	mux.Handle("POST /api/orders/{id}/cancel", h.security.Require(ScopeOrdersWrite, h.CancelOrder))
	mux.Handle("GET /api/orders/{id}/items/{itemId}/refund", h.security.Require(ScopeOrdersRead, h.RefundQuote))
	mux.Handle("POST /api/orders/{id}/items/{itemId}/refund", h.security.Require(ScopeOrdersWrite, h.Refund))
}
