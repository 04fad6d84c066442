package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-promotions/internal/domain/order"
	"github.com/xenking/kart-promotions/pkg/httpmiddleware"
)

// badRequestError marks malformed input.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

// writeError maps domain errors to status codes and writes the JSON error
// body. Unknown errors are logged and hidden behind a 500.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, msg := classify(err)
	if status == http.StatusInternalServerError {
		zctx.From(ctx).Error("Request failed", zap.Error(err))
	}
	httpmiddleware.WriteError(w, status, msg)
}

func classify(err error) (int, string) {
	var (
		badReq      *badRequestError
		invalidQty  *order.InvalidQuantityError
		notFound    *order.ProductNotFoundError
		rejected    *order.CouponRejectedError
		missingItem *order.ItemNotFoundError
	)
	switch {
	case errors.As(err, &badReq):
		return http.StatusBadRequest, badReq.msg
	case errors.Is(err, order.ErrEmptyItems):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, "api key lacks the required scope"
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "order not found"
	case errors.As(err, &missingItem):
		return http.StatusNotFound, missingItem.Error()
	case errors.Is(err, order.ErrAlreadyCancelled):
		return http.StatusConflict, err.Error()
	case errors.As(err, &invalidQty):
		return http.StatusUnprocessableEntity, invalidQty.Error()
	case errors.As(err, &notFound):
		return http.StatusUnprocessableEntity, notFound.Error()
	case errors.As(err, &rejected):
		return http.StatusUnprocessableEntity, rejected.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
