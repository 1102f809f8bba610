package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/sakkat/grocery-market/internal/domain/auth"
	"github.com/sakkat/grocery-market/internal/domain/cart"
	"github.com/sakkat/grocery-market/internal/domain/category"
	"github.com/sakkat/grocery-market/internal/domain/coupon"
	"github.com/sakkat/grocery-market/internal/domain/delivery"
	"github.com/sakkat/grocery-market/internal/domain/order"
	"github.com/sakkat/grocery-market/internal/domain/product"
	"github.com/sakkat/grocery-market/internal/domain/user"
	"github.com/sakkat/grocery-market/pkg/httpmiddleware"
)

const maxBodyBytes = 1 << 20

// requestError is a client error detected by the handler itself.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return badRequest("request body is empty")
	default:
		return badRequest("malformed request body: %v", err)
	}
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("%s must be an integer", name)
	}
	return n, nil
}

// statusOf maps domain errors to HTTP statuses. Zero means unexpected.
func statusOf(err error) int {
	var (
		reqErr     *requestError
		couponErr  *coupon.ValidationError
		productErr *product.ValidationError
		userErr    *user.ValidationError
		cityErr    *delivery.CityUnavailableError
	)
	switch {
	case errors.As(err, &reqErr):
		return reqErr.status
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, user.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, category.ErrNotFound),
		errors.Is(err, order.ErrEmptyCart):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, product.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, coupon.ErrCodeTaken),
		errors.Is(err, category.ErrExists),
		errors.Is(err, user.ErrEmailTaken),
		errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, product.ErrStockUnderflow):
		return http.StatusConflict
	case errors.As(err, &couponErr),
		errors.As(err, &productErr),
		errors.As(err, &userErr),
		errors.Is(err, category.ErrInvalidName),
		errors.Is(err, delivery.ErrInvalidConfig),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrUnsupportedPaymentMode):
		return http.StatusBadRequest
	case errors.As(err, &cityErr):
		return http.StatusUnprocessableEntity
	}
	return 0
}

// fail writes the error body for err. Unexpected errors are logged and
// reported as 500 without details.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := statusOf(err); status != 0 {
		httpmiddleware.WriteError(w, status, err.Error())
		return
	}
	zctx.From(r.Context()).Error("Request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal server error")
}
