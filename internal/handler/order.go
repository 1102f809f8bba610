package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/sakkat/grocery-market/internal/domain/delivery"
	"github.com/sakkat/grocery-market/internal/domain/order"
	"github.com/sakkat/grocery-market/pkg/httpmiddleware"
)

// IdempotencyKeyHeader is accepted when the body carries no key.
const IdempotencyKeyHeader = "Idempotency-Key"

type checkoutRequest struct {
	Address        string   `json:"address"`
	City           string   `json:"city"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	PaymentMode    string   `json:"paymentMode"`
	IdempotencyKey string   `json:"idempotencyKey"`
	CouponCode     string   `json:"couponCode"`
}

type checkoutResponse struct {
	Order           orderDTO      `json:"order"`
	ItemsOutOfStock []shortageDTO `json:"itemsOutOfStock"`
}

type minimumOrderResponse struct {
	Code             int           `json:"code"`
	Message          string        `json:"message"`
	MinOrderSubtotal float64       `json:"minOrderSubtotal"`
	Subtotal         float64       `json:"subtotal"`
	Shortfall        float64       `json:"shortfall"`
	ItemsOutOfStock  []shortageDTO `json:"itemsOutOfStock"`
}

type unavailableResponse struct {
	Code            int           `json:"code"`
	Message         string        `json:"message"`
	ItemsOutOfStock []shortageDTO `json:"itemsOutOfStock"`
}

// Checkout outcomes recorded on market.checkout.outcomes.
const (
	outcomePlaced          = "placed"
	outcomeReplayed        = "replayed"
	outcomeMinimumOrder    = "minimum_order"
	outcomeAllUnavailable  = "all_unavailable"
	outcomeCityUnavailable = "city_unavailable"
	outcomeRejected        = "rejected"
	outcomeFailed          = "failed"
)

func (h *Handler) record(ctx context.Context, outcome string) {
	h.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body checkoutRequest
	if err := decode(w, r, &body); err != nil {
		h.record(ctx, outcomeRejected)
		fail(w, r, err)
		return
	}
	if (body.Latitude == nil) != (body.Longitude == nil) {
		h.record(ctx, outcomeRejected)
		fail(w, r, badRequest("latitude and longitude must be given together"))
		return
	}
	key := strings.TrimSpace(body.IdempotencyKey)
	if key == "" {
		key = strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	}

	res, err := h.Checkout.Place(ctx, order.CheckoutRequest{
		UserID:         identity(r).UserID,
		Address:        strings.TrimSpace(body.Address),
		City:           strings.TrimSpace(body.City),
		Latitude:       body.Latitude,
		Longitude:      body.Longitude,
		PaymentMode:    body.PaymentMode,
		IdempotencyKey: key,
		CouponCode:     body.CouponCode,
	})
	if err != nil {
		h.checkoutFailed(w, r, err)
		return
	}

	status, outcome := http.StatusCreated, outcomePlaced
	if res.Replayed {
		status, outcome = http.StatusOK, outcomeReplayed
	}
	h.record(ctx, outcome)
	writeJSON(w, status, checkoutResponse{
		Order:           newOrderDTO(res.Order),
		ItemsOutOfStock: newShortageDTOs(res.OutOfStock),
	})
}

func (h *Handler) checkoutFailed(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	var (
		minErr  *order.MinimumOrderError
		allErr  *order.AllItemsUnavailableError
		cityErr *delivery.CityUnavailableError
	)
	switch {
	case errors.As(err, &minErr):
		h.record(ctx, outcomeMinimumOrder)
		writeJSON(w, http.StatusBadRequest, minimumOrderResponse{
			Code:             http.StatusBadRequest,
			Message:          "minimum order subtotal not met",
			MinOrderSubtotal: money(minErr.Minimum),
			Subtotal:         money(minErr.Subtotal),
			Shortfall:        money(minErr.Shortfall),
			ItemsOutOfStock:  newShortageDTOs(minErr.OutOfStock),
		})
	case errors.As(err, &allErr):
		h.record(ctx, outcomeAllUnavailable)
		writeJSON(w, http.StatusConflict, unavailableResponse{
			Code:            http.StatusConflict,
			Message:         "all items are out of stock",
			ItemsOutOfStock: newShortageDTOs(allErr.OutOfStock),
		})
	case errors.As(err, &cityErr):
		h.record(ctx, outcomeCityUnavailable)
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, cityErr.Error())
	case statusOf(err) != 0:
		h.record(ctx, outcomeRejected)
		fail(w, r, err)
	default:
		h.record(ctx, outcomeFailed)
		zctx.From(ctx).Error("Checkout aborted", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "checkout failed")
	}
}

func (h *Handler) orderHistory(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Orders.History(r.Context(), identity(r).UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderDTOs(orders))
}

type orderPage struct {
	Orders []orderDTO `json:"orders"`
	Total  int        `json:"total"`
	Page   int        `json:"page"`
	Limit  int        `json:"limit"`
}

func (h *Handler) adminListOrders(w http.ResponseWriter, r *http.Request) {
	f, err := orderFilter(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	orders, total, err := h.Orders.List(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	f.Normalize()
	writeJSON(w, http.StatusOK, orderPage{Orders: newOrderDTOs(orders), Total: total, Page: f.Page, Limit: f.Limit})
}

func orderFilter(r *http.Request) (order.Filter, error) {
	q := r.URL.Query()
	f := order.Filter{UserID: q.Get("userId")}
	if s := q.Get("status"); s != "" {
		f.Status = order.Status(s)
		if !f.Status.Valid() {
			return f, order.ErrInvalidStatus
		}
	}
	var err error
	if f.From, err = queryTime(r, "from"); err != nil {
		return f, err
	}
	if f.To, err = queryTime(r, "to"); err != nil {
		return f, err
	}
	if f.Page, err = queryInt(r, "page"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		return f, err
	}
	return f, nil
}

// queryTime accepts RFC 3339 timestamps and plain dates.
func queryTime(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, badRequest("%s must be a date or RFC 3339 timestamp", name)
}

func (h *Handler) adminGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderDTO(o))
}

func (h *Handler) adminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status order.Status `json:"status"`
	}
	if err := decode(w, r, &body); err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.Orders.UpdateStatus(r.Context(), actor(r), chi.URLParam(r, "id"), body.Status)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderDTO(o))
}
