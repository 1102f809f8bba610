package handler

import (
	"net/http"

	"github.com/shopspring/decimal"
)

func (h *Handler) deliverySettings(w http.ResponseWriter, r *http.Request) {
	c, err := h.Delivery.Settings(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDeliveryDTO(c))
}

func (h *Handler) adminUpdateDelivery(w http.ResponseWriter, r *http.Request) {
	var in deliveryInput
	if err := decode(w, r, &in); err != nil {
		fail(w, r, err)
		return
	}
	c := in.config()
	if err := h.Delivery.Update(r.Context(), actor(r), c); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDeliveryDTO(c))
}

type quoteRequest struct {
	City          string          `json:"city"`
	TotalWeightKg decimal.Decimal `json:"totalWeightKg"`
	OrderSubtotal decimal.Decimal `json:"orderSubtotal"`
}

type quoteResponse struct {
	DeliveryFee float64 `json:"deliveryFee"`
	IsFree      bool    `json:"isFree"`
}

func (h *Handler) quoteDelivery(w http.ResponseWriter, r *http.Request) {
	var body quoteRequest
	if err := decode(w, r, &body); err != nil {
		fail(w, r, err)
		return
	}
	if body.TotalWeightKg.IsNegative() || body.OrderSubtotal.IsNegative() {
		fail(w, r, badRequest("totalWeightKg and orderSubtotal must not be negative"))
		return
	}
	q, err := h.Delivery.Quote(r.Context(), body.City, body.TotalWeightKg, body.OrderSubtotal)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{DeliveryFee: money(q.Fee), IsFree: q.Free})
}
