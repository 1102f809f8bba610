package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) viewCart(w http.ResponseWriter, r *http.Request) {
	v, err := h.Carts.View(r.Context(), identity(r).UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartDTO(v))
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	}
	if err := decode(w, r, &body); err != nil {
		fail(w, r, err)
		return
	}
	if body.ProductID == "" {
		fail(w, r, badRequest("productId is required"))
		return
	}
	if body.Quantity == 0 {
		body.Quantity = 1
	}
	v, err := h.Carts.Add(r.Context(), identity(r).UserID, body.ProductID, body.Quantity)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartDTO(v))
}

func (h *Handler) setCartItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Quantity *int `json:"quantity"`
	}
	if err := decode(w, r, &body); err != nil {
		fail(w, r, err)
		return
	}
	if body.Quantity == nil {
		fail(w, r, badRequest("quantity is required"))
		return
	}
	v, err := h.Carts.SetQuantity(r.Context(), identity(r).UserID, chi.URLParam(r, "productId"), *body.Quantity)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartDTO(v))
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	v, err := h.Carts.Remove(r.Context(), identity(r).UserID, chi.URLParam(r, "productId"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartDTO(v))
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.Carts.Clear(r.Context(), identity(r).UserID); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
