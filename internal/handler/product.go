package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Products.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]productDTO, len(products))
	for i, p := range products {
		out[i] = newProductDTO(p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Products.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductDTO(*p))
}

func (h *Handler) adminAdjustStock(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Delta int `json:"delta"`
	}
	if err := decode(w, r, &body); err != nil {
		fail(w, r, err)
		return
	}
	if body.Delta == 0 {
		fail(w, r, badRequest("delta must be non-zero"))
		return
	}
	p, err := h.Products.AdjustStock(r.Context(), actor(r), chi.URLParam(r, "id"), body.Delta)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductDTO(*p))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var in productInput
	if err := decode(w, r, &in); err != nil {
		fail(w, r, err)
		return
	}
	d, err := in.draft()
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.Products.Create(r.Context(), actor(r), d)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newProductDTO(*p))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var in productInput
	if err := decode(w, r, &in); err != nil {
		fail(w, r, err)
		return
	}
	d, err := in.draft()
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.Products.Update(r.Context(), actor(r), chi.URLParam(r, "id"), d)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductDTO(*p))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.Products.Delete(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
