package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakkat/grocery-market/internal/domain/category"
)

type categoryPage struct {
	Categories []categoryDTO `json:"categories"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
}

type categoryInput struct {
	Name string `json:"name"`
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	cs, err := h.Categories.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCategoryDTOs(cs))
}

func (h *Handler) adminListCategories(w http.ResponseWriter, r *http.Request) {
	f := category.Filter{Query: r.URL.Query().Get("q")}
	var err error
	if f.Page, err = queryInt(r, "page"); err != nil {
		fail(w, r, err)
		return
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		fail(w, r, err)
		return
	}
	cs, total, err := h.Categories.Page(r.Context(), &f)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categoryPage{Categories: newCategoryDTOs(cs), Total: total, Page: f.Page, Limit: f.Limit})
}

func (h *Handler) adminCreateCategory(w http.ResponseWriter, r *http.Request) {
	var in categoryInput
	if err := decode(w, r, &in); err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.Categories.Create(r.Context(), actor(r), in.Name)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newCategoryDTO(c))
}

func (h *Handler) adminUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var in categoryInput
	if err := decode(w, r, &in); err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.Categories.Update(r.Context(), actor(r), chi.URLParam(r, "id"), in.Name)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCategoryDTO(c))
}

func (h *Handler) adminDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.Categories.Delete(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
