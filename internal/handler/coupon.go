package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakkat/grocery-market/internal/domain/coupon"
)

type couponPage struct {
	Coupons []couponDTO `json:"coupons"`
	Total   int         `json:"total"`
	Page    int         `json:"page"`
	Limit   int         `json:"limit"`
}

func (h *Handler) activeCoupons(w http.ResponseWriter, r *http.Request) {
	cs, err := h.Coupons.Active(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCouponDTOs(cs))
}

func (h *Handler) adminListCoupons(w http.ResponseWriter, r *http.Request) {
	f, err := couponFilter(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	cs, total, err := h.Coupons.List(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	page, limit := max(f.Page, 1), f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	writeJSON(w, http.StatusOK, couponPage{Coupons: newCouponDTOs(cs), Total: total, Page: page, Limit: limit})
}

func couponFilter(r *http.Request) (coupon.Filter, error) {
	f := coupon.Filter{Query: r.URL.Query().Get("q")}
	if raw := r.URL.Query().Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return f, badRequest("active must be a boolean")
		}
		f.Active = &active
	}
	var err error
	if f.Page, err = queryInt(r, "page"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		return f, err
	}
	return f, nil
}

func (h *Handler) adminCreateCoupon(w http.ResponseWriter, r *http.Request) {
	var in couponInput
	if err := decode(w, r, &in); err != nil {
		fail(w, r, err)
		return
	}
	c, err := in.coupon()
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Coupons.Create(r.Context(), actor(r), c); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newCouponDTO(c))
}

func (h *Handler) adminUpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var in couponInput
	if err := decode(w, r, &in); err != nil {
		fail(w, r, err)
		return
	}
	c, err := in.coupon()
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Coupons.Update(r.Context(), actor(r), chi.URLParam(r, "code"), c); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCouponDTO(c))
}

func (h *Handler) adminDeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.Coupons.Delete(r.Context(), actor(r), chi.URLParam(r, "code")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
