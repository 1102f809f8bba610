package handler

import (
	"net/http"

	"github.com/sakkat/grocery-market/internal/domain/audit"
)

func (h *Handler) adminListAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		fail(w, r, err)
		return
	}
	entries, err := h.Audit.List(r.Context(), audit.Filter{
		EntityType: r.URL.Query().Get("entityType"),
		EntityID:   r.URL.Query().Get("entityId"),
		Limit:      limit,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAuditDTOs(entries))
}
