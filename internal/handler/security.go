package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/sakkat/grocery-market/internal/domain/audit"
	"github.com/sakkat/grocery-market/internal/domain/auth"
	"github.com/sakkat/grocery-market/internal/domain/user"
	"github.com/sakkat/grocery-market/pkg/httpmiddleware"
)

// Authenticate requires a valid bearer token and stores the caller identity
// in the request context.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			httpmiddleware.WriteError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		id, err := h.Keys.Verify(raw)
		if err != nil {
			zctx.From(r.Context()).Debug("Rejected token", zap.Error(err))
			httpmiddleware.WriteError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := auth.WithIdentity(r.Context(), id)
		ctx = zctx.With(ctx, zap.String("user_id", id.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole admits callers holding one of roles.
func RequireRole(roles ...user.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.FromContext(r.Context())
			if !ok {
				httpmiddleware.WriteError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			for _, role := range roles {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpmiddleware.WriteError(w, http.StatusForbidden, "insufficient role")
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// identity returns the authenticated caller. Routes using it sit behind
// Authenticate.
func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

func actor(r *http.Request) audit.Actor {
	id := identity(r)
	return audit.Actor{ID: id.UserID, Role: string(id.Role)}
}
