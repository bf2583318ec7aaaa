package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Eigensu/SM-Visitor/internal/domain"
	"github.com/Eigensu/SM-Visitor/internal/http/response"
	"github.com/Eigensu/SM-Visitor/pkg/auth"
	"github.com/Eigensu/SM-Visitor/pkg/logger"
)

type ctxKey string

const ctxPrincipal ctxKey = "principal"

// RequireAuth parses the bearer token into a Principal and stores it on
// the request context. The role comes from the explicit claim, never from
// the shape of other fields.
func RequireAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				response.Unauthorized(w, "missing or malformed authorization header")
				return
			}
			raw := strings.TrimPrefix(authz, "Bearer ")
			claims, err := auth.ParseAccessToken(raw, secret)
			if err != nil {
				response.Unauthorized(w, "invalid authorization token")
				return
			}
			role, ok := domain.ParseRole(claims.Role)
			if !ok {
				response.Unauthorized(w, "unknown role")
				return
			}

			p := domain.Principal{ID: claims.Sub, Role: role, FlatID: claims.FlatID}
			ctx := context.WithValue(r.Context(), ctxPrincipal, p)
			ctx = context.WithValue(ctx, logger.UserIDKey, p.ID)
			ctx = context.WithValue(ctx, logger.RoleKey, string(p.Role))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a subtree to the given roles. Admins are always
// allowed.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r)
			if !ok {
				response.Unauthorized(w, "authentication required")
				return
			}
			if p.IsAdmin() {
				next.ServeHTTP(w, r)
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.Forbidden(w, "insufficient role")
		})
	}
}

func PrincipalFrom(r *http.Request) (domain.Principal, bool) {
	p, ok := r.Context().Value(ctxPrincipal).(domain.Principal)
	return p, ok
}
