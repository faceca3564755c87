package middleware

import (
	"context"
	"net/http"

	apperrors "github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/errors"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/model"
)

// Headers set by the authenticating gateway in front of this service.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

const principalKey ContextKey = "principal"

// Principal is the authenticated caller.
type Principal struct {
	TenantID string
	UserID   string
	Role     model.Role
}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the caller stored by Auth.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// Auth reads the caller identity from trusted gateway headers. Tokens are
// verified upstream; requests without a tenant or user are rejected.
func Auth(errorHandler *apperrors.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := Principal{
				TenantID: r.Header.Get(HeaderTenantID),
				UserID:   r.Header.Get(HeaderUserID),
				Role:     model.ParseRole(r.Header.Get(HeaderUserRole)),
			}
			if p.TenantID == "" || p.UserID == "" {
				errorHandler.WriteUnauthorized(w, "missing caller identity", r.Header.Get("X-Request-ID"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
