package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/domain"
)

const (
	HeaderTenantID  = "X-Tenant-ID"
	HeaderSessionID = "X-Session-ID"
	HeaderUserID    = "X-User-ID"
	HeaderRole      = "X-Role"

	roleAdmin = "admin"
)

type ctxKey int

const (
	tenantKey ctxKey = iota
	identityKey
)

// RequireTenant reads the tenant set by the upstream gateway.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := strings.TrimSpace(r.Header.Get(HeaderTenantID))
		if tenantID == "" {
			respondError(w, http.StatusUnauthorized, "unauthenticated", "missing tenant")
			return
		}
		ctx := context.WithValue(r.Context(), tenantKey, tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireShopper resolves the shopper identity. An authenticated user id wins over
// a session token when both are present.
func RequireShopper(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var identity domain.ShopperIdentity
		if userID := strings.TrimSpace(r.Header.Get(HeaderUserID)); userID != "" {
			identity = domain.UserIdentity(userID)
		} else if sessionID := strings.TrimSpace(r.Header.Get(HeaderSessionID)); sessionID != "" {
			identity = domain.SessionIdentity(sessionID)
		}
		if err := identity.Validate(); err != nil {
			respondError(w, http.StatusUnauthorized, "unauthenticated", "missing shopper identity")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.EqualFold(r.Header.Get(HeaderRole), roleAdmin) {
			respondError(w, http.StatusForbidden, "forbidden", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tenantFromContext(ctx context.Context) string {
	tenantID, _ := ctx.Value(tenantKey).(string)
	return tenantID
}

func identityFromContext(ctx context.Context) domain.ShopperIdentity {
	identity, _ := ctx.Value(identityKey).(domain.ShopperIdentity)
	return identity
}
