package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/eldtechnologies/collab/internal/models"
)

// Identity headers set by the gateway in front of the service.
const (
	HeaderTenant = "X-Collab-Tenant"
	HeaderUser   = "X-Collab-User"
)

type contextKey string

const identityContextKey contextKey = "identity"

var idPattern = regexp.MustCompile(`^[A-Za-z0-9._:@-]{1,128}$`)

// Identity is the caller a request acts for.
type Identity struct {
	TenantID models.TenantID
	UserID   models.UserID
}

// RequireIdentity rejects requests without valid tenant and user headers and
// stores the caller in the request context.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := r.Header.Get(HeaderTenant)
		user := r.Header.Get(HeaderUser)

		if tenant == "" || user == "" {
			jsonError(w, http.StatusUnauthorized, "missing identity headers")
			return
		}
		if !idPattern.MatchString(tenant) || !idPattern.MatchString(user) {
			jsonError(w, http.StatusBadRequest, "invalid identity headers")
			return
		}

		id := Identity{TenantID: models.TenantID(tenant), UserID: models.UserID(user)}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// GetIdentity retrieves the caller from the request context.
func GetIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(Identity)
	return id, ok
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
