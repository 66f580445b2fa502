package middleware

import (
	"net/http"
	"strings"

	"github.com/javierd009/concierge/internal/database"
)

// RequireAPIKey returns middleware that validates a bearer API key against
// the tenant's active keys. It must run after RequireTenant, since it scopes
// the lookup to the tenant id already stored in the request context.
func RequireAPIKey(keys database.APIKeyRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := TenantIDFromContext(r.Context())
			if tenantID == "" {
				writeTenantError(w, http.StatusBadRequest, "x-tenant-id header is required")
				return
			}

			secret, ok := bearerToken(r)
			if !ok {
				writeTenantError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			active, err := keys.FindActiveByTenant(r.Context(), tenantID)
			if err != nil {
				writeTenantError(w, http.StatusInternalServerError, "internal error")
				return
			}
			for _, k := range active {
				if match, _ := database.CheckPassword(secret, k.SecretHash); match {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeTenantError(w, http.StatusUnauthorized, "invalid api key")
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
