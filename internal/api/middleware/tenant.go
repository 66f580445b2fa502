package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
)

type tenantContextKey string

const tenantIDKey tenantContextKey = "tenant_id"

// tenantIDHeader is the header every tenant-scoped route requires, per the
// external-interfaces tenant-scoping rule.
const tenantIDHeader = "x-tenant-id"

var uuidRe = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// RequireTenant returns middleware that extracts and validates the x-tenant-id
// header, rejecting requests that omit it or send a non-UUID value, and
// stores the id in the request context for handlers to read.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get(tenantIDHeader)
		if tenantID == "" {
			writeTenantError(w, http.StatusBadRequest, "x-tenant-id header is required")
			return
		}
		if !uuidRe.MatchString(tenantID) {
			writeTenantError(w, http.StatusBadRequest, "x-tenant-id must be a uuid")
			return
		}
		ctx := context.WithValue(r.Context(), tenantIDKey, tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TenantIDFromContext retrieves the tenant id set by RequireTenant. Returns
// "" if it was never set.
func TenantIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(tenantIDKey).(string)
	return id
}

type tenantEnvelope struct {
	Error string `json:"error,omitempty"`
}

func writeTenantError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(tenantEnvelope{Error: msg}) //nolint:errcheck
}
