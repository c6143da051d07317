package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

type contextKey string

const tenantKey contextKey = "tenant"

// TenantFrom retrieves the authenticated tenant from the request
// context, or nil on public routes.
func TenantFrom(ctx context.Context) *Tenant {
	if t, ok := ctx.Value(tenantKey).(*Tenant); ok {
		return t
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Middleware requires a valid X-API-Key header on every request it
// wraps and stores the resolved tenant in the context.
func Middleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				writeAuthError(w, http.StatusUnauthorized, "Missing API key")
				return
			}

			tenant, err := a.Authenticate(r.Context(), apiKey)
			if err != nil {
				log.Warn().
					Str("path", r.URL.Path).
					Msg("api key rejected")
				writeAuthError(w, http.StatusUnauthorized, "Invalid or inactive API key")
				return
			}

			ctx := context.WithValue(r.Context(), tenantKey, tenant)
			logger := log.Ctx(ctx).With().Str("tenant_id", tenant.ID.String()).Logger()
			ctx = logger.WithContext(ctx)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
