package middleware

import (
	"context"
	"net/http"
	"strings"

	"tool_gateway/internal/auth"
	"tool_gateway/internal/utils"
)

// ContextKey defines the type for context keys to avoid conflicts
type ContextKey string

const (
	// CallerKeyKey is the context key for the derived caller key
	CallerKeyKey ContextKey = "callerKey"
)

// presentedAPIKey reads the key from X-API-Key or an Authorization bearer token
func presentedAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

// CallerMiddleware derives an opaque caller key from the presented API key
// and stores it in the request context. Key validation happens upstream; this
// only identifies the caller for metering. When required is false, requests
// without a key pass through as anonymous.
func CallerMiddleware(deriver *auth.KeyDeriver, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := presentedAPIKey(r)
			if apiKey == "" {
				if required {
					utils.RespondWithError(w, http.StatusUnauthorized, "unauthorized", "Missing API key", "")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), CallerKeyKey, deriver.Derive(apiKey))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCallerKey retrieves the caller key from the request context
func GetCallerKey(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(CallerKeyKey).(string)
	return key, ok
}
