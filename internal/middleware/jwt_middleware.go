package middleware

import (
	"context"
	"net/http"
	"strings"

	"tool_gateway/internal/auth"
	"tool_gateway/internal/utils"
)

// Context keys for storing admin authentication data
const (
	AdminClaimsKey ContextKey = "adminClaims"
)

// AdminJWTMiddleware validates admin JWT tokens and enforces role-based access
func AdminJWTMiddleware(issuer *auth.TokenIssuer, requiredRoles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.Header.Get("Authorization")
			if tokenString == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, "unauthorized", "Missing authentication token", "")
				return
			}
			tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))

			claims, err := issuer.Validate(tokenString)
			if err != nil {
				utils.RespondWithError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token", "")
				return
			}

			if !auth.Permits(claims.Roles, requiredRoles...) {
				utils.RespondWithError(w, http.StatusForbidden, "forbidden", "Insufficient permissions", "")
				return
			}

			ctx := context.WithValue(r.Context(), AdminClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAdminClaims retrieves the admin claims from the request context
func GetAdminClaims(ctx context.Context) (*auth.AdminClaims, bool) {
	claims, ok := ctx.Value(AdminClaimsKey).(*auth.AdminClaims)
	return claims, ok
}
