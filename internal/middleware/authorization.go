package middleware

import (
	"net/http"

	"go.uber.org/zap"
)

// RequireAdmin gates the admin surface (catalog writes, promo management,
// inventory, order administration). It assumes AuthMiddleware already ran.
func RequireAdmin(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := GetUserRole(r.Context())
			if !ok || role != "admin" {
				logger.Warn("Admin endpoint denied",
					zap.String("path", r.URL.Path),
					zap.String("role", role),
				)
				RespondWithError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
