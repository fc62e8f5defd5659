package middleware

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/VitalSync/health_layer/internal/errors"
	internalhttputil "github.com/VitalSync/health_layer/internal/httputil"
	"github.com/VitalSync/health_layer/internal/logging"
)

// RequireRole rejects authenticated requests whose role is not listed.
func RequireRole(logger *logging.Logger, roles ...string) mux.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := GetUserRole(r.Context())
			if _, ok := allowed[role]; !ok {
				logger.LogSecurityEvent(r.Context(), "role_denied", map[string]interface{}{
					"path": r.URL.Path,
					"role": role,
				})
				internalhttputil.WriteError(w, r, errors.Forbidden("insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
