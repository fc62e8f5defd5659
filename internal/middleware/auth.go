// Package middleware provides HTTP middleware for the gateway
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/VitalSync/health_layer/internal/app/domain/account"
	"github.com/VitalSync/health_layer/internal/errors"
	internalhttputil "github.com/VitalSync/health_layer/internal/httputil"
	"github.com/VitalSync/health_layer/internal/logging"
)

// TokenCookieName is the cookie the browser client may carry the token in.
const TokenCookieName = "auth_token"

type contextKey string

const tokenKey contextKey = "token"

// TokenValidator checks a raw token, including its session, and returns the
// claims it carries.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*account.Claims, error)
}

// AuthMiddleware provides JWT authentication. Mount it only on routers whose
// routes all require a user.
type AuthMiddleware struct {
	validator TokenValidator
	logger    *logging.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(validator TokenValidator, logger *logging.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		logger:    logger,
	}
}

// Handler returns the middleware handler
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token := extractToken(r)
		if token == "" {
			m.respondError(w, r, errors.Unauthorized("Missing authorization"))
			return
		}

		claims, err := m.validator.ValidateToken(r.Context(), token)
		if err != nil {
			m.respondError(w, r, err)
			return
		}

		ctx := logging.WithUserID(r.Context(), claims.UserID)
		if claims.Role != "" {
			ctx = logging.WithRole(ctx, claims.Role)
		}
		ctx = context.WithValue(ctx, tokenKey, token)

		m.logger.WithContext(ctx).Debug("Authentication successful")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken reads the Authorization header, then the auth cookie. The
// access_token query parameter is only honoured on websocket upgrades, where
// browsers cannot set headers.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie, err := r.Cookie(TokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

// respondError sends an error response
func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("Authentication failed", err)
	}

	internalhttputil.WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)

	m.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": serviceErr.HTTPStatus,
	}).Warn("Authentication failed")
}

// GetUserRole extracts user role from context
func GetUserRole(ctx context.Context) string {
	return logging.GetRole(ctx)
}

// TokenFromContext returns the raw token that authenticated the request.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}
