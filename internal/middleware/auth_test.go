package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/VitalSync/health_layer/internal/app/domain/account"
	"github.com/VitalSync/health_layer/internal/errors"
	"github.com/VitalSync/health_layer/internal/logging"
)

type stubValidator struct {
	tokens map[string]*account.Claims
	calls  int
}

func (s *stubValidator) ValidateToken(_ context.Context, token string) (*account.Claims, error) {
	s.calls++
	claims, ok := s.tokens[token]
	if !ok {
		return nil, errors.InvalidToken(nil)
	}
	return claims, nil
}

func newStubValidator() *stubValidator {
	return &stubValidator{tokens: map[string]*account.Claims{
		"good":  {UserID: "user-123", Email: "test@example.com", Role: account.RoleUser},
		"admin": {UserID: "admin-1", Role: account.RoleAdmin},
	}}
}

func echoUser(t *testing.T, wantUserID string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := logging.GetUserID(r.Context()); got != wantUserID {
			t.Errorf("user id = %q, want %q", got, wantUserID)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_Handler_OptionsPassesThrough(t *testing.T) {
	validator := newStubValidator()
	handler := NewAuthMiddleware(validator, logging.Discard()).Handler(echoUser(t, ""))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/profile", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if validator.calls != 0 {
		t.Errorf("validator called %d times for OPTIONS", validator.calls)
	}
}

func TestAuthMiddleware_Handler_MissingAuthHeader(t *testing.T) {
	middleware := NewAuthMiddleware(newStubValidator(), logging.Discard())
	handler := middleware.Handler(echoUser(t, ""))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_Handler_InvalidAuthHeaderFormat(t *testing.T) {
	middleware := NewAuthMiddleware(newStubValidator(), logging.Discard())
	handler := middleware.Handler(echoUser(t, ""))

	for _, header := range []string{"good", "Basic good", "Bearer"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status = %d, want %d", header, rec.Code, http.StatusUnauthorized)
		}
	}
}

func TestAuthMiddleware_Handler_ValidToken(t *testing.T) {
	middleware := NewAuthMiddleware(newStubValidator(), logging.Discard())
	handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if logging.GetUserID(r.Context()) != "user-123" {
			t.Errorf("user id not stored in context")
		}
		if TokenFromContext(r.Context()) != "good" {
			t.Errorf("token not stored in context")
		}
		if GetUserRole(r.Context()) != account.RoleUser {
			t.Errorf("role = %q", GetUserRole(r.Context()))
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestAuthMiddleware_Handler_CookieToken(t *testing.T) {
	middleware := NewAuthMiddleware(newStubValidator(), logging.Discard())
	handler := middleware.Handler(echoUser(t, "user-123"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil)
	req.AddCookie(&http.Cookie{Name: TokenCookieName, Value: "good"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestAuthMiddleware_Handler_QueryTokenOnlyForWebsocket(t *testing.T) {
	middleware := NewAuthMiddleware(newStubValidator(), logging.Discard())
	handler := middleware.Handler(echoUser(t, "user-123"))

	plain := httptest.NewRequest(http.MethodGet, "/api/v1/notifications?access_token=good", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, plain)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("plain request status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	upgrade := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/stream?access_token=good", nil)
	upgrade.Header.Set("Upgrade", "websocket")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, upgrade)
	if rec.Code != http.StatusOK {
		t.Errorf("upgrade request status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestAuthMiddleware_Handler_InvalidToken(t *testing.T) {
	middleware := NewAuthMiddleware(newStubValidator(), logging.Discard())
	handler := middleware.Handler(echoUser(t, ""))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(logging.Discard(), account.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/notifications", nil)
	req = req.WithContext(logging.WithRole(req.Context(), account.RoleUser))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("user role: status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	req = req.WithContext(logging.WithRole(req.Context(), account.RoleAdmin))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("admin role: status = %d, want %d", rec.Code, http.StatusOK)
	}
}
