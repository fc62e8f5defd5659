package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/VitalSync/health_layer/internal/logging"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSAllowedOrigin(t *testing.T) {
	handler := NewCORSMiddleware([]string{"http://localhost:3000/"}).Handler(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestCORSRejectsSuffixLookalike(t *testing.T) {
	handler := NewCORSMiddleware([]string{"https://app.example.com"}).Handler(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/profile", nil)
	req.Header.Set("Origin", "https://evil-app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	handler := NewCORSMiddleware([]string{"https://app.example.com"}).Handler(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/profile", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}

func TestCORSWildcardOmitsCredentials(t *testing.T) {
	handler := NewCORSMiddleware([]string{"*"}).Handler(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://anything.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRateLimiterPerKey(t *testing.T) {
	rl := NewRateLimiter(1, 2, logging.Discard())
	handler := rl.Handler(okHandler())

	call := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/glucose", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:1002"), "same IP on a new port shares the bucket")
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1000"))
}

func TestRateLimiterIgnoresUserInContext(t *testing.T) {
	rl := NewRateLimiter(1, 1, logging.Discard())
	handler := rl.Handler(okHandler())

	call := func(userID string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/glucose", nil)
		req.RemoteAddr = "10.0.0.9:1000"
		req = req.WithContext(logging.WithUserID(req.Context(), userID))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("u1"))
	assert.Equal(t, http.StatusTooManyRequests, call("u2"), "one bucket per client IP")
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(10, 10, logging.Discard())
	current := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return current }

	rl.getLimiter("old")
	current = current.Add(time.Hour)
	rl.getLimiter("fresh")

	assert.Equal(t, 1, rl.Cleanup())
	assert.Len(t, rl.limiters, 1)
}

func TestRateLimiterLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	rl := NewRateLimiter(10, 10, logging.Discard())
	rl.interval = time.Millisecond
	require.NoError(t, rl.Start(context.Background()))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, rl.Stop(context.Background()))
	require.NoError(t, rl.Stop(context.Background()))
}

func TestTracingSetsAndPropagatesTraceID(t *testing.T) {
	var seen string
	handler := NewTracingMiddleware(logging.Discard()).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.GetTraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceHeader, "trace-abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "trace-abc", seen)
	assert.Equal(t, "trace-abc", rec.Header().Get(TraceHeader))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get(TraceHeader))
}

func TestTracingRecoversPanics(t *testing.T) {
	handler := NewTracingMiddleware(logging.Discard()).Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}
