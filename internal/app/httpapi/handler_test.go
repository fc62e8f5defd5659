package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/VitalSync/health_layer/internal/app"
	"github.com/VitalSync/health_layer/internal/blob"
	"github.com/VitalSync/health_layer/internal/config"
	"github.com/VitalSync/health_layer/internal/logging"
)

const adminEmail = "admin@example.com"

var gifBytes = []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\x00\x00\x00\xff\xff\xff!\xf9\x04\x01\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;")

type testEnv struct {
	t       *testing.T
	app     *app.Application
	handler http.Handler
}

func newEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Auth.JWTSecret = strings.Repeat("s", 32)
	cfg.Auth.AdminEmails = []string{adminEmail}
	cfg.RateLimit.Enabled = false
	cfg.Reminders.Enabled = false
	cfg.Uploads.Dir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	disk, err := blob.NewDiskStore(cfg.Uploads.Dir, cfg.Uploads.PublicBaseURL)
	require.NoError(t, err)
	application, err := app.New(cfg, app.Stores{}, app.Infra{Blobs: disk}, logging.Discard())
	require.NoError(t, err)
	handler, err := NewHandler(application, logging.Discard())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, application.Start(ctx))
	t.Cleanup(func() { _ = application.Stop(ctx) })
	return &testEnv{t: t, app: application, handler: handler}
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) register(email, name string) (token, userID string) {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": email, "password": "correct horse battery", "name": name,
	})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	var res struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	decode(e.t, rec, &res)
	return res.Token, res.User.ID
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decode(t, rec, &body)
	return body.Error.Code
}

func TestHealthAndRouting(t *testing.T) {
	env := newEnv(t, nil)

	rec := env.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health struct {
		Status   string   `json:"status"`
		Services []string `json:"services"`
	}
	decode(t, rec, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Contains(t, health.Services, "realtime-hub")
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))

	rec = env.do(http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))

	rec = env.do(http.MethodGet, "/api/v1/auth/login", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = env.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	env := newEnv(t, nil)

	rec := env.do(http.MethodGet, "/api/v1/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/profile", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, _ := env.register("user@example.com", "User")
	rec = env.do(http.MethodPost, "/api/v1/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(http.MethodGet, "/api/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newEnv(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/profile", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestProfileOnboardingFlow(t *testing.T) {
	env := newEnv(t, nil)
	token, userID := env.register("ada@example.com", "Ada")

	rec := env.do(http.MethodGet, "/api/v1/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p struct {
		UserID    string `json:"user_id"`
		Dashboard struct {
			Widgets []string `json:"widgets"`
		} `json:"dashboard"`
		Onboarding struct {
			Step      int  `json:"step"`
			Completed bool `json:"completed"`
		} `json:"onboarding"`
		AvatarURL string `json:"avatar_url"`
	}
	decode(t, rec, &p)
	assert.Equal(t, userID, p.UserID)
	assert.Equal(t, []string{"fitness", "glucose", "medications", "careTeam"}, p.Dashboard.Widgets)
	assert.False(t, p.Onboarding.Completed)

	rec = env.do(http.MethodPut, "/api/v1/profile/onboarding/progress", token, map[string]any{
		"step": 2, "draft": map[string]any{"first_name": "Ada"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodPost, "/api/v1/profile/onboarding", token, map[string]any{
		"personal": map[string]any{"first_name": "Ada", "last_name": "Lovelace", "height_cm": 170, "weight_kg": 60},
		"goals":    map[string]any{"daily_steps": 8000, "daily_calories": 1800, "weekly_workout_minutes": 120, "daily_water_ml": 1500},
		"care_team": []map[string]any{
			{"name": "Dr. Lee", "specialty": "Endocrinology", "primary": true},
		},
		"medications": []map[string]any{
			{"name": "Metformin", "dosage": "500mg", "frequency": "twice_daily", "times": []string{"20:00", "08:00"}},
		},
		"dashboard": map[string]any{"widgets": []string{"fitness", "medications", "challenges"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &p)
	assert.True(t, p.Onboarding.Completed)
	assert.Equal(t, 5, p.Onboarding.Step)

	rec = env.do(http.MethodGet, "/api/v1/fitness/goals", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"daily_steps":8000`)

	rec = env.do(http.MethodGet, "/api/v1/medications?active=true", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var meds []struct {
		Name  string   `json:"name"`
		Times []string `json:"times"`
	}
	decode(t, rec, &meds)
	require.Len(t, meds, 1)
	assert.Equal(t, []string{"08:00", "20:00"}, meds[0].Times)

	rec = env.do(http.MethodPost, "/api/v1/profile/onboarding", token, map[string]any{
		"personal": map[string]any{"first_name": "Ada", "height_cm": 20},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, rec))

	rec = env.do(http.MethodGet, "/api/v1/dashboard", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view map[string]json.RawMessage
	decode(t, rec, &view)
	assert.Contains(t, view, "fitness")
	assert.Contains(t, view, "medications")
	assert.Contains(t, view, "challenges")
	assert.NotContains(t, view, "glucose")
	assert.Contains(t, view, "insights")
}

func TestUnknownFieldsRejected(t *testing.T) {
	env := newEnv(t, nil)
	token, _ := env.register("strict@example.com", "Strict")
	rec := env.do(http.MethodPut, "/api/v1/fitness/goals", token, map[string]any{"daily_stepz": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCareTeamRoutes(t *testing.T) {
	env := newEnv(t, nil)
	token, _ := env.register("care@example.com", "Care")

	rec := env.do(http.MethodPost, "/api/v1/profile/care-team", token, map[string]any{"name": "Dr. Who", "primary": true})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var provider struct {
		ID string `json:"id"`
	}
	decode(t, rec, &provider)

	rec = env.do(http.MethodGet, "/api/v1/profile/care-team", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Dr. Who")

	rec = env.do(http.MethodDelete, "/api/v1/profile/care-team/"+provider.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(http.MethodDelete, "/api/v1/profile/care-team/"+provider.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAvatarUploadAndServe(t *testing.T) {
	env := newEnv(t, nil)
	token, _ := env.register("pic@example.com", "Pic")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(avatarField, "me.gif")
	require.NoError(t, err)
	_, err = part.Write(gifBytes)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/profile/avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var p struct {
		AvatarURL string `json:"avatar_url"`
	}
	decode(t, rec, &p)
	require.True(t, strings.HasPrefix(p.AvatarURL, "/uploads/avatars/"), p.AvatarURL)

	rec = env.do(http.MethodGet, p.AvatarURL, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, gifBytes, rec.Body.Bytes())

	req = httptest.NewRequest(http.MethodPost, "/api/v1/profile/avatar", strings.NewReader("just text"))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestChallengeFlowAndAdminGate(t *testing.T) {
	env := newEnv(t, nil)
	adminToken, _ := env.register(adminEmail, "Admin")
	userToken, _ := env.register("runner@example.com", "Runner")

	today := time.Now().UTC()
	challengeBody := map[string]any{
		"title":      "Step it up",
		"metric":     "steps",
		"target":     10000,
		"start_date": today.AddDate(0, 0, -1).Format(time.RFC3339),
		"end_date":   today.AddDate(0, 0, 7).Format(time.RFC3339),
	}

	rec := env.do(http.MethodPost, "/api/v1/admin/challenges", userToken, challengeBody)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/admin/challenges", adminToken, challengeBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var c struct {
		ID string `json:"id"`
	}
	decode(t, rec, &c)

	rec = env.do(http.MethodPost, "/api/v1/challenges/"+c.ID+"/join", userToken, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = env.do(http.MethodPost, "/api/v1/challenges/"+c.ID+"/join", userToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/fitness/logs", userToken, map[string]any{"activity_type": "walking", "steps": 12000})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(http.MethodGet, "/api/v1/challenges/"+c.ID+"/leaderboard", userToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var board struct {
		Entries []struct {
			Rank      int  `json:"rank"`
			Progress  int  `json:"progress"`
			Completed bool `json:"completed"`
		} `json:"entries"`
	}
	decode(t, rec, &board)
	require.Len(t, board.Entries, 1)
	assert.Equal(t, 1, board.Entries[0].Rank)
	assert.Equal(t, 12000, board.Entries[0].Progress)
	assert.True(t, board.Entries[0].Completed)

	rec = env.do(http.MethodGet, "/api/v1/notifications?unread=true", userToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "challenge")

	rec = env.do(http.MethodGet, "/api/v1/admin/audit", userToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = env.do(http.MethodGet, "/api/v1/admin/audit?limit=2", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var audit struct {
		Entries []auditEntry `json:"entries"`
	}
	decode(t, rec, &audit)
	require.Len(t, audit.Entries, 2)
	assert.Equal(t, "/api/v1/fitness/logs", audit.Entries[0].Path)
	assert.Equal(t, http.StatusCreated, audit.Entries[0].Status)
}

func TestRecordsRoutes(t *testing.T) {
	env := newEnv(t, nil)
	token, _ := env.register("rec@example.com", "Rec")

	rec := env.do(http.MethodPost, "/api/v1/glucose", token, map[string]any{"value_mg_dl": 110, "context": "fasting"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = env.do(http.MethodGet, "/api/v1/glucose/summary?days=7", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
	rec = env.do(http.MethodGet, "/api/v1/glucose?from=yesterday", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/medications", token, map[string]any{
		"name": "Aspirin", "frequency": "daily", "times": []string{"09:00"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var med struct {
		ID string `json:"id"`
	}
	decode(t, rec, &med)
	rec = env.do(http.MethodPost, "/api/v1/medications/"+med.ID+"/doses", token, map[string]any{
		"status": "taken", "scheduled_for": time.Now().UTC().Add(-time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = env.do(http.MethodGet, "/api/v1/medications/adherence", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"percent":100`)

	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Minute)
	rec = env.do(http.MethodPost, "/api/v1/appointments", token, map[string]any{
		"provider_name": "Dr. Lee", "starts_at": start.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var appt struct {
		ID string `json:"id"`
	}
	decode(t, rec, &appt)
	rec = env.do(http.MethodPost, "/api/v1/appointments", token, map[string]any{
		"provider_name": "Dr. Overlap", "starts_at": start.Add(10 * time.Minute).Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = env.do(http.MethodPost, "/api/v1/appointments/"+appt.ID+"/cancel", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"cancelled"`)

	other, _ := env.register("other@example.com", "Other")
	rec = env.do(http.MethodGet, "/api/v1/appointments/"+appt.ID, other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotificationStream(t *testing.T) {
	env := newEnv(t, nil)
	adminToken, _ := env.register(adminEmail, "Admin")
	token, userID := env.register("live@example.com", "Live")

	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/notifications/stream?access_token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.Eventually(t, func() bool { return env.app.Hub.Connections(userID) == 1 }, 2*time.Second, 10*time.Millisecond)

	rec := env.do(http.MethodPost, "/api/v1/admin/notifications", adminToken, map[string]any{
		"user_ids": []string{userID}, "title": "Maintenance", "message": "Tonight at 22:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev struct {
		Type string `json:"type"`
		Data struct {
			Title string `json:"title"`
		} `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "notification", ev.Type)
	assert.Equal(t, "Maintenance", ev.Data.Title)

	rec = env.do(http.MethodGet, "/api/v1/notifications/unread-count", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"unread":1}`, rec.Body.String())
	rec = env.do(http.MethodPost, "/api/v1/notifications/read-all", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated":1}`, rec.Body.String())
}

func TestRateLimit(t *testing.T) {
	env := newEnv(t, func(cfg *config.Config) {
		cfg.RateLimit.Enabled = true
		cfg.RateLimit.RequestsPerSecond = 1
		cfg.RateLimit.Burst = 2
	})
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, env.do(http.MethodGet, "/healthz", "", nil).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Contains(t, env.app.Services(), "rate-limiter")
}

func TestAuditLogBounded(t *testing.T) {
	l := newAuditLog(2, nil)
	for _, p := range []string{"/a", "/b", "/c"} {
		l.add(auditEntry{Path: p})
	}
	got := l.listLimit(10)
	require.Len(t, got, 2)
	assert.Equal(t, "/c", got[0].Path)
	assert.Equal(t, "/b", got[1].Path)
}
