package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithContextAddsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("gateway", "debug", "json", &buf)

	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithUserID(ctx, "user-1")
	ctx = WithRole(ctx, "admin")

	log.WithContext(ctx).Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "gateway", line["service"])
	assert.Equal(t, "trace-1", line["trace_id"])
	assert.Equal(t, "user-1", line["user_id"])
	assert.Equal(t, "admin", line["role"])
	assert.Equal(t, "hello", line["msg"])
}

func TestLogRequestLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("gateway", "info", "json", &buf)

	log.LogRequest(context.Background(), http.MethodGet, "/ok", http.StatusOK, time.Millisecond)
	assert.Zero(t, buf.Len(), "2xx requests log at debug")

	log.LogRequest(context.Background(), http.MethodGet, "/boom", http.StatusInternalServerError, time.Millisecond)
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.EqualValues(t, 500, line["status"])
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	log := NewWithOutput("x", "chatty", "text", &bytes.Buffer{})
	assert.Equal(t, "info", log.GetLevel().String())
}

func TestContextGettersOnEmptyContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetUserID(ctx))
	assert.Empty(t, GetRole(ctx))
	assert.Equal(t, ctx, WithTraceID(ctx, ""))
	assert.NotEqual(t, NewTraceID(), NewTraceID())
}
