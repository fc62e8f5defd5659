// Package logging wraps logrus with the request-scoped fields the service layer
// attaches to every log line.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	TraceIDKey contextKey = "trace_id"
	UserIDKey  contextKey = "user_id"
	RoleKey    contextKey = "role"
)

// Logger is a logrus logger bound to a service name.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a logger. Format is "json" or "text"; unknown levels fall back to info.
func New(service, level, format string) *Logger {
	return NewWithOutput(service, level, format, os.Stdout)
}

// NewWithOutput creates a logger writing to out.
func NewWithOutput(service, level, format string, out io.Writer) *Logger {
	l := logrus.New()
	l.SetOutput(out)

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &Logger{Logger: l, service: service}
}

// NewDefault creates an info-level text logger.
func NewDefault(service string) *Logger {
	return New(service, "info", "text")
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return NewWithOutput("test", "panic", "text", io.Discard)
}

// Service returns the service name the logger was created with.
func (l *Logger) Service() string {
	return l.service
}

// WithContext returns an entry carrying the service, trace, user and role fields.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	fields := logrus.Fields{"service": l.service}
	if ctx != nil {
		if v := GetTraceID(ctx); v != "" {
			fields["trace_id"] = v
		}
		if v := GetUserID(ctx); v != "" {
			fields["user_id"] = v
		}
		if v := GetRole(ctx); v != "" {
			fields["role"] = v
		}
	}
	return l.Logger.WithFields(fields)
}

// Named returns a logger sharing output and level with a different service name.
func (l *Logger) Named(service string) *Logger {
	return &Logger{Logger: l.Logger, service: service}
}

// LogRequest logs one completed HTTP request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})
	switch {
	case status >= 500:
		entry.Error("request failed")
	case status >= 400:
		entry.Info("request rejected")
	default:
		entry.Debug("request completed")
	}
}

// LogSecurityEvent logs authentication and abuse related events.
func (l *Logger) LogSecurityEvent(ctx context.Context, event string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(fields).WithField("security_event", event).Warn("security event")
}

// NewTraceID returns a fresh trace identifier.
func NewTraceID() string {
	return uuid.NewString()
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, RoleKey, role)
}

func GetRole(ctx context.Context) string {
	v, _ := ctx.Value(RoleKey).(string)
	return v
}
