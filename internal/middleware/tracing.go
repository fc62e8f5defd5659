// Package middleware provides HTTP middleware for the gateway
package middleware

import (
	"net/http"
	"time"

	"github.com/VitalSync/health_layer/internal/errors"
	internalhttputil "github.com/VitalSync/health_layer/internal/httputil"
	"github.com/VitalSync/health_layer/internal/logging"
)

// TraceHeader carries the request trace ID in both directions.
const TraceHeader = "X-Trace-ID"

// TracingMiddleware adds trace ID to all requests, logs them and turns panics
// into 500 responses.
type TracingMiddleware struct {
	logger *logging.Logger
}

// NewTracingMiddleware creates a new tracing middleware
func NewTracingMiddleware(logger *logging.Logger) *TracingMiddleware {
	return &TracingMiddleware{
		logger: logger,
	}
}

// Handler returns the tracing middleware handler
func (m *TracingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" || len(traceID) > 128 {
			traceID = logging.NewTraceID()
		}

		ctx := logging.WithTraceID(r.Context(), traceID)
		w.Header().Set(TraceHeader, traceID)

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		r = r.WithContext(ctx)
		start := time.Now()

		defer func() {
			if rec := recover(); rec != nil {
				m.logger.WithContext(ctx).WithField("panic", rec).Error("Recovered from handler panic")
				if !rw.written {
					internalhttputil.WriteError(rw, r, errors.Internal("internal server error", nil))
				}
				rw.statusCode = http.StatusInternalServerError
			}
			m.logger.LogRequest(ctx, r.Method, r.URL.Path, rw.statusCode, time.Since(start))
		}()

		next.ServeHTTP(rw, r)
	})
}
