// Package metrics owns the Prometheus registry and the gateway's collectors.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vitalsync"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	authEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "events_total",
			Help:      "Authentication events by outcome.",
		},
		[]string{"event", "outcome"},
	)

	notificationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "created_total",
			Help:      "Notifications persisted, by type.",
		},
		[]string{"type"},
	)

	reminderRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "runs_total",
			Help:      "Reminder sweeps by outcome.",
		},
		[]string{"success"},
	)

	reminderDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "run_duration_seconds",
			Help:      "Duration of reminder sweeps.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	realtimeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Open notification stream connections.",
		},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by cache name and result.",
		},
		[]string{"cache", "result"},
	)

	uploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "uploads",
			Name:      "total",
			Help:      "Stored uploads by backend and outcome.",
		},
		[]string{"backend", "outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		authEvents,
		notificationsCreated,
		reminderRuns,
		reminderDuration,
		realtimeConnections,
		cacheLookups,
		uploads,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// TrackInFlight increments the in-flight gauge and returns its release func.
func TrackInFlight() func() {
	httpInFlight.Inc()
	return httpInFlight.Dec
}

// RecordHTTPRequest records one completed request. path should be the route
// template so label cardinality stays bounded.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	method = strings.ToUpper(method)
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAuthEvent counts login, register, logout and token validation outcomes.
func RecordAuthEvent(event string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	authEvents.WithLabelValues(event, outcome).Inc()
}

// RecordNotification counts a persisted notification.
func RecordNotification(kind string) {
	notificationsCreated.WithLabelValues(kind).Inc()
}

// RecordReminderRun records a reminder sweep.
func RecordReminderRun(duration time.Duration, success bool) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	reminderRuns.WithLabelValues(strconv.FormatBool(success)).Inc()
	reminderDuration.Observe(duration.Seconds())
}

// RealtimeConnected adjusts the open stream gauge by delta.
func RealtimeConnected(delta int) {
	realtimeConnections.Add(float64(delta))
}

// RecordCacheLookup counts a cache hit or miss.
func RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordUpload counts a stored or rejected upload.
func RecordUpload(backend string, ok bool) {
	outcome := "error"
	if ok {
		outcome = "stored"
	}
	uploads.WithLabelValues(backend, outcome).Inc()
}
