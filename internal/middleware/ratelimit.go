// Package middleware provides HTTP middleware for the gateway
package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/VitalSync/health_layer/internal/errors"
	internalhttputil "github.com/VitalSync/health_layer/internal/httputil"
	"github.com/VitalSync/health_layer/internal/logging"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter provides rate limiting keyed by client IP. It runs before
// authentication, so anonymous and signed-in traffic share one bucket per IP.
type RateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	logger   *logging.Logger
	now      func() time.Time

	idleTTL  time.Duration
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(requestsPerSecond int, burst int, logger *logging.Logger) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		logger:   logger,
		now:      time.Now,
		idleTTL:  10 * time.Minute,
		interval: time.Minute,
	}
}

// getLimiter returns the rate limiter for a client IP
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.limiters[key]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = rl.now()
	return entry.limiter
}

// Handler returns the rate limiting middleware handler
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)

		if !rl.getLimiter(key).Allow() {
			rl.logger.LogSecurityEvent(r.Context(), "rate_limit_exceeded", map[string]interface{}{
				"key":    key,
				"path":   r.URL.Path,
				"method": r.Method,
			})

			w.Header().Set("Retry-After", strconv.Itoa(1))
			internalhttputil.WriteError(w, r, errors.RateLimitExceeded(int(rl.rate), "1s"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Cleanup removes limiters idle for longer than the idle TTL.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idleTTL)
	removed := 0
	for key, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// Name implements system.Service.
func (rl *RateLimiter) Name() string { return "rate-limiter" }

// Start runs Cleanup periodically until Stop.
func (rl *RateLimiter) Start(context.Context) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.stop != nil {
		return nil
	}
	rl.stop = make(chan struct{})
	rl.done = make(chan struct{})

	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		ticker := time.NewTicker(rl.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-stop:
				return
			}
		}
	}(rl.stop, rl.done)
	return nil
}

// Stop halts the cleanup loop.
func (rl *RateLimiter) Stop(ctx context.Context) error {
	rl.mu.Lock()
	stop, done := rl.stop, rl.done
	rl.stop, rl.done = nil, nil
	rl.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
