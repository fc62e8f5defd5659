// Package middleware provides HTTP middleware for the gateway
package middleware

import (
	"net/http"
	"strings"
)

// CORSMiddleware handles Cross-Origin Resource Sharing
type CORSMiddleware struct {
	allowedOrigins map[string]struct{}
	allowAll       bool
}

// NewCORSMiddleware creates a new CORS middleware. "*" allows any origin but
// then credentials are not advertised.
func NewCORSMiddleware(allowedOrigins []string) *CORSMiddleware {
	m := &CORSMiddleware{allowedOrigins: make(map[string]struct{})}
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" {
			continue
		}
		if origin == "*" {
			m.allowAll = true
			continue
		}
		m.allowedOrigins[origin] = struct{}{}
	}
	return m
}

// Handler returns the CORS middleware handler
func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Add("Vary", "Origin")
		}

		switch {
		case origin != "" && m.isOriginAllowed(origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			m.setCommonHeaders(w)
		case origin != "" && m.allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
			m.setCommonHeaders(w)
		case origin != "" && r.Method == http.MethodOptions:
			w.WriteHeader(http.StatusForbidden)
			return
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *CORSMiddleware) setCommonHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Trace-ID")
	w.Header().Set("Access-Control-Expose-Headers", "X-Trace-ID")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// isOriginAllowed checks if an origin is in the allowed list
func (m *CORSMiddleware) isOriginAllowed(origin string) bool {
	_, ok := m.allowedOrigins[strings.TrimRight(origin, "/")]
	return ok
}
