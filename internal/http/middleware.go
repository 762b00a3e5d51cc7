package httpapp

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/connectly-api/connectly/internal/settings"
)

// slowRequestThreshold marks requests worth a SLOW_REQUEST metric.
const slowRequestThreshold = time.Second

// responseWriter captures the status code for the request log.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// withRequestLog wraps a handler with per-request event logging: every
// request gets an X-Request-Id, an API request record, a security event for
// auth failures and server errors, and a SLOW_REQUEST metric when analytics
// are enabled.
func (s *Server) withRequestLog(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
	rw.Header().Set("X-Request-Id", uuid.NewString())

	username := ""
	if verified := identity(r); verified != nil {
		username = verified.Username
	}

	start := time.Now()
	next(rw, r)
	elapsed := time.Since(start)

	s.events.LogAPIRequest(r.Method, r.URL.Path, username, rw.status)

	switch {
	case rw.status == http.StatusUnauthorized:
		s.events.LogSecurityEvent("UNAUTHORIZED_ACCESS", fmt.Sprintf("%s %s", r.Method, r.URL.Path), username)
	case rw.status == http.StatusForbidden:
		s.events.LogSecurityEvent("FORBIDDEN_ACCESS", fmt.Sprintf("%s %s", r.Method, r.URL.Path), username)
	case rw.status >= http.StatusInternalServerError:
		s.events.LogSecurityEvent("SERVER_ERROR", fmt.Sprintf("%s %s returned %d", r.Method, r.URL.Path, rw.status), username)
	}

	if elapsed > slowRequestThreshold && s.settings.Bool(settings.KeyEnableAnalytics) {
		s.events.LogPerformanceMetric("SLOW_REQUEST", elapsed.Seconds(),
			fmt.Sprintf("%s %s took %.2fs", r.Method, r.URL.Path, elapsed.Seconds()))
	}
}

// allowRateLimit enforces the hourly budget from the RATE_LIMIT setting,
// keyed by username when authenticated and client IP otherwise. A budget of
// zero or less disables limiting.
func (s *Server) allowRateLimit(w http.ResponseWriter, r *http.Request) bool {
	limit := s.settings.Int(settings.KeyRateLimit)
	if limit <= 0 {
		return true
	}
	key := "ip:" + clientIP(r)
	username := ""
	if verified := identity(r); verified != nil {
		username = verified.Username
		key = "user:" + username
	}
	d := s.limiter.Allow(key, limit)
	if !d.OK {
		s.events.LogSecurityEvent("RATE_LIMIT_EXCEEDED", fmt.Sprintf("%s %s", r.Method, r.URL.Path), username)
		writeRateLimit(w, d.RetryAfter)
		return false
	}
	return true
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
