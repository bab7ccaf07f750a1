// Package identity provides anonymous chat session identifiers.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	SessionHeaderName = "X-Session-ID"
	SessionQueryParam = "session_id"
	sessionIDPrefix   = "session_"
)

type contextKey int

const sessionIDKey contextKey = iota

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// NewSessionID returns a fresh opaque session identifier.
func NewSessionID() string {
	return sessionIDPrefix + uuid.NewString()
}

// SanitizeSessionID trims id and reports whether it is an acceptable
// identifier. Invalid input yields "".
func SanitizeSessionID(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return "", false
	}
	return id, true
}

// WithSessionID returns a copy of ctx carrying id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext extracts the session ID injected by Middleware.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// SessionIDFromRequest reads the session ID from the header, falling back to
// the query string.
func SessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get(SessionQueryParam)
	}
	id, _ := SanitizeSessionID(sid)
	return id
}

// Middleware injects the request's session ID, if any, into the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sid := SessionIDFromRequest(r); sid != "" {
			r = r.WithContext(WithSessionID(r.Context(), sid))
		}
		next.ServeHTTP(w, r)
	})
}

// IPFromRequest returns a normalized remote IP for rate limiting and tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
