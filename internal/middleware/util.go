package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/common/helpers/templates"
)

type requestIDKey struct{}

// GetRequestID returns the request id attached by RequestID.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// maskClientPort removes the port from IP addresses.
func maskClientPort(address string) string {
	if host, _, err := net.SplitHostPort(address); err == nil {
		return host
	}
	if idx := strings.LastIndex(address, ":"); idx != -1 {
		return address[:idx]
	}
	return address
}

// getClientIP extracts and masks the client IP (removes port).
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	return maskClientPort(r.RemoteAddr)
}

func humanizeDuration(d time.Duration) string {
	s, err := templates.HumanizeDuration(d)
	if err != nil {
		return d.String()
	}
	return s
}
