package ssoBroker

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type clientIPContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Broker uses it
// for per-IP login throttling and audit events. Without it the request's
// RemoteAddr is used.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

// requestContext returns r's context carrying a client IP, taken from the
// context when the host set one and from RemoteAddr otherwise.
func requestContext(r *http.Request) context.Context {
	ctx := r.Context()
	if clientIPFromContext(ctx) != "" {
		return ctx
	}
	host := strings.TrimSpace(r.RemoteAddr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" {
		return ctx
	}
	return WithClientIP(ctx, host)
}
