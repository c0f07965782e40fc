package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	ssoBroker "github.com/MrEthical07/ssoBroker"
	"github.com/MrEthical07/ssoBroker/session"
)

type attributesContextKey struct{}

// AttributesFromContext returns the broker attributes stored by
// [RequireSession].
func AttributesFromContext(ctx context.Context) (map[string]string, bool) {
	attrs, ok := ctx.Value(attributesContextKey{}).(map[string]string)
	return attrs, ok
}

// SessionResolver finds the host session for a request.
type SessionResolver func(r *http.Request) (session.Values, bool)

// FromSessionManager resolves sessions loaded by [session.Manager.Middleware].
func FromSessionManager(r *http.Request) (session.Values, bool) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		return nil, false
	}
	return s, true
}

// GuardOptions configures [RequireSession].
type GuardOptions struct {
	// LoginPath, when set, receives GET and HEAD requests that are not
	// authenticated. Other methods get 401.
	LoginPath string
	// Resolver defaults to FromSessionManager.
	Resolver SessionResolver
}

// RequireSession lets a request through only when broker.ResumeSession
// reports the host session as authenticated. The session attributes are
// placed in the request context.
func RequireSession(broker *ssoBroker.Broker, opts GuardOptions) func(http.Handler) http.Handler {
	resolve := opts.Resolver
	if resolve == nil {
		resolve = FromSessionManager
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if broker == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			sess, ok := resolve(r)
			if !ok {
				http.Error(w, "session unavailable", http.StatusInternalServerError)
				return
			}

			authenticated, err := broker.ResumeSession(w, r, sess)
			if errors.Is(err, ssoBroker.ErrMalformedResult) {
				http.Error(w, "bad gateway", http.StatusBadGateway)
				return
			}
			if err != nil || !authenticated {
				deny(w, r, opts.LoginPath)
				return
			}

			ctx := context.WithValue(r.Context(), attributesContextKey{}, broker.ReadSessionAttributes(sess))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func deny(w http.ResponseWriter, r *http.Request, loginPath string) {
	if loginPath != "" && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
		http.Redirect(w, r, loginPath, http.StatusSeeOther)
		return
	}
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// ClientIP records the caller address for the broker's throttle and audit
// events. With trustForwardedFor the first X-Forwarded-For entry wins; only
// enable it behind a proxy that overwrites the header.
func ClientIP(trustForwardedFor bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ""
			if trustForwardedFor {
				if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
					first, _, _ := strings.Cut(xff, ",")
					ip = strings.TrimSpace(first)
				}
			}
			if ip == "" {
				ip = r.RemoteAddr
				if h, _, err := net.SplitHostPort(ip); err == nil {
					ip = h
				}
			}
			if ip != "" {
				r = r.WithContext(ssoBroker.WithClientIP(r.Context(), ip))
			}
			next.ServeHTTP(w, r)
		})
	}
}
