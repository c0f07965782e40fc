// Package cookie decides how the bearer-token cookie is scoped and writes it.
//
// The same [Policy.Attributes] computation is used for issuing and deleting
// the cookie. A browser only removes a cookie when the deletion carries the
// same name, domain and path it was set with, so the two paths must never
// diverge.
//
// The token is query-escaped on the wire so any opaque token survives the
// cookie value grammar; [Policy.Token] reverses it.
package cookie

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

const (
	// DefaultName is the bearer-token cookie name.
	DefaultName = "auth-token"
	// DefaultOrgDomain is the shared parent domain used outside local development.
	DefaultOrgDomain = ".ei.hv.se"
)

// DefaultLoopbackHosts are treated as local development hosts.
var DefaultLoopbackHosts = []string{"localhost", "127.0.0.1", "::1"}

// Policy scopes the bearer-token cookie.
type Policy struct {
	Name      string
	OrgDomain string
	// LoopbackHosts get a host-only, non-Secure cookie so plain HTTP works locally.
	LoopbackHosts []string
	Path          string
	SameSite      http.SameSite
	// TrustForwardedProto treats X-Forwarded-Proto: https as an encrypted
	// request. Only enable behind a proxy that sets the header itself.
	TrustForwardedProto bool
}

// Attributes carries the computed scoping for one request.
type Attributes struct {
	Domain string
	Secure bool
}

// Normalize fills defaults and returns the resulting policy.
func (p Policy) Normalize() Policy {
	if p.Name == "" {
		p.Name = DefaultName
	}
	if p.OrgDomain == "" {
		p.OrgDomain = DefaultOrgDomain
	}
	if !strings.HasPrefix(p.OrgDomain, ".") {
		p.OrgDomain = "." + p.OrgDomain
	}
	if p.LoopbackHosts == nil {
		p.LoopbackHosts = DefaultLoopbackHosts
	}
	if p.Path == "" {
		p.Path = "/"
	}
	if p.SameSite == 0 {
		p.SameSite = http.SameSiteLaxMode
	}
	return p
}

// Attributes computes domain and secure flags for r.
func (p Policy) Attributes(r *http.Request) Attributes {
	if p.IsLoopback(RequestHost(r)) {
		return Attributes{Domain: "", Secure: false}
	}
	return Attributes{
		Domain: p.OrgDomain,
		Secure: p.encrypted(r),
	}
}

// IsLoopback reports whether host is one of the configured development hosts.
func (p Policy) IsLoopback(host string) bool {
	for _, h := range p.LoopbackHosts {
		if strings.EqualFold(h, host) {
			return true
		}
	}
	return false
}

func (p Policy) encrypted(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	if p.TrustForwardedProto {
		return strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
	}
	return false
}

// Build returns the cookie carrying token. No Max-Age or Expires is set, so
// the cookie lives for the browser session.
func (p Policy) Build(r *http.Request, token string) *http.Cookie {
	attrs := p.Attributes(r)
	return &http.Cookie{
		Name:     p.Name,
		Value:    url.QueryEscape(token),
		Path:     p.Path,
		Domain:   attrs.Domain,
		Secure:   attrs.Secure,
		HttpOnly: true,
		SameSite: p.SameSite,
	}
}

// BuildDeletion returns an expired cookie with the same scoping as Build.
func (p Policy) BuildDeletion(r *http.Request) *http.Cookie {
	c := p.Build(r, "")
	c.MaxAge = -1
	return c
}

// Issue writes the token cookie.
func (p Policy) Issue(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, p.Build(r, token))
}

// Delete writes the expiring counterpart of Issue.
func (p Policy) Delete(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, p.BuildDeletion(r))
}

// Token returns the presented bearer token, if any.
func (p Policy) Token(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}
	c, err := r.Cookie(p.Name)
	if err != nil || c.Value == "" {
		return "", false
	}
	token, err := url.QueryUnescape(c.Value)
	if err != nil || token == "" {
		return "", false
	}
	return token, true
}

// RequestHost returns the request host without port, lower-cased.
func RequestHost(r *http.Request) string {
	if r == nil {
		return ""
	}
	host := r.Host
	if host == "" && r.URL != nil {
		host = r.URL.Host
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	return strings.ToLower(host)
}
