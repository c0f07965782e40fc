package ssoBroker

import (
	"net/http"
	"time"
)

// SecurityReport summarizes the effective security posture of a Broker.
type SecurityReport struct {
	AuthorityURL        string
	AuthorityTimeout    time.Duration
	CookieName          string
	CookieOrgDomain     string
	CookieSameSite      string
	TrustForwardedProto bool
	StaleCookiePolicy   string
	SessionStore        string
	SessionEncrypted    bool
	SessionIdleTTL      time.Duration
	LoginThrottle       bool
	IPThrottle          bool
	MaxLoginAttempts    int
	AuditEnabled        bool
	MetricsEnabled      bool
}

func (b *Broker) SecurityReport() SecurityReport {
	if b == nil {
		return SecurityReport{}
	}

	r := SecurityReport{
		AuthorityURL:        b.config.Authority.BaseURL,
		AuthorityTimeout:    b.config.Authority.Timeout,
		CookieName:          b.policy.Name,
		CookieOrgDomain:     b.policy.OrgDomain,
		CookieSameSite:      sameSiteName(b.policy.SameSite),
		TrustForwardedProto: b.policy.TrustForwardedProto,
		StaleCookiePolicy:   b.config.StaleCookie.String(),
		SessionStore:        b.sessionStore,
		LoginThrottle:       b.limiter != nil,
		IPThrottle:          b.limiter != nil && b.config.Security.EnableIPThrottle,
		AuditEnabled:        b.config.Audit.Enabled,
		MetricsEnabled:      b.metrics.Enabled(),
	}
	if b.sessions != nil {
		r.SessionEncrypted = len(b.config.Session.BlockKey) > 0
		r.SessionIdleTTL = b.config.Session.IdleTTL
	}
	if r.LoginThrottle {
		r.MaxLoginAttempts = b.config.Security.MaxLoginAttempts
	}
	return r
}

func sameSiteName(s http.SameSite) string {
	switch s {
	case http.SameSiteLaxMode:
		return "lax"
	case http.SameSiteStrictMode:
		return "strict"
	case http.SameSiteNoneMode:
		return "none"
	default:
		return "default"
	}
}
