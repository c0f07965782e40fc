package ssoBroker

import (
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/ssoBroker/authority"
	"github.com/MrEthical07/ssoBroker/cookie"
)

// Config is the complete broker configuration. Obtain a populated value from
// [DefaultConfig] and override fields; [Builder.Build] validates it.
type Config struct {
	Authority   AuthorityConfig
	Cookie      CookieConfig
	StaleCookie StaleCookiePolicy
	Session     SessionConfig
	Security    SecurityConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
AUTHORITY CONFIG
====================================
*/

// AuthorityConfig points the broker at the remote authority.
type AuthorityConfig struct {
	BaseURL             string
	NewSessionPath      string
	ExistingSessionPath string
	Timeout             time.Duration
	Schema              authority.Schema
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig scopes the bearer-token cookie. See [cookie.Policy].
type CookieConfig struct {
	Name                string
	OrgDomain           string
	LoopbackHosts       []string
	Path                string
	SameSite            http.SameSite
	TrustForwardedProto bool
}

// StaleCookiePolicy decides what ResumeSession does with a cookie whose token
// the authority refused.
type StaleCookiePolicy int

const (
	// KeepStaleCookie leaves the cookie in the browser. Every later request
	// re-validates it and fails again until the user logs in.
	KeepStaleCookie StaleCookiePolicy = iota
	// ClearRejectedCookie deletes the cookie when the authority rejected the
	// token. Transport failures never clear it.
	ClearRejectedCookie
)

func (p StaleCookiePolicy) String() string {
	switch p {
	case KeepStaleCookie:
		return "keep"
	case ClearRejectedCookie:
		return "clear-rejected"
	default:
		return "unknown"
	}
}

// ParseStaleCookiePolicy maps "keep" and "clear-rejected" to their policy.
func ParseStaleCookiePolicy(s string) (StaleCookiePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep":
		return KeepStaleCookie, nil
	case "clear-rejected", "clear":
		return ClearRejectedCookie, nil
	default:
		return 0, errors.New("unknown stale cookie policy " + s)
	}
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the host session store built by the Builder.
// Leaving HashKey empty disables it; hosts then bring their own
// [session.Values] implementation.
type SessionConfig struct {
	CookieName        string
	HashKey           []byte
	BlockKey          []byte
	RedisPrefix       string
	IdleTTL           time.Duration
	AbsoluteLifetime  time.Duration
	SlidingExpiration bool
	JitterEnabled     bool
	JitterRange       time.Duration
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig controls the login throttle in front of the authority.
type SecurityConfig struct {
	EnableLoginThrottle   bool
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the defaults. Authority.BaseURL must still be set.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Authority: AuthorityConfig{
			NewSessionPath:      authority.DefaultNewSessionPath,
			ExistingSessionPath: authority.DefaultExistingSessionPath,
			Timeout:             10 * time.Second,
			Schema:              authority.SchemaCanonical,
		},
		Cookie: CookieConfig{
			Name:          cookie.DefaultName,
			OrgDomain:     cookie.DefaultOrgDomain,
			LoopbackHosts: append([]string(nil), cookie.DefaultLoopbackHosts...),
			Path:          "/",
			SameSite:      http.SameSiteLaxMode,
		},
		StaleCookie: KeepStaleCookie,
		Session: SessionConfig{
			RedisPrefix:       "bs",
			IdleTTL:           20 * time.Minute,
			AbsoluteLifetime:  12 * time.Hour,
			SlidingExpiration: true,
			JitterEnabled:     true,
			JitterRange:       30 * time.Second,
		},
		Security: SecurityConfig{
			EnableLoginThrottle:   false,
			EnableIPThrottle:      false,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Cookie.LoopbackHosts = append([]string(nil), cfg.Cookie.LoopbackHosts...)
	out.Session.HashKey = cloneBytes(cfg.Session.HashKey)
	out.Session.BlockKey = cloneBytes(cfg.Session.BlockKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Authority
	if strings.TrimSpace(c.Authority.BaseURL) == "" {
		return errors.New("Authority BaseURL is required")
	}
	if c.Authority.Timeout <= 0 {
		return errors.New("Authority Timeout must be > 0")
	}
	if !c.Authority.Schema.Valid() {
		return errors.New("Authority Schema is invalid")
	}
	if c.Authority.NewSessionPath == c.Authority.ExistingSessionPath {
		return errors.New("Authority NewSessionPath and ExistingSessionPath must differ")
	}

	// Cookie
	if !validCookieName(c.Cookie.Name) {
		return errors.New("Cookie Name is invalid")
	}
	if strings.Trim(c.Cookie.OrgDomain, ".") == "" {
		return errors.New("Cookie OrgDomain is required")
	}
	if c.Cookie.Path == "" || !strings.HasPrefix(c.Cookie.Path, "/") {
		return errors.New("Cookie Path must start with /")
	}
	switch c.Cookie.SameSite {
	case http.SameSiteDefaultMode, http.SameSiteLaxMode, http.SameSiteStrictMode, http.SameSiteNoneMode:
	default:
		return errors.New("Cookie SameSite is invalid")
	}

	switch c.StaleCookie {
	case KeepStaleCookie, ClearRejectedCookie:
	default:
		return errors.New("StaleCookie policy is invalid")
	}

	// Session
	if len(c.Session.HashKey) > 0 {
		if len(c.Session.HashKey) < 32 {
			return errors.New("Session HashKey must be >= 32 bytes")
		}
		switch len(c.Session.BlockKey) {
		case 0, 16, 24, 32:
		default:
			return errors.New("Session BlockKey must be 16, 24 or 32 bytes")
		}
		if c.Session.CookieName != "" && !validCookieName(c.Session.CookieName) {
			return errors.New("Session CookieName is invalid")
		}
		if c.Session.CookieName == c.Cookie.Name {
			return errors.New("Session CookieName must differ from Cookie Name")
		}
	}
	if c.Session.IdleTTL <= 0 {
		return errors.New("Session IdleTTL must be > 0")
	}
	if c.Session.AbsoluteLifetime < 0 {
		return errors.New("Session AbsoluteLifetime must be >= 0")
	}
	if c.Session.JitterRange < 0 {
		return errors.New("Session JitterRange must be >= 0")
	}
	if c.Session.JitterRange > time.Duration((math.MaxInt64-1)/2) {
		return errors.New("Session JitterRange is too large")
	}
	if c.Session.JitterEnabled && c.Session.JitterRange <= 0 {
		return errors.New("Session JitterRange must be > 0 when JitterEnabled is true")
	}

	// Security
	if c.Security.EnableIPThrottle && !c.Security.EnableLoginThrottle {
		return errors.New("Security EnableIPThrottle requires EnableLoginThrottle")
	}
	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 {
			return errors.New("Security MaxLoginAttempts must be > 0")
		}
		if c.Security.LoginCooldownDuration <= 0 {
			return errors.New("Security LoginCooldownDuration must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

func validCookieName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r <= ' ' || r >= 0x7f || strings.ContainsRune("()<>@,;:\\\"/[]?={}", r) {
			return false
		}
	}
	return true
}
