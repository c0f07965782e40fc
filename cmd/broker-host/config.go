package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	ssoBroker "github.com/MrEthical07/ssoBroker"
	"github.com/MrEthical07/ssoBroker/authority"
	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	Listen            string `yaml:"listen"`
	RedisAddr         string `yaml:"redis_addr"`
	LogVerbosity      int    `yaml:"log_verbosity"`
	TrustForwardedFor bool   `yaml:"trust_forwarded_for"`

	Authority struct {
		BaseURL             string        `yaml:"base_url"`
		NewSessionPath      string        `yaml:"new_session_path"`
		ExistingSessionPath string        `yaml:"existing_session_path"`
		Timeout             time.Duration `yaml:"timeout"`
		Schema              string        `yaml:"schema"`
	} `yaml:"authority"`

	Cookie struct {
		Name                string   `yaml:"name"`
		OrgDomain           string   `yaml:"org_domain"`
		LoopbackHosts       []string `yaml:"loopback_hosts"`
		SameSite            string   `yaml:"same_site"`
		TrustForwardedProto bool     `yaml:"trust_forwarded_proto"`
		StaleCookie         string   `yaml:"stale_cookie"`
	} `yaml:"cookie"`

	Session struct {
		CookieName       string        `yaml:"cookie_name"`
		HashKey          string        `yaml:"hash_key"`
		BlockKey         string        `yaml:"block_key"`
		RedisPrefix      string        `yaml:"redis_prefix"`
		IdleTTL          time.Duration `yaml:"idle_ttl"`
		AbsoluteLifetime time.Duration `yaml:"absolute_lifetime"`
	} `yaml:"session"`

	Security struct {
		LoginThrottle    bool          `yaml:"login_throttle"`
		IPThrottle       bool          `yaml:"ip_throttle"`
		MaxLoginAttempts int           `yaml:"max_login_attempts"`
		LoginCooldown    time.Duration `yaml:"login_cooldown"`
	} `yaml:"security"`

	Audit struct {
		Enabled    bool   `yaml:"enabled"`
		BufferSize int    `yaml:"buffer_size"`
		Sink       string `yaml:"sink"`
	} `yaml:"audit"`

	Metrics struct {
		Enabled           bool `yaml:"enabled"`
		LatencyHistograms bool `yaml:"latency_histograms"`
	} `yaml:"metrics"`
}

func defaultFileConfig() fileConfig {
	var fc fileConfig
	fc.Listen = ":5001"
	fc.Metrics.Enabled = true
	fc.Metrics.LatencyHistograms = true
	fc.Audit.Sink = "log"
	return fc
}

func loadFileConfig(path string) (fileConfig, error) {
	fc := defaultFileConfig()
	if path == "" {
		return fc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return fc, fmt.Errorf("parse config %s: %w", path, err)
	}
	return fc, nil
}

// brokerConfig overlays the file settings on ssoBroker.DefaultConfig.
func (fc fileConfig) brokerConfig() (ssoBroker.Config, error) {
	cfg := ssoBroker.DefaultConfig()

	a := fc.Authority
	cfg.Authority.BaseURL = a.BaseURL
	setString(&cfg.Authority.NewSessionPath, a.NewSessionPath)
	setString(&cfg.Authority.ExistingSessionPath, a.ExistingSessionPath)
	setDuration(&cfg.Authority.Timeout, a.Timeout)
	if a.Schema != "" {
		cfg.Authority.Schema = authority.Schema(strings.ToLower(a.Schema))
	}

	c := fc.Cookie
	setString(&cfg.Cookie.Name, c.Name)
	setString(&cfg.Cookie.OrgDomain, c.OrgDomain)
	if len(c.LoopbackHosts) > 0 {
		cfg.Cookie.LoopbackHosts = c.LoopbackHosts
	}
	cfg.Cookie.TrustForwardedProto = c.TrustForwardedProto
	if c.SameSite != "" {
		ss, err := parseSameSite(c.SameSite)
		if err != nil {
			return cfg, err
		}
		cfg.Cookie.SameSite = ss
	}
	policy, err := ssoBroker.ParseStaleCookiePolicy(c.StaleCookie)
	if err != nil {
		return cfg, err
	}
	cfg.StaleCookie = policy

	s := fc.Session
	setString(&cfg.Session.CookieName, s.CookieName)
	setString(&cfg.Session.RedisPrefix, s.RedisPrefix)
	setDuration(&cfg.Session.IdleTTL, s.IdleTTL)
	setDuration(&cfg.Session.AbsoluteLifetime, s.AbsoluteLifetime)
	if cfg.Session.HashKey, err = decodeKey("session.hash_key", s.HashKey); err != nil {
		return cfg, err
	}
	if cfg.Session.BlockKey, err = decodeKey("session.block_key", s.BlockKey); err != nil {
		return cfg, err
	}

	sec := fc.Security
	cfg.Security.EnableLoginThrottle = sec.LoginThrottle
	cfg.Security.EnableIPThrottle = sec.IPThrottle
	if sec.MaxLoginAttempts > 0 {
		cfg.Security.MaxLoginAttempts = sec.MaxLoginAttempts
	}
	setDuration(&cfg.Security.LoginCooldownDuration, sec.LoginCooldown)

	cfg.Audit.Enabled = fc.Audit.Enabled
	if fc.Audit.BufferSize > 0 {
		cfg.Audit.BufferSize = fc.Audit.BufferSize
	}

	cfg.Metrics.Enabled = fc.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = fc.Metrics.LatencyHistograms

	return cfg, cfg.Validate()
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func parseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(s) {
	case "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	case "default":
		return http.SameSiteDefaultMode, nil
	default:
		return 0, fmt.Errorf("unknown same_site %q", s)
	}
}

func decodeKey(field, s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%s must be hex: %w", field, err)
	}
	return b, nil
}
