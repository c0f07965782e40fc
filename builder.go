package ssoBroker

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/ssoBroker/authority"
	"github.com/MrEthical07/ssoBroker/cookie"
	"github.com/MrEthical07/ssoBroker/internal/audit"
	"github.com/MrEthical07/ssoBroker/internal/rate"
	"github.com/MrEthical07/ssoBroker/session"
	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
)

// Builder assembles a [Broker]. It is single-use and not safe for
// concurrent use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	authority    Authority
	httpClient   *http.Client
	sessionStore session.Store
	auditSink    AuditSink
	logger       logr.Logger

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
		logger: logr.Discard(),
	}
}

// WithConfig replaces the whole configuration with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the host session store and the
// login throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuthority replaces the HTTP authority client built from
// Config.Authority, typically with a test double.
func (b *Builder) WithAuthority(a Authority) *Builder {
	b.authority = a
	return b
}

// WithHTTPClient sets the transport shared by all authority calls.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithSessionStore overrides the session store picked from WithRedis.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.sessionStore = store
	return b
}

// WithAuditSink sets where audit events go when Config.Audit is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger. The default discards everything.
func (b *Builder) WithLogger(logger logr.Logger) *Builder {
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	b.logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready [Broker].
func (b *Builder) Build() (*Broker, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.authority != nil && cfg.Authority.BaseURL == "" {
		// An injected authority makes the URL irrelevant.
		cfg.Authority.BaseURL = "http://authority.invalid"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Security.EnableLoginThrottle && b.redis == nil {
		return nil, errors.New("login throttle requires redis client")
	}

	logger := b.logger.WithName("ssobroker")

	// -------- AUTHORITY --------
	auth := b.authority
	if auth == nil {
		client, err := authority.New(authority.Config{
			BaseURL:             cfg.Authority.BaseURL,
			NewSessionPath:      cfg.Authority.NewSessionPath,
			ExistingSessionPath: cfg.Authority.ExistingSessionPath,
			Timeout:             cfg.Authority.Timeout,
			Schema:              cfg.Authority.Schema,
			HTTPClient:          b.httpClient,
		})
		if err != nil {
			return nil, err
		}
		auth = client
	}

	// -------- COOKIE POLICY --------
	policy := cookie.Policy{
		Name:                cfg.Cookie.Name,
		OrgDomain:           cfg.Cookie.OrgDomain,
		LoopbackHosts:       cfg.Cookie.LoopbackHosts,
		Path:                cfg.Cookie.Path,
		SameSite:            cfg.Cookie.SameSite,
		TrustForwardedProto: cfg.Cookie.TrustForwardedProto,
	}.Normalize()

	broker := &Broker{
		config:    cfg,
		authority: auth,
		policy:    policy,
		redis:     b.redis,
		logger:    logger,
	}

	// -------- SESSION STORE --------
	if len(cfg.Session.HashKey) > 0 {
		store := b.sessionStore
		broker.sessionStore = "custom"
		if store == nil {
			broker.sessionStore = "redis"
			if b.redis != nil {
				store = session.NewRedisStore(b.redis, session.RedisConfig{
					Prefix:            cfg.Session.RedisPrefix,
					IdleTTL:           cfg.Session.IdleTTL,
					AbsoluteLifetime:  cfg.Session.AbsoluteLifetime,
					SlidingExpiration: cfg.Session.SlidingExpiration,
					JitterEnabled:     cfg.Session.JitterEnabled,
					JitterRange:       cfg.Session.JitterRange,
				})
			} else {
				broker.sessionStore = "memory"
				logger.Info("no redis client, keeping sessions in process memory")
				store = session.NewMemoryStore(cfg.Session.IdleTTL)
			}
		}

		manager, err := session.NewManager(store, session.ManagerConfig{
			CookieName:          cfg.Session.CookieName,
			HashKey:             cfg.Session.HashKey,
			BlockKey:            cfg.Session.BlockKey,
			Path:                cfg.Cookie.Path,
			SameSite:            cfg.Cookie.SameSite,
			TrustForwardedProto: cfg.Cookie.TrustForwardedProto,
			Logger:              logger,
		})
		if err != nil {
			return nil, err
		}
		broker.sessions = manager
	}

	// -------- THROTTLE --------
	if cfg.Security.EnableLoginThrottle {
		broker.limiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle:      cfg.Security.EnableIPThrottle,
			MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
		})
	}

	broker.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	broker.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return broker, nil
}
