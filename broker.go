package ssoBroker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/ssoBroker/authority"
	"github.com/MrEthical07/ssoBroker/cookie"
	"github.com/MrEthical07/ssoBroker/internal/audit"
	"github.com/MrEthical07/ssoBroker/internal/rate"
	"github.com/MrEthical07/ssoBroker/session"
	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
)

// Session attribute keys written by the Broker.
const (
	AttrIsAuthenticated = "IsAuthenticated"
	AttrSubjectID       = "SubjectID"
	AttrSubjectRole     = "SubjectRole"
)

// Authority validates credentials and bearer tokens remotely.
// [*authority.Client] is the production implementation.
type Authority interface {
	ValidateNewLogin(ctx context.Context, cred authority.Credential) (*authority.ValidationResult, error)
	ValidateExistingToken(ctx context.Context, token string) (*authority.ValidationResult, error)
}

var _ Authority = (*authority.Client)(nil)

// Broker moves a host session between anonymous and authenticated. It keeps
// no per-session state and is safe for concurrent use.
type Broker struct {
	config    Config
	authority Authority
	policy    cookie.Policy
	limiter   *rate.Limiter
	redis     redis.UniversalClient
	sessions  *session.Manager
	audit     *audit.Dispatcher
	metrics   *Metrics
	logger    logr.Logger

	// sessionStore names the backing store for SecurityReport.
	sessionStore string
}

// CreateSession validates identifier and secret with the authority. On
// success it writes the subject into sess, issues the bearer-token cookie
// and returns true. A rejection, a transport failure, blank credentials or
// an exhausted login budget return false and leave sess untouched. Only a
// malformed successful response is returned as an error.
func (b *Broker) CreateSession(w http.ResponseWriter, r *http.Request, sess session.Values, identifier, secret string) (bool, error) {
	if b == nil {
		return false, ErrBrokerNotReady
	}
	if sess == nil {
		return false, ErrNilSession
	}
	ctx := requestContext(r)

	if strings.TrimSpace(identifier) == "" || secret == "" {
		b.metricInc(MetricCreateRejected)
		b.emitAudit(ctx, auditEventSessionCreateRejected, false, "", errBlankCredentials, nil)
		return false, nil
	}

	if b.limiter != nil {
		if err := b.limiter.CheckLogin(ctx, identifier, clientIPFromContext(ctx)); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				b.metricInc(MetricCreateRateLimited)
				b.emitAudit(ctx, auditEventLoginRateLimited, false, "", err, nil)
				b.logger.V(1).Info("login throttled", "identifier", identifier)
				return false, nil
			}
			b.metricInc(MetricThrottleFailOpen)
			b.logger.Error(err, "login throttle check failed, continuing without it")
		}
	}

	start := time.Now()
	res, err := b.authority.ValidateNewLogin(ctx, authority.Credential{Identifier: identifier, Secret: secret})
	b.metricObserve(MetricCreateLatency, time.Since(start))

	switch {
	case err == nil:
		applyResult(sess, res)
		b.policy.Issue(w, r, res.Token)
		if b.limiter != nil {
			if err := b.limiter.ResetLogin(ctx, identifier); err != nil {
				b.logger.Error(err, "login throttle reset failed")
			}
		}
		b.metricInc(MetricCreateSuccess)
		b.emitAudit(ctx, auditEventSessionCreated, true, res.SubjectID, nil, nil)
		b.logger.V(1).Info("session created", "subject", res.SubjectID)
		return true, nil

	case errors.Is(err, authority.ErrMalformedResult):
		b.metricInc(MetricCreateMalformed)
		b.emitAudit(ctx, auditEventSessionCreateMalformed, false, "", err, b.schemaMetadata)
		b.logger.Error(err, "authority returned a malformed login result")
		return false, fmt.Errorf("create session: %w", err)

	case errors.Is(err, authority.ErrRejected):
		if b.limiter != nil {
			if err := b.limiter.IncrementLogin(ctx, identifier, clientIPFromContext(ctx)); err != nil {
				b.logger.Error(err, "login throttle increment failed")
			}
		}
		b.metricInc(MetricCreateRejected)
		b.emitAudit(ctx, auditEventSessionCreateRejected, false, "", err, nil)
		b.logger.V(1).Info("login rejected", "identifier", identifier)
		return false, nil

	default:
		b.metricInc(MetricCreateUnavailable)
		b.emitAudit(ctx, auditEventSessionCreateUnavailable, false, "", err, nil)
		b.logger.Error(err, "authority unavailable during login")
		return false, nil
	}
}

// ResumeSession reports whether sess is authenticated. An already
// authenticated session answers true without a remote call. Otherwise the
// bearer-token cookie, when present, is re-validated and on success the
// subject is written into sess; the cookie itself is not reissued.
func (b *Broker) ResumeSession(w http.ResponseWriter, r *http.Request, sess session.Values) (bool, error) {
	if b == nil {
		return false, ErrBrokerNotReady
	}
	if sess == nil {
		return false, ErrNilSession
	}

	if _, ok := sess.Get(AttrIsAuthenticated); ok {
		b.metricInc(MetricResumeShortCircuit)
		return true, nil
	}

	token, ok := b.policy.Token(r)
	if !ok {
		b.metricInc(MetricResumeNoToken)
		return false, nil
	}
	ctx := requestContext(r)

	start := time.Now()
	res, err := b.authority.ValidateExistingToken(ctx, token)
	b.metricObserve(MetricResumeLatency, time.Since(start))

	switch {
	case err == nil:
		applyResult(sess, res)
		b.metricInc(MetricResumeSuccess)
		b.emitAudit(ctx, auditEventSessionResumed, true, res.SubjectID, nil, nil)
		b.logger.V(1).Info("session resumed", "subject", res.SubjectID)
		return true, nil

	case errors.Is(err, authority.ErrMalformedResult):
		b.metricInc(MetricResumeMalformed)
		b.emitAudit(ctx, auditEventSessionResumeMalformed, false, "", err, b.schemaMetadata)
		b.logger.Error(err, "authority returned a malformed token result")
		return false, fmt.Errorf("resume session: %w", err)

	case errors.Is(err, authority.ErrRejected):
		b.metricInc(MetricResumeRejected)
		b.emitAudit(ctx, auditEventSessionResumeRejected, false, "", err, nil)
		b.logger.V(1).Info("bearer token rejected")
		if b.config.StaleCookie == ClearRejectedCookie {
			b.policy.Delete(w, r)
			b.metricInc(MetricStaleCookieCleared)
			b.emitAudit(ctx, auditEventStaleCookieCleared, true, "", nil, b.staleCookieMetadata)
		}
		return false, nil

	default:
		b.metricInc(MetricResumeUnavailable)
		b.emitAudit(ctx, auditEventSessionResumeUnavailable, false, "", err, nil)
		b.logger.Error(err, "authority unavailable during resume")
		return false, nil
	}
}

// EndSession deletes the bearer-token cookie and clears sess. It is safe to
// call when no session exists.
func (b *Broker) EndSession(w http.ResponseWriter, r *http.Request, sess session.Values) {
	if b == nil {
		return
	}

	b.policy.Delete(w, r)

	var subjectID string
	if sess != nil {
		subjectID, _ = sess.Get(AttrSubjectID)
		sess.Clear()
	}

	b.metricInc(MetricSessionEnded)
	b.emitAudit(requestContext(r), auditEventSessionEnded, true, subjectID, nil, nil)
}

// ReadSessionAttributes returns the broker attributes present in sess.
// Absent attributes are omitted, never defaulted.
func (b *Broker) ReadSessionAttributes(sess session.Values) map[string]string {
	out := make(map[string]string, 3)
	if sess == nil {
		return out
	}
	for _, key := range []string{AttrIsAuthenticated, AttrSubjectID, AttrSubjectRole} {
		if v, ok := sess.Get(key); ok {
			out[key] = v
		}
	}
	return out
}

func applyResult(sess session.Values, res *authority.ValidationResult) {
	sess.Set(AttrIsAuthenticated, "true")
	sess.Set(AttrSubjectID, res.SubjectID)
	if role, ok := res.SubjectRole.Get(); ok {
		sess.Set(AttrSubjectRole, role)
	} else {
		sess.Delete(AttrSubjectRole)
	}
}

// CookiePolicy returns the normalized bearer-token cookie policy.
func (b *Broker) CookiePolicy() cookie.Policy {
	return b.policy
}

// Sessions returns the host session manager, or nil when Session.HashKey
// was not configured.
func (b *Broker) Sessions() *session.Manager {
	if b == nil {
		return nil
	}
	return b.sessions
}

// Ping checks the Redis backend used for sessions and throttling. Without
// Redis it always succeeds.
func (b *Broker) Ping(ctx context.Context) error {
	if b == nil {
		return ErrBrokerNotReady
	}
	if b.redis == nil {
		return nil
	}
	if err := b.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionStoreUnavailable, err)
	}
	return nil
}

// MetricsSnapshot returns a copy of the broker counters.
func (b *Broker) MetricsSnapshot() MetricsSnapshot {
	if b == nil {
		return MetricsSnapshot{}
	}
	return b.metrics.Snapshot()
}

// AuditDropped returns how many audit events were dropped under backpressure.
func (b *Broker) AuditDropped() uint64 {
	if b == nil {
		return 0
	}
	return b.audit.Dropped()
}

// Close drains the audit dispatcher. The Broker must not be used afterwards.
func (b *Broker) Close() {
	if b == nil {
		return
	}
	b.audit.Close()
}

func (b *Broker) metricInc(id MetricID) {
	b.metrics.Inc(id)
}

func (b *Broker) metricObserve(id MetricID, d time.Duration) {
	b.metrics.Observe(id, d)
}
