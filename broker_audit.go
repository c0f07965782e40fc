package ssoBroker

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/ssoBroker/internal/audit"
)

const (
	auditEventSessionCreated           = "session_created"
	auditEventSessionCreateRejected    = "session_create_rejected"
	auditEventSessionCreateUnavailable = "session_create_unavailable"
	auditEventSessionCreateMalformed   = "session_create_malformed"
	auditEventLoginRateLimited         = "login_rate_limited"
	auditEventSessionResumed           = "session_resumed"
	auditEventSessionResumeRejected    = "session_resume_rejected"
	auditEventSessionResumeUnavailable = "session_resume_unavailable"
	auditEventSessionResumeMalformed   = "session_resume_malformed"
	auditEventSessionEnded             = "session_ended"
	auditEventStaleCookieCleared       = "stale_cookie_cleared"
)

// AuditErrorCode is the coarse error classification recorded on audit events.
type AuditErrorCode string

const (
	auditErrBlankCredentials AuditErrorCode = "blank_credentials"
	auditErrRejected         AuditErrorCode = "rejected"
	auditErrUnavailable      AuditErrorCode = "authority_unavailable"
	auditErrMalformed        AuditErrorCode = "malformed_result"
	auditErrRateLimited      AuditErrorCode = "rate_limited"
	auditErrInternal         AuditErrorCode = "internal_error"
)

var errBlankCredentials = errors.New("blank credentials")

func (b *Broker) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subjectID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if b == nil || b.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := audit.Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		SubjectID: subjectID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	b.audit.Emit(ctx, event)
}

// schemaMetadata tags malformed-result events with the configured wire schema.
func (b *Broker) schemaMetadata() map[string]string {
	return map[string]string{"schema": string(b.config.Authority.Schema)}
}

func (b *Broker) staleCookieMetadata() map[string]string {
	return map[string]string{"policy": b.config.StaleCookie.String()}
}

// auditErrorCode never returns err.Error(): wrapped transport errors can
// carry response fragments.
func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, errBlankCredentials):
		return auditErrBlankCredentials
	case errors.Is(err, ErrLoginRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrMalformedResult):
		return auditErrMalformed
	case errors.Is(err, ErrRejected):
		return auditErrRejected
	case errors.Is(err, ErrUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
