package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

// DefaultCookieName names the cookie carrying the signed session id.
const DefaultCookieName = "broker-sid"

// ManagerConfig configures a [Manager].
type ManagerConfig struct {
	CookieName string
	// HashKey signs the id cookie; at least 32 bytes.
	HashKey []byte
	// BlockKey optionally encrypts the id cookie (16, 24 or 32 bytes).
	BlockKey            []byte
	Path                string
	SameSite            http.SameSite
	TrustForwardedProto bool
	Logger              logr.Logger
}

// Manager binds requests to sessions in a [Store].
type Manager struct {
	store  Store
	codec  *securecookie.SecureCookie
	cfg    ManagerConfig
	logger logr.Logger
}

// NewManager validates cfg and returns a [Manager].
func NewManager(store Store, cfg ManagerConfig) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session store required")
	}
	if len(cfg.HashKey) < 32 {
		return nil, errors.New("session HashKey must be at least 32 bytes")
	}
	switch len(cfg.BlockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, errors.New("session BlockKey must be 16, 24 or 32 bytes")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.SameSite == 0 {
		cfg.SameSite = http.SameSiteLaxMode
	}

	blockKey := cfg.BlockKey
	if len(blockKey) == 0 {
		blockKey = nil
	}
	codec := securecookie.New(cfg.HashKey, blockKey)
	// Expiry is the store's job; the cookie itself is browser-session scoped.
	codec.MaxAge(0)

	logger := cfg.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	return &Manager{
		store:  store,
		codec:  codec,
		cfg:    cfg,
		logger: logger.WithName("session"),
	}, nil
}

// Load returns the session bound to r. An absent, forged or expired id cookie
// yields a fresh session with a new id; a store outage is logged and also
// yields a fresh session.
func (m *Manager) Load(r *http.Request) *Session {
	id, ok := m.decodeID(r)
	if !ok {
		return m.fresh()
	}

	values, err := m.store.Load(r.Context(), id)
	switch {
	case err == nil:
		return newSession(id, values, false)
	case errors.Is(err, ErrNotFound):
		return m.fresh()
	default:
		m.logger.Error(err, "session load failed, starting empty session")
		return m.fresh()
	}
}

func (m *Manager) fresh() *Session {
	return newSession(uuid.NewString(), nil, true)
}

func (m *Manager) decodeID(r *http.Request) (string, bool) {
	c, err := r.Cookie(m.cfg.CookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	var id string
	if err := m.codec.Decode(m.cfg.CookieName, c.Value, &id); err != nil {
		m.logger.V(1).Info("discarding undecodable session cookie")
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// Commit persists s if it changed. An emptied session is deleted from the
// store. New sessions get their id cookie here.
func (m *Manager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, s *Session) error {
	if s == nil || !s.Dirty() {
		return nil
	}

	if s.Len() == 0 {
		if !s.IsNew() {
			if err := m.store.Delete(ctx, s.ID()); err != nil {
				return err
			}
		}
		s.markClean()
		return nil
	}

	if err := m.store.Save(ctx, s.ID(), s.snapshot()); err != nil {
		return err
	}

	if s.IsNew() {
		encoded, err := m.codec.Encode(m.cfg.CookieName, s.ID())
		if err != nil {
			return err
		}
		http.SetCookie(w, &http.Cookie{
			Name:     m.cfg.CookieName,
			Value:    encoded,
			Path:     m.cfg.Path,
			HttpOnly: true,
			Secure:   m.encrypted(r),
			SameSite: m.cfg.SameSite,
		})
	}

	s.markClean()
	return nil
}

// Renew moves s to a fresh id so a session id known before a privilege change
// cannot follow it. The old record is deleted; the next Commit stores the
// values under the new id and issues its cookie. s is renewed even when the
// delete fails, and that error is returned.
func (m *Manager) Renew(ctx context.Context, s *Session) error {
	if s == nil {
		return nil
	}

	oldID, stored := s.id, !s.isNew
	s.id = uuid.NewString()
	s.isNew = true
	s.dirty = true

	if !stored {
		return nil
	}
	return m.store.Delete(ctx, oldID)
}

func (m *Manager) encrypted(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return m.cfg.TrustForwardedProto &&
		strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}

// Middleware loads the session before next runs and commits it before the
// response headers go out, or when next returns without writing.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := m.Load(r)
		r = r.WithContext(NewContext(r.Context(), s))

		cw := &commitWriter{ResponseWriter: w}
		cw.commit = func() {
			if err := m.Commit(r.Context(), w, r, s); err != nil {
				m.logger.Error(err, "session commit failed")
			}
		}

		next.ServeHTTP(cw, r)
		cw.commitOnce()
	})
}

type commitWriter struct {
	http.ResponseWriter
	commit func()
	once   sync.Once
}

func (c *commitWriter) commitOnce() {
	c.once.Do(c.commit)
}

func (c *commitWriter) WriteHeader(status int) {
	c.commitOnce()
	c.ResponseWriter.WriteHeader(status)
}

func (c *commitWriter) Write(b []byte) (int, error) {
	c.commitOnce()
	return c.ResponseWriter.Write(b)
}

func (c *commitWriter) Unwrap() http.ResponseWriter {
	return c.ResponseWriter
}

type sessionContextKey struct{}

// NewContext returns ctx carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// FromContext returns the session stored by [Manager.Middleware].
func FromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(sessionContextKey{}).(*Session)
	return s, ok && s != nil
}
