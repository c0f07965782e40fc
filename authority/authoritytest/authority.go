// Package authoritytest provides an in-process remote authority for tests and
// local development. It validates credentials against a fixed user table and
// issues HS256-signed JWT bearer tokens that it later accepts on the
// existing-session endpoint.
package authoritytest

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/ssoBroker/authority"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// FailureMode forces the authority to misbehave.
type FailureMode int

const (
	// FailNone serves requests normally.
	FailNone FailureMode = iota
	// FailServerError answers every request with 503.
	FailServerError
	// FailMalformed answers every request with 200 and a body that is not JSON.
	FailMalformed
	// FailIncomplete answers with 200 and a JSON body missing the token.
	FailIncomplete
)

// User is one account known to the authority. An empty Role is omitted from
// responses.
type User struct {
	SubjectID  string `yaml:"subject_id"`
	Identifier string `yaml:"identifier"`
	Secret     string `yaml:"secret"`
	Role       string `yaml:"role"`
}

// Config configures an [Authority].
type Config struct {
	SigningKey          []byte
	TokenTTL            time.Duration
	Schema              authority.Schema
	NewSessionPath      string
	ExistingSessionPath string
	Now                 func() time.Time
}

type tokenClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authority is an http.Handler implementing both authority endpoints.
type Authority struct {
	cfg Config

	mu      sync.RWMutex
	users   map[string]User
	revoked map[string]struct{}
	failure FailureMode
	delay   time.Duration

	newCalls      atomic.Int64
	existingCalls atomic.Int64
}

// New returns an authority with no users.
func New(cfg Config) (*Authority, error) {
	if len(cfg.SigningKey) < 16 {
		return nil, errors.New("signing key must be at least 16 bytes")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.Schema == "" {
		cfg.Schema = authority.SchemaCanonical
	}
	if !cfg.Schema.Valid() {
		return nil, fmt.Errorf("unknown schema %q", cfg.Schema)
	}
	if cfg.NewSessionPath == "" {
		cfg.NewSessionPath = authority.DefaultNewSessionPath
	}
	if cfg.ExistingSessionPath == "" {
		cfg.ExistingSessionPath = authority.DefaultExistingSessionPath
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Authority{
		cfg:     cfg,
		users:   make(map[string]User),
		revoked: make(map[string]struct{}),
	}, nil
}

// NewServer starts an httptest server around a new Authority. The caller must
// Close the server.
func NewServer(cfg Config) (*Authority, *httptest.Server, error) {
	a, err := New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return a, httptest.NewServer(a), nil
}

// AddUser registers or replaces a user keyed by identifier.
func (a *Authority) AddUser(u User) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.users[strings.ToLower(u.Identifier)] = u
}

// SetFailure switches the failure mode for subsequent requests.
func (a *Authority) SetFailure(mode FailureMode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failure = mode
}

// SetDelay makes every request wait d (or until the client gives up).
func (a *Authority) SetDelay(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delay = d
}

// Revoke makes a previously issued token fail validation.
func (a *Authority) Revoke(token string) error {
	claims, err := a.parse(token, jwt.WithoutClaimsValidation())
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked[claims.ID] = struct{}{}
	return nil
}

// NewSessionCalls returns how many new-session requests were received.
func (a *Authority) NewSessionCalls() int64 { return a.newCalls.Load() }

// ExistingSessionCalls returns how many existing-session requests were received.
func (a *Authority) ExistingSessionCalls() int64 { return a.existingCalls.Load() }

// IssueToken signs a token for u as if u had just logged in.
func (a *Authority) IssueToken(u User) (string, error) {
	now := a.cfg.Now()
	claims := tokenClaims{
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.SubjectID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.cfg.TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.cfg.SigningKey)
}

func (a *Authority) parse(token string, opts ...jwt.ParserOption) (*tokenClaims, error) {
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.cfg.Now),
	)
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.cfg.SigningKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// ServeHTTP routes the two authority endpoints.
func (a *Authority) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	switch r.URL.Path {
	case a.cfg.NewSessionPath:
		a.newCalls.Add(1)
	case a.cfg.ExistingSessionPath:
		a.existingCalls.Add(1)
	default:
		http.NotFound(w, r)
		return
	}

	a.mu.RLock()
	failure, delay := a.failure, a.delay
	a.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	switch failure {
	case FailServerError:
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	case FailMalformed:
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("<html>not json</html>"))
		return
	case FailIncomplete:
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"subjectId":"u-incomplete","userID":"u-incomplete","accountId":"u-incomplete"}`))
		return
	}

	if r.URL.Path == a.cfg.NewSessionPath {
		a.serveNewSession(w, r)
		return
	}
	a.serveExistingSession(w, r)
}

func (a *Authority) serveNewSession(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 16<<10))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	cred, err := a.cfg.Schema.DecodeCredential(data)
	if err != nil || cred.Identifier == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	a.mu.RLock()
	u, ok := a.users[strings.ToLower(cred.Identifier)]
	a.mu.RUnlock()
	if !ok || subtle.ConstantTimeCompare([]byte(u.Secret), []byte(cred.Secret)) != 1 {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	token, err := a.IssueToken(u)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	a.writeResult(w, u.SubjectID, u.Role, token, a.cfg.Now().Add(a.cfg.TokenTTL))
}

func (a *Authority) serveExistingSession(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	const bearer = "Bearer "
	if !strings.HasPrefix(header, bearer) || len(header) == len(bearer) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	token := header[len(bearer):]

	claims, err := a.parse(token)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	a.mu.RLock()
	_, revoked := a.revoked[claims.ID]
	a.mu.RUnlock()
	if revoked {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	a.writeResult(w, claims.Subject, claims.Role, token, claims.ExpiresAt.Time)
}

func (a *Authority) writeResult(w http.ResponseWriter, subjectID, role, token string, expiresAt time.Time) {
	res := authority.ValidationResult{
		SubjectID:       subjectID,
		Token:           token,
		LastActivity:    authority.Some(a.cfg.Now()),
		TokenExpiration: authority.Some(expiresAt),
	}
	if role != "" {
		res.SubjectRole = authority.Some(role)
	}

	body, err := a.cfg.Schema.EncodeResult(res)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}
