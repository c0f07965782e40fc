package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ssoBroker "github.com/MrEthical07/ssoBroker"
	"github.com/MrEthical07/ssoBroker/authority/authoritytest"
	"github.com/MrEthical07/ssoBroker/session"
)

var signingKey = []byte("0123456789abcdef0123456789abcdef")

func newGuardBroker(t *testing.T, sink ssoBroker.AuditSink) (*ssoBroker.Broker, *authoritytest.Authority) {
	t.Helper()

	stub, srv, err := authoritytest.NewServer(authoritytest.Config{SigningKey: signingKey})
	if err != nil {
		t.Fatalf("authoritytest.NewServer failed: %v", err)
	}
	t.Cleanup(srv.Close)

	cfg := ssoBroker.DefaultConfig()
	cfg.Authority.BaseURL = srv.URL
	cfg.Session.HashKey = []byte("fedcba9876543210fedcba9876543210")
	cfg.Audit.Enabled = sink != nil
	cfg.Audit.DropIfFull = false

	b := ssoBroker.New().WithConfig(cfg).WithSessionStore(session.NewMemoryStore(time.Minute))
	if sink != nil {
		b.WithAuditSink(sink)
	}
	broker, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(broker.Close)
	return broker, stub
}

func protected(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attrs, ok := AttributesFromContext(r.Context())
		if !ok {
			t.Error("expected attributes in context")
		}
		_, _ = w.Write([]byte(attrs[ssoBroker.AttrSubjectID]))
	})
}

func TestRequireSessionRedirectsAnonymousGet(t *testing.T) {
	broker, stub := newGuardBroker(t, nil)
	h := broker.Sessions().Middleware(RequireSession(broker, GuardOptions{LoginPath: "/login"})(protected(t)))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://localhost/", nil))
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", w.Code, w.Header().Get("Location"))
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "http://localhost/", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for POST, got %d", w.Code)
	}
	if stub.ExistingSessionCalls() != 0 {
		t.Fatal("expected no remote calls without a cookie")
	}
}

func TestRequireSessionResumesFromCookie(t *testing.T) {
	broker, stub := newGuardBroker(t, nil)
	stub.AddUser(authoritytest.User{SubjectID: "u7", Identifier: "c@x.com", Secret: "p", Role: "staff"})
	token, err := stub.IssueToken(authoritytest.User{SubjectID: "u7", Role: "staff"})
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	h := broker.Sessions().Middleware(RequireSession(broker, GuardOptions{})(protected(t)))

	r := httptest.NewRequest(http.MethodGet, "http://localhost/", nil)
	r.AddCookie(&http.Cookie{Name: broker.CookiePolicy().Name, Value: token})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusOK || w.Body.String() != "u7" {
		t.Fatalf("expected 200 u7, got %d %q", w.Code, w.Body.String())
	}

	// The host session cookie now carries the authentication.
	r2 := httptest.NewRequest(http.MethodGet, "http://localhost/", nil)
	for _, c := range w.Result().Cookies() {
		r2.AddCookie(c)
	}
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, r2)
	if w2.Code != http.StatusOK || w2.Body.String() != "u7" {
		t.Fatalf("expected 200 u7 from host session, got %d %q", w2.Code, w2.Body.String())
	}
	if stub.ExistingSessionCalls() != 1 {
		t.Fatalf("expected a single remote validation, got %d", stub.ExistingSessionCalls())
	}
}

func TestRequireSessionMalformedIsBadGateway(t *testing.T) {
	broker, stub := newGuardBroker(t, nil)
	stub.SetFailure(authoritytest.FailMalformed)

	h := broker.Sessions().Middleware(RequireSession(broker, GuardOptions{LoginPath: "/login"})(protected(t)))
	r := httptest.NewRequest(http.MethodGet, "http://localhost/", nil)
	r.AddCookie(&http.Cookie{Name: broker.CookiePolicy().Name, Value: "tok"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
}

func TestRequireSessionWithoutSessionMiddleware(t *testing.T) {
	broker, _ := newGuardBroker(t, nil)
	h := RequireSession(broker, GuardOptions{})(protected(t))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://localhost/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestRequireSessionCustomResolver(t *testing.T) {
	broker, _ := newGuardBroker(t, nil)
	sess := session.NewMemoryValues()
	sess.Set(ssoBroker.AttrIsAuthenticated, "true")
	sess.Set(ssoBroker.AttrSubjectID, "u9")

	h := RequireSession(broker, GuardOptions{
		Resolver: func(*http.Request) (session.Values, bool) { return sess, true },
	})(protected(t))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://localhost/", nil))
	if w.Code != http.StatusOK || w.Body.String() != "u9" {
		t.Fatalf("expected 200 u9, got %d %q", w.Code, w.Body.String())
	}
}

func TestRequireSessionNilBroker(t *testing.T) {
	h := RequireSession(nil, GuardOptions{})(protected(t))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://localhost/", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		trusted bool
		xff     string
		want    string
	}{
		{name: "remote addr", trusted: false, xff: "203.0.113.9", want: "192.0.2.1"},
		{name: "forwarded trusted", trusted: true, xff: "203.0.113.9, 10.0.0.1", want: "203.0.113.9"},
		{name: "forwarded empty", trusted: true, xff: "", want: "192.0.2.1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sink := ssoBroker.NewChannelSink(1)
			broker, _ := newGuardBroker(t, sink)

			h := ClientIP(tc.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				broker.EndSession(w, r, nil)
			}))
			r := httptest.NewRequest(http.MethodPost, "http://localhost/logout", nil)
			r.RemoteAddr = "192.0.2.1:5555"
			if tc.xff != "" {
				r.Header.Set("X-Forwarded-For", tc.xff)
			}
			h.ServeHTTP(httptest.NewRecorder(), r)
			broker.Close()

			ev := <-sink.Events()
			if ev.IP != tc.want {
				t.Fatalf("expected IP %q, got %q", tc.want, ev.IP)
			}
		})
	}
}
