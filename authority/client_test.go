package authority_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/ssoBroker/authority"
	"github.com/MrEthical07/ssoBroker/authority/authoritytest"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

func newStub(t *testing.T, schema authority.Schema) (*authoritytest.Authority, *authority.Client) {
	t.Helper()

	stub, srv, err := authoritytest.NewServer(authoritytest.Config{
		SigningKey: testSigningKey,
		Schema:     schema,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(srv.Close)

	stub.AddUser(authoritytest.User{SubjectID: "u1", Identifier: "a@x.com", Secret: "p1", Role: "admin"})
	stub.AddUser(authoritytest.User{SubjectID: "u2", Identifier: "b@x.com", Secret: "p2"})

	client, err := authority.New(authority.Config{
		BaseURL: srv.URL,
		Schema:  schema,
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("authority.New failed: %v", err)
	}
	return stub, client
}

func TestNewRejectsBadConfig(t *testing.T) {
	bad := []authority.Config{
		{BaseURL: ""},
		{BaseURL: "ftp://auth.example"},
		{BaseURL: "http://"},
		{BaseURL: "http://auth.example", Timeout: -time.Second},
		{BaseURL: "http://auth.example", Schema: "legacy"},
	}
	for _, cfg := range bad {
		if _, err := authority.New(cfg); !errors.Is(err, authority.ErrInvalidConfig) {
			t.Fatalf("config %+v: expected ErrInvalidConfig, got %v", cfg, err)
		}
	}
}

func TestValidateNewLoginAllSchemas(t *testing.T) {
	for _, schema := range []authority.Schema{authority.SchemaCanonical, authority.SchemaUser, authority.SchemaAccount} {
		_, client := newStub(t, schema)

		res, err := client.ValidateNewLogin(context.Background(), authority.Credential{Identifier: "a@x.com", Secret: "p1"})
		if err != nil {
			t.Fatalf("%s: login failed: %v", schema, err)
		}
		if res.SubjectID != "u1" || res.Token == "" {
			t.Fatalf("%s: unexpected result %v", schema, res)
		}
		if role, _ := res.SubjectRole.Get(); role != "admin" {
			t.Fatalf("%s: expected role admin, got %q", schema, role)
		}
		if !res.TokenExpiration.Present() {
			t.Fatalf("%s: expected token expiration", schema)
		}
	}
}

func TestValidateNewLoginRejected(t *testing.T) {
	_, client := newStub(t, authority.SchemaCanonical)

	_, err := client.ValidateNewLogin(context.Background(), authority.Credential{Identifier: "a@x.com", Secret: "wrong"})
	if !errors.Is(err, authority.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if !authority.Absent(err) {
		t.Fatal("expected rejection to count as absent")
	}
}

func TestValidateExistingTokenRoundTrip(t *testing.T) {
	_, client := newStub(t, authority.SchemaCanonical)
	ctx := context.Background()

	login, err := client.ValidateNewLogin(ctx, authority.Credential{Identifier: "b@x.com", Secret: "p2"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	res, err := client.ValidateExistingToken(ctx, login.Token)
	if err != nil {
		t.Fatalf("token validation failed: %v", err)
	}
	if res.SubjectID != "u2" {
		t.Fatalf("expected subject u2, got %q", res.SubjectID)
	}
	if res.SubjectRole.Present() {
		t.Fatal("expected no role for u2")
	}
}

func TestValidateExistingTokenRevoked(t *testing.T) {
	stub, client := newStub(t, authority.SchemaCanonical)
	ctx := context.Background()

	login, _ := client.ValidateNewLogin(ctx, authority.Credential{Identifier: "a@x.com", Secret: "p1"})
	if err := stub.Revoke(login.Token); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	if _, err := client.ValidateExistingToken(ctx, login.Token); !errors.Is(err, authority.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestValidateExistingTokenEmptySkipsRemote(t *testing.T) {
	stub, client := newStub(t, authority.SchemaCanonical)

	if _, err := client.ValidateExistingToken(context.Background(), ""); !errors.Is(err, authority.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if stub.ExistingSessionCalls() != 0 {
		t.Fatal("expected no remote call for an empty token")
	}
}

func TestValidateExistingTokenUsesBearerHeader(t *testing.T) {
	var gotAuth, gotBody, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.RequestURI()
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		_, _ = w.Write([]byte(`{"subjectId":"u1","token":"tok-1"}`))
	}))
	defer srv.Close()

	client, err := authority.New(authority.Config{
		BaseURL:             srv.URL + "/api/Users/",
		ExistingSessionPath: "validateExistingAuthentication",
	})
	if err != nil {
		t.Fatalf("authority.New failed: %v", err)
	}

	if _, err := client.ValidateExistingToken(context.Background(), "tok-1"); err != nil {
		t.Fatalf("validation failed: %v", err)
	}
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("expected bearer header, got %q", gotAuth)
	}
	if gotBody != "" {
		t.Fatalf("expected empty body, got %q", gotBody)
	}
	if gotPath != "/api/Users/validateExistingAuthentication" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if strings.Contains(gotPath, "tok-1") {
		t.Fatal("token must not appear in the URL")
	}
}

func TestValidateNewLoginSendsJSONBody(t *testing.T) {
	var got map[string]string
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"subjectId":"u1","token":"tok-1"}`))
	}))
	defer srv.Close()

	client, _ := authority.New(authority.Config{BaseURL: srv.URL})
	res, err := client.ValidateNewLogin(context.Background(), authority.Credential{Identifier: "a@x.com", Secret: "p1"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.SubjectID != "u1" || res.Token != "tok-1" {
		t.Fatalf("unexpected result %v", res)
	}
	if contentType != "application/json" {
		t.Fatalf("unexpected content type %q", contentType)
	}
	if got["identifier"] != "a@x.com" || got["secret"] != "p1" {
		t.Fatalf("unexpected body %v", got)
	}
}

func TestFailureModes(t *testing.T) {
	cases := []struct {
		mode authority.Schema
		fail authoritytest.FailureMode
		want error
	}{
		{authority.SchemaCanonical, authoritytest.FailServerError, authority.ErrRejected},
		{authority.SchemaCanonical, authoritytest.FailMalformed, authority.ErrMalformedResult},
		{authority.SchemaCanonical, authoritytest.FailIncomplete, authority.ErrMalformedResult},
		{authority.SchemaUser, authoritytest.FailIncomplete, authority.ErrMalformedResult},
	}

	for _, tc := range cases {
		stub, client := newStub(t, tc.mode)
		stub.SetFailure(tc.fail)

		_, err := client.ValidateNewLogin(context.Background(), authority.Credential{Identifier: "a@x.com", Secret: "p1"})
		if !errors.Is(err, tc.want) {
			t.Fatalf("mode %d: expected %v, got %v", tc.fail, tc.want, err)
		}
	}
}

func TestTimeoutIsUnavailable(t *testing.T) {
	stub, srv, err := authoritytest.NewServer(authoritytest.Config{SigningKey: testSigningKey})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	defer srv.Close()
	stub.SetDelay(time.Second)

	client, _ := authority.New(authority.Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err = client.ValidateExistingToken(context.Background(), "tok-x")
	if !errors.Is(err, authority.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if time.Since(start) > 900*time.Millisecond {
		t.Fatal("expected the client timeout to cut the call short")
	}
	if strings.Contains(err.Error(), srv.URL) {
		t.Fatalf("error leaks URL: %v", err)
	}
}

func TestUnreachableIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, _ := authority.New(authority.Config{BaseURL: url, Timeout: time.Second})
	if _, err := client.ValidateNewLogin(context.Background(), authority.Credential{Identifier: "a", Secret: "b"}); !errors.Is(err, authority.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestOversizeBodyIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"subjectId":"u1","token":"` + strings.Repeat("x", 70<<10) + `"}`))
	}))
	defer srv.Close()

	client, _ := authority.New(authority.Config{BaseURL: srv.URL})
	if _, err := client.ValidateExistingToken(context.Background(), "tok"); !errors.Is(err, authority.ErrMalformedResult) {
		t.Fatalf("expected ErrMalformedResult, got %v", err)
	}
}

func TestClientIsConcurrencySafe(t *testing.T) {
	_, client := newStub(t, authority.SchemaCanonical)

	var ok atomic.Int64
	done := make(chan struct{})
	for i := 0; i < 16; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			if _, err := client.ValidateNewLogin(context.Background(), authority.Credential{Identifier: "a@x.com", Secret: "p1"}); err == nil {
				ok.Add(1)
			}
		}()
	}
	for i := 0; i < 16; i++ {
		<-done
	}
	if ok.Load() != 16 {
		t.Fatalf("expected 16 successful logins, got %d", ok.Load())
	}
}
