package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrEthical07/ssoBroker/authority"
	"github.com/go-logr/logr"
)

func TestLoadUsersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	body := `
signing_key: "0123456789abcdef0123456789abcdef"
schema: user
users:
  - subject_id: u1
    identifier: a@x.com
    secret: p1
    role: admin
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write users: %v", err)
	}

	stub, err := load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	srv := httptest.NewServer(logRequests(logr.Discard(), stub))
	defer srv.Close()

	resp, err := http.Post(srv.URL+authority.DefaultNewSessionPath, "application/json",
		strings.NewReader(`{"email":"a@x.com","password":"p1"}`))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestLoadRejectsBadFiles(t *testing.T) {
	if _, err := load(""); err == nil {
		t.Fatal("expected error without a path")
	}

	path := filepath.Join(t.TempDir(), "users.yaml")
	_ = os.WriteFile(path, []byte("signing_key: short\nusers: []\n"), 0o600)
	if _, err := load(path); err == nil {
		t.Fatal("expected error for a short signing key")
	}

	_ = os.WriteFile(path, []byte("signing_key: \"0123456789abcdef\"\nusers:\n  - identifier: a@x.com\n"), 0o600)
	if _, err := load(path); err == nil {
		t.Fatal("expected error for a user without subject_id")
	}
}
