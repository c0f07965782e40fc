// Command authority-stub serves the two authority endpoints for local
// development, with users read from a YAML file:
//
//	signing_key: "change-me-change-me"
//	token_ttl: 8h
//	schema: canonical
//	users:
//	  - subject_id: u1
//	    identifier: a@x.com
//	    secret: p1
//	    role: admin
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/MrEthical07/ssoBroker/authority"
	"github.com/MrEthical07/ssoBroker/authority/authoritytest"
	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"gopkg.in/yaml.v3"
)

type usersFile struct {
	SigningKey string               `yaml:"signing_key"`
	TokenTTL   time.Duration        `yaml:"token_ttl"`
	Schema     string               `yaml:"schema"`
	Users      []authoritytest.User `yaml:"users"`
}

func main() {
	addr := flag.String("addr", ":5002", "listen address")
	usersPath := flag.String("users", "", "path to YAML users file")
	verbosity := flag.Int("v", 0, "log verbosity")
	flag.Parse()

	stdr.SetVerbosity(*verbosity)
	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags)).WithName("authority-stub")

	stub, err := load(*usersPath)
	if err != nil {
		logger.Error(err, "startup failed")
		os.Exit(1)
	}

	logger.Info("listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, logRequests(logger, stub)); err != nil {
		logger.Error(err, "server stopped")
		os.Exit(1)
	}
}

func load(path string) (*authoritytest.Authority, error) {
	if path == "" {
		return nil, fmt.Errorf("-users is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f usersFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	stub, err := authoritytest.New(authoritytest.Config{
		SigningKey: []byte(f.SigningKey),
		TokenTTL:   f.TokenTTL,
		Schema:     authority.Schema(f.Schema),
	})
	if err != nil {
		return nil, err
	}
	for _, u := range f.Users {
		if u.SubjectID == "" || u.Identifier == "" {
			return nil, fmt.Errorf("user entries need subject_id and identifier")
		}
		stub.AddUser(u)
	}
	return stub, nil
}

// logRequests logs method, path and status. Bodies carry secrets and are
// never logged.
func logRequests(logger logr.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		logger.V(1).Info("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "took", time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
