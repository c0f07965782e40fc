package main

import (
	"encoding/json"
	"html/template"
	"net/http"

	ssoBroker "github.com/MrEthical07/ssoBroker"
	"github.com/MrEthical07/ssoBroker/middleware"
	"github.com/MrEthical07/ssoBroker/session"
	"github.com/go-logr/logr"
)

var loginPage = template.Must(template.New("login").Parse(`<!doctype html>
<title>Sign in</title>
{{if .Failed}}<p>Sign-in failed.</p>{{end}}
<form method="post" action="/login">
<label>Identifier <input name="identifier" autocomplete="username"></label>
<label>Secret <input name="secret" type="password" autocomplete="current-password"></label>
<button type="submit">Sign in</button>
</form>
`))

type server struct {
	broker  *ssoBroker.Broker
	logger  logr.Logger
	metrics http.Handler
}

// routes wires the host endpoints. Every route runs inside the host session
// middleware.
func (s *server) routes(trustForwardedFor bool) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", s.loginForm)
	mux.HandleFunc("POST /login", s.login)
	mux.HandleFunc("POST /logout", s.logout)
	mux.HandleFunc("GET /me", s.me)
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.Handle("GET /{$}", middleware.RequireSession(s.broker, middleware.GuardOptions{LoginPath: "/login"})(http.HandlerFunc(s.home)))
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	return middleware.ClientIP(trustForwardedFor)(s.broker.Sessions().Middleware(mux))
}

func (s *server) loginForm(w http.ResponseWriter, r *http.Request) {
	renderLogin(w, http.StatusOK, false)
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	authenticated, err := s.broker.CreateSession(w, r, sess, r.PostFormValue("identifier"), r.PostFormValue("secret"))
	if err != nil {
		s.logger.Error(err, "login failed")
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	if !authenticated {
		renderLogin(w, http.StatusUnauthorized, true)
		return
	}
	if err := s.broker.Sessions().Renew(r.Context(), sess); err != nil {
		s.logger.Error(err, "dropping pre-login session failed")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	var sess session.Values
	if current, ok := session.FromContext(r.Context()); ok {
		sess = current
	}
	s.broker.EndSession(w, r, sess)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *server) me(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	authenticated, err := s.broker.ResumeSession(w, r, sess)
	if err != nil {
		s.logger.Error(err, "resume failed")
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	if !authenticated {
		writeJSON(w, http.StatusUnauthorized, map[string]string{})
		return
	}
	writeJSON(w, http.StatusOK, s.broker.ReadSessionAttributes(sess))
}

func (s *server) home(w http.ResponseWriter, r *http.Request) {
	attrs, _ := middleware.AttributesFromContext(r.Context())
	writeJSON(w, http.StatusOK, attrs)
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.broker.Ping(r.Context()); err != nil {
		s.logger.Error(err, "health check failed")
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func renderLogin(w http.ResponseWriter, status int, failed bool) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = loginPage.Execute(w, struct{ Failed bool }{failed})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
