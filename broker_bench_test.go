package ssoBroker

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/ssoBroker/session"
)

func BenchmarkCreateSession(b *testing.B) {
	broker, err := New().WithConfig(testConfig("")).WithAuthority(&countingAuthority{}).Build()
	if err != nil {
		b.Fatalf("Build failed: %v", err)
	}
	defer broker.Close()

	r := localRequest()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = broker.CreateSession(httptest.NewRecorder(), r, session.NewMemoryValues(), "a@x.com", "p1")
	}
}

func BenchmarkResumeSessionShortCircuit(b *testing.B) {
	broker, err := New().WithConfig(testConfig("")).WithAuthority(&countingAuthority{}).Build()
	if err != nil {
		b.Fatalf("Build failed: %v", err)
	}
	defer broker.Close()

	sess := session.NewMemoryValues()
	sess.Set(AttrIsAuthenticated, "true")
	r := localRequest()
	w := httptest.NewRecorder()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = broker.ResumeSession(w, r, sess)
	}
}

func BenchmarkResumeSessionFromCookie(b *testing.B) {
	broker, err := New().WithConfig(testConfig("")).WithAuthority(&countingAuthority{}).Build()
	if err != nil {
		b.Fatalf("Build failed: %v", err)
	}
	defer broker.Close()

	r := localRequest()
	r.AddCookie(&http.Cookie{Name: broker.CookiePolicy().Name, Value: "tok-1"})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = broker.ResumeSession(httptest.NewRecorder(), r, session.NewMemoryValues())
	}
}
