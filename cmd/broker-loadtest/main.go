// Command broker-loadtest drives CreateSession and ResumeSession against an
// in-process authority and reports throughput and latency percentiles.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	ssoBroker "github.com/MrEthical07/ssoBroker"
	"github.com/MrEthical07/ssoBroker/authority/authoritytest"
	"github.com/MrEthical07/ssoBroker/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		users       = flag.Int("users", 1000, "number of authority users to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (create + resume)")
		redisAddr   = flag.String("redis-addr", "", "redis address for the login throttle; if empty, REDIS_ADDR env or miniredis is used")
		throttle    = flag.Bool("throttle", true, "enable the redis login throttle")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	stub, authSrv, err := authoritytest.NewServer(authoritytest.Config{SigningKey: []byte("loadtest-signing-key-0123456789ab")})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start authority: %v\n", err)
		os.Exit(1)
	}
	defer authSrv.Close()
	for i := 0; i < *users; i++ {
		stub.AddUser(authoritytest.User{
			SubjectID:  fmt.Sprintf("u%d", i),
			Identifier: identifierFor(i),
			Secret:     "secret",
			Role:       "member",
		})
	}

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := ssoBroker.DefaultConfig()
	cfg.Authority.BaseURL = authSrv.URL
	cfg.Security.EnableLoginThrottle = *throttle
	cfg.Security.MaxLoginAttempts = 1 << 20
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	broker, err := ssoBroker.New().WithConfig(cfg).WithRedis(client).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build broker: %v\n", err)
		os.Exit(1)
	}
	defer broker.Close()

	tokens := make([]string, *users)
	fmt.Printf("logging in %d users...\n", *users)
	startSeed := time.Now()
	for i := range tokens {
		w := httptest.NewRecorder()
		ok, err := broker.CreateSession(w, newRequest(), session.NewMemoryValues(), identifierFor(i), "secret")
		if err != nil || !ok {
			fmt.Fprintf(os.Stderr, "seed login %d failed: ok=%v err=%v\n", i, ok, err)
			os.Exit(1)
		}
		for _, c := range w.Result().Cookies() {
			if c.Name == broker.CookiePolicy().Name {
				tokens[i] = c.Value
			}
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	createStats := runPhase(*ops, *concurrency, *users, func(idx int) bool {
		ok, err := broker.CreateSession(httptest.NewRecorder(), newRequest(), session.NewMemoryValues(), identifierFor(idx), "secret")
		return ok && err == nil
	})
	resumeStats := runPhase(*ops, *concurrency, *users, func(idx int) bool {
		r := newRequest()
		r.AddCookie(&http.Cookie{Name: broker.CookiePolicy().Name, Value: tokens[idx]})
		ok, err := broker.ResumeSession(httptest.NewRecorder(), r, session.NewMemoryValues())
		return ok && err == nil
	})

	fmt.Println("---- results ----")
	printStats("create", createStats)
	printStats("resume", resumeStats)

	snap := broker.MetricsSnapshot()
	fmt.Printf("authority calls: new=%d existing=%d throttle-fail-open=%d\n",
		stub.NewSessionCalls(), stub.ExistingSessionCalls(), snap.Counters[ssoBroker.MetricThrottleFailOpen])
}

// runPhase runs ops calls of fn spread over concurrency workers, each call
// against a random user index.
func runPhase(ops, concurrency, users int, fn func(idx int) bool) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				ok := fn(r.Intn(users))
				d := time.Since(t0)
				if !ok {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func identifierFor(i int) string {
	return fmt.Sprintf("user-%d@loadtest.local", i)
}

func newRequest() *http.Request {
	return httptest.NewRequest(http.MethodPost, "http://localhost/login", nil)
}
