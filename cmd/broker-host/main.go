// Command broker-host is a small web host that signs users in through the
// remote authority and keeps them signed in with the bearer-token cookie.
//
// It keeps host sessions in Redis, or in an embedded miniredis when no Redis
// address is configured.
//
// Run:
//
//	go run ./cmd/authority-stub -users users.yaml &
//	go run ./cmd/broker-host -config host.yaml
//
// Then:
//
//	curl -i -c jar.txt -X POST localhost:5001/login -d identifier=a@x.com -d secret=p1
//	curl -i -b jar.txt localhost:5001/me
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ssoBroker "github.com/MrEthical07/ssoBroker"
	promexport "github.com/MrEthical07/ssoBroker/metrics/export/prometheus"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/gorilla/securecookie"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	authorityURL := flag.String("authority", "", "authority base URL, overrides the config file")
	flag.Parse()

	if err := run(*configPath, *authorityURL); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, authorityURL string) error {
	fc, err := loadFileConfig(configPath)
	if err != nil {
		return err
	}
	if authorityURL != "" {
		fc.Authority.BaseURL = authorityURL
	}

	stdr.SetVerbosity(fc.LogVerbosity)
	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags)).WithName("broker-host")

	cfg, err := fc.brokerConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if len(cfg.Session.HashKey) == 0 {
		cfg.Session.HashKey = securecookie.GenerateRandomKey(32)
		logger.Info("session.hash_key not set, using a random key; sessions will not survive a restart")
	}

	rdb, closeRedis, err := openRedis(fc.RedisAddr, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	builder := ssoBroker.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(logger)
	if cfg.Audit.Enabled {
		sink, err := auditSink(fc.Audit.Sink, logger)
		if err != nil {
			return err
		}
		builder.WithAuditSink(sink)
	}

	broker, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build broker: %w", err)
	}
	defer broker.Close()

	report := broker.SecurityReport()
	logger.Info("broker ready",
		"authority", report.AuthorityURL,
		"cookie", report.CookieName,
		"orgDomain", report.CookieOrgDomain,
		"staleCookie", report.StaleCookiePolicy,
		"sessionStore", report.SessionStore,
		"loginThrottle", report.LoginThrottle,
	)

	srv := &server{broker: broker, logger: logger}
	if cfg.Metrics.Enabled {
		h, err := promexport.Handler(broker, collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		srv.metrics = h
	}

	httpServer := &http.Server{
		Addr:              fc.Listen,
		Handler:           srv.routes(fc.TrustForwardedFor),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", fc.Listen)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}

func openRedis(addr string, logger logr.Logger) (redis.UniversalClient, func(), error) {
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		logger.Info("no redis_addr configured, using embedded miniredis", "addr", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	logger.Info("using redis", "addr", addr)
	return client, func() { _ = client.Close() }, nil
}

func auditSink(kind string, logger logr.Logger) (ssoBroker.AuditSink, error) {
	switch kind {
	case "", "log":
		return ssoBroker.NewLogSink(logger), nil
	case "json":
		return ssoBroker.NewJSONWriterSink(os.Stdout), nil
	default:
		return nil, fmt.Errorf("unknown audit sink %q", kind)
	}
}
