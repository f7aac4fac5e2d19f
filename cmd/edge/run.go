package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/dnscache"
	"go.opentelemetry.io/otel/trace"

	"github.com/dhkalign/gateway/internal/audit"
	"github.com/dhkalign/gateway/internal/cache"
	"github.com/dhkalign/gateway/internal/config"
	"github.com/dhkalign/gateway/internal/edge"
	"github.com/dhkalign/gateway/internal/keystore/durable"
	redisstore "github.com/dhkalign/gateway/internal/keystore/redis"
	ksqlite "github.com/dhkalign/gateway/internal/keystore/sqlite"
	"github.com/dhkalign/gateway/internal/telemetry"
	"github.com/dhkalign/gateway/internal/worker"
)

func run(configPath string) error {
	cfg, err := config.LoadEdge(configPath)
	if err != nil {
		return err
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "production"
	}
	buildSHA := os.Getenv("BUILD_SHA")
	if buildSHA == "" {
		buildSHA = version
	}

	slog.Info("starting edge", "version", version, "addr", cfg.Server.Addr, "env", env)

	durableStore, err := ksqlite.New(cfg.KeyDBPath)
	if err != nil {
		return fmt.Errorf("open key db: %w", err)
	}
	defer durableStore.Close()

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	keys := durable.New(redisstore.New(rdb), durableStore)

	var responseCache cache.Cache
	if cfg.Cache.Enabled {
		mc, err := cache.NewMemory(cfg.Cache.MaxSize, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
		if err != nil {
			return err
		}
		responseCache = mc
		slog.Info("edge response cache enabled", "max_size", cfg.Cache.MaxSize, "ttl_seconds", cfg.Cache.TTLSeconds)
	}

	var auditWriter *audit.Writer
	if cfg.AuditHMACSecret != "" {
		auditWriter, err = audit.Open(cfg.AuditLogPath, []byte(cfg.AuditHMACSecret))
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		defer auditWriter.Close()
	}

	// Shared DNS cache for the origin HTTP client.
	dnsResolver := &dnscache.Resolver{}
	dnsRefreshCtx, dnsRefreshCancel := context.WithCancel(context.Background())
	defer dnsRefreshCancel()
	go func() {
		t := time.NewTicker(5 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-dnsRefreshCtx.Done():
				return
			case <-t.C:
				dnsResolver.Refresh(true)
			}
		}
	}()

	originClient := edge.NewOriginClient(cfg.OriginBaseURL, cfg.ShieldToken, dnsResolver, 5*time.Second)

	var metrics *telemetry.Metrics
	var metricsHandler http.Handler
	if cfg.Telemetry.Metrics.Enabled {
		promRegistry := prometheus.NewRegistry()
		promRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		promRegistry.MustRegister(collectors.NewGoCollector())
		metrics = telemetry.NewMetrics(promRegistry)
		metricsHandler = promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})
		slog.Info("prometheus metrics enabled")
	}

	var tracer trace.Tracer
	var tracingShutdown func(context.Context) error
	if cfg.Telemetry.Tracing.Enabled {
		endpoint := cfg.Telemetry.Tracing.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		sampleRate := cfg.Telemetry.Tracing.SampleRate
		if sampleRate == 0 {
			sampleRate = 0.1
		}
		shutdown, err := telemetry.SetupTracing(context.Background(), "edge", endpoint, sampleRate)
		if err != nil {
			slog.Warn("tracing setup failed, continuing without tracing", "error", err)
		} else {
			tracingShutdown = shutdown
			tracer = telemetry.Tracer("edge/server")
			slog.Info("opentelemetry tracing enabled", "endpoint", endpoint, "sample_rate", sampleRate)
		}
	}

	handler := edge.New(edge.Deps{
		Keys:  keys,
		Cache: responseCache,

		Origin: originClient,

		AdminKey:    cfg.AdminKey,
		ShieldToken: cfg.ShieldToken,
		DailyQuota:  cfg.DailyQuotaPerKey,
		CacheTTL:    time.Duration(cfg.CacheTTLSeconds) * time.Second,
		CORSOrigins: cfg.CORSOrigins,
		BuildSHA:    buildSHA,
		Env:         env,

		Webhook: edge.WebhookConfig{
			Secret:           cfg.Webhook.Secret,
			ToleranceSeconds: cfg.Webhook.ToleranceSeconds,
			SessionTTL:       time.Duration(cfg.Webhook.SessionTTLSeconds) * time.Second,
			EventTTL:         time.Duration(cfg.Webhook.EventTTLSeconds) * time.Second,
		},

		Audit: auditWriter,

		Metrics:        metrics,
		MetricsHandler: metricsHandler,
		Tracer:         tracer,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutMS) * time.Millisecond,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutMS) * time.Millisecond,
		IdleTimeout:       120 * time.Second,
	}

	var workers []worker.Worker
	if auditWriter != nil {
		workers = append(workers, worker.NewAuditRotator(auditWriter, 100<<20))
	}
	runner := worker.NewRunner(workers...)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workerDone := make(chan error, 1)
	go func() {
		workerDone <- runner.Run(workerCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("edge ready", "addr", cfg.Server.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		workerCancel()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownGraceMS)*time.Millisecond)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		workerCancel()
		return err
	}

	workerCancel()
	if err := <-workerDone; err != nil {
		slog.Error("worker shutdown error", "error", err)
	}

	if tracingShutdown != nil {
		if err := tracingShutdown(shutdownCtx); err != nil {
			slog.Error("tracing shutdown error", "error", err)
		}
	}

	slog.Info("edge stopped")
	return nil
}
