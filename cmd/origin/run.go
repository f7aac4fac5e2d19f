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
	"github.com/rs/dnscache"
	"go.opentelemetry.io/otel/trace"

	dhkalign "github.com/dhkalign/gateway/internal"
	"github.com/dhkalign/gateway/internal/audit"
	"github.com/dhkalign/gateway/internal/cache"
	"github.com/dhkalign/gateway/internal/circuitbreaker"
	"github.com/dhkalign/gateway/internal/config"
	"github.com/dhkalign/gateway/internal/lm"
	"github.com/dhkalign/gateway/internal/origin"
	sqlitestore "github.com/dhkalign/gateway/internal/phrase/sqlite"
	"github.com/dhkalign/gateway/internal/ratelimit"
	"github.com/dhkalign/gateway/internal/telemetry"
	"github.com/dhkalign/gateway/internal/worker"
)

func run(configPath string) error {
	cfg, err := config.LoadOrigin(configPath)
	if err != nil {
		return err
	}

	slog.Info("starting origin", "version", version, "addr", cfg.Server.Addr)

	store, err := sqlitestore.New(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open phrase db: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := config.BootstrapPhrases(ctx, store, cfg.SeedPath); err != nil {
		return fmt.Errorf("bootstrap phrases: %w", err)
	}

	var responseCache cache.Cache
	if cfg.Cache.Enabled {
		mc, err := cache.NewMemory(cfg.Cache.MaxSize, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
		if err != nil {
			return err
		}
		responseCache = mc
		slog.Info("backend cache enabled", "max_size", cfg.Cache.MaxSize, "ttl_seconds", cfg.Cache.TTLSeconds)
	}

	var auditWriter *audit.Writer
	if cfg.AuditHMACSecret != "" {
		auditWriter, err = audit.Open(cfg.AuditLogPath, []byte(cfg.AuditHMACSecret))
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		defer auditWriter.Close()
	}

	var lmClient *lm.Client
	var breakers *circuitbreaker.Registry
	if cfg.Fallback.Enabled {
		dnsResolver := &dnscache.Resolver{}
		refreshCtx, refreshCancel := context.WithCancel(context.Background())
		defer refreshCancel()
		go func() {
			t := time.NewTicker(5 * time.Minute)
			defer t.Stop()
			for {
				select {
				case <-refreshCtx.Done():
					return
				case <-t.C:
					dnsResolver.Refresh(true)
				}
			}
		}()

		lmClient = lm.New(lm.Config{
			Enabled:   cfg.Fallback.Enabled,
			BaseURL:   cfg.Fallback.BaseURL,
			Model:     cfg.Fallback.Model,
			APIKey:    cfg.Fallback.APIKey,
			MaxTokens: cfg.Fallback.MaxTokens,
			TimeoutMS: cfg.Fallback.TimeoutMS,
		}, dnsResolver)
		breakers = circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig())
		slog.Info("lm fallback enabled", "base_url", cfg.Fallback.BaseURL, "model", cfg.Fallback.Model)
	}

	var rateLimiter *ratelimit.Registry
	rlCfg := ratelimit.Config{
		PerMinute:       cfg.IPRateLimit.PerMinute,
		BanThreshold:    cfg.IPRateLimit.BanThresholdCount,
		ViolationWindow: time.Duration(cfg.IPRateLimit.BanWindowSeconds) * time.Second,
		BanDuration:     time.Duration(cfg.IPRateLimit.BanDurationSeconds) * time.Second,
	}
	if cfg.IPRateLimit.Enabled {
		rateLimiter = ratelimit.NewRegistry(rlCfg)
		slog.Info("ip rate limiting enabled", "per_minute", rlCfg.PerMinute)
	}

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
		shutdown, err := telemetry.SetupTracing(ctx, "origin", endpoint, sampleRate)
		if err != nil {
			slog.Warn("tracing setup failed, continuing without tracing", "error", err)
		} else {
			tracingShutdown = shutdown
			tracer = telemetry.Tracer("origin/server")
			slog.Info("opentelemetry tracing enabled", "endpoint", endpoint, "sample_rate", sampleRate)
		}
	}

	handler := origin.New(origin.Deps{
		Store: store,
		Cache: responseCache,

		LM:              lmClient,
		FallbackEnabled: cfg.Fallback.Enabled,
		Breakers:        breakers,

		RateLimit:       rateLimiter,
		RateLimitConfig: rlCfg,

		Audit: auditWriter,

		Metrics:        metrics,
		MetricsHandler: metricsHandler,
		Tracer:         tracer,

		ShieldToken:   cfg.ShieldToken,
		ShieldEnforce: cfg.ShieldEnforce,

		CacheTTL:              time.Duration(cfg.BackendCacheTTLSeconds) * time.Second,
		AutoInsertSafetyLevel: dhkalign.SafetyLevel(cfg.Fallback.AutoInsertSafetyLvl),

		DBPath: store.Path,
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
	if rateLimiter != nil {
		workers = append(workers, worker.NewRateLimitEvictor(rateLimiter, time.Hour))
	}
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

	slog.Info("origin ready", "addr", cfg.Server.Addr)

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

	slog.Info("origin stopped")
	return nil
}
