// Command gateway wires the four collaborators, the permission engine,
// the connection supervisor, and the HTTP surface into one process:
// connect, serve, then drain on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/OmarEhab007/wiregate/internal/audit"
	"github.com/OmarEhab007/wiregate/internal/collab"
	"github.com/OmarEhab007/wiregate/internal/config"
	"github.com/OmarEhab007/wiregate/internal/connection"
	"github.com/OmarEhab007/wiregate/internal/domain"
	"github.com/OmarEhab007/wiregate/internal/httpgw"
	"github.com/OmarEhab007/wiregate/internal/identity"
	"github.com/OmarEhab007/wiregate/internal/permission"
	"github.com/OmarEhab007/wiregate/internal/protocol"
	"github.com/OmarEhab007/wiregate/internal/ratelimit"
	"github.com/OmarEhab007/wiregate/internal/router"
	"github.com/OmarEhab007/wiregate/internal/rules"
	"github.com/OmarEhab007/wiregate/internal/store"
	"github.com/OmarEhab007/wiregate/internal/supervisor"
)

func main() {
	// Load .env file if present (development convenience).
	_ = godotenv.Load()             // cmd/gateway/.env
	_ = godotenv.Load("../.env")    // running from cmd/gateway/ -> project root .env
	_ = godotenv.Load("../../.env") // running from cmd/gateway/subdir/ -> project root .env

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)
	logger := slog.Default()
	logger.Info("starting gateway", "addr", cfg.ListenAddr, "env", cfg.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Store (critical: the gateway has nothing useful to do without it) ---
	storeOpts := []store.Option{}
	if idx := os.Getenv("SEARCH_INDEX_PATH"); idx != "" {
		storeOpts = append(storeOpts, store.WithTextIndex(idx))
	}
	kv, err := store.New(ctx, cfg.PostgresURL, storeOpts...)
	if err != nil {
		logger.Error("failed to connect to Postgres store", "error", err)
		os.Exit(1)
	}
	defer kv.Close()

	// --- Rate limiter (Redis-backed when configured, in-process otherwise;
	// a zero request budget disables throttling entirely) ---
	var limiter collab.RateLimiter
	if cfg.RateLimitMaxRequests > 0 {
		rl, err := ratelimit.New(ctx, cfg.RedisURL, cfg.RateLimitMaxRequests, time.Duration(cfg.RateLimitWindowMs)*time.Millisecond)
		if err != nil {
			logger.Warn("rate limiter initialization failed; requests will not be throttled", "error", err)
		} else {
			defer rl.Close()
			limiter = rl
		}
	}

	// --- Rules engine, optionally mirrored to NATS ---
	engine := rules.New()
	if cfg.NATSURL != "" {
		mirror, closeMirror, err := rules.NewNATSMirror(cfg.NATSURL, logger)
		if err != nil {
			logger.Warn("NATS mirror initialization failed; emitted events stay local", "error", err)
		} else {
			defer closeMirror()
			engine = engine.WithMirror(mirror)
		}
	}

	// --- Identity store ---
	idm := identity.New(cfg.BootstrapSecret)

	// --- Audit log, optionally backed by ClickHouse and exported to S3 ---
	auditOpts := []audit.Option{audit.WithLogger(logger)}
	if cfg.ClickHouseURL != "" {
		sink, err := audit.NewClickHouseSink(ctx, cfg.ClickHouseURL)
		if err != nil {
			logger.Warn("ClickHouse audit sink initialization failed; audit stays in-memory only", "error", err)
		} else {
			defer sink.Close()
			auditOpts = append(auditOpts, audit.WithSink(sink, 100))
		}
	}
	auditLog := audit.New(audit.DefaultCapacity, auditOpts...)

	if cfg.S3Bucket != "" {
		exporter, err := audit.NewExporter(ctx, cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3UseSSL)
		if err != nil {
			logger.Warn("S3 audit exporter initialization failed; snapshot export disabled", "error", err)
		} else {
			go runAuditExport(ctx, exporter, auditLog, 5*time.Minute, logger)
		}
	}

	// --- Permission engine ---
	defaultDecision := permission.DefaultDeny
	if cfg.DefaultPermission == "allow" {
		defaultDecision = permission.DefaultAllow
	}
	permEngine := &permission.Engine{Identity: idm, Default: defaultDecision}

	// --- Router ---
	r := router.New(logger)
	r.Store = kv
	r.Rules = engine
	r.Identity = idm
	r.Audit = auditLog
	r.RateLimiter = limiter
	r.Permission = permEngine
	r.Config = router.Config{
		RequiresAuth:       cfg.RequiresAuth,
		ExposeErrorDetails: cfg.ExposeErrorDetails,
		StartedAt:          time.Now(),
	}

	// --- Connection supervisor ---
	connCfg := connection.DefaultConfig()
	connCfg.HeartbeatIntervalMs = cfg.HeartbeatIntervalMs
	connCfg.HeartbeatTimeoutMs = cfg.HeartbeatTimeoutMs
	connCfg.MaxSubscriptionsPerConnection = cfg.MaxSubscriptionsPerConnection
	connCfg.MaxBufferedBytes = cfg.MaxBufferedBytes
	connCfg.HighWaterMark = cfg.HighWaterMark
	connCfg.RequiresAuth = cfg.RequiresAuth
	connCfg.MaxMessageBytes = cfg.MaxMessageBytes

	sup := supervisor.New(r, connCfg, logger)
	r.Registry = sup

	// --- HTTP surface ---
	pings := map[string]httpgw.PingFunc{"store": kv.Ping}
	if limiter != nil {
		if pinger, ok := limiter.(interface{ Ping(context.Context) error }); ok {
			pings["rateLimiter"] = pinger.Ping
		}
	}
	gw := httpgw.New(sup, httpgw.Config{
		Path:                cfg.WSPath,
		AllowedOrigins:      cfg.AllowedOrigins,
		HeartbeatIntervalMs: cfg.HeartbeatIntervalMs,
		Version:             protocol.Version,
		Pings:               pings,
		Logger:              logger,
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      gw,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}

	// Drain connections before stopping the listener: new upgrades are
	// refused the instant Stop flips supervisor.Accepting() false.
	sup.Stop(supervisor.StopOptions{GracePeriodMs: cfg.GracePeriodMs})

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := auditLog.Flush(flushCtx); err != nil {
		logger.Warn("audit flush on shutdown failed", "error", err)
	}
	flushCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("gateway stopped")
}

// runAuditExport snapshots the audit ring buffer to S3 on a fixed cadence
// until ctx is cancelled. Export failures are logged and skipped; the next
// tick retries with the then-current buffer.
func runAuditExport(ctx context.Context, exporter *audit.Exporter, log *audit.Log, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			entries, err := log.Query(ctx, domain.AuditFilter{Limit: audit.DefaultCapacity})
			if err != nil || len(entries) == 0 {
				continue
			}
			if _, err := exporter.Export(ctx, entries); err != nil {
				logger.Warn("audit snapshot export failed", "error", err)
			}
		}
	}
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
}
