package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nfc4care/backend/internal/app"
	"nfc4care/backend/internal/config"
	"nfc4care/backend/internal/db/migrate"
	healthhandler "nfc4care/backend/internal/health/handler"
	identityservice "nfc4care/backend/internal/identity/service"
	"nfc4care/backend/internal/logging"
	"nfc4care/backend/internal/platform/rbac"
	"nfc4care/backend/internal/policy/engine"
	"nfc4care/backend/internal/ratelimit"
	"nfc4care/backend/internal/server"
	"nfc4care/backend/internal/server/interceptors"
	"nfc4care/backend/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DBAutoMigrate {
		if err := migrate.Run(cfg.DatabaseURL, migrate.DirectionUp); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			fatal(logger, "migrate", err)
		}
	}

	core, err := app.NewCore(ctx, cfg, logger)
	if err != nil {
		fatal(logger, "startup", err)
	}

	auth := identityservice.NewAuthService(core.Professionals, core.Authority, core.Hasher, core.Audit,
		logging.WithComponent(logger, "auth"))
	if cfg.BootstrapDefaultProfessional {
		created, err := auth.EnsureProfessional(ctx, identityservice.DefaultDoctor)
		if err != nil {
			fatal(logger, "bootstrap professional", err)
		}
		if created {
			logger.Warn("created development professional", "email", identityservice.DefaultDoctor.Email)
		}
	}

	limiter := ratelimit.New(ratelimit.Config{Limit: cfg.LoginRateLimit, Window: cfg.LoginRateWindow()}, nil)
	if cfg.RedisAddr != "" {
		rdb := ratelimit.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable; login limiter will fail open until it recovers", "addr", cfg.RedisAddr, "error", err)
		}
		limiter = ratelimit.New(ratelimit.Config{Limit: cfg.LoginRateLimit, Window: cfg.LoginRateWindow()}, rdb)
	}

	proxies, err := interceptors.ParseTrustedProxies(cfg.TrustedProxies())
	if err != nil {
		fatal(logger, "trusted proxies", err)
	}

	evaluator, err := engine.NewOPAEvaluator(ctx, rbac.DefaultRules())
	if err != nil {
		fatal(logger, "authorization policy", err)
	}

	scheduler := core.Scheduler()
	handler := server.NewRouter(server.Deps{
		Logger:         logger,
		Auth:           auth,
		Validator:      core.Authority,
		Principals:     core.Professionals,
		Authorizer:     evaluator,
		Sessions:       core.Authority,
		Maintenance:    scheduler,
		TrustedProxies: proxies,
		LoginLimiter:   limiter,
		Audit:          core.Audit,
		Emitter:        core.Emitter,
		Health:         healthhandler.NewServer(core.DB, evaluator),
		Metrics:        promhttp.HandlerFor(core.Registry, promhttp.HandlerOpts{}),
		TraceOperation: cfg.ServiceName,
	})

	stopMaintenance := func() {}
	if cfg.MaintenanceEnabled {
		stopMaintenance = scheduler.Start(ctx)
		logger.Info("session maintenance started",
			"sweep_interval", cfg.SweepInterval(), "consolidate_interval", cfg.ConsolidateInterval())
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("serve", "error", err)
		}
	}

	logger.Info("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	stopMaintenance()
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := core.Close(shutdownCtx); err != nil {
		logger.Error("close", "error", err)
	}
	logger.Info("HTTP server stopped")
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
