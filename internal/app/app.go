// Package app wires the session authority and its collaborators from configuration.
// cmd/server, cmd/worker and cmd/sessionctl share it so they all behave identically.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"nfc4care/backend/internal/audit"
	auditrepo "nfc4care/backend/internal/audit/repository"
	"nfc4care/backend/internal/config"
	"nfc4care/backend/internal/db"
	"nfc4care/backend/internal/logging"
	profrepo "nfc4care/backend/internal/professional/repository"
	"nfc4care/backend/internal/security"
	"nfc4care/backend/internal/server/interceptors"
	"nfc4care/backend/internal/session/maintenance"
	sessionrepo "nfc4care/backend/internal/session/repository"
	"nfc4care/backend/internal/session/service"
	"nfc4care/backend/internal/telemetry"
	"nfc4care/backend/internal/telemetry/metrics"
	otelsetup "nfc4care/backend/internal/telemetry/otel"
)

// Core holds the long-lived components built from Config.
type Core struct {
	Config *config.Config
	Logger *slog.Logger

	DB            *sql.DB
	Professionals *profrepo.PostgresRepository
	Sessions      *sessionrepo.PostgresRepository
	Authority     *service.Authority
	Hasher        *security.Hasher

	Audit    *audit.Logger
	Emitter  telemetry.EventEmitter
	Registry *prometheus.Registry
	Metrics  *metrics.SessionMetrics

	telemetry *otelsetup.Providers
}

// NewCore opens the database, sets up telemetry and builds the session authority.
// The caller must Close the returned Core.
func NewCore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Core, error) {
	if logger == nil {
		logger = slog.Default()
	}
	secret, err := cfg.TokenSecret()
	if err != nil {
		return nil, err
	}
	codec, err := security.NewTokenCodec(secret, cfg.JWTIssuer)
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	providers, err := otelsetup.NewProviders(ctx, otelsetup.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		_ = providers.Shutdown(ctx)
		return nil, fmt.Errorf("database: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewSessionMetrics(reg)

	emitter := otelsetup.NewEventEmitter(providers.LoggerProvider)
	auditLogger := audit.NewLogger(auditrepo.NewPostgresRepository(conn), interceptors.ClientIPFrom,
		audit.WithEmitter(emitter), audit.WithSlog(logging.WithComponent(logger, "audit")))

	sessions := sessionrepo.NewPostgresRepository(conn)
	authority, err := service.New(sessions, codec, cfg.TokenTTL(),
		service.WithLogger(logging.WithComponent(logger, "sessions")),
		service.WithAudit(auditLogger),
		service.WithMetrics(m),
	)
	if err != nil {
		_ = conn.Close()
		_ = providers.Shutdown(ctx)
		return nil, err
	}

	return &Core{
		Config:        cfg,
		Logger:        logger,
		DB:            conn,
		Professionals: profrepo.NewPostgresRepository(conn),
		Sessions:      sessions,
		Authority:     authority,
		Hasher:        security.NewHasher(cfg.BcryptCost),
		Audit:         auditLogger,
		Emitter:       emitter,
		Registry:      reg,
		Metrics:       m,
		telemetry:     providers,
	}, nil
}

// Scheduler returns a maintenance scheduler over the core's authority using the configured intervals.
func (c *Core) Scheduler() *maintenance.Scheduler {
	return maintenance.New(c.Authority, maintenance.Config{
		SweepInterval:       c.Config.SweepInterval(),
		ConsolidateInterval: c.Config.ConsolidateInterval(),
		Retention:           c.Config.Retention(),
	},
		maintenance.WithLogger(logging.WithComponent(c.Logger, "maintenance")),
		maintenance.WithMetrics(c.Metrics),
	)
}

// Close flushes telemetry and closes the database.
func (c *Core) Close(ctx context.Context) error {
	var errs []error
	if c.telemetry != nil {
		if err := c.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close: %w", err))
		}
	}
	return errors.Join(errs...)
}
