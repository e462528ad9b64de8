// Worker runs session maintenance (expiry sweep, purge and consolidation) as a dedicated process.
// Run one worker per deployment and set MAINTENANCE_ENABLED=false on the API replicas.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nfc4care/backend/internal/app"
	"nfc4care/backend/internal/config"
	"nfc4care/backend/internal/logging"
	"nfc4care/backend/internal/telemetry"
)

func main() {
	runOnce := len(os.Args) > 1 && os.Args[1] == "once"

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core, err := app.NewCore(ctx, cfg, logger)
	if err != nil {
		logger.Error("worker: startup", "error", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := core.Close(closeCtx); err != nil {
			logger.Error("worker: close", "error", err)
		}
	}()

	scheduler := core.Scheduler()
	if runOnce {
		if _, err := scheduler.RunSweep(ctx); err != nil {
			logger.Error("worker: sweep", "error", err)
		}
		if _, err := scheduler.RunConsolidation(ctx); err != nil {
			logger.Error("worker: consolidate", "error", err)
		}
		time.Sleep(telemetry.ShutdownDrainDuration)
		return
	}

	logger.Info("worker: session maintenance started",
		"sweep_interval", cfg.SweepInterval(),
		"consolidate_interval", cfg.ConsolidateInterval(),
		"retention", cfg.Retention())
	stopScheduler := scheduler.Start(ctx)
	<-ctx.Done()
	logger.Info("worker: shutting down...")
	stopScheduler()
	time.Sleep(telemetry.ShutdownDrainDuration)
	logger.Info("worker: stopped")
}
