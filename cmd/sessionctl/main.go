// sessionctl inspects and maintains session records from the command line.
// It uses the same configuration and wiring as cmd/server.
package main

import (
	"context"
	"os"
	"time"

	"nfc4care/backend/internal/app"
	"nfc4care/backend/internal/config"
	"nfc4care/backend/internal/logging"
	"nfc4care/backend/internal/telemetry"
)

func main() {
	root := newRootCmd(openEnv)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// openEnv builds the production environment from config.
func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: "text", Writer: os.Stderr})
	core, err := app.NewCore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &env{
		auth:      core.Authority,
		maint:     core.Scheduler(),
		retention: cfg.Retention(),
		close: func() error {
			// Let audit emits started by this command finish before providers shut down.
			time.Sleep(telemetry.ShutdownDrainDuration)
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return core.Close(closeCtx)
		},
	}, nil
}
