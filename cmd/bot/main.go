package main

import (
	"context"

	"fxbot/internal/broker"
	"fxbot/internal/config"
	"fxbot/internal/events"
	"fxbot/internal/journal"
	"fxbot/internal/modules/health"
	"fxbot/internal/notify"
	"fxbot/internal/runner"
	"fxbot/pkg/logger"
	"fxbot/pkg/tracing"

	"go.uber.org/fx"
)

// setupObservability поднимает логгер и трейсер до остальных модулей.
func setupObservability(lc fx.Lifecycle, cfg *config.Config) error {
	if _, err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		return err
	}
	logger.SetServiceName(cfg.Service.Name)
	tracing.SetServiceName(cfg.Service.Name)

	_, closeTracer, err := tracing.InitTracer(tracing.Config{Host: cfg.Jaeger.Host, Port: cfg.Jaeger.Port})
	if err != nil {
		return err
	}
	logger.Info("[BOOT] %s: %d bots, paper=%v stream=%v", cfg.Service.Name, len(cfg.Bots), cfg.Bridge.Paper, cfg.Bridge.Stream)

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closeTracer()
			logger.Sync()
			return nil
		},
	})
	return nil
}

func main() {
	app := fx.New(
		config.Module(),
		fx.Module("observability", fx.Invoke(setupObservability)),
		journal.Module(),
		broker.Module(),
		notify.Module(),
		events.Module(),
		runner.Module(),
		health.Module(),
	)
	app.Run()
}
