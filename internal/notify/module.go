package notify

import (
	"context"

	"fxbot/internal/config"
	"fxbot/pkg/logger"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			func(lc fx.Lifecycle, cfg *config.Config) (Notifier, *Telegram, error) {
				if cfg.Telegram.Token == "" {
					logger.Warn("[NOTIFY] telegram token is empty, notifications go to the log")
					return NewStdout(), nil, nil
				}
				tg, err := NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
				if err != nil {
					return nil, nil, err
				}
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						return tg.Start(context.Background())
					},
					OnStop: func(context.Context) error {
						tg.Stop()
						return nil
					},
				})
				return tg, tg, nil
			},
		),
	)
}
