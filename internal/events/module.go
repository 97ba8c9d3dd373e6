package events

import (
	"context"

	"fxbot/internal/config"
	"fxbot/pkg/logger"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("events",
		fx.Provide(
			func(lc fx.Lifecycle, cfg *config.Config) (Publisher, error) {
				if cfg.AMQPURI == "" {
					logger.Info("[EVENTS] amqp_uri is empty, events are dropped")
					return Nop{}, nil
				}
				pub, err := NewAMQP(cfg.AMQPURI)
				if err != nil {
					return nil, err
				}
				lc.Append(fx.Hook{
					OnStop: func(context.Context) error {
						pub.Close()
						return nil
					},
				})
				return pub, nil
			},
		),
	)
}
