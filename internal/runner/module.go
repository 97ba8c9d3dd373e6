package runner

import (
	"context"

	"fxbot/internal/broker"
	"fxbot/internal/config"
	"fxbot/internal/events"
	"fxbot/internal/journal"
	"fxbot/internal/notify"

	"go.uber.org/fx"
)

type managerParams struct {
	fx.In

	Cfg       *config.Config
	Broker    broker.Broker
	Journal   journal.Store
	Notifier  notify.Notifier
	Events    events.Publisher
	Stream    *broker.Stream   `optional:"true"`
	Telegram  *notify.Telegram `optional:"true"`
	Lifecycle fx.Lifecycle
}

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			func(p managerParams) (*Manager, error) {
				m, err := NewManager(p.Cfg, Deps{
					Broker:   p.Broker,
					Journal:  p.Journal,
					Notifier: p.Notifier,
					Events:   p.Events,
				}, p.Stream)
				if err != nil {
					return nil, err
				}
				if p.Telegram != nil {
					p.Telegram.SetController(m)
				}
				p.Lifecycle.Append(fx.Hook{
					OnStart: func(context.Context) error {
						// ctx хука живёт только до конца старта
						m.Start(context.Background())
						return nil
					},
					OnStop: func(context.Context) error {
						m.Stop()
						return nil
					},
				})
				return m, nil
			},
		),
		fx.Invoke(func(*Manager) {}),
	)
}
