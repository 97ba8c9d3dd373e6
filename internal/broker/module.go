package broker

import (
	"fxbot/internal/config"
	"fxbot/pkg/logger"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("broker",
		fx.Provide(
			func(cfg *config.Config) (*BridgeClient, error) {
				return NewBridgeClient(cfg.Bridge)
			},
			func(cfg *config.Config, bc *BridgeClient) Broker {
				if cfg.Bridge.Paper {
					logger.Info("[BROKER] paper mode, balance %.2f", cfg.Bridge.PaperBalance)
					return NewPaper(cfg.Bridge.PaperBalance, bc)
				}
				return bc
			},
			// nil, если стрим выключен: раннер тогда только поллит
			func(cfg *config.Config) (*Stream, error) {
				if !cfg.Bridge.Stream {
					return nil, nil
				}
				return NewStream(cfg.Bridge)
			},
		),
	)
}
