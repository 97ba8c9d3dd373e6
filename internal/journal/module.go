package journal

import (
	"context"
	"fmt"

	"fxbot/internal/config"
	"fxbot/pkg/db"
	"fxbot/pkg/logger"

	"go.uber.org/fx"
)

// Module поднимает журнал: Postgres при заданном db_dsn, иначе память.
func Module() fx.Option {
	return fx.Module("journal",
		fx.Provide(
			func(lc fx.Lifecycle, cfg *config.Config) (Store, error) {
				if cfg.DB == "" {
					logger.Warn("[JOURNAL] db_dsn is empty, trades are kept in memory only")
					return NewMemory(), nil
				}
				return OpenPostgres(context.Background(), lc, cfg.DB)
			},
		),
	)
}

// OpenPostgres connects, pings and bootstraps the schema.
func OpenPostgres(ctx context.Context, lc fx.Lifecycle, dsn string) (*Postgres, error) {
	pool, err := db.NewPool(ctx, db.PoolConfig{DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("failed to create poolMaster: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	txm := db.NewPgTxManager(pool)
	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				txm.Close()
				return nil
			},
		})
	}
	pg := NewPostgres(txm)
	if err := pg.EnsureSchema(ctx); err != nil {
		txm.Close()
		return nil, err
	}
	return pg, nil
}
