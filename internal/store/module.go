package store

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/helphub/relay-service/config"
)

var Module = fx.Module("store",
	fx.Provide(func(cfg *config.Config, logger *slog.Logger) (*Queue, error) {
		return Open(cfg.QueuePath, logger.With(slog.String("component", "store")))
	}),
	fx.Invoke(func(lc fx.Lifecycle, q *Queue) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return q.Close()
			},
		})
	}),
)
