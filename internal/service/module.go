package service

import (
	"context"

	"go.uber.org/fx"

	"github.com/helphub/relay-service/internal/store"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		func(q *store.Queue) Store { return q },
		NewRouter,
		NewSweeper,
	),

	fx.Invoke(func(lc fx.Lifecycle, s *Sweeper) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				s.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				s.Stop()
				return nil
			},
		})
	}),
)
