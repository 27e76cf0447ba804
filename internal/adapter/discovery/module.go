package discovery

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("discovery",
	fx.Provide(NewAnnouncer),
	fx.Invoke(func(lc fx.Lifecycle, a *Announcer) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error { return a.Start() },
			OnStop: func(ctx context.Context) error {
				a.Stop()
				return nil
			},
		})
	}),
)
