package console

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("console",
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, c *Console) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go c.Run()
				return nil
			},
		})
	}),
)
