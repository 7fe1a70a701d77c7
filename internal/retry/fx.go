package retry

import (
	"context"

	"go.uber.org/fx"

	"github.com/facturia-app/facturia/internal/retry/repository"
)

var Module = fx.Module("retry",
	fx.Provide(repository.Provide),
	fx.Provide(New),
	fx.Invoke(StartSweep),
)

// StartSweep runs the sweep loop for the lifetime of the application.
func StartSweep(lc fx.Lifecycle, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
