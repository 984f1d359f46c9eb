package worker

import (
	"context"

	"github.com/soundcrate/soundcrate/internal/config"
	"github.com/soundcrate/soundcrate/internal/download/packager"
	"go.uber.org/fx"
)

var Module = fx.Module("download.worker",
	fx.Provide(NewEncoder),
	fx.Provide(packager.New),
	fx.Provide(NewPool),
	fx.Invoke(RunPool),
)

func NewEncoder(cfg config.Config) packager.Encoder {
	return &packager.FFmpegEncoder{Path: cfg.Download.FFmpegPath}
}

func RunPool(lc fx.Lifecycle, pool *Pool) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runCtx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				defer close(done)
				pool.Run(runCtx)
			}()

			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					cancel()
					select {
					case <-done:
					case <-ctx.Done():
					}
					return nil
				},
			})
			return nil
		},
	})
}
