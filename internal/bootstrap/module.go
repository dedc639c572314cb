package bootstrap

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"feedstore/internal/bootstrap/config"
	"feedstore/internal/bootstrap/logging"
	"feedstore/internal/errs"
	"feedstore/internal/ports"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideStore),
	fx.Provide(provideFeedStore),
	fx.Provide(provideApp),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideStore(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (Store, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	store, err := OpenStore(logCtx, cfg.Store)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			if err := store.Close(); err != nil {
				return errs.Wrap(err, "close feed store")
			}
			logging.Info(logCtx, "feed store closed", slog.String("store_path", store.Path()))
			return nil
		},
	})

	return store, nil
}

func provideFeedStore(store Store) ports.FeedStore {
	return store
}

func provideApp(cfg config.Config, store ports.FeedStore) *App {
	return &App{
		Config: cfg,
		Store:  store,
	}
}
