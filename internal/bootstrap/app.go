package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"feedstore/internal/bootstrap/config"
	"feedstore/internal/bootstrap/logging"
	"feedstore/internal/errs"
	"feedstore/internal/infrastructure/filestore"
	"feedstore/internal/infrastructure/sqlitestore"
	"feedstore/internal/ports"
)

// Store is a feed store owned by the application lifecycle.
type Store interface {
	ports.FeedStore
	io.Closer
	Path() string
}

type App struct {
	Config config.Config
	Store  ports.FeedStore
}

// OpenStore builds the backend selected by cfg.Backend.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(
		ctx,
		slog.String("component", "bootstrap.app"),
		slog.String("store_backend", cfg.Backend),
		slog.String("store_path", cfg.Path),
	)

	switch cfg.Backend {
	case config.BackendFile:
		codec, err := filestore.CodecByName(cfg.Codec)
		if err != nil {
			return nil, errs.Wrap(err, "resolve store codec")
		}
		if err := ensureParentDirectory(cfg.Path); err != nil {
			return nil, errs.Mark(errs.Wrap(err, "prepare store directory"), errs.KindConstruction)
		}
		store, err := filestore.New(cfg.Path, filestore.WithCodec(codec))
		if err != nil {
			return nil, errs.Wrap(err, "open file store")
		}
		logging.Info(logCtx, "file store opened", slog.String("codec", codec.Name()))
		return store, nil
	case config.BackendSQLite:
		store, err := sqlitestore.Open(ctx, sqlitestore.Options{
			Path:        cfg.Path,
			ReadOnly:    cfg.ReadOnly,
			BusyTimeout: cfg.BusyTimeout,
		})
		if err != nil {
			return nil, errs.Wrap(err, "open sqlite store")
		}
		logging.Info(logCtx, "sqlite store opened", slog.Bool("read_only", cfg.ReadOnly))
		return store, nil
	default:
		return nil, errs.Mark(fmt.Errorf("unsupported store backend %q", cfg.Backend), errs.KindInvalid)
	}
}

func ensureParentDirectory(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Status retrieves the current snapshot and blocks until the store answers.
func (a *App) Status(ctx context.Context) ports.Retrieval {
	return ports.RetrieveAndWait(ctx, a.Store)
}
