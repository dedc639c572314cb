package sqlitestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"feedstore/internal/bootstrap/logging"
	"feedstore/internal/dispatch"
	"feedstore/internal/domain/feed"
	"feedstore/internal/errs"
	"feedstore/internal/infrastructure/persistence/sqlite/model"
	"feedstore/internal/infrastructure/persistence/sqlite/repository"
	"feedstore/internal/infrastructure/persistence/sqlite/uow"
	"feedstore/internal/ports"
)

// Store keeps the feed snapshot in an embedded SQLite database as one
// feed_caches row plus its feed_cache_items.
//
// Every operation runs on a serial queue bound to the store's connection, so
// operations execute one at a time in submission order. Insert replaces the
// snapshot inside a single transaction, which is what keeps the table at no
// more than one row.
type Store struct {
	path  string
	db    *gorm.DB
	repo  *repository.CacheRepository
	uow   *uow.UnitOfWork
	queue *dispatch.Queue

	closeOnce sync.Once
	closeErr  error
}

var _ ports.FeedStore = (*Store)(nil)

// Open opens the database at opts.Path and loads the schema. Any failure here
// is a construction failure: no store is returned.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if ctx == nil {
		return nil, errs.Mark(errors.New("context is required"), errs.KindConstruction)
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Mark(errs.Wrap(err, "check context"), errs.KindConstruction)
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "sqlitestore"), slog.String("path", opts.Path))

	db, err := openDatabase(logCtx, opts)
	if err != nil {
		return nil, errs.Mark(errs.Wrap(err, "open feed store"), errs.KindConstruction)
	}

	store, err := New(logCtx, db, opts)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	return store, nil
}

// New builds a store on an already opened database and migrates its schema.
// The store takes ownership of db and closes it on Close.
func New(ctx context.Context, db *gorm.DB, opts Options) (*Store, error) {
	if ctx == nil {
		return nil, errs.Mark(errors.New("context is required"), errs.KindConstruction)
	}
	if db == nil {
		return nil, errs.Mark(errors.New("database is required"), errs.KindConstruction)
	}

	if err := db.WithContext(ctx).AutoMigrate(model.All()...); err != nil {
		return nil, errs.Mark(errs.Wrap(err, "migrate feed cache schema"), errs.KindConstruction)
	}

	if opts.ReadOnly {
		if err := db.WithContext(ctx).Exec("PRAGMA query_only = ON").Error; err != nil {
			return nil, errs.Mark(errs.Wrap(err, "enable query_only"), errs.KindConstruction)
		}
	}

	s := &Store{
		path: opts.Path,
		db:   db,
		repo: repository.NewCacheRepository(db),
		uow:  uow.NewUnitOfWork(db),
	}
	s.queue = dispatch.NewSerialQueue(dispatch.WithPanicHandler(func(err error) {
		logging.Error(s.logContext(context.Background(), "completion"), "completion panicked", slog.Any("err", errs.Loggable(err)))
	}))

	logging.Info(ctx, "feed store ready", slog.Bool("read_only", opts.ReadOnly))
	return s, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Retrieve(ctx context.Context, completion func(ports.Retrieval)) {
	dispatch.Call(s.logContext(ctx, "retrieve"), s.queue, true, s.retrieve, ports.FailedRetrieval, completion)
}

func (s *Store) Insert(ctx context.Context, items []feed.CacheItem, timestamp time.Time, completion func(error)) {
	snapshot := feed.NewSnapshot(items, timestamp)
	dispatch.Call(s.logContext(ctx, "insert"), s.queue, true, func(runCtx context.Context) error {
		return s.insert(runCtx, snapshot)
	}, identity, completion)
}

func (s *Store) Delete(ctx context.Context, completion func(error)) {
	dispatch.Call(s.logContext(ctx, "delete"), s.queue, true, s.delete, identity, completion)
}

// Close drains queued operations, then closes the database.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.queue.Close()

		sqlDB, err := s.db.DB()
		if err != nil {
			s.closeErr = errs.Wrap(err, "get sql db")
			return
		}
		if err := sqlDB.Close(); err != nil {
			s.closeErr = errs.Wrap(err, "close sql db")
		}
	})
	return s.closeErr
}

func (s *Store) retrieve(ctx context.Context) ports.Retrieval {
	rows, err := s.repo.FindAll(ctx)
	if err != nil {
		return ports.FailedRetrieval(s.fail(ctx, errs.Mark(errs.Wrap(err, "find feed cache"), errs.KindMediumAccess)))
	}

	switch len(rows) {
	case 0:
		return ports.EmptyRetrieval()
	case 1:
		snapshot, err := repository.SnapshotFromRecord(rows[0])
		if err != nil {
			return ports.FailedRetrieval(s.fail(ctx, errs.Wrap(err, "decode feed cache")))
		}
		return ports.FoundRetrieval(snapshot.Items, snapshot.Timestamp)
	default:
		err := fmt.Errorf("found %d feed caches, want at most one", len(rows))
		return ports.FailedRetrieval(s.fail(ctx, errs.Mark(err, errs.KindCodec)))
	}
}

func (s *Store) insert(ctx context.Context, snapshot feed.CacheSnapshot) error {
	if err := snapshot.Validate(); err != nil {
		return s.fail(ctx, errs.Mark(errs.Wrap(err, "validate snapshot"), errs.KindInvalid))
	}

	record := repository.RecordFromSnapshot(snapshot)
	err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		removed, err := s.repo.DeleteAll(txCtx)
		if err != nil {
			return err
		}
		if err := s.repo.Create(txCtx, &record); err != nil {
			return err
		}
		logging.Debug(txCtx, "feed cache replaced", slog.Int("removed", removed), slog.Int("items", len(record.Items)))
		return nil
	})
	if err != nil {
		return s.fail(ctx, errs.Mark(errs.Wrap(err, "replace feed cache"), errs.KindMediumAccess))
	}
	return nil
}

func (s *Store) delete(ctx context.Context) error {
	err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		_, err := s.repo.DeleteAll(txCtx)
		return err
	})
	if err != nil {
		return s.fail(ctx, errs.Mark(errs.Wrap(err, "delete feed cache"), errs.KindMediumAccess))
	}
	return nil
}

func (s *Store) fail(ctx context.Context, err error) error {
	logging.Warn(ctx, "feed store operation failed", slog.Any("err", errs.Loggable(err)))
	return err
}

func (s *Store) logContext(ctx context.Context, operation string) context.Context {
	if ctx == nil {
		return nil
	}
	return logging.WithAttrs(ctx,
		slog.String("component", "sqlitestore"),
		slog.String("operation", operation),
	)
}

func identity(err error) error { return err }
