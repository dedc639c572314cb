package filestore

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"feedstore/internal/bootstrap/logging"
	"feedstore/internal/dispatch"
	"feedstore/internal/domain/feed"
	"feedstore/internal/errs"
	"feedstore/internal/ports"
)

const defaultFileMode os.FileMode = 0o600

// Store keeps the feed snapshot in a single encoded file.
//
// Retrieves share the file; inserts and deletes run alone. All operations
// pass through one barrier queue, so effects and completions follow
// submission order. Two Store values on the same path are not coordinated.
type Store struct {
	path  string
	codec Codec
	mode  os.FileMode
	queue *dispatch.Queue

	closeOnce sync.Once
}

var _ ports.FeedStore = (*Store)(nil)

type Option func(*Store)

func WithCodec(codec Codec) Option {
	return func(s *Store) {
		if codec != nil {
			s.codec = codec
		}
	}
}

func WithFileMode(mode os.FileMode) Option {
	return func(s *Store) {
		if mode != 0 {
			s.mode = mode
		}
	}
}

func New(path string, opts ...Option) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errs.Mark(errors.New("store path is required"), errs.KindConstruction)
	}

	s := &Store{
		path:  trimmed,
		codec: JSONCodec,
		mode:  defaultFileMode,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.queue = dispatch.NewBarrierQueue(dispatch.WithPanicHandler(func(err error) {
		logging.Error(s.logContext(context.Background(), "completion"), "completion panicked", slog.Any("err", errs.Loggable(err)))
	}))
	return s, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Retrieve(ctx context.Context, completion func(ports.Retrieval)) {
	dispatch.Call(s.logContext(ctx, "retrieve"), s.queue, false, s.retrieve, ports.FailedRetrieval, completion)
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

// Close waits for queued operations and rejects new ones with errs.ErrClosed.
func (s *Store) Close() error {
	s.closeOnce.Do(s.queue.Close)
	return nil
}

func (s *Store) retrieve(ctx context.Context) ports.Retrieval {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if isAbsent(err) {
			return ports.EmptyRetrieval()
		}
		return ports.FailedRetrieval(s.fail(ctx, errs.Mark(errs.Wrap(err, "read store file"), errs.KindMediumAccess)))
	}

	snapshot, err := s.codec.Decode(data)
	if err != nil {
		return ports.FailedRetrieval(s.fail(ctx, errs.Wrap(err, "decode store file")))
	}
	return ports.FoundRetrieval(snapshot.Items, snapshot.Timestamp)
}

func (s *Store) insert(ctx context.Context, snapshot feed.CacheSnapshot) error {
	if err := snapshot.Validate(); err != nil {
		return s.fail(ctx, errs.Mark(errs.Wrap(err, "validate snapshot"), errs.KindInvalid))
	}

	data, err := s.codec.Encode(snapshot)
	if err != nil {
		return s.fail(ctx, errs.Wrap(err, "encode snapshot"))
	}

	if err := writeFileAtomic(s.path, data, s.mode); err != nil {
		return s.fail(ctx, errs.Mark(errs.Wrap(err, "write store file"), errs.KindMediumAccess))
	}
	return nil
}

func (s *Store) delete(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !isAbsent(err) {
		return s.fail(ctx, errs.Mark(errs.Wrap(err, "remove store file"), errs.KindMediumAccess))
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
		slog.String("component", "filestore"),
		slog.String("operation", operation),
		slog.String("path", s.path),
	)
}

// isAbsent reports whether err means there is no file at the path, either
// because it does not exist or because a parent is not a directory.
func isAbsent(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

func identity(err error) error { return err }
