package sqlitestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"feedstore/internal/bootstrap/logging"
	"feedstore/internal/errs"
)

const defaultBusyTimeout = 5 * time.Second

// Options configures Open.
type Options struct {
	// Path is the database file. It may carry its own "?query"; pragmas are appended.
	Path string
	// ReadOnly switches the connection to PRAGMA query_only after migration,
	// so inserts and deletes fail without touching the stored snapshot.
	ReadOnly bool
	// BusyTimeout bounds how long SQLite waits on a lock held by another
	// connection. Zero means five seconds.
	BusyTimeout time.Duration
}

func openDatabase(ctx context.Context, opts Options) (*gorm.DB, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, errors.New("database path is required")
	}

	if err := ensureDirectory(ctx, path); err != nil {
		return nil, errs.Wrap(err, "ensure sqlite directory")
	}

	dsn := buildDSN(path, opts.BusyTimeout)
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errs.Wrap(err, "open sqlite db")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errs.Wrap(err, "get sql db")
	}
	// Pragmas such as query_only are per connection; one pinned connection
	// keeps them in force and matches the store's serial executor.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	logging.Info(ctx, "database opened", slog.String("driver", "sqlite"), slog.String("dsn", dsn))
	return db, nil
}

func buildDSN(path string, busyTimeout time.Duration) string {
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)", path, sep, busyTimeout.Milliseconds())
}

func ensureDirectory(ctx context.Context, dsn string) error {
	candidate := strings.TrimSpace(dsn)
	if strings.HasPrefix(strings.ToLower(candidate), "file:") {
		candidate = candidate[len("file:"):]
	}
	if idx := strings.Index(candidate, "?"); idx >= 0 {
		candidate = candidate[:idx]
	}
	if candidate == "" || candidate == ":memory:" {
		return nil
	}

	dir := filepath.Dir(candidate)
	if dir == "" || dir == "." {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrapf(err, "create sqlite directory %q", dir)
	}

	logging.Debug(ctx, "sqlite directory ensured", slog.String("dir", dir))
	return nil
}
