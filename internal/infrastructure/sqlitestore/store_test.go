package sqlitestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"feedstore/internal/errs"
	"feedstore/internal/infrastructure/persistence/sqlite/model"
	"feedstore/internal/infrastructure/persistence/sqlite/repository"
	"feedstore/internal/ports"
	"feedstore/internal/storetest"
)

func TestSQLiteStoreConformance(t *testing.T) {
	storetest.Run(t, storetest.Backend{
		NewStore: func(t *testing.T) ports.FeedStore {
			return setupStore(t, Options{Path: testDatabasePath(t)})
		},
		NewCorruptedStore: func(t *testing.T) ports.FeedStore {
			store := setupStore(t, Options{Path: testDatabasePath(t)})
			seedSnapshot(t, store)
			corruptStoredTimestamp(t, store)
			return store
		},
		NewUnwritableStore: func(t *testing.T) ports.FeedStore {
			path := testDatabasePath(t)
			writable := setupStore(t, Options{Path: path})
			seedSnapshot(t, writable)
			if err := writable.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}
			return setupStore(t, Options{Path: path, ReadOnly: true})
		},
	})
}

func setupStore(t *testing.T, opts Options) *Store {
	t.Helper()

	store, err := Open(context.Background(), opts)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func testDatabasePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "state", "feed.sqlite")
}

func seedSnapshot(t *testing.T, store *Store) {
	t.Helper()
	if err := ports.InsertAndWait(context.Background(), store, storetest.UniqueFeed(), storetest.Timestamp()); err != nil {
		t.Fatalf("seed Insert() error = %v", err)
	}
}

func corruptStoredTimestamp(t *testing.T, store *Store) {
	t.Helper()
	if err := store.db.Exec("UPDATE feed_caches SET timestamp = ?", "not-a-timestamp").Error; err != nil {
		t.Fatalf("corrupt feed cache: %v", err)
	}
}

func countRows(t *testing.T, store *Store) (caches int64, items int64) {
	t.Helper()
	if err := store.db.Model(&model.CacheRecord{}).Count(&caches).Error; err != nil {
		t.Fatalf("count caches: %v", err)
	}
	if err := store.db.Model(&model.ItemRecord{}).Count(&items).Error; err != nil {
		t.Fatalf("count items: %v", err)
	}
	return caches, items
}

func TestOpenFailsWhenDirectoryCannotBeCreated(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(parent, []byte("x"), 0o600); err != nil {
		t.Fatalf("write parent file: %v", err)
	}

	store, err := Open(context.Background(), Options{Path: filepath.Join(parent, "state", "feed.sqlite")})
	if store != nil {
		t.Fatalf("Open() returned a store on failure")
	}
	if !errs.IsKind(err, errs.KindConstruction) {
		t.Fatalf("Open() error = %v, want construction error", err)
	}
}

func TestOpenFailsWhenSchemaCannotLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.sqlite")
	if err := os.WriteFile(path, []byte(strings.Repeat("invalid data ", 512)), 0o600); err != nil {
		t.Fatalf("write invalid database: %v", err)
	}

	store, err := Open(context.Background(), Options{Path: path})
	if store != nil || !errs.IsKind(err, errs.KindConstruction) {
		t.Fatalf("Open() = %v, %v; want construction error", store, err)
	}
}

func TestOpenRequiresPathAndContext(t *testing.T) {
	if _, err := Open(context.Background(), Options{}); !errs.IsKind(err, errs.KindConstruction) {
		t.Fatalf("Open() without path error = %v", err)
	}
	//nolint:staticcheck // nil context is part of the contract under test
	if _, err := Open(nil, Options{Path: testDatabasePath(t)}); !errs.IsKind(err, errs.KindConstruction) {
		t.Fatalf("Open(nil) error = %v", err)
	}
	if _, err := New(context.Background(), nil, Options{}); !errs.IsKind(err, errs.KindConstruction) {
		t.Fatalf("New(nil db) error = %v", err)
	}
}

func TestInsertKeepsSingleCacheRow(t *testing.T) {
	store := setupStore(t, Options{Path: testDatabasePath(t)})
	ctx := context.Background()

	var last int
	for i := 1; i <= 3; i++ {
		items := storetest.UniqueFeed()[:i]
		last = len(items)
		if err := ports.InsertAndWait(ctx, store, items, time.Now()); err != nil {
			t.Fatalf("Insert(%d) error = %v", i, err)
		}
	}

	caches, items := countRows(t, store)
	if caches != 1 || items != int64(last) {
		t.Fatalf("rows = %d caches, %d items; want 1, %d", caches, items, last)
	}

	if err := ports.DeleteAndWait(ctx, store); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	caches, items = countRows(t, store)
	if caches != 0 || items != 0 {
		t.Fatalf("rows after delete = %d caches, %d items", caches, items)
	}
}

func TestRetrieveReportsExtraCacheRowsAndInsertRepairs(t *testing.T) {
	store := setupStore(t, Options{Path: testDatabasePath(t)})
	ctx := context.Background()

	repo := repository.NewCacheRepository(store.db)
	for i := 0; i < 2; i++ {
		record := repository.RecordFromSnapshot(feedSnapshot())
		if err := repo.Create(ctx, &record); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	got := ports.RetrieveAndWait(ctx, store)
	if got.Kind != ports.RetrievalFailure || !errs.IsKind(got.Err, errs.KindCodec) {
		t.Fatalf("Retrieve() = %v (%v), want codec failure", got.Kind, got.Err)
	}

	items, timestamp := storetest.UniqueFeed(), storetest.Timestamp()
	if err := ports.InsertAndWait(ctx, store, items, timestamp); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if caches, _ := countRows(t, store); caches != 1 {
		t.Fatalf("caches after insert = %d, want 1", caches)
	}
	if got := ports.RetrieveAndWait(ctx, store); !got.IsFound() || !got.Snapshot.Timestamp.Equal(timestamp) {
		t.Fatalf("Retrieve() after repair = %v (%v)", got.Kind, got.Err)
	}
}

func TestSnapshotSurvivesReopen(t *testing.T) {
	path := testDatabasePath(t)
	ctx := context.Background()
	items, timestamp := storetest.UniqueFeed(), storetest.Timestamp()

	first := setupStore(t, Options{Path: path})
	if err := ports.InsertAndWait(ctx, first, items, timestamp); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	second := setupStore(t, Options{Path: path})
	got := ports.RetrieveAndWait(ctx, second)
	if !got.IsFound() || len(got.Snapshot.Items) != len(items) {
		t.Fatalf("Retrieve() after reopen = %v (%v)", got.Kind, got.Err)
	}
	for index, item := range got.Snapshot.Items {
		if item.ID != items[index].ID {
			t.Fatalf("item %d id = %s, want %s", index, item.ID, items[index].ID)
		}
	}
}

func TestClosedStoreDeliversClosed(t *testing.T) {
	store := setupStore(t, Options{Path: testDatabasePath(t)})
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	ctx := context.Background()
	if got := ports.RetrieveAndWait(ctx, store); !errors.Is(got.Err, errs.ErrClosed) {
		t.Fatalf("Retrieve() after Close = %v (%v)", got.Kind, got.Err)
	}
	if err := ports.DeleteAndWait(ctx, store); !errors.Is(err, errs.ErrClosed) {
		t.Fatalf("Delete() after Close error = %v", err)
	}
}

func TestBuildDSNAppendsPragmas(t *testing.T) {
	if got := buildDSN("/tmp/a.sqlite", 0); got != "/tmp/a.sqlite?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)" {
		t.Fatalf("buildDSN() = %q", got)
	}
	if got := buildDSN("file:a.sqlite?mode=rwc", time.Second); got != "file:a.sqlite?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(1000)" {
		t.Fatalf("buildDSN() = %q", got)
	}
}
