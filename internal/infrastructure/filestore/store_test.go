package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"feedstore/internal/domain/feed"
	"feedstore/internal/errs"
	"feedstore/internal/ports"
	"feedstore/internal/storetest"
)

func TestFileStoreConformance(t *testing.T) {
	for _, codec := range []Codec{JSONCodec, TOMLCodec} {
		codec := codec
		t.Run(codec.Name(), func(t *testing.T) {
			storetest.Run(t, storetest.Backend{
				NewStore: func(t *testing.T) ports.FeedStore {
					return setupStore(t, testStorePath(t), WithCodec(codec))
				},
				NewCorruptedStore: func(t *testing.T) ports.FeedStore {
					path := testStorePath(t)
					writeInvalidData(t, path)
					return setupStore(t, path, WithCodec(codec))
				},
				NewUnwritableStore: func(t *testing.T) ports.FeedStore {
					return setupStore(t, nonEmptyDirectory(t), WithCodec(codec))
				},
			})
		})
	}
}

func setupStore(t *testing.T, path string, opts ...Option) *Store {
	t.Helper()

	store, err := New(path, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func testStorePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "feed.store")
}

func writeInvalidData(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("invalid data"), 0o600); err != nil {
		t.Fatalf("write invalid data: %v", err)
	}
}

// nonEmptyDirectory returns a path that can be neither replaced by a file nor
// removed, even by root.
func nonEmptyDirectory(t *testing.T) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "feed.store")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "keep"), []byte("x"), 0o600); err != nil {
		t.Fatalf("create file in directory: %v", err)
	}
	return dir
}

func TestNewRejectsEmptyPath(t *testing.T) {
	_, err := New("  ")
	if !errs.IsKind(err, errs.KindConstruction) {
		t.Fatalf("New() error = %v, want construction error", err)
	}
}

func TestInsertWritesFeedRecordFormat(t *testing.T) {
	path := testStorePath(t)
	store := setupStore(t, path)
	ctx := context.Background()

	items := storetest.UniqueFeed()
	timestamp := time.Date(2020, 3, 21, 8, 0, 0, 0, time.UTC)
	if err := ports.InsertAndWait(ctx, store, items, timestamp); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read store file: %v", err)
	}
	var record struct {
		Feed      []map[string]any `json:"feed"`
		Timestamp string           `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &record); err != nil {
		t.Fatalf("unmarshal store file %q: %v", raw, err)
	}
	if record.Timestamp != "2020-03-21T08:00:00Z" {
		t.Fatalf("timestamp = %q", record.Timestamp)
	}
	if len(record.Feed) != len(items) {
		t.Fatalf("feed len = %d, want %d", len(record.Feed), len(items))
	}
	bare := record.Feed[1]
	if bare["id"] != items[1].ID.String() || bare["url"] != items[1].URL.String() {
		t.Fatalf("feed[1] = %v", bare)
	}
	if v, ok := bare["description"]; !ok || v != nil {
		t.Fatalf("feed[1].description = %v (present=%v), want null", v, ok)
	}
}

func TestRetrieveDecodesHandWrittenRecord(t *testing.T) {
	path := testStorePath(t)
	record := `{
		"feed": [
			{"id": "6F5F1E38-0C39-4C8A-9D2B-6A1C3C1D2E3F", "description": null, "location": "Lisbon", "url": "https://example.com/a.png"}
		],
		"timestamp": "2021-06-01T10:00:00.5+02:00"
	}`
	if err := os.WriteFile(path, []byte(record), 0o600); err != nil {
		t.Fatalf("write record: %v", err)
	}
	store := setupStore(t, path)

	got := ports.RetrieveAndWait(context.Background(), store)
	if !got.IsFound() {
		t.Fatalf("Retrieve() = %v (%v), want found", got.Kind, got.Err)
	}
	if len(got.Snapshot.Items) != 1 {
		t.Fatalf("items = %+v", got.Snapshot.Items)
	}
	item := got.Snapshot.Items[0]
	if item.Description != nil || item.Location == nil || *item.Location != "Lisbon" {
		t.Fatalf("item = %+v", item)
	}
	if strings.ToUpper(item.ID.String()) != "6F5F1E38-0C39-4C8A-9D2B-6A1C3C1D2E3F" {
		t.Fatalf("item id = %s", item.ID)
	}
	want := time.Date(2021, 6, 1, 8, 0, 0, 500000000, time.UTC)
	if !got.Snapshot.Timestamp.Equal(want) || got.Snapshot.Timestamp.Location() != time.UTC {
		t.Fatalf("timestamp = %v, want %v in UTC", got.Snapshot.Timestamp, want)
	}
}

func TestRetrieveReportsCodecKindForMissingFields(t *testing.T) {
	cases := map[string]string{
		"null":              `null`,
		"missing timestamp": `{"feed": []}`,
		"bad id":            `{"feed": [{"id": "nope", "url": "http://a"}], "timestamp": "2021-06-01T10:00:00Z"}`,
		"missing url":       `{"feed": [{"id": "6F5F1E38-0C39-4C8A-9D2B-6A1C3C1D2E3F"}], "timestamp": "2021-06-01T10:00:00Z"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := testStorePath(t)
			if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
				t.Fatalf("write record: %v", err)
			}
			got := ports.RetrieveAndWait(context.Background(), setupStore(t, path))
			if got.Kind != ports.RetrievalFailure || !errs.IsKind(got.Err, errs.KindCodec) {
				t.Fatalf("Retrieve() = %v (%v), want codec failure", got.Kind, got.Err)
			}
		})
	}
}

func TestPathUnderRegularFileIsEmptyAndUnwritable(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(parent, []byte("x"), 0o600); err != nil {
		t.Fatalf("write parent file: %v", err)
	}
	store := setupStore(t, filepath.Join(parent, "feed.store"))
	ctx := context.Background()

	if got := ports.RetrieveAndWait(ctx, store); !got.IsEmpty() {
		t.Fatalf("Retrieve() = %v (%v), want empty", got.Kind, got.Err)
	}
	err := ports.InsertAndWait(ctx, store, storetest.UniqueFeed(), time.Now())
	if !errs.IsKind(err, errs.KindMediumAccess) {
		t.Fatalf("Insert() error = %v, want medium access error", err)
	}
	if err := ports.DeleteAndWait(ctx, store); err != nil {
		t.Fatalf("Delete() error = %v, want no-op success", err)
	}
	if got := ports.RetrieveAndWait(ctx, store); !got.IsEmpty() {
		t.Fatalf("Retrieve() after failed insert = %v, want empty", got.Kind)
	}
}

func TestInsertLeavesNoTemporaryFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feed.store")
	store := setupStore(t, path)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := ports.InsertAndWait(ctx, store, storetest.UniqueFeed(), time.Now()); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "feed.store" {
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		t.Fatalf("dir entries = %v", names)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat store file: %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != defaultFileMode {
		t.Fatalf("store file mode = %v, want %v", info.Mode().Perm(), defaultFileMode)
	}
}

func TestFailedInsertOverUnwritableDirectoryCleansUp(t *testing.T) {
	path := nonEmptyDirectory(t)
	store := setupStore(t, path)

	if err := ports.InsertAndWait(context.Background(), store, storetest.UniqueFeed(), time.Now()); err == nil {
		t.Fatalf("Insert() expected error")
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp file left behind: %d entries", len(entries))
	}
}

func TestDeleteDeliversErrorOnPermissionDenied(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for this user")
	}

	dir := filepath.Join(t.TempDir(), "locked")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create dir: %v", err)
	}
	path := filepath.Join(dir, "feed.store")
	store := setupStore(t, path)
	ctx := context.Background()

	items, timestamp := storetest.UniqueFeed(), time.Now()
	if err := ports.InsertAndWait(ctx, store, items, timestamp); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatalf("chmod dir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	err := ports.DeleteAndWait(ctx, store)
	if !errors.Is(err, os.ErrPermission) || !errs.IsKind(err, errs.KindMediumAccess) {
		t.Fatalf("Delete() error = %v, want permission denied", err)
	}
	if got := ports.RetrieveAndWait(ctx, store); !got.IsFound() {
		t.Fatalf("Retrieve() after failed delete = %v (%v), want found", got.Kind, got.Err)
	}
}

// refusingCodec delegates to Codec until refuse is set, then fails every Encode.
type refusingCodec struct {
	Codec
	refuse atomic.Bool
}

func (c *refusingCodec) Encode(snapshot feed.CacheSnapshot) ([]byte, error) {
	if c.refuse.Load() {
		return nil, errs.Mark(errors.New("encode refused"), errs.KindCodec)
	}
	return c.Codec.Encode(snapshot)
}

func TestFailedInsertKeepsStoredSnapshot(t *testing.T) {
	codec := &refusingCodec{Codec: JSONCodec}
	path := testStorePath(t)
	store := setupStore(t, path, WithCodec(codec))
	ctx := context.Background()

	items, timestamp := storetest.UniqueFeed(), storetest.Timestamp()
	if err := ports.InsertAndWait(ctx, store, items, timestamp); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	codec.refuse.Store(true)
	err := ports.InsertAndWait(ctx, store, storetest.UniqueFeed(), time.Now())
	if !errs.IsKind(err, errs.KindCodec) {
		t.Fatalf("Insert() error = %v, want codec error", err)
	}

	got := ports.RetrieveAndWait(ctx, store)
	if !got.IsFound() || !got.Snapshot.Timestamp.Equal(timestamp) || len(got.Snapshot.Items) != len(items) {
		t.Fatalf("Retrieve() after failed insert = %v (%v)", got.Kind, got.Err)
	}
	for index, item := range got.Snapshot.Items {
		if item.ID != items[index].ID {
			t.Fatalf("item %d id = %s, want %s", index, item.ID, items[index].ID)
		}
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("dir entries = %d, want only the store file", len(entries))
	}
}

func TestInsertDeliversErrorOnPermissionDeniedAndKeepsSnapshot(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for this user")
	}

	dir := filepath.Join(t.TempDir(), "locked")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create dir: %v", err)
	}
	store := setupStore(t, filepath.Join(dir, "feed.store"))
	ctx := context.Background()

	items, timestamp := storetest.UniqueFeed(), storetest.Timestamp()
	if err := ports.InsertAndWait(ctx, store, items, timestamp); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatalf("chmod dir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	err := ports.InsertAndWait(ctx, store, storetest.UniqueFeed(), time.Now())
	if !errs.IsKind(err, errs.KindMediumAccess) {
		t.Fatalf("Insert() error = %v, want medium access error", err)
	}
	got := ports.RetrieveAndWait(ctx, store)
	if !got.IsFound() || !got.Snapshot.Timestamp.Equal(timestamp) {
		t.Fatalf("Retrieve() after failed insert = %v (%v)", got.Kind, got.Err)
	}
}

func TestClosedStoreDeliversClosed(t *testing.T) {
	store := setupStore(t, testStorePath(t))
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	ctx := context.Background()
	if got := ports.RetrieveAndWait(ctx, store); !errors.Is(got.Err, errs.ErrClosed) {
		t.Fatalf("Retrieve() after Close = %v (%v)", got.Kind, got.Err)
	}
	if err := ports.InsertAndWait(ctx, store, storetest.UniqueFeed(), time.Now()); !errors.Is(err, errs.ErrClosed) {
		t.Fatalf("Insert() after Close error = %v", err)
	}
	if err := ports.DeleteAndWait(ctx, store); !errors.Is(err, errs.ErrClosed) {
		t.Fatalf("Delete() after Close error = %v", err)
	}
}

func TestCompletionPanicDoesNotStopStore(t *testing.T) {
	store := setupStore(t, testStorePath(t))
	ctx := context.Background()

	store.Insert(ctx, []feed.CacheItem{storetest.UniqueItem()}, time.Now(), func(error) {
		panic("caller bug")
	})

	if got := ports.RetrieveAndWait(ctx, store); !got.IsFound() {
		t.Fatalf("Retrieve() after panicking completion = %v (%v), want found", got.Kind, got.Err)
	}
}
