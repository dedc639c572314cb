package repository

import (
	"net/url"
	"time"

	"github.com/google/uuid"

	"feedstore/internal/domain/feed"
	"feedstore/internal/errs"
	"feedstore/internal/infrastructure/persistence/sqlite/model"
)

const timestampLayout = time.RFC3339Nano

// RecordFromSnapshot builds the rows for snapshot. Item positions follow the
// snapshot's order.
func RecordFromSnapshot(snapshot feed.CacheSnapshot) model.CacheRecord {
	items := make([]model.ItemRecord, 0, len(snapshot.Items))
	for index, item := range snapshot.Items {
		items = append(items, model.ItemRecord{
			Position:    index,
			ImageID:     item.ID.String(),
			Description: item.Description,
			Location:    item.Location,
			URL:         item.URL.String(),
		})
	}

	return model.CacheRecord{
		Timestamp: snapshot.Timestamp.UTC().Format(timestampLayout),
		Items:     items,
	}
}

// SnapshotFromRecord decodes a stored row. Malformed columns are codec errors.
func SnapshotFromRecord(record model.CacheRecord) (feed.CacheSnapshot, error) {
	timestamp, err := time.Parse(timestampLayout, record.Timestamp)
	if err != nil {
		return feed.CacheSnapshot{}, errs.Mark(errs.Wrapf(err, "parse cache %d timestamp", record.CacheID), errs.KindCodec)
	}

	items := make([]feed.CacheItem, 0, len(record.Items))
	for _, row := range record.Items {
		id, err := uuid.Parse(row.ImageID)
		if err != nil {
			return feed.CacheSnapshot{}, errs.Mark(errs.Wrapf(err, "parse item %d id", row.ItemID), errs.KindCodec)
		}
		parsed, err := url.Parse(row.URL)
		if err != nil {
			return feed.CacheSnapshot{}, errs.Mark(errs.Wrapf(err, "parse item %d url", row.ItemID), errs.KindCodec)
		}

		items = append(items, feed.CacheItem{
			ID:          id,
			Description: row.Description,
			Location:    row.Location,
			URL:         *parsed,
		})
	}

	return feed.NewSnapshot(items, timestamp), nil
}
