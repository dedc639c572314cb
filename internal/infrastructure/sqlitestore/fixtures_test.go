package sqlitestore

import (
	"feedstore/internal/domain/feed"
	"feedstore/internal/storetest"
)

func feedSnapshot() feed.CacheSnapshot {
	return feed.NewSnapshot(storetest.UniqueFeed(), storetest.Timestamp())
}
