package storetest

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"feedstore/internal/domain/feed"
)

// UniqueItem returns an item with a fresh id and every optional field set.
func UniqueItem() feed.CacheItem {
	id := uuid.New()
	return feed.CacheItem{
		ID:          id,
		Description: feed.Text("any description"),
		Location:    feed.Text("any location"),
		URL:         feed.MustParseURL(fmt.Sprintf("http://any-url.com/%s", id)),
	}
}

// UniqueFeed returns items covering set, unset and empty optional fields.
func UniqueFeed() []feed.CacheItem {
	bare := UniqueItem()
	bare.Description = nil
	bare.Location = nil

	blank := UniqueItem()
	blank.Description = feed.Text("")

	return []feed.CacheItem{UniqueItem(), bare, blank}
}

// Timestamp returns a fixed-zone instant with nanoseconds, so backends that
// drop precision or zone offsets are caught.
func Timestamp() time.Time {
	return time.Date(2024, 2, 29, 23, 59, 58, 987654321, time.FixedZone("UTC+5", 5*60*60))
}
