package feed

import (
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"
)

var ErrItemURLRequired = errors.New("cache item url is required")

// CacheItem is one feed image record held by a snapshot. Any UUID is a valid
// ID, the nil UUID included; uniqueness is left to the caller.
type CacheItem struct {
	ID          uuid.UUID
	Description *string
	Location    *string
	URL         url.URL
}

func (i CacheItem) Validate() error {
	if i.URL.String() == "" {
		return ErrItemURLRequired
	}
	return nil
}

// CacheSnapshot is the single {items, timestamp} record a store holds.
// It owns its item slice; use Clone before handing it across a store boundary.
type CacheSnapshot struct {
	Items     []CacheItem
	Timestamp time.Time
}

func NewSnapshot(items []CacheItem, timestamp time.Time) CacheSnapshot {
	return CacheSnapshot{
		Items:     CloneItems(items),
		Timestamp: timestamp.UTC(),
	}
}

func (s CacheSnapshot) Clone() CacheSnapshot {
	return NewSnapshot(s.Items, s.Timestamp)
}

func (s CacheSnapshot) Validate() error {
	for index, item := range s.Items {
		if err := item.Validate(); err != nil {
			return &ItemError{Index: index, Err: err}
		}
	}
	return nil
}

// CloneItems copies items, including the optional text fields and URL userinfo,
// so the result shares no memory with the input.
func CloneItems(items []CacheItem) []CacheItem {
	if items == nil {
		return []CacheItem{}
	}

	out := make([]CacheItem, len(items))
	for index, item := range items {
		out[index] = CacheItem{
			ID:          item.ID,
			Description: cloneText(item.Description),
			Location:    cloneText(item.Location),
			URL:         cloneURL(item.URL),
		}
	}
	return out
}

// Text returns a pointer to value, for building optional item fields.
func Text(value string) *string {
	return &value
}

// MustParseURL parses raw and panics on failure. Intended for fixtures and tests.
func MustParseURL(raw string) url.URL {
	parsed, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return *parsed
}

func cloneText(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}

func cloneURL(u url.URL) url.URL {
	if u.User != nil {
		user := *u.User
		u.User = &user
	}
	return u
}
