package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"feedstore/internal/domain/feed"
	"feedstore/internal/errs"
)

// Codec turns a snapshot into the bytes of the store file and back.
// Decode failures are reported with errs.KindCodec.
type Codec interface {
	Name() string
	Encode(snapshot feed.CacheSnapshot) ([]byte, error)
	Decode(data []byte) (feed.CacheSnapshot, error)
}

var (
	JSONCodec Codec = jsonCodec{}
	TOMLCodec Codec = tomlCodec{}
)

// CodecByName resolves a configured codec name; empty means JSON.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSONCodec, nil
	case "toml":
		return TOMLCodec, nil
	default:
		return nil, errs.Mark(fmt.Errorf("unsupported store codec %q", name), errs.KindInvalid)
	}
}

// imageRecord is one element of the stored "feed" array.
type imageRecord struct {
	ID          string  `json:"id" toml:"id"`
	Description *string `json:"description" toml:"description,omitempty"`
	Location    *string `json:"location" toml:"location,omitempty"`
	URL         string  `json:"url" toml:"url"`
}

type jsonRecord struct {
	Feed      []imageRecord `json:"feed"`
	Timestamp *time.Time    `json:"timestamp"`
}

// TOML keeps the timestamp as RFC 3339 text so nanoseconds survive unchanged.
type tomlRecord struct {
	Timestamp string        `toml:"timestamp"`
	Feed      []imageRecord `toml:"feed"`
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Encode(snapshot feed.CacheSnapshot) ([]byte, error) {
	timestamp := snapshot.Timestamp.UTC()
	data, err := json.Marshal(jsonRecord{
		Feed:      toImageRecords(snapshot.Items),
		Timestamp: &timestamp,
	})
	if err != nil {
		return nil, errs.Mark(errs.Wrap(err, "encode json record"), errs.KindCodec)
	}
	return data, nil
}

func (jsonCodec) Decode(data []byte) (feed.CacheSnapshot, error) {
	var record jsonRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return feed.CacheSnapshot{}, errs.Mark(errs.Wrap(err, "decode json record"), errs.KindCodec)
	}
	if record.Timestamp == nil {
		return feed.CacheSnapshot{}, errs.Mark(errors.New("decode json record: timestamp is missing"), errs.KindCodec)
	}
	return fromImageRecords(record.Feed, *record.Timestamp)
}

type tomlCodec struct{}

func (tomlCodec) Name() string { return "toml" }

func (tomlCodec) Encode(snapshot feed.CacheSnapshot) ([]byte, error) {
	data, err := toml.Marshal(tomlRecord{
		Timestamp: snapshot.Timestamp.UTC().Format(time.RFC3339Nano),
		Feed:      toImageRecords(snapshot.Items),
	})
	if err != nil {
		return nil, errs.Mark(errs.Wrap(err, "encode toml record"), errs.KindCodec)
	}
	return data, nil
}

func (tomlCodec) Decode(data []byte) (feed.CacheSnapshot, error) {
	var record tomlRecord
	if err := toml.Unmarshal(data, &record); err != nil {
		return feed.CacheSnapshot{}, errs.Mark(errs.Wrap(err, "decode toml record"), errs.KindCodec)
	}
	if record.Timestamp == "" {
		return feed.CacheSnapshot{}, errs.Mark(errors.New("decode toml record: timestamp is missing"), errs.KindCodec)
	}
	timestamp, err := time.Parse(time.RFC3339Nano, record.Timestamp)
	if err != nil {
		return feed.CacheSnapshot{}, errs.Mark(errs.Wrap(err, "decode toml record timestamp"), errs.KindCodec)
	}
	return fromImageRecords(record.Feed, timestamp)
}

func toImageRecords(items []feed.CacheItem) []imageRecord {
	out := make([]imageRecord, 0, len(items))
	for _, item := range items {
		out = append(out, imageRecord{
			ID:          item.ID.String(),
			Description: item.Description,
			Location:    item.Location,
			URL:         item.URL.String(),
		})
	}
	return out
}

func fromImageRecords(records []imageRecord, timestamp time.Time) (feed.CacheSnapshot, error) {
	items := make([]feed.CacheItem, 0, len(records))
	for index, record := range records {
		id, err := uuid.Parse(record.ID)
		if err != nil {
			return feed.CacheSnapshot{}, errs.Mark(errs.Wrapf(err, "decode feed[%d].id", index), errs.KindCodec)
		}
		if record.URL == "" {
			return feed.CacheSnapshot{}, errs.Mark(fmt.Errorf("decode feed[%d].url: url is missing", index), errs.KindCodec)
		}
		parsed, err := url.Parse(record.URL)
		if err != nil {
			return feed.CacheSnapshot{}, errs.Mark(errs.Wrapf(err, "decode feed[%d].url", index), errs.KindCodec)
		}

		items = append(items, feed.CacheItem{
			ID:          id,
			Description: record.Description,
			Location:    record.Location,
			URL:         *parsed,
		})
	}
	return feed.NewSnapshot(items, timestamp), nil
}
