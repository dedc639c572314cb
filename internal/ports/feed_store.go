package ports

import (
	"context"
	"time"

	"feedstore/internal/domain/feed"
)

// FeedStore is the local persistence contract for the single cached feed
// snapshot. Every method returns immediately; completion fires exactly once,
// on a goroutine owned by the store, after the operation's durable effect.
// Calls submitted one after another on the same instance take effect and
// complete in submission order. A nil completion is allowed.
//
// Completions run on the store's executor while it holds the operation's
// slot. A completion may submit new operations, but it must not block on the
// same store (for example through InsertAndWait), or the store deadlocks.
type FeedStore interface {
	Retrieve(ctx context.Context, completion func(Retrieval))
	Insert(ctx context.Context, items []feed.CacheItem, timestamp time.Time, completion func(error))
	Delete(ctx context.Context, completion func(error))
}

type RetrievalKind int

const (
	RetrievalEmpty RetrievalKind = iota
	RetrievalFound
	RetrievalFailure
)

func (k RetrievalKind) String() string {
	switch k {
	case RetrievalEmpty:
		return "empty"
	case RetrievalFound:
		return "found"
	case RetrievalFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Retrieval is the outcome of FeedStore.Retrieve: Empty, Found(snapshot) or Failure(err).
type Retrieval struct {
	Kind     RetrievalKind
	Snapshot feed.CacheSnapshot
	Err      error
}

func EmptyRetrieval() Retrieval {
	return Retrieval{Kind: RetrievalEmpty}
}

func FoundRetrieval(items []feed.CacheItem, timestamp time.Time) Retrieval {
	return Retrieval{
		Kind:     RetrievalFound,
		Snapshot: feed.NewSnapshot(items, timestamp),
	}
}

func FailedRetrieval(err error) Retrieval {
	return Retrieval{Kind: RetrievalFailure, Err: err}
}

func (r Retrieval) IsEmpty() bool { return r.Kind == RetrievalEmpty }
func (r Retrieval) IsFound() bool { return r.Kind == RetrievalFound }

// RetrieveAndWait blocks until the store delivers the retrieval.
func RetrieveAndWait(ctx context.Context, store FeedStore) Retrieval {
	done := make(chan Retrieval, 1)
	store.Retrieve(ctx, func(result Retrieval) { done <- result })
	return <-done
}

// InsertAndWait blocks until the store delivers the insert completion.
func InsertAndWait(ctx context.Context, store FeedStore, items []feed.CacheItem, timestamp time.Time) error {
	done := make(chan error, 1)
	store.Insert(ctx, items, timestamp, func(err error) { done <- err })
	return <-done
}

// DeleteAndWait blocks until the store delivers the delete completion.
func DeleteAndWait(ctx context.Context, store FeedStore) error {
	done := make(chan error, 1)
	store.Delete(ctx, func(err error) { done <- err })
	return <-done
}
