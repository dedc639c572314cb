package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"feedstore/internal/domain/feed"
	"feedstore/internal/ports"
)

func (s *Suite) insert(store ports.FeedStore, items []feed.CacheItem, timestamp time.Time) error {
	done := make(chan error, 1)
	store.Insert(context.Background(), items, timestamp, func(err error) { done <- err })
	return s.await(done)
}

func (s *Suite) deleteCache(store ports.FeedStore) error {
	done := make(chan error, 1)
	store.Delete(context.Background(), func(err error) { done <- err })
	return s.await(done)
}

func (s *Suite) retrieve(store ports.FeedStore) ports.Retrieval {
	done := make(chan ports.Retrieval, 1)
	store.Retrieve(context.Background(), func(r ports.Retrieval) { done <- r })
	return s.awaitRetrieval(done)
}

func (s *Suite) expectRetrieve(store ports.FeedStore, expected ports.Retrieval) {
	s.T().Helper()
	s.assertRetrieval(expected, s.retrieve(store))
}

func (s *Suite) expectRetrieveTwice(store ports.FeedStore, expected ports.Retrieval) {
	s.T().Helper()
	s.expectRetrieve(store, expected)
	s.expectRetrieve(store, expected)
}

// assertRetrieval compares kinds, and for Found the items and the instant.
// Failures are compared by kind only.
func (s *Suite) assertRetrieval(expected, got ports.Retrieval) {
	s.T().Helper()

	s.Require().Equal(expected.Kind, got.Kind, "retrieval kind (error: %v)", got.Err)
	switch expected.Kind {
	case ports.RetrievalFound:
		s.Equal(expected.Snapshot.Items, got.Snapshot.Items)
		s.True(expected.Snapshot.Timestamp.Equal(got.Snapshot.Timestamp),
			"timestamp = %v, want %v", got.Snapshot.Timestamp, expected.Snapshot.Timestamp)
	case ports.RetrievalFailure:
		s.Error(got.Err)
	}
}

func (s *Suite) await(done <-chan error) error {
	s.T().Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(completionTimeout):
		s.FailNow("completion was not delivered")
		return nil
	}
}

func (s *Suite) awaitRetrieval(done <-chan ports.Retrieval) ports.Retrieval {
	s.T().Helper()
	select {
	case r := <-done:
		return r
	case <-time.After(completionTimeout):
		s.FailNow("retrieval was not delivered")
		return ports.Retrieval{}
	}
}

func (s *Suite) waitGroup(wg *sync.WaitGroup) {
	s.T().Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(completionTimeout):
		s.FailNow("completions were not delivered")
	}
}

func fixedID(n byte) uuid.UUID {
	var id uuid.UUID
	id[15] = n
	return id
}
