package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"feedstore/internal/domain/feed"
	"feedstore/internal/errs"
	"feedstore/internal/ports"
)

const completionTimeout = 10 * time.Second

// Backend builds stores for the battery. Each constructor is called with the
// running test and must register its own cleanup.
type Backend struct {
	// NewStore returns a store over an empty medium.
	NewStore func(t *testing.T) ports.FeedStore
	// NewCorruptedStore returns a store whose medium holds a record that
	// cannot be decoded. Optional.
	NewCorruptedStore func(t *testing.T) ports.FeedStore
	// NewUnwritableStore returns a store whose inserts and deletes fail at the
	// medium. Optional.
	NewUnwritableStore func(t *testing.T) ports.FeedStore
}

// Run executes the conformance battery against backend.
func Run(t *testing.T, backend Backend) {
	t.Helper()
	require.NotNil(t, backend.NewStore, "Backend.NewStore is required")

	suite.Run(t, &Suite{backend: backend})
}

type Suite struct {
	suite.Suite
	backend Backend
}

func (s *Suite) makeSUT() ports.FeedStore {
	store := s.backend.NewStore(s.T())
	s.Require().NotNil(store, "NewStore returned nil")
	return store
}

func (s *Suite) TestRetrieveDeliversEmptyOnEmptyCache() {
	sut := s.makeSUT()

	s.expectRetrieve(sut, ports.EmptyRetrieval())
}

func (s *Suite) TestRetrieveHasNoSideEffectsOnEmptyCache() {
	sut := s.makeSUT()

	s.expectRetrieveTwice(sut, ports.EmptyRetrieval())
}

func (s *Suite) TestRetrieveDeliversFoundValuesOnNonEmptyCache() {
	sut := s.makeSUT()
	items, timestamp := UniqueFeed(), Timestamp()

	s.Require().NoError(s.insert(sut, items, timestamp))

	s.expectRetrieve(sut, ports.FoundRetrieval(items, timestamp))
}

func (s *Suite) TestRetrieveHasNoSideEffectsOnNonEmptyCache() {
	sut := s.makeSUT()
	items, timestamp := UniqueFeed(), Timestamp()

	s.Require().NoError(s.insert(sut, items, timestamp))

	s.expectRetrieveTwice(sut, ports.FoundRetrieval(items, timestamp))
}

func (s *Suite) TestInsertDeliversNoErrorOnEmptyCache() {
	sut := s.makeSUT()

	s.NoError(s.insert(sut, UniqueFeed(), time.Now()))
}

func (s *Suite) TestInsertDeliversNoErrorOnNonEmptyCache() {
	sut := s.makeSUT()
	s.Require().NoError(s.insert(sut, UniqueFeed(), time.Now()))

	s.NoError(s.insert(sut, UniqueFeed(), time.Now()))
}

func (s *Suite) TestInsertOverridesPreviouslyInsertedCacheValues() {
	sut := s.makeSUT()
	s.Require().NoError(s.insert(sut, UniqueFeed(), time.Now()))

	latestItems, latestTimestamp := UniqueFeed(), time.Now().Add(time.Minute)
	s.Require().NoError(s.insert(sut, latestItems, latestTimestamp))

	s.expectRetrieve(sut, ports.FoundRetrieval(latestItems, latestTimestamp))
}

func (s *Suite) TestInsertOfEmptyFeedIsFound() {
	sut := s.makeSUT()
	timestamp := Timestamp()

	s.Require().NoError(s.insert(sut, []feed.CacheItem{}, timestamp))

	s.expectRetrieve(sut, ports.FoundRetrieval(nil, timestamp))
}

func (s *Suite) TestInsertKeepsItsOwnCopyOfItems() {
	sut := s.makeSUT()
	items, timestamp := UniqueFeed(), Timestamp()
	expected := feed.CloneItems(items)

	done := make(chan error, 1)
	sut.Insert(context.Background(), items, timestamp, func(err error) { done <- err })
	items[0].URL = feed.MustParseURL("http://mutated.com")
	*items[0].Description = "mutated"
	s.Require().NoError(s.await(done))

	s.expectRetrieve(sut, ports.FoundRetrieval(expected, timestamp))
}

func (s *Suite) TestInsertRejectsInvalidItemAndStaysUsable() {
	sut := s.makeSUT()
	items, timestamp := UniqueFeed(), Timestamp()
	s.Require().NoError(s.insert(sut, items, timestamp))

	invalid := UniqueFeed()
	invalid[1].URL = feed.CacheItem{}.URL
	err := s.insert(sut, invalid, time.Now())
	s.Require().Error(err)
	s.Equal(errs.KindInvalid, errs.KindOf(err))

	s.expectRetrieve(sut, ports.FoundRetrieval(items, timestamp))
}

func (s *Suite) TestDeleteDeliversNoErrorOnEmptyCache() {
	sut := s.makeSUT()

	s.NoError(s.deleteCache(sut))
}

func (s *Suite) TestDeleteHasNoSideEffectsOnEmptyCache() {
	sut := s.makeSUT()

	s.Require().NoError(s.deleteCache(sut))

	s.expectRetrieve(sut, ports.EmptyRetrieval())
}

func (s *Suite) TestDeleteDeliversNoErrorOnNonEmptyCache() {
	sut := s.makeSUT()
	s.Require().NoError(s.insert(sut, UniqueFeed(), time.Now()))

	s.NoError(s.deleteCache(sut))
}

func (s *Suite) TestDeleteEmptiesPreviouslyInsertedCache() {
	sut := s.makeSUT()
	s.Require().NoError(s.insert(sut, UniqueFeed(), time.Now()))

	s.Require().NoError(s.deleteCache(sut))

	s.expectRetrieve(sut, ports.EmptyRetrieval())
}

func (s *Suite) TestSideEffectsRunSerially() {
	sut := s.makeSUT()
	ctx := context.Background()
	last, lastTimestamp := UniqueFeed(), time.Now().Add(time.Hour)

	var (
		mu    sync.Mutex
		order []string
		wg    sync.WaitGroup
	)
	record := func(name string) func(error) {
		wg.Add(1)
		return func(err error) {
			defer wg.Done()
			s.NoError(err, name)
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	sut.Insert(ctx, UniqueFeed(), time.Now(), record("insert 1"))
	sut.Delete(ctx, record("delete"))
	sut.Insert(ctx, last, lastTimestamp, record("insert 2"))

	s.waitGroup(&wg)
	mu.Lock()
	defer mu.Unlock()
	s.Equal([]string{"insert 1", "delete", "insert 2"}, order)

	s.expectRetrieve(sut, ports.FoundRetrieval(last, lastTimestamp))
}

func (s *Suite) TestRetrievesObserveEveryWriteSubmittedBeforeThem() {
	sut := s.makeSUT()
	ctx := context.Background()
	first, firstTimestamp := UniqueFeed(), Timestamp()
	second, secondTimestamp := UniqueFeed(), Timestamp().Add(time.Second)

	results := make([]chan ports.Retrieval, 3)
	for i := range results {
		results[i] = make(chan ports.Retrieval, 1)
	}
	deliver := func(ch chan ports.Retrieval) func(ports.Retrieval) {
		return func(r ports.Retrieval) { ch <- r }
	}

	sut.Insert(ctx, first, firstTimestamp, nil)
	sut.Retrieve(ctx, deliver(results[0]))
	sut.Delete(ctx, nil)
	sut.Retrieve(ctx, deliver(results[1]))
	sut.Insert(ctx, second, secondTimestamp, nil)
	sut.Retrieve(ctx, deliver(results[2]))

	s.assertRetrieval(ports.FoundRetrieval(first, firstTimestamp), s.awaitRetrieval(results[0]))
	s.assertRetrieval(ports.EmptyRetrieval(), s.awaitRetrieval(results[1]))
	s.assertRetrieval(ports.FoundRetrieval(second, secondTimestamp), s.awaitRetrieval(results[2]))
}

func (s *Suite) TestConcurrentRetrievesSeeTheSameSnapshot() {
	sut := s.makeSUT()
	items, timestamp := UniqueFeed(), Timestamp()
	s.Require().NoError(s.insert(sut, items, timestamp))

	const readers = 16
	results := make(chan ports.Retrieval, readers)
	for i := 0; i < readers; i++ {
		sut.Retrieve(context.Background(), func(r ports.Retrieval) { results <- r })
	}
	for i := 0; i < readers; i++ {
		s.assertRetrieval(ports.FoundRetrieval(items, timestamp), s.awaitRetrieval(results))
	}
}

func (s *Suite) TestRejectedRetrieveCompletesAfterEarlierInsert() {
	sut := s.makeSUT()

	large := make([]feed.CacheItem, 0, 500)
	for i := 0; i < cap(large); i++ {
		large = append(large, UniqueItem())
	}
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	for round := 0; round < 10; round++ {
		var (
			mu    sync.Mutex
			order []string
			wg    sync.WaitGroup
		)
		wg.Add(2)
		sut.Insert(context.Background(), large, Timestamp(), func(err error) {
			defer wg.Done()
			s.NoError(err)
			mu.Lock()
			order = append(order, "insert")
			mu.Unlock()
		})
		sut.Retrieve(cancelled, func(r ports.Retrieval) {
			defer wg.Done()
			s.Equal(ports.RetrievalFailure, r.Kind)
			s.Equal(errs.KindInvalid, errs.KindOf(r.Err))
			mu.Lock()
			order = append(order, "retrieve")
			mu.Unlock()
		})

		s.waitGroup(&wg)
		mu.Lock()
		s.Require().Equal([]string{"insert", "retrieve"}, order, "round %d", round)
		mu.Unlock()
	}
}

func (s *Suite) TestCompletionCanSubmitFollowUpOperation() {
	sut := s.makeSUT()
	items, timestamp := UniqueFeed(), Timestamp()

	results := make(chan ports.Retrieval, 1)
	sut.Insert(context.Background(), items, timestamp, func(err error) {
		s.NoError(err)
		sut.Retrieve(context.Background(), func(r ports.Retrieval) { results <- r })
	})

	s.assertRetrieval(ports.FoundRetrieval(items, timestamp), s.awaitRetrieval(results))
}

func (s *Suite) TestInsertAcceptsNilUUID() {
	sut := s.makeSUT()
	items := []feed.CacheItem{{ID: uuid.Nil, URL: feed.MustParseURL("http://a")}}
	timestamp := Timestamp()

	s.Require().NoError(s.insert(sut, items, timestamp))

	s.expectRetrieve(sut, ports.FoundRetrieval(items, timestamp))
}

// Second insert fully replaces the first.
func (s *Suite) TestReplaceScenario() {
	sut := s.makeSUT()
	first := []feed.CacheItem{{ID: fixedID(1), URL: feed.MustParseURL("http://a")}}
	second := []feed.CacheItem{{ID: fixedID(2), URL: feed.MustParseURL("http://b")}}
	t100 := time.Unix(100, 0)
	t200 := time.Unix(200, 0)

	s.Require().NoError(s.insert(sut, first, t100))
	s.expectRetrieve(sut, ports.FoundRetrieval(first, t100))

	s.Require().NoError(s.insert(sut, second, t200))
	s.expectRetrieve(sut, ports.FoundRetrieval(second, t200))
}

func (s *Suite) TestRetrieveDeliversFailureOnRetrievalError() {
	sut := s.corruptedSUT()

	s.expectRetrieve(sut, ports.FailedRetrieval(nil))
}

func (s *Suite) TestRetrieveHasNoSideEffectsOnFailure() {
	sut := s.corruptedSUT()

	s.expectRetrieveTwice(sut, ports.FailedRetrieval(nil))
}

func (s *Suite) TestInsertDeliversErrorOnInsertionError() {
	sut := s.unwritableSUT()

	err := s.insert(sut, UniqueFeed(), time.Now())

	s.Error(err)
	s.Equal(errs.KindMediumAccess, errs.KindOf(err))
}

func (s *Suite) TestInsertHasNoSideEffectsOnInsertionError() {
	sut := s.unwritableSUT()
	before := s.retrieve(sut)

	s.Require().Error(s.insert(sut, UniqueFeed(), time.Now()))

	s.expectRetrieve(sut, before)
}

func (s *Suite) TestDeleteDeliversErrorOnDeletionError() {
	sut := s.unwritableSUT()

	err := s.deleteCache(sut)

	s.Error(err)
	s.Equal(errs.KindMediumAccess, errs.KindOf(err))
}

func (s *Suite) TestDeleteHasNoSideEffectsOnDeletionError() {
	sut := s.unwritableSUT()
	before := s.retrieve(sut)

	s.Require().Error(s.deleteCache(sut))

	s.expectRetrieve(sut, before)
}

func (s *Suite) corruptedSUT() ports.FeedStore {
	if s.backend.NewCorruptedStore == nil {
		s.T().Skip("backend has no corrupted-medium constructor")
	}
	store := s.backend.NewCorruptedStore(s.T())
	s.Require().NotNil(store, "NewCorruptedStore returned nil")
	return store
}

func (s *Suite) unwritableSUT() ports.FeedStore {
	if s.backend.NewUnwritableStore == nil {
		s.T().Skip("backend has no unwritable-medium constructor")
	}
	store := s.backend.NewUnwritableStore(s.T())
	s.Require().NotNil(store, "NewUnwritableStore returned nil")
	return store
}
