// Package storetest is the conformance battery every ports.FeedStore backend
// must pass unmodified.
//
// A backend test supplies constructors through Backend and calls Run:
//
//	func TestFileStoreConformance(t *testing.T) {
//		storetest.Run(t, storetest.Backend{
//			NewStore:           newTestStore,
//			NewCorruptedStore:  newCorruptedStore,
//			NewUnwritableStore: newUnwritableStore,
//		})
//	}
package storetest
