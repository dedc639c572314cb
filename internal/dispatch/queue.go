// Package dispatch provides the execution contexts stores use to run their
// operations off the caller's goroutine while keeping submission order.
package dispatch

import (
	"sync"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"feedstore/internal/errs"
)

type job struct {
	fn      func()
	barrier bool
}

// Queue is an unbounded FIFO drained by a single dispatcher goroutine.
//
// Jobs submitted with Go take the read side of the gate and may run together.
// Jobs submitted with Barrier take the write side and run alone. The
// dispatcher acquires the gate in submission order, so a barrier waits for
// every earlier job and blocks every later one until it returns.
type Queue struct {
	mu      sync.Mutex
	pending []job
	closed  bool
	wake    chan struct{}
	done    chan struct{}

	gate    sync.RWMutex
	readers conc.WaitGroup

	serial  bool
	onPanic func(error)
}

type Option func(*Queue)

// WithPanicHandler receives panics recovered from jobs. The queue keeps
// running after a job panics.
func WithPanicHandler(fn func(error)) Option {
	return func(q *Queue) {
		if fn != nil {
			q.onPanic = fn
		}
	}
}

// NewBarrierQueue returns a concurrent queue: Go jobs share the gate, Barrier
// jobs are exclusive.
func NewBarrierQueue(opts ...Option) *Queue {
	return newQueue(false, opts)
}

// NewSerialQueue returns a queue on which every job is exclusive, so jobs run
// one at a time in submission order.
func NewSerialQueue(opts ...Option) *Queue {
	return newQueue(true, opts)
}

func newQueue(serial bool, opts []Option) *Queue {
	q := &Queue{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		serial:  serial,
		onPanic: func(error) {},
	}
	for _, opt := range opts {
		opt(q)
	}
	go q.run()
	return q
}

// Go submits a job that may run concurrently with other Go jobs.
func (q *Queue) Go(fn func()) error {
	return q.submit(job{fn: fn, barrier: q.serial})
}

// Barrier submits a job that runs with no other job in flight.
func (q *Queue) Barrier(fn func()) error {
	return q.submit(job{fn: fn, barrier: true})
}

// Close stops accepting jobs, runs everything already queued and waits for
// in-flight jobs to return. It must not be called from inside a job.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()

	<-q.done
}

func (q *Queue) submit(j job) error {
	if j.fn == nil {
		return nil
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errs.ErrClosed
	}
	q.pending = append(q.pending, j)
	q.mu.Unlock()

	q.signal()
	return nil
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) next() (job, bool) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			j := q.pending[0]
			q.pending[0] = job{}
			q.pending = q.pending[1:]
			q.mu.Unlock()
			return j, true
		}
		if q.closed {
			q.mu.Unlock()
			return job{}, false
		}
		q.mu.Unlock()

		<-q.wake
	}
}

func (q *Queue) run() {
	defer close(q.done)

	for {
		j, ok := q.next()
		if !ok {
			q.readers.Wait()
			return
		}

		if j.barrier {
			q.gate.Lock()
			q.invoke(j.fn)
			q.gate.Unlock()
			continue
		}

		q.gate.RLock()
		q.readers.Go(func() {
			defer q.gate.RUnlock()
			q.invoke(j.fn)
		})
	}
}

func (q *Queue) invoke(fn func()) {
	if err := Try(func() error {
		fn()
		return nil
	}); err != nil {
		q.onPanic(err)
	}
}

// Try runs fn and converts a panic into an error carrying the stack.
func Try(fn func() error) (err error) {
	var catcher panics.Catcher
	catcher.Try(func() {
		err = fn()
	})
	if recovered := catcher.Recovered(); recovered != nil {
		return errs.WithStack(recovered.AsError())
	}
	return err
}
