package dispatch

import (
	"context"
	"errors"

	"feedstore/internal/errs"
)

// Call runs work on q and hands its result to deliver exactly once.
//
// The context is checked at submission; once queued, work runs with a context
// that is no longer cancellable, because an accepted operation always runs to
// completion. A panic inside work is delivered as failed(err).
//
// An unusable ctx is still delivered through q as an exclusive job, so the
// failure completes after every earlier submission. Only when q itself refuses
// the job is the failure delivered on a new goroutine. It is never delivered on
// the caller's goroutine.
func Call[T any](ctx context.Context, q *Queue, exclusive bool, work func(context.Context) T, failed func(error) T, deliver func(T)) {
	if deliver == nil {
		deliver = func(T) {}
	}
	reject := func(err error) {
		result := failed(err)
		if submitErr := q.Barrier(func() { deliver(result) }); submitErr != nil {
			go deliver(failed(submitErr))
		}
	}

	if ctx == nil {
		reject(errs.Mark(errors.New("context is required"), errs.KindInvalid))
		return
	}
	if err := ctx.Err(); err != nil {
		reject(errs.Mark(errs.Wrap(err, "check context"), errs.KindInvalid))
		return
	}

	runCtx := context.WithoutCancel(ctx)
	job := func() {
		var result T
		if err := Try(func() error {
			result = work(runCtx)
			return nil
		}); err != nil {
			result = failed(errs.Wrap(err, "operation panicked"))
		}
		deliver(result)
	}

	submit := q.Go
	if exclusive {
		submit = q.Barrier
	}
	if err := submit(job); err != nil {
		go deliver(failed(err))
	}
}
