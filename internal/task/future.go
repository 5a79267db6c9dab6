package task

import (
	"runtime/debug"

	"github.com/tepel-chen/demil/internal/fault"
)

// Future is the result of a blocking call run off the scheduler thread.
// The value and error are only read after done is closed.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Go runs fn on its own goroutine and returns a Future for its result.
// fn must not touch state owned by the scheduler thread.
func Go[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fault.FromPanic(r, debug.Stack())
			}
		}()
		f.val, f.err = fn()
	}()
	return f
}

// Ready reports whether the background call has finished, without blocking.
func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result returns the value and error of a finished call. It must only be
// called once Ready reports true, for example after Wait is exhausted.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.val, f.err
}

// Wait returns a Sequence that yields a Pending step on every advance until
// the call finishes, then ends, or fails with the call's error.
func (f *Future[T]) Wait(label string) Sequence {
	finished := false
	return Func(func() (Step, bool) {
		if finished {
			return Step{}, false
		}
		if !f.Ready() {
			return Info(Pending{Label: label}), true
		}
		finished = true
		if f.err != nil {
			return Fail(f.err), true
		}
		return Step{}, false
	})
}
