package task

import (
	"runtime/debug"

	"github.com/tepel-chen/demil/internal/fault"
)

// flattened walks a tree of nested sequences depth-first using an explicit
// stack of iterators.
type flattened struct {
	stack  []Sequence
	halted bool
}

// Flatten returns a Sequence that yields every Info, Done and Failed step of s
// and of all sequences nested in it, depth-first and in order. SubTask steps
// are never yielded. The first failure at any depth, whether yielded as a
// Failed step or raised as a panic, is yielded once and ends the sequence.
func Flatten(s Sequence) Sequence {
	if s == nil {
		return Of()
	}
	return &flattened{stack: []Sequence{s}}
}

func (f *flattened) Next() (Step, bool) {
	for !f.halted && len(f.stack) > 0 {
		top := f.stack[len(f.stack)-1]

		st, ok, err := advance(top)
		if err != nil {
			f.halt()
			return Fail(err), true
		}
		if !ok {
			f.stack = f.stack[:len(f.stack)-1]
			continue
		}

		switch st.Kind {
		case KindSubTask:
			if st.Sub != nil {
				f.stack = append(f.stack, st.Sub)
			}
		case KindFailed:
			f.halt()
			if st.Err == nil {
				st.Err = fault.Infrastructuref("task failed without an error")
			}
			return st, true
		default:
			return st, true
		}
	}
	return Step{}, false
}

// Close releases every sequence still on the stack.
func (f *flattened) Close() {
	f.halt()
}

func (f *flattened) halt() {
	f.halted = true
	for i := len(f.stack) - 1; i >= 0; i-- {
		safeClose(f.stack[i])
	}
	f.stack = nil
}

// safeClose releases s, discarding a panic raised by a generator that
// misbehaves while being stopped.
func safeClose(s Sequence) {
	defer func() { _ = recover() }()
	closeSeq(s)
}

// advance calls s.Next, converting a panic into an error.
func advance(s Sequence) (st Step, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fault.FromPanic(r, debug.Stack())
		}
	}()
	st, ok = s.Next()
	return st, ok, nil
}
