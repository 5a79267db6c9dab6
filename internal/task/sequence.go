package task

import "iter"

// Sequence is a lazily evaluated computation advanced one step at a time.
// Next returns false once the sequence is exhausted; the returned Step is then
// meaningless. A well-formed sequence yields zero or more Info or SubTask steps
// followed by one Done or Failed step.
type Sequence interface {
	Next() (Step, bool)
}

// Closer is implemented by sequences that hold resources which must be
// released when they are abandoned before exhaustion.
type Closer interface {
	Close()
}

// closeSeq releases s if it holds resources.
func closeSeq(s Sequence) {
	if c, ok := s.(Closer); ok {
		c.Close()
	}
}

// pulled adapts a push-style generator to a Sequence.
type pulled struct {
	next func() (Step, bool)
	stop func()
}

// New returns a Sequence driven by a generator function. The generator runs
// only while Next is being called, so it never executes concurrently with the
// caller. A panic inside the generator propagates out of Next.
func New(gen iter.Seq[Step]) Sequence {
	next, stop := iter.Pull(gen)
	return &pulled{next: next, stop: stop}
}

func (p *pulled) Next() (Step, bool) {
	st, ok := p.next()
	if !ok {
		p.stop()
	}
	return st, ok
}

func (p *pulled) Close() {
	p.stop()
}

// slice is a Sequence over a fixed list of steps.
type slice struct {
	steps []Step
	pos   int
}

// Of returns a Sequence that yields the given steps in order.
func Of(steps ...Step) Sequence {
	return &slice{steps: steps}
}

func (s *slice) Next() (Step, bool) {
	if s.pos >= len(s.steps) {
		return Step{}, false
	}
	st := s.steps[s.pos]
	s.pos++
	return st, true
}

// Value returns a Sequence that immediately yields v as its terminal payload.
func Value(v any) Sequence {
	return Of(Done(v))
}

// Error returns a Sequence that immediately fails with err.
func Error(err error) Sequence {
	return Of(Fail(err))
}

// Func returns a Sequence whose steps are produced by calling fn until it
// reports false.
func Func(fn func() (Step, bool)) Sequence {
	return funcSeq(fn)
}

type funcSeq func() (Step, bool)

func (f funcSeq) Next() (Step, bool) { return f() }

// Defer returns a Sequence whose first step delegates to the sequence built by
// fn. fn runs on the first advance, so a panic inside it is recovered by
// Flatten like any other step.
func Defer(fn func() Sequence) Sequence {
	called := false
	return Func(func() (Step, bool) {
		if called {
			return Step{}, false
		}
		called = true
		return Sub(fn()), true
	})
}

// Drain advances s to exhaustion and returns every step it produced. It is
// intended for tests and offline tooling; the scheduler never drains.
func Drain(s Sequence) []Step {
	var out []Step
	for {
		st, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, st)
	}
}
