package task

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"testing"

	"github.com/tepel-chen/demil/internal/fault"
)

// describe renders steps as "kind:value" strings for comparison.
func describe(steps []Step) []string {
	out := make([]string, len(steps))
	for i, st := range steps {
		switch st.Kind {
		case KindFailed:
			out[i] = "failed:" + st.Err.Error()
		default:
			out[i] = fmt.Sprintf("%s:%v", st.Kind, st.Value)
		}
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFlattenDepthFirstOrder(t *testing.T) {
	s := Of(
		Info(1),
		Sub(Of(
			Info(2),
			Sub(Of(Info(3))),
			Info(4),
		)),
		Done(5),
	)

	got := describe(Drain(Flatten(s)))
	want := []string{"info:1", "info:2", "info:3", "info:4", "done:5"}
	if !equal(got, want) {
		t.Errorf("Flatten = %v, want %v", got, want)
	}
}

func TestFlattenNeverYieldsSubTasks(t *testing.T) {
	s := Of(Sub(Of()), Sub(nil), Sub(Of(Sub(Of(Done("x"))))))
	for _, st := range Drain(Flatten(s)) {
		if st.Kind == KindSubTask {
			t.Fatalf("Flatten yielded a subtask step")
		}
	}
}

func TestFlattenFailureHaltsAtAnyDepth(t *testing.T) {
	boom := errors.New("boom")
	s := Of(
		Info(1),
		Sub(Of(
			Sub(Of(Fail(boom), Info(99))),
			Info(98),
		)),
		Info(97),
		Done(96),
	)

	f := Flatten(s)
	got := describe(Drain(f))
	want := []string{"info:1", "failed:boom"}
	if !equal(got, want) {
		t.Fatalf("Flatten = %v, want %v", got, want)
	}

	if _, ok := f.Next(); ok {
		t.Error("Next after failure should report exhaustion")
	}
}

func TestFlattenConvertsPanicToFailure(t *testing.T) {
	s := New(func(yield func(Step) bool) {
		if !yield(Info("before")) {
			return
		}
		var m map[string]int
		m["x"] = 1 // nil map write panics
		yield(Done("unreachable"))
	})

	steps := Drain(Flatten(Of(Sub(s), Done("after"))))
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2: %v", len(steps), describe(steps))
	}
	last := steps[1]
	if last.Kind != KindFailed {
		t.Fatalf("last kind = %s, want failed", last.Kind)
	}
	if fault.KindOf(last.Err) != fault.Infrastructure {
		t.Errorf("kind = %s, want infrastructure", fault.KindOf(last.Err))
	}
	if !strings.Contains(fault.Trace(last.Err), "panic") {
		t.Errorf("trace should mention the panic, got %q", fault.Trace(last.Err))
	}
}

func TestFlattenFailedWithoutErrorGetsOne(t *testing.T) {
	steps := Drain(Flatten(Of(Step{Kind: KindFailed})))
	if len(steps) != 1 || steps[0].Err == nil {
		t.Fatalf("steps = %v, want one failure with an error", describe(steps))
	}
}

// countingSeq builds a test sequence tree from a compact description so that
// nested-flatten comparisons can run over many shapes.
func tree(depth int, fail bool) Sequence {
	if depth == 0 {
		if fail {
			return Of(Info("leaf"), Fail(errors.New("leaf failed")))
		}
		return Of(Info("leaf"), Done("leaf"))
	}
	return Of(
		Info(fmt.Sprintf("enter %d", depth)),
		Sub(tree(depth-1, fail)),
		Info(fmt.Sprintf("leave %d", depth)),
		Done(depth),
	)
}

func TestFlattenAssociative(t *testing.T) {
	for _, fail := range []bool{false, true} {
		for depth := 0; depth < 4; depth++ {
			t.Run(fmt.Sprintf("depth=%d/fail=%v", depth, fail), func(t *testing.T) {
				plain := describe(Drain(Flatten(Of(Info("head"), Sub(tree(depth, fail)), Done("tail")))))
				nested := describe(Drain(Flatten(Of(Info("head"), Sub(Flatten(tree(depth, fail))), Done("tail")))))
				if !equal(plain, nested) {
					t.Errorf("flatten(nested flattened) = %v, want %v", nested, plain)
				}
			})
		}
	}
}

func TestFlattenClosesPendingGeneratorsOnFailure(t *testing.T) {
	var released []string
	gen := func(name string, inner Sequence) Sequence {
		return New(iter.Seq[Step](func(yield func(Step) bool) {
			defer func() { released = append(released, name) }()
			if !yield(Sub(inner)) {
				return
			}
			yield(Done(name))
		}))
	}

	s := gen("outer", gen("middle", Error(errors.New("stop"))))
	steps := Drain(Flatten(s))
	if len(steps) != 1 || steps[0].Kind != KindFailed {
		t.Fatalf("steps = %v, want a single failure", describe(steps))
	}
	if len(released) != 2 {
		t.Fatalf("released = %v, want both generators stopped", released)
	}
	if released[0] != "middle" || released[1] != "outer" {
		t.Errorf("release order = %v, want innermost first", released)
	}
}

func TestFlattenEmpty(t *testing.T) {
	if steps := Drain(Flatten(nil)); len(steps) != 0 {
		t.Errorf("Flatten(nil) yielded %d steps", len(steps))
	}
	if steps := Drain(Flatten(Of())); len(steps) != 0 {
		t.Errorf("Flatten(Of()) yielded %d steps", len(steps))
	}
}
