package task

import "fmt"

// Kind identifies what a Step carries.
type Kind uint8

// Step kinds.
const (
	KindInfo Kind = iota
	KindSubTask
	KindDone
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindInfo:
		return "info"
	case KindSubTask:
		return "subtask"
	case KindDone:
		return "done"
	case KindFailed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Step is the value produced by one advance of a Sequence.
type Step struct {
	Kind  Kind
	Value any
	Sub   Sequence
	Err   error
}

// Info returns an informational step.
func Info(v any) Step { return Step{Kind: KindInfo, Value: v} }

// Sub returns a step that delegates to a nested sequence.
func Sub(s Sequence) Step { return Step{Kind: KindSubTask, Sub: s} }

// Done returns a terminal payload step.
func Done(v any) Step { return Step{Kind: KindDone, Value: v} }

// Fail returns a terminal failure step.
func Fail(err error) Step { return Step{Kind: KindFailed, Err: err} }

// Pending is the informational value yielded while a Future is still running.
// It marks a step that did no work of its own and is not reported as progress.
type Pending struct {
	Label string
}

// IsProgress reports whether the step is an informational step worth
// reporting to observers.
func (s Step) IsProgress() bool {
	if s.Kind != KindInfo || s.Value == nil {
		return false
	}
	_, pending := s.Value.(Pending)
	return !pending
}
