// Package fault classifies request failures. Every fault carries a stack
// trace so that error responses can report where the failure was raised.
package fault

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind classifies a failure.
type Kind int

// Failure kinds.
const (
	Infrastructure Kind = iota
	Validation
	NotFound
	State
	Capability
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case State:
		return "state"
	case Capability:
		return "capability"
	default:
		return "infrastructure"
	}
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newf(kind Kind, format string, args ...any) error {
	return errors.WithStack(&Error{Kind: kind, Msg: fmt.Sprintf(format, args...)})
}

// Validationf reports malformed input.
func Validationf(format string, args ...any) error { return newf(Validation, format, args...) }

// NotFoundf reports a missing package, run or route.
func NotFoundf(format string, args ...any) error { return newf(NotFound, format, args...) }

// Statef reports that the host is in the wrong phase.
func Statef(format string, args ...any) error { return newf(State, format, args...) }

// Capabilityf reports a missing dependency, an exceeded limit or an ambiguous
// match.
func Capabilityf(format string, args ...any) error { return newf(Capability, format, args...) }

// Infrastructuref reports an unexpected collaborator failure.
func Infrastructuref(format string, args ...any) error {
	return newf(Infrastructure, format, args...)
}

// Wrap attaches a stack trace and message to err without changing its kind.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}

// panicError is produced when advancing a task panics.
type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string { return fmt.Sprintf("panic: %v", p.value) }

// FromPanic converts a recovered panic value and its stack into a fault.
func FromPanic(v any, stack []byte) error {
	if err, ok := v.(error); ok {
		return &panicError{value: err, stack: stack}
	}
	return &panicError{value: v, stack: stack}
}

// KindOf returns the kind of err, defaulting to Infrastructure.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Infrastructure
}

// Trace renders err with its stack trace when one is attached.
func Trace(err error) string {
	if err == nil {
		return ""
	}
	var pe *panicError
	if errors.As(err, &pe) {
		return fmt.Sprintf("%s\n%s", pe.Error(), pe.stack)
	}
	return fmt.Sprintf("%+v", err)
}

// Status maps err to the HTTP status used for its error response.
func Status(err error) int {
	switch KindOf(err) {
	case Validation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case State:
		return http.StatusConflict
	case Capability:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
