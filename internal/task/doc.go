// Package task provides the lazy, step-at-a-time computations that request
// handlers are written as. A Sequence is advanced one Step per call and may
// delegate to nested sequences; Flatten inlines them depth-first and turns any
// failure, yielded or panicked, into a single terminal Failed step.
package task
