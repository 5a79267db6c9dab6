// Package engine drives request tasks on the host's tick. The Engine accepts
// connections, routes them to task handlers, and advances one step of the
// oldest in-flight task per tick. A ResponseWriter turns each finished task
// into exactly one JSON response.
//
// Engine and ResponseWriter are not safe for concurrent use: every method is
// called from the host's update goroutine.
package engine
