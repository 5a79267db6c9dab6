package engine

import (
	"log/slog"

	"github.com/tepel-chen/demil/internal/conn"
	"github.com/tepel-chen/demil/internal/task"
)

// Handler builds the task answering one request.
type Handler func(conn.Params) task.Sequence

// Router selects the handler for a request path. It must not perform I/O and
// must always return a handler.
type Router interface {
	Route(path string) (name string, h Handler)
}

// RouterFunc adapts a function to a Router.
type RouterFunc func(path string) (string, Handler)

// Route implements Router.
func (f RouterFunc) Route(path string) (string, Handler) { return f(path) }

// Engine is the cooperative request scheduler. At most one accept is
// outstanding at a time, and each Tick advances a single step of the task at
// the head of the queue.
type Engine struct {
	acceptor conn.Acceptor
	router   Router
	writer   *ResponseWriter
	logger   *slog.Logger

	pending *conn.Pending
	queue   []task.Sequence
	stopped bool
}

// New creates a scheduler. Start or the first Tick issues the first accept.
func New(acceptor conn.Acceptor, router Router, writer *ResponseWriter, logger *slog.Logger) *Engine {
	return &Engine{
		acceptor: acceptor,
		router:   router,
		writer:   writer,
		logger:   logger,
	}
}

// Start issues the first accept if none is outstanding.
func (e *Engine) Start() {
	if e.stopped || e.pending != nil {
		return
	}
	e.pending = e.acceptor.BeginAccept()
	e.logger.Info("scheduler started")
}

// Tick is called once per host frame. If the outstanding accept has
// completed, its connection is admitted and a new accept is issued. Then one
// step of the oldest queued task is advanced; the task leaves the queue once
// it is exhausted.
func (e *Engine) Tick() {
	if e.stopped {
		return
	}
	if e.pending == nil {
		e.Start()
	}

	if e.pending.Completed() {
		c := e.pending.Connection()
		e.pending = e.acceptor.BeginAccept()
		e.admit(c)
	}

	e.advance()
	queueDepth.Set(float64(len(e.queue)))
}

func (e *Engine) admit(c *conn.Connection) {
	if c == nil {
		return
	}
	if !c.IsLocal() {
		e.writer.Reject(c)
		return
	}

	name, h := e.router.Route(c.Path)
	e.logger.Info("request accepted",
		"id", c.ID,
		"request_id", c.RequestID,
		"route", name,
		"path", c.Path,
		"remote", c.RemoteHost,
		"queue_depth", len(e.queue),
	)

	params := c.Params
	seq := task.Flatten(task.Defer(func() task.Sequence { return h(params) }))
	e.queue = append(e.queue, e.writer.Pipe(c, name, seq))
}

func (e *Engine) advance() {
	if len(e.queue) == 0 {
		return
	}
	head := e.queue[0]
	_, ok := head.Next()
	stepsTotal.Inc()
	if !ok {
		e.queue[0] = nil
		e.queue = e.queue[1:]
	}
}

// Shutdown stops accepting and abandons every queued task. Abandoned
// connections are answered with 503. Later Ticks do nothing.
func (e *Engine) Shutdown() {
	if e.stopped {
		return
	}
	e.stopped = true

	abandoned := len(e.queue)
	for _, s := range e.queue {
		if c, ok := s.(task.Closer); ok {
			c.Close()
		}
	}
	e.queue = nil
	queueDepth.Set(0)
	e.logger.Info("scheduler stopped", "abandoned", abandoned)
}

// QueueLen returns the number of tasks in flight.
func (e *Engine) QueueLen() int {
	return len(e.queue)
}

// Stopped reports whether Shutdown has been called.
func (e *Engine) Stopped() bool {
	return e.stopped
}
