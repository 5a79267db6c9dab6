package conn

import (
	"log/slog"
	"net/http"
	"sync"
)

// Pending is an accept in progress. It completes at most once.
type Pending struct {
	done chan struct{}
	conn *Connection
	once sync.Once
}

// NewPending returns an incomplete accept.
func NewPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// Complete records the accepted connection. Only the first call has effect.
func (p *Pending) Complete(c *Connection) {
	p.once.Do(func() {
		p.conn = c
		close(p.done)
	})
}

// Completed reports, without blocking, whether a connection has arrived.
func (p *Pending) Completed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Connection returns the accepted connection, or nil while incomplete.
func (p *Pending) Connection() *Connection {
	if !p.Completed() {
		return nil
	}
	return p.conn
}

// Acceptor issues accepts for the scheduler.
type Acceptor interface {
	// BeginAccept returns immediately; the Pending completes when the next
	// connection arrives.
	BeginAccept() *Pending
}

// DefaultBacklog is the number of connections that may wait for the
// scheduler before new ones are turned away.
const DefaultBacklog = 64

// HTTPAcceptor is an http.Handler that hands each request to the scheduler
// as a Connection and parks the handler goroutine until it is answered.
type HTTPAcceptor struct {
	incoming  chan *Connection
	closed    chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// NewHTTPAcceptor creates an acceptor holding up to backlog unaccepted
// connections.
func NewHTTPAcceptor(backlog int, logger *slog.Logger) *HTTPAcceptor {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &HTTPAcceptor{
		incoming: make(chan *Connection, backlog),
		closed:   make(chan struct{}),
		logger:   logger,
	}
}

// BeginAccept implements Acceptor. The wait happens on its own goroutine so
// the caller only ever polls the returned Pending.
func (a *HTTPAcceptor) BeginAccept() *Pending {
	p := NewPending()
	go func() {
		select {
		case c := <-a.incoming:
			p.Complete(c)
		case <-a.closed:
		}
	}()
	return p
}

// Close stops accepting. Parked requests that were never answered receive a
// 503.
func (a *HTTPAcceptor) Close() {
	a.closeOnce.Do(func() { close(a.closed) })
}

// ServeHTTP parks r until the scheduler answers it. Non-local callers are
// rejected here so they never hold a backlog slot.
func (a *HTTPAcceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c := NewConnection(w, r)
	if !c.IsLocal() {
		a.logger.Warn("rejected non-local connection", "path", c.Path, "remote", c.RemoteHost)
		_ = c.Reject()
		return
	}

	select {
	case <-a.closed:
		c.Abandon()
		return
	default:
	}

	select {
	case a.incoming <- c:
	default:
		a.logger.Warn("backlog full, dropping connection", "path", c.Path, "remote", c.RemoteHost)
		w.Header().Set("Retry-After", "1")
		http.Error(w, "server busy", http.StatusServiceUnavailable)
		return
	}

	select {
	case <-c.Done():
	case <-a.closed:
		if c.Abandon() {
			a.logger.Info("connection abandoned on shutdown", "id", c.ID, "path", c.Path)
		}
	case <-r.Context().Done():
		if c.Abandon() {
			a.logger.Debug("client went away before response", "id", c.ID, "path", c.Path)
		}
	}
}
