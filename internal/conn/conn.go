// Package conn adapts inbound HTTP requests into connections the scheduler
// accepts and answers one at a time.
package conn

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/tepel-chen/demil/internal/model"
)

// RejectionText is the body sent to callers that are not on the local machine.
const RejectionText = "Access denied: only local connections are accepted."

// ErrClosed is returned when writing to a connection that was already answered
// or abandoned.
var ErrClosed = errors.New("connection closed")

// ErrWritten is returned when a response was already written.
var ErrWritten = errors.New("response already written")

// Params holds query parameters. Keys are matched case-insensitively and the
// first value given for a key wins.
type Params map[string]string

// ParseParams folds a query into Params.
func ParseParams(q url.Values) Params {
	p := make(Params, len(q))
	for k, vs := range q {
		key := strings.ToLower(k)
		if _, ok := p[key]; ok || len(vs) == 0 {
			continue
		}
		p[key] = vs[0]
	}
	return p
}

// Lookup returns the value of key and whether it was present.
func (p Params) Lookup(key string) (string, bool) {
	v, ok := p[strings.ToLower(key)]
	return v, ok
}

// Get returns the value of key, or "" when absent.
func (p Params) Get(key string) string {
	return p[strings.ToLower(key)]
}

// Bool reports whether key is set to "true", ignoring case.
func (p Params) Bool(key string) bool {
	return strings.EqualFold(p.Get(key), "true")
}

// Connection is one accepted request awaiting exactly one response.
type Connection struct {
	ID         string
	RequestID  string
	Method     string
	Path       string
	Params     Params
	RemoteHost string

	w       http.ResponseWriter
	mu      sync.Mutex
	written bool
	closed  bool
	done    chan struct{}
}

// NewConnection wraps a request and its response writer. The writer stays
// usable until the connection is closed.
func NewConnection(w http.ResponseWriter, r *http.Request) *Connection {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	id := model.NewID()
	reqID := middleware.GetReqID(r.Context())
	if reqID == "" {
		reqID = id
	}
	return &Connection{
		ID:         id,
		RequestID:  reqID,
		Method:     r.Method,
		Path:       r.URL.Path,
		Params:     ParseParams(r.URL.Query()),
		RemoteHost: host,
		w:          w,
		done:       make(chan struct{}),
	}
}

// Segments returns the non-empty path segments.
func (c *Connection) Segments() []string {
	var out []string
	for seg := range strings.SplitSeq(c.Path, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// IsLocal reports whether the caller is on the loopback interface.
func (c *Connection) IsLocal() bool {
	return IsLoopback(c.RemoteHost)
}

// Write sends the response body. It may be called at most once and does not
// close the connection.
func (c *Connection) Write(status int, contentType string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.written {
		return ErrWritten
	}
	c.written = true
	c.w.Header().Set("Content-Type", contentType)
	c.w.WriteHeader(status)
	_, err := c.w.Write(body)
	return err
}

// Reject answers a non-local caller with the fixed rejection text and closes
// the connection.
func (c *Connection) Reject() error {
	defer c.Close()
	return c.Write(http.StatusForbidden, "text/plain; charset=utf-8", []byte(RejectionText))
}

// Close releases the connection. Calls after the first are no-ops.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Connection) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// Abandon closes a connection that the scheduler never answered, telling the
// caller the service is unavailable. It does nothing if the connection was
// already closed.
func (c *Connection) Abandon() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if !c.written {
		c.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		c.w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = c.w.Write([]byte("service shutting down"))
	}
	c.closeLocked()
	return true
}

// Closed reports whether the connection has been closed.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// IsLoopback reports whether host names the local machine.
func IsLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}
