package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/tepel-chen/demil/internal/conn"
	"github.com/tepel-chen/demil/internal/fault"
	"github.com/tepel-chen/demil/internal/model"
	"github.com/tepel-chen/demil/internal/task"
)

const jsonContentType = "application/json; charset=utf-8"

// Journal records the lifecycle of scheduled requests. Implementations must
// not block the caller.
type Journal interface {
	Queued(req model.Request)
	Transition(id, status, errMsg string)
	Progress(id, line string)
}

type nopJournal struct{}

func (nopJournal) Queued(model.Request)              {}
func (nopJournal) Transition(string, string, string) {}
func (nopJournal) Progress(string, string)           {}

// VersionFunc reports the version metadata added to successful responses.
type VersionFunc func() (model.VersionInfo, error)

// errorEnvelope is the body of every failed request.
type errorEnvelope struct {
	Error      string `json:"ERROR"`
	Stacktrace string `json:"Stacktrace"`
}

// ResponseWriter turns a request's flattened task into its single response.
type ResponseWriter struct {
	broker  *ProgressBroker
	journal Journal
	version VersionFunc
	logger  *slog.Logger
}

// NewResponseWriter creates a writer. journal and version may be nil.
func NewResponseWriter(broker *ProgressBroker, journal Journal, version VersionFunc, logger *slog.Logger) *ResponseWriter {
	if broker == nil {
		broker = NewProgressBroker()
	}
	if journal == nil {
		journal = nopJournal{}
	}
	return &ResponseWriter{
		broker:  broker,
		journal: journal,
		version: version,
		logger:  logger,
	}
}

// Broker returns the broker progress lines are published to.
func (w *ResponseWriter) Broker() *ProgressBroker {
	return w.broker
}

// Reject answers a non-local connection and records it.
func (w *ResponseWriter) Reject(c *conn.Connection) {
	now := time.Now().UTC()
	w.journal.Queued(model.Request{
		ID:         c.ID,
		TraceID:    c.RequestID,
		Path:       c.Path,
		RemoteHost: c.RemoteHost,
		Status:     model.StatusRejected,
		CreatedAt:  now,
		FinishedAt: &now,
	})
	requestsTotal.WithLabelValues("", outcomeRejected).Inc()
	if err := c.Reject(); err != nil {
		w.logger.Error("write rejection", "id", c.ID, "remote", c.RemoteHost, "error", err)
	}
	w.logger.Warn("rejected non-local connection", "id", c.ID, "remote", c.RemoteHost, "path", c.Path)
}

// Pipe returns a sequence that advances s one step per Next, reporting its
// progress, and writes the response once s ends or fails. The returned
// sequence is exhausted as soon as the response has been written. s is
// expected to be flattened.
func (w *ResponseWriter) Pipe(c *conn.Connection, route string, s task.Sequence) task.Sequence {
	now := time.Now().UTC()
	w.broker.Open(c.RequestID)
	w.journal.Queued(model.Request{
		ID:         c.ID,
		TraceID:    c.RequestID,
		Route:      route,
		Path:       c.Path,
		RemoteHost: c.RemoteHost,
		Status:     model.StatusQueued,
		CreatedAt:  now,
	})
	return &pipe{w: w, c: c, route: route, src: s, accepted: now}
}

// pipe is the in-flight state of one request.
type pipe struct {
	w     *ResponseWriter
	c     *conn.Connection
	route string
	src   task.Sequence

	accepted time.Time
	started  bool
	progress int
	last     any
	hasLast  bool
	err      error
	done     bool
}

func (p *pipe) Next() (task.Step, bool) {
	if p.done {
		return task.Step{}, false
	}
	if !p.started {
		p.started = true
		p.w.journal.Transition(p.c.ID, model.StatusRunning, "")
	}

	st, ok := p.src.Next()
	if !ok {
		p.finish()
		return task.Step{}, false
	}

	switch st.Kind {
	case task.KindFailed:
		p.err = st.Err
		if c, ok := p.src.(task.Closer); ok {
			c.Close()
		}
		p.finish()
		return task.Step{}, false
	case task.KindDone:
		p.last, p.hasLast = st.Value, true
	case task.KindInfo:
		if st.IsProgress() {
			p.report(st.Value)
		}
	}
	return st, true
}

// Close abandons the request without answering it through the task.
func (p *pipe) Close() {
	if p.done {
		return
	}
	p.done = true
	if c, ok := p.src.(task.Closer); ok {
		c.Close()
	}
	p.c.Abandon()
	p.w.broker.Close(p.c.RequestID)
	p.w.journal.Transition(p.c.ID, model.StatusAbandoned, "abandoned on shutdown")
	requestsTotal.WithLabelValues(p.route, outcomeAbandoned).Inc()
	p.w.logger.Info("request abandoned", "id", p.c.ID, "route", p.route)
}

func (p *pipe) report(v any) {
	line := progressLine(v)
	p.progress++
	p.w.broker.Publish(p.c.RequestID, line)
	p.w.journal.Progress(p.c.ID, line)
	p.w.logger.Debug("request progress", "id", p.c.ID, "route", p.route, "line", line)
}

// finish writes the response and always closes the connection.
func (p *pipe) finish() {
	p.done = true
	defer p.c.Close()
	defer p.w.broker.Close(p.c.RequestID)

	if p.err == nil && !p.hasLast {
		p.err = fault.Infrastructuref("request produced no result")
	}

	status := http.StatusOK
	var body []byte
	if p.err == nil {
		var err error
		body, err = p.w.encode(p.last)
		if err != nil {
			p.err = err
		}
	}
	if p.err != nil {
		status = fault.Status(p.err)
		body = encodeError(p.err)
	}

	if err := p.c.Write(status, jsonContentType, body); err != nil {
		p.w.logger.Error("write response", "id", p.c.ID, "route", p.route, "error", err)
	}

	elapsed := time.Since(p.accepted)
	outcome, recorded, errMsg := outcomeCompleted, model.StatusCompleted, ""
	if p.err != nil {
		outcome, recorded, errMsg = outcomeFailed, model.StatusFailed, p.err.Error()
	}
	p.w.journal.Transition(p.c.ID, recorded, errMsg)
	requestsTotal.WithLabelValues(p.route, outcome).Inc()
	requestDuration.WithLabelValues(p.route).Observe(elapsed.Seconds())

	attrs := []any{
		"id", p.c.ID,
		"request_id", p.c.RequestID,
		"route", p.route,
		"status", status,
		"progress_lines", p.progress,
		"duration_ms", elapsed.Milliseconds(),
	}
	if p.err != nil {
		attrs = append(attrs, "error", p.err.Error(), "kind", fault.KindOf(p.err).String())
	}
	p.w.logger.Info("request finished", attrs...)
}

// encode renders a successful payload, adding version metadata to objects.
func (w *ResponseWriter) encode(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fault.Wrap(err, "encode response")
	}
	if version := w.currentVersion(); version != "" {
		raw = withVersion(raw, version)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return nil, fault.Wrap(err, "indent response")
	}
	return out.Bytes(), nil
}

// currentVersion asks for version metadata, swallowing errors and panics.
func (w *ResponseWriter) currentVersion() (version string) {
	if w.version == nil {
		return ""
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Debug("version metadata panicked", "panic", r, "stack", string(debug.Stack()))
			version = ""
		}
	}()
	info, err := w.version()
	if err != nil {
		w.logger.Debug("version metadata unavailable", "error", err)
		return ""
	}
	return info.Version
}

// withVersion appends a "Version" member to a JSON object that lacks one.
// Anything else is returned unchanged.
func withVersion(raw []byte, version string) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) < 2 || trimmed[0] != '{' {
		return raw
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &members); err != nil {
		return raw
	}
	if _, ok := members["Version"]; ok {
		return raw
	}
	v, err := json.Marshal(version)
	if err != nil {
		return raw
	}

	var buf bytes.Buffer
	buf.Write(trimmed[:len(trimmed)-1])
	if len(members) > 0 {
		buf.WriteByte(',')
	}
	buf.WriteString(`"Version":`)
	buf.Write(v)
	buf.WriteByte('}')
	return buf.Bytes()
}

func encodeError(err error) []byte {
	body, mErr := json.MarshalIndent(errorEnvelope{Error: err.Error(), Stacktrace: fault.Trace(err)}, "", "  ")
	if mErr != nil {
		return []byte(`{"ERROR": "internal error", "Stacktrace": ""}`)
	}
	return body
}

// progressLine renders an informational value for observers.
func progressLine(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}
