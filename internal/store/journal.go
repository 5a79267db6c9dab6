package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tepel-chen/demil/internal/model"
)

// DefaultJournalBuffer is how many journal writes may wait for the database.
const DefaultJournalBuffer = 256

const journalWriteTimeout = 5 * time.Second

// Journal records request lifecycles into a Store from a single background
// goroutine so the scheduler never waits on the database. Timestamps are taken
// when an event is recorded, not when it is written. Events arriving while the
// buffer is full are dropped with a warning.
type Journal struct {
	store  Store
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	ops    chan func(ctx context.Context)
	wg     sync.WaitGroup

	// seq is only touched by the writer goroutine.
	seq map[string]int
}

// NewJournal starts a journal writing into s.
func NewJournal(s Store, buffer int, logger *slog.Logger) *Journal {
	if buffer <= 0 {
		buffer = DefaultJournalBuffer
	}
	j := &Journal{
		store:  s,
		logger: logger,
		ops:    make(chan func(ctx context.Context), buffer),
		seq:    make(map[string]int),
	}
	j.wg.Go(j.run)
	return j
}

func (j *Journal) run() {
	for op := range j.ops {
		ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
		op(ctx)
		cancel()
	}
}

func (j *Journal) enqueue(kind, id string, op func(ctx context.Context)) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.ops <- op:
	default:
		j.logger.Warn("journal buffer full, dropping event", "kind", kind, "request_id", id)
	}
}

// Queued records a newly accepted request.
func (j *Journal) Queued(req model.Request) {
	j.enqueue("queued", req.ID, func(ctx context.Context) {
		if err := j.store.CreateRequest(ctx, &req); err != nil {
			j.logger.Error("journal request", "request_id", req.ID, "error", err)
		}
	})
}

// Transition records a status change.
func (j *Journal) Transition(id, status, errMsg string) {
	at := time.Now().UTC()
	j.enqueue("transition", id, func(ctx context.Context) {
		if model.IsTerminal(status) {
			delete(j.seq, id)
		}
		if err := j.store.UpdateRequestStatus(ctx, id, status, errMsg, at); err != nil {
			j.logger.Error("journal transition", "request_id", id, "status", status, "error", err)
		}
	})
}

// Progress records a progress line, numbering lines per request from 1.
func (j *Journal) Progress(id, line string) {
	at := time.Now().UTC()
	j.enqueue("progress", id, func(ctx context.Context) {
		j.seq[id]++
		if err := j.store.InsertProgressLine(ctx, id, j.seq[id], line, at); err != nil {
			j.logger.Error("journal progress", "request_id", id, "error", err)
		}
	})
}

// Flush blocks until every event recorded so far was written or ctx ends.
func (j *Journal) Flush(ctx context.Context) error {
	done := make(chan struct{})
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return nil
	}
	select {
	case j.ops <- func(context.Context) { close(done) }:
	case <-ctx.Done():
		j.mu.RUnlock()
		return ctx.Err()
	}
	j.mu.RUnlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits for pending writes. It is safe to
// call more than once.
func (j *Journal) Close() {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.ops)
	}
	j.mu.Unlock()
	j.wg.Wait()
}
