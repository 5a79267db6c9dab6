package store

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tepel-chen/demil/internal/model"
)

func newTestJournal(t *testing.T) (*Journal, *SQLiteStore) {
	t.Helper()
	s := newTestStore(t)
	j := NewJournal(s, 16, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(j.Close)
	return j, s
}

func flush(t *testing.T, j *Journal) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestJournalRecordsLifecycle(t *testing.T) {
	j, s := newTestJournal(t)
	ctx := context.Background()

	req := *makeTestRequest("loadMission")
	j.Queued(req)
	j.Transition(req.ID, model.StatusRunning, "")
	j.Progress(req.ID, "loading bundles")
	j.Progress(req.ID, `{"Step":2}`)
	j.Transition(req.ID, model.StatusCompleted, "")
	flush(t, j)

	got, err := s.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.StartedAt == nil || got.FinishedAt == nil || got.DurationMS == nil {
		t.Errorf("timing fields not set: %+v", got)
	}

	lines, err := s.GetProgressLines(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetProgressLines: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2", len(lines))
	}
	if lines[0].Seq != 1 || lines[0].Line != "loading bundles" {
		t.Errorf("lines[0] = %+v", lines[0])
	}
	if lines[1].Seq != 2 || lines[1].Line != `{"Step":2}` {
		t.Errorf("lines[1] = %+v", lines[1])
	}
}

func TestJournalSequencePerRequest(t *testing.T) {
	j, s := newTestJournal(t)
	ctx := context.Background()

	a := *makeTestRequest("missions")
	b := *makeTestRequest("missions")
	j.Queued(a)
	j.Queued(b)
	j.Progress(a.ID, "a1")
	j.Progress(b.ID, "b1")
	j.Progress(a.ID, "a2")
	flush(t, j)

	la, _ := s.GetProgressLines(ctx, a.ID)
	lb, _ := s.GetProgressLines(ctx, b.ID)
	if len(la) != 2 || la[1].Seq != 2 {
		t.Errorf("a lines = %+v", la)
	}
	if len(lb) != 1 || lb[0].Seq != 1 {
		t.Errorf("b lines = %+v", lb)
	}
}

func TestJournalFailureMessage(t *testing.T) {
	j, s := newTestJournal(t)

	req := *makeTestRequest("startMission")
	j.Queued(req)
	j.Transition(req.ID, model.StatusRunning, "")
	j.Transition(req.ID, model.StatusFailed, "You must be in the setup state to start a mission.")
	flush(t, j)

	got, err := s.GetRequest(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if got.Error != "You must be in the setup state to start a mission." {
		t.Errorf("Error = %q", got.Error)
	}
}

func TestJournalCloseDrains(t *testing.T) {
	s := newTestStore(t)
	j := NewJournal(s, 16, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := *makeTestRequest("version")
	j.Queued(req)
	j.Close()
	j.Close()

	if _, err := s.GetRequest(context.Background(), req.ID); err != nil {
		t.Fatalf("GetRequest after Close: %v", err)
	}

	// Events after Close are ignored.
	j.Queued(*makeTestRequest("version"))
	if err := j.Flush(context.Background()); err != nil {
		t.Errorf("Flush after Close: %v", err)
	}
}
