package engine_test

import (
	"testing"

	"github.com/tepel-chen/demil/internal/engine"
)

func collect(ch <-chan string) []string {
	var got []string
	for l := range ch {
		got = append(got, l)
	}
	return got
}

func TestProgressBrokerDeliversInOrder(t *testing.T) {
	b := engine.NewProgressBroker()
	b.Open("r1")
	ch, unsub := b.Subscribe("r1")
	defer unsub()

	lines := []string{"discovering", "reading manifest", "loading bundle"}
	for _, l := range lines {
		b.Publish("r1", l)
	}
	b.Close("r1")

	got := collect(ch)
	if len(got) != len(lines) {
		t.Fatalf("got %d lines, want %d", len(got), len(lines))
	}
	for i, l := range got {
		if l != lines[i] {
			t.Errorf("line[%d] = %q, want %q", i, l, lines[i])
		}
	}
}

func TestProgressBrokerEarlySubscriberSurvivesOpen(t *testing.T) {
	b := engine.NewProgressBroker()
	ch, unsub := b.Subscribe("r1")
	defer unsub()

	b.Open("r1")
	b.Publish("r1", "hello")
	b.Close("r1")

	if got := collect(ch); len(got) != 1 || got[0] != "hello" {
		t.Errorf("got %v, want [hello]", got)
	}
}

func TestProgressBrokerLateSubscriberGetsClosed(t *testing.T) {
	b := engine.NewProgressBroker()
	b.Open("r1")
	b.Publish("r1", "early")
	b.Close("r1")

	ch, unsub := b.Subscribe("r1")
	defer unsub()

	if _, ok := <-ch; ok {
		t.Error("late subscriber should get a closed channel")
	}
}

func TestProgressBrokerOpenResetsClosedTopic(t *testing.T) {
	b := engine.NewProgressBroker()
	b.Close("r1")
	b.Open("r1")

	ch, unsub := b.Subscribe("r1")
	defer unsub()
	b.Publish("r1", "second run")
	b.Close("r1")

	if got := collect(ch); len(got) != 1 || got[0] != "second run" {
		t.Errorf("got %v, want [second run]", got)
	}
}

func TestProgressBrokerUnsubscribeStopsDelivery(t *testing.T) {
	b := engine.NewProgressBroker()
	ch, unsub := b.Subscribe("r1")
	unsub()

	b.Publish("r1", "after unsub")
	b.Close("r1")

	select {
	case l, ok := <-ch:
		if ok {
			t.Errorf("got unexpected line %q after unsubscribe", l)
		}
	default:
	}
}

func TestProgressBrokerUnknownTopicIsNoop(t *testing.T) {
	b := engine.NewProgressBroker()
	b.Publish("nonexistent", "line")
	b.Close("nonexistent")
}

func TestProgressBrokerEvictsOldestClosedMarkers(t *testing.T) {
	b := engine.NewProgressBroker(engine.KeepClosed(2))
	for _, id := range []string{"r1", "r2", "r3"} {
		b.Open(id)
		b.Close(id)
	}
	if n := b.Topics(); n != 2 {
		t.Fatalf("Topics = %d, want 2", n)
	}

	// r1 was evicted, so a subscriber to it waits on a fresh topic.
	ch, unsub := b.Subscribe("r1")
	select {
	case <-ch:
		t.Error("evicted id should not report a finished stream")
	default:
	}
	unsub()

	ch, unsub = b.Subscribe("r3")
	defer unsub()
	if _, ok := <-ch; ok {
		t.Error("r3 should still be closed")
	}
}

func TestProgressBrokerReopenedIdSurvivesEviction(t *testing.T) {
	b := engine.NewProgressBroker(engine.KeepClosed(1))
	b.Close("r1")
	b.Open("r1")
	b.Close("r2")

	ch, unsub := b.Subscribe("r1")
	defer unsub()
	b.Publish("r1", "still running")
	b.Close("r1")

	if got := collect(ch); len(got) != 1 || got[0] != "still running" {
		t.Errorf("got %v, want [still running]", got)
	}
}

func TestProgressBrokerDropsUnopenedTopicOnUnsubscribe(t *testing.T) {
	b := engine.NewProgressBroker()
	_, unsub := b.Subscribe("never-used")
	if n := b.Topics(); n != 1 {
		t.Fatalf("Topics = %d, want 1", n)
	}
	unsub()
	if n := b.Topics(); n != 0 {
		t.Errorf("Topics = %d after unsubscribe, want 0", n)
	}

	// An opened topic stays until it is closed.
	_, unsub = b.Subscribe("r1")
	b.Open("r1")
	unsub()
	if n := b.Topics(); n != 1 {
		t.Errorf("Topics = %d, want the opened topic kept", n)
	}
}
