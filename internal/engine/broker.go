package engine

import "sync"

// subscriberBufferSize is the channel buffer for each progress subscriber.
// Lines are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// DefaultKeepClosed is how many finished requests keep a closed marker.
const DefaultKeepClosed = 1024

// ProgressBroker fans out the progress lines of running requests to
// subscribers, keyed by request id. It is safe for concurrent use.
//
// Closed topics are retained as markers so that a subscriber arriving after a
// request finished receives a closed channel instead of waiting forever. Only
// the most recent markers are kept; older ones are evicted in close order.
type ProgressBroker struct {
	mu         sync.Mutex
	topics     map[string]*progressTopic
	closedLog  []closedMarker
	keepClosed int
}

type progressTopic struct {
	subs   map[int]chan string
	nextID int
	opened bool
	closed bool
}

type closedMarker struct {
	id    string
	topic *progressTopic
}

// BrokerOption configures a ProgressBroker.
type BrokerOption func(*ProgressBroker)

// KeepClosed sets how many closed markers the broker retains.
func KeepClosed(n int) BrokerOption {
	return func(b *ProgressBroker) {
		if n > 0 {
			b.keepClosed = n
		}
	}
}

// NewProgressBroker creates an empty broker.
func NewProgressBroker(opts ...BrokerOption) *ProgressBroker {
	b := &ProgressBroker{
		topics:     make(map[string]*progressTopic),
		keepClosed: DefaultKeepClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open readies a topic for a request that is about to run. Subscribers that
// arrived early are kept; a topic left closed by an earlier request with the
// same id is reset.
func (b *ProgressBroker) Open(requestID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.topics[requestID]; ok && !t.closed {
		t.opened = true
		return
	}
	b.topics[requestID] = &progressTopic{subs: make(map[int]chan string), opened: true}
}

// Subscribe returns a channel of progress lines for requestID and an
// unsubscribe function. The channel is already closed if the request has
// finished.
func (b *ProgressBroker) Subscribe(requestID string) (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[requestID]
	if !ok {
		t = &progressTopic{subs: make(map[int]chan string)}
		b.topics[requestID] = t
	}

	ch := make(chan string, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
		// A topic nobody opened exists only for its subscribers.
		if !t.opened && !t.closed && len(t.subs) == 0 && b.topics[requestID] == t {
			delete(b.topics, requestID)
		}
	}
}

// Publish sends a line to every subscriber of requestID without blocking.
func (b *ProgressBroker) Publish(requestID, line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[requestID]
	if !ok || t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

// Close ends the stream for requestID and closes every subscriber channel.
func (b *ProgressBroker) Close(requestID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[requestID]
	if !ok {
		t = &progressTopic{subs: make(map[int]chan string)}
		b.topics[requestID] = t
	}
	if t.closed {
		return
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}

	b.closedLog = append(b.closedLog, closedMarker{id: requestID, topic: t})
	b.evictLocked()
}

// Topics returns the number of request ids the broker is tracking.
func (b *ProgressBroker) Topics() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}

func (b *ProgressBroker) evictLocked() {
	for len(b.closedLog) > b.keepClosed {
		m := b.closedLog[0]
		b.closedLog[0] = closedMarker{}
		b.closedLog = b.closedLog[1:]
		// A reopened id has a new topic and is not evicted.
		if cur, ok := b.topics[m.id]; ok && cur == m.topic {
			delete(b.topics, m.id)
		}
	}
}
