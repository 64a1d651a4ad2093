package engine

import (
	"context"
	"sync"

	"github.com/roach88/synarere/internal/session"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeRead carries bytes received by a read pump.
	EventTypeRead EventType = iota + 1
	// EventTypeClose reports that a transport stopped reading.
	EventTypeClose
	// EventTypeConnected hands a freshly dialed transport to the loop.
	EventTypeConnected
	// EventTypeConnectFailed reports a dial error.
	EventTypeConnectFailed
	// EventTypePosted runs a closure on the loop.
	EventTypePosted
)

func (t EventType) String() string {
	switch t {
	case EventTypeRead:
		return "read"
	case EventTypeClose:
		return "close"
	case EventTypeConnected:
		return "connected"
	case EventTypeConnectFailed:
		return "connect_failed"
	case EventTypePosted:
		return "posted"
	}
	return "unknown"
}

// Event is one unit of work for the Run loop.
//
// Attempt is the session's connection attempt id when the event was
// produced. Events from an earlier attempt are discarded.
type Event struct {
	Type      EventType
	Session   *session.Session
	Attempt   string
	Data      []byte
	Transport session.Transport
	Err       error
	Func      func(ctx context.Context)
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded so read pumps and worker goroutines never block on
// the loop. Producers are those goroutines; the Run loop is the only
// consumer.
//
// The queue uses a channel for signaling to enable context-aware waiting in
// the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Event{}, false) if queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Release the slot's buffers and closures.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available. The
// channel is closed when the queue is.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether Close was called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
