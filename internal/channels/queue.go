package channels

import (
	"sync"
	"time"
)

// Update is one channel value change as seen by monitor subscribers.
type Update struct {
	Seq   uint64    `json:"seq" msgpack:"seq"`
	Name  string    `json:"name" msgpack:"name"`
	Value float64   `json:"value" msgpack:"value"`
	Time  time.Time `json:"time" msgpack:"time"`
}

// updateQueue is a thread-safe FIFO queue of updates.
//
// Enqueue never blocks so the server can push under its lock without
// waiting on subscribers; the server bounds the length instead. The signal
// channel has a buffer of one and coalesces wakeups; it is closed by Close
// and Drop to wake all waiters.
type updateQueue struct {
	mu      sync.Mutex
	updates []Update
	closed  bool
	dropped bool
	signal  chan struct{}
}

func newUpdateQueue() *updateQueue {
	return &updateQueue{
		updates: make([]Update, 0, 64),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds u to the back of the queue. Returns false if the queue is
// closed.
func (q *updateQueue) Enqueue(u Update) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.updates = append(q.updates, u)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front update without blocking.
func (q *updateQueue) TryDequeue() (Update, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.updates) == 0 {
		return Update{}, false
	}
	u := q.updates[0]
	q.updates[0] = Update{}
	if len(q.updates) == 1 {
		q.updates = q.updates[:0]
	} else {
		q.updates = q.updates[1:]
	}
	return u, true
}

// Wait returns a channel that signals when updates may be available.
func (q *updateQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued updates.
func (q *updateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.updates)
}

// Closed reports whether Close has been called.
func (q *updateQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops further enqueues and wakes any waiters. Queued updates
// remain readable.
func (q *updateQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closeLocked()
}

// Drop closes the queue and discards everything still queued.
func (q *updateQueue) Drop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	clear(q.updates)
	q.updates = q.updates[:0]
	q.dropped = true
	q.closeLocked()
}

// Dropped reports whether Drop has been called.
func (q *updateQueue) Dropped() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *updateQueue) closeLocked() {
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
