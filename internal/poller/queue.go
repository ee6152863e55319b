// Package poller reads the geodatabase change log on an interval and feeds
// typed edit operations into an unbounded FIFO queue for the dispatcher.
package poller

import (
	"sync"

	"github.com/openftth/gdb-integrator/internal/model"
)

// Queue is a thread-safe unbounded FIFO of edit operations.
//
// Unbounded on purpose: a burst of edit-log rows must never block the poll
// loop, and the dispatcher drains strictly one at a time. The signal
// channel lets the consumer wait in a select alongside its context, so
// cancellation never hangs on an empty queue.
type Queue struct {
	mu     sync.Mutex
	ops    []model.EditOperation
	closed bool
	signal chan struct{} // buffered size 1, coalesces wakeups
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		ops:    make([]model.EditOperation, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends an operation. Returns false after Close.
func (q *Queue) Enqueue(op model.EditOperation) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.ops = append(q.ops, op)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes and returns the front operation without blocking.
func (q *Queue) TryDequeue() (model.EditOperation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ops) == 0 {
		return model.EditOperation{}, false
	}
	op := q.ops[0]

	// Zero the slot so the backing array doesn't pin the operation's
	// payload pointers until reallocation.
	q.ops[0] = model.EditOperation{}
	if len(q.ops) == 1 {
		q.ops = q.ops[:0]
	} else {
		q.ops = q.ops[1:]
	}
	return op, true
}

// Wait returns the wakeup channel. The channel closes when the queue
// closes, so a blocked consumer always wakes.
func (q *Queue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Closed reports whether the queue has been closed.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close marks the queue closed and wakes all waiters. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
