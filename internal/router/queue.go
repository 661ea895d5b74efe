package router

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO safe for concurrent producers and consumers.
// Push never blocks, so a slow consumer cannot stall the socket read loop.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	closed bool
	notify chan struct{} // capacity 1; signalled on push and close

	pushed    int64
	popped    int64
	highWater int
}

// NewQueue creates an empty queue with room for hint items before growing.
func NewQueue[T any](hint int) *Queue[T] {
	if hint < 0 {
		hint = 0
	}
	return &Queue[T]{
		items:  make([]T, 0, hint),
		notify: make(chan struct{}, 1),
	}
}

// Push appends an item. Returns false if the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, item)
	q.pushed++
	if n := len(q.items) - q.head; n > q.highWater {
		q.highWater = n
	}
	q.mu.Unlock()

	q.signal()
	return true
}

// Pop removes the oldest item, waiting until one is available, the queue
// is closed and drained, or ctx is done.
func (q *Queue[T]) Pop(ctx context.Context) (T, bool) {
	for {
		q.mu.Lock()
		if item, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return item, true
		}
		closed := q.closed
		q.mu.Unlock()

		var zero T
		if closed {
			return zero, false
		}

		select {
		case <-ctx.Done():
			return zero, false
		case <-q.notify:
		}
	}
}

// TryPop removes the oldest item without waiting.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Drain removes up to max items (all when max <= 0) in FIFO order.
func (q *Queue[T]) Drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items) - q.head
	if n == 0 {
		return nil
	}
	if max > 0 && max < n {
		n = max
	}

	out := make([]T, n)
	copy(out, q.items[q.head:q.head+n])
	var zero T
	for i := q.head; i < q.head+n; i++ {
		q.items[i] = zero
	}
	q.head += n
	q.popped += int64(n)
	q.compactLocked()
	return out
}

// Close stops accepting items. Consumers still receive what is queued.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	// Wake every waiter: each one re-signals on its way out.
	q.signal()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Len:       len(q.items) - q.head,
		Pushed:    q.pushed,
		Popped:    q.popped,
		HighWater: q.highWater,
	}
}

// QueueStats contains queue statistics.
type QueueStats struct {
	Len       int
	Pushed    int64
	Popped    int64
	HighWater int
}

func (q *Queue[T]) popLocked() (T, bool) {
	var zero T
	if q.head == len(q.items) {
		if q.closed {
			// Pass the close signal on to the next waiter
			q.signal()
		}
		return zero, false
	}
	item := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	q.popped++
	q.compactLocked()
	if q.head < len(q.items) {
		// More items remain for other waiters
		q.signal()
	}
	return item, true
}

// compactLocked reclaims the consumed prefix once it dominates the slice.
func (q *Queue[T]) compactLocked() {
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
		return
	}
	if q.head > 1024 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		var zero T
		for i := n; i < len(q.items); i++ {
			q.items[i] = zero
		}
		q.items = q.items[:n]
		q.head = 0
	}
}

func (q *Queue[T]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
