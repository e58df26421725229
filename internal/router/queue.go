package router

import "sync"

// Queue is an unbounded FIFO ring that doubles when full. Pop blocks until an
// item arrives or the queue is closed and drained.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   []T
	head   int
	size   int
	closed bool

	pushed  int64
	popped  int64
	resizes int
	peak    int
}

// QueueStats contains queue statistics.
type QueueStats struct {
	Len     int
	Cap     int
	Peak    int
	Pushed  int64
	Popped  int64
	Resizes int
}

// NewQueue creates a queue with the given initial capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue[T]{ring: make([]T, capacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an item. Returns false if the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if q.size == len(q.ring) {
		q.growLocked()
	}

	q.ring[(q.head+q.size)%len(q.ring)] = item
	q.size++
	q.pushed++
	if q.size > q.peak {
		q.peak = q.size
	}
	q.cond.Signal()
	return true
}

// Pop removes the oldest item, blocking while the queue is empty and open.
// Returns false once the queue is closed and empty.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size == 0 && !q.closed {
		q.cond.Wait()
	}
	return q.popLocked()
}

// TryPop removes the oldest item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Close stops accepting pushes and wakes blocked Pop callers. Queued items
// can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Len:     q.size,
		Cap:     len(q.ring),
		Peak:    q.peak,
		Pushed:  q.pushed,
		Popped:  q.popped,
		Resizes: q.resizes,
	}
}

func (q *Queue[T]) popLocked() (T, bool) {
	var zero T
	if q.size == 0 {
		return zero, false
	}
	item := q.ring[q.head]
	q.ring[q.head] = zero
	q.head = (q.head + 1) % len(q.ring)
	q.size--
	q.popped++
	return item, true
}

// growLocked doubles capacity, unwrapping the ring to start at index 0.
func (q *Queue[T]) growLocked() {
	next := make([]T, len(q.ring)*2)
	n := copy(next, q.ring[q.head:])
	copy(next[n:], q.ring[:q.head])
	q.ring = next
	q.head = 0
	q.resizes++
}
