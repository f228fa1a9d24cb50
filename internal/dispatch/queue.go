package dispatch

import "sync"

// Queue is a growable FIFO ring holding events that await a batch consumer.
// It doubles capacity once occupancy crosses 70% so bursts are absorbed
// without dropping; nothing shrinks it back.
type Queue[T any] struct {
	mu       sync.Mutex
	ring     []T
	head     int
	tail     int
	depth    int
	capacity int
	closed   bool

	enqueued  int64
	drained   int64
	grows     int
	highWater int
}

// NewQueue returns a queue with the given initial capacity.
func NewQueue[T any](initial int) *Queue[T] {
	if initial < 1 {
		initial = 1
	}
	return &Queue[T]{
		ring:     make([]T, initial),
		capacity: initial,
	}
}

// Enqueue appends one item. Returns false once the queue is closed.
func (q *Queue[T]) Enqueue(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	threshold := (q.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if q.depth+1 >= threshold {
		q.grow()
	}

	q.ring[q.tail] = item
	q.tail = (q.tail + 1) % q.capacity
	q.depth++
	q.enqueued++
	if q.depth > q.highWater {
		q.highWater = q.depth
	}
	return true
}

// TryDequeue pops the oldest item without blocking.
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.depth == 0 {
		var zero T
		return zero, false
	}
	return q.pop(), true
}

// Drain pops up to max items in FIFO order. A max of zero or less drains
// everything currently queued. Returns nil when the queue is empty.
func (q *Queue[T]) Drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.depth == 0 {
		return nil
	}

	n := q.depth
	if max > 0 && max < n {
		n = max
	}

	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = q.pop()
	}
	return out
}

// Close stops further enqueues. Queued items remain drainable.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Len returns the current depth.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depth
}

// Cap returns the current capacity.
func (q *Queue[T]) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity
}

// Stats returns a snapshot of the queue counters.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Depth:     q.depth,
		Capacity:  q.capacity,
		HighWater: q.highWater,
		Enqueued:  q.enqueued,
		Drained:   q.drained,
		Grows:     q.grows,
	}
}

// QueueStats is a point-in-time snapshot of queue counters.
type QueueStats struct {
	Depth     int
	Capacity  int
	HighWater int
	Enqueued  int64
	Drained   int64
	Grows     int
}

// pop removes the head item. Caller holds the lock and has checked depth.
func (q *Queue[T]) pop() T {
	item := q.ring[q.head]
	var zero T
	q.ring[q.head] = zero
	q.head = (q.head + 1) % q.capacity
	q.depth--
	q.drained++
	return item
}

// grow doubles capacity, linearizing the ring. Caller holds the lock.
func (q *Queue[T]) grow() {
	next := make([]T, q.capacity*2)
	if q.depth > 0 {
		if q.head < q.tail {
			copy(next, q.ring[q.head:q.tail])
		} else {
			n := copy(next, q.ring[q.head:])
			copy(next[n:], q.ring[:q.tail])
		}
	}
	q.ring = next
	q.head = 0
	q.tail = q.depth
	q.capacity *= 2
	q.grows++
}
