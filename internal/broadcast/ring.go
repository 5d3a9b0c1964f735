package broadcast

import (
	"sync"
)

// Ring is a thread-safe fixed-capacity queue that drops its oldest
// entry when full. Receivers block until an item arrives or the ring
// closes.
type Ring[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	closed   bool

	// Stats
	totalIn  int64
	totalOut int64
	dropped  int64
}

// NewRing creates a ring with the given capacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	r := &Ring[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Send adds an item, evicting the oldest entry if the ring is full.
// Returns false if the ring is closed.
func (r *Ring[T]) Send(item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}

	if r.count == r.capacity {
		// Full: advance the read position over the oldest entry.
		var zero T
		r.buf[r.head] = zero
		r.head = (r.head + 1) % r.capacity
		r.count--
		r.dropped++
	}

	r.buf[r.tail] = item
	r.tail = (r.tail + 1) % r.capacity
	r.count++
	r.totalIn++

	r.cond.Signal()
	return true
}

// Receive removes and returns the oldest item. Blocks until an item is
// available or the ring is closed. Returns zero value and false once
// the ring is closed and drained.
func (r *Ring[T]) Receive() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.count == 0 && !r.closed {
		r.cond.Wait()
	}

	if r.count == 0 && r.closed {
		var zero T
		return zero, false
	}

	item := r.buf[r.head]
	var zero T
	r.buf[r.head] = zero // Clear reference for GC
	r.head = (r.head + 1) % r.capacity
	r.count--
	r.totalOut++

	return item, true
}

// Close closes the ring. After closing, Send returns false and
// receivers drain remaining items before getting the closed signal.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.cond.Broadcast()
}

// Len returns the current number of items in the ring.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// RingStats contains ring counters.
type RingStats struct {
	Count    int
	Capacity int
	TotalIn  int64
	TotalOut int64
	Dropped  int64
}

// Stats returns ring statistics.
func (r *Ring[T]) Stats() RingStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RingStats{
		Count:    r.count,
		Capacity: r.capacity,
		TotalIn:  r.totalIn,
		TotalOut: r.totalOut,
		Dropped:  r.dropped,
	}
}
