// Package ringbuffer provides the bounded history of recently relayed events.
package ringbuffer

import (
	"sync"

	"github.com/tanmay-xvx/controller-relay/internals/models"
)

// DefaultCapacity is the number of events kept for replay.
const DefaultCapacity = 50

// RingBuffer keeps the most recent events, newest first.
// When full, pushing a new event evicts the oldest one.
type RingBuffer struct {
	buf  []models.Event
	cap  int
	head int // index of the newest event
	size int
	mu   sync.RWMutex
}

// NewRingBuffer creates a new ring buffer with the specified capacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RingBuffer{
		buf:  make([]models.Event, capacity),
		cap:  capacity,
		head: capacity - 1,
	}
}

// Push records an event as the newest entry, evicting the oldest if the buffer is full.
func (r *RingBuffer) Push(ev models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// The head walks backwards so index 0 of a snapshot is always the newest event.
	r.head = (r.head - 1 + r.cap) % r.cap
	r.buf[r.head] = ev

	if r.size < r.cap {
		r.size++
	}
}

// Snapshot returns a copy of the buffered events, newest first.
// The returned slice is never shared with the buffer.
func (r *RingBuffer) Snapshot() []models.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]models.Event, r.size)
	for i := 0; i < r.size; i++ {
		result[i] = r.buf[(r.head+i)%r.cap]
	}
	return result
}

// Size returns the current number of events in the buffer.
func (r *RingBuffer) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Capacity returns the maximum capacity of the buffer.
func (r *RingBuffer) Capacity() int {
	return r.cap
}

// IsEmpty returns true if the buffer contains no events.
func (r *RingBuffer) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size == 0
}

// IsFull returns true if the buffer is at maximum capacity.
func (r *RingBuffer) IsFull() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size == r.cap
}
