package telemetry

import (
	"sync"
	"time"
)

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int // Next write position
	size     int // Current number of items
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a new circular buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add adds an item to the buffer. If full, the oldest item is evicted.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity

	if b.size < b.capacity {
		b.size++
	}
}

// Items returns all items in the buffer in FIFO order (oldest first).
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []T{}
	}

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		// oldest item is at head
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items in the buffer.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Pass describes one initialization pass.
type Pass struct {
	Attempt   int           `json:"attempt"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Succeeded bool          `json:"succeeded"`
	ErrorCode string        `json:"error_code,omitempty"`
	Error     string        `json:"error,omitempty"`
	// Created lists indices and templates created during the pass.
	Created []string `json:"created,omitempty"`
	// FieldsAdded counts properties appended across all descriptors.
	FieldsAdded int `json:"fields_added,omitempty"`
}

// DefaultHistorySize is the number of passes kept by NewHistory(0).
const DefaultHistorySize = 50

// History keeps the most recent passes so a stuck startup can be inspected
// without scraping logs.
type History struct {
	passes *CircularBuffer[Pass]
}

// NewHistory creates a history holding up to size passes.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{passes: NewCircularBuffer[Pass](size)}
}

// Record appends a pass. A nil *History records nothing.
func (h *History) Record(p Pass) {
	if h == nil {
		return
	}
	h.passes.Add(p)
}

// Passes returns the recorded passes, oldest first.
func (h *History) Passes() []Pass {
	if h == nil {
		return []Pass{}
	}
	return h.passes.Items()
}

// Last returns the most recent pass.
func (h *History) Last() (Pass, bool) {
	passes := h.Passes()
	if len(passes) == 0 {
		return Pass{}, false
	}
	return passes[len(passes)-1], true
}

// ConsecutiveFailures counts failed passes since the last success.
func (h *History) ConsecutiveFailures() int {
	passes := h.Passes()
	n := 0
	for i := len(passes) - 1; i >= 0 && !passes[i].Succeeded; i-- {
		n++
	}
	return n
}
