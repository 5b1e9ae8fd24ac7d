package trace

import "sync"

const defaultSize = 200

// RingBuffer keeps the most recent resolution entries. Safe for concurrent use.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []Entry
	head    int
	count   int
}

// NewRingBuffer creates a ring buffer that holds up to size entries.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = defaultSize
	}
	return &RingBuffer{entries: make([]Entry, size)}
}

// Add appends an entry, overwriting the oldest one when full.
func (rb *RingBuffer) Add(e Entry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries[rb.head] = e
	rb.head = (rb.head + 1) % len(rb.entries)
	if rb.count < len(rb.entries) {
		rb.count++
	}
}

// Last returns up to n of the newest entries, oldest first.
func (rb *RingBuffer) Last(n int) []Entry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	n = min(n, rb.count)
	if n <= 0 {
		return nil
	}

	size := len(rb.entries)
	out := make([]Entry, n)
	start := (rb.head - n + size) % size
	for i := range n {
		out[i] = rb.entries[(start+i)%size]
	}
	return out
}

// Find returns the newest entry recorded for requestID.
func (rb *RingBuffer) Find(requestID string) (Entry, bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	size := len(rb.entries)
	for i := 1; i <= rb.count; i++ {
		e := rb.entries[(rb.head-i+size)%size]
		if e.RequestID == requestID {
			return e, true
		}
	}
	return Entry{}, false
}

// Reset drops every entry.
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	clear(rb.entries)
	rb.head = 0
	rb.count = 0
}

// Count returns the number of entries currently stored.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}
