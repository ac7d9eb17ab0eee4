package api

import "sync"

// RunLimiter tracks research runs in flight and enforces a ceiling on them
type RunLimiter struct {
	mu      sync.Mutex
	limit   int
	current int
}

// NewRunLimiter creates a limiter admitting up to limit concurrent runs
func NewRunLimiter(limit int) *RunLimiter {
	if limit <= 0 {
		limit = 4
	}
	return &RunLimiter{limit: limit}
}

// Acquire reserves a slot. It never blocks; false means the server is full.
func (l *RunLimiter) Acquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current >= l.limit {
		return false
	}
	l.current++
	return true
}

// Release frees a slot taken by Acquire
func (l *RunLimiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.current--
	if l.current < 0 {
		l.current = 0
	}
}

// Usage returns the slots in use and the ceiling
func (l *RunLimiter) Usage() (current, limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current, l.limit
}
