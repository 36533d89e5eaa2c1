package collector

import (
	"sync"
	"time"
)

// Backoff tracks the exponential retry delay used while the breaker is
// open. Each failure multiplies the delay, capped at max; a success drops
// it back to base.
type Backoff struct {
	base       time.Duration
	max        time.Duration
	multiplier float64

	mu      sync.Mutex
	current time.Duration
}

// NewBackoff creates a backoff starting at base.
func NewBackoff(base, max time.Duration, multiplier float64) *Backoff {
	return &Backoff{
		base:       base,
		max:        max,
		multiplier: multiplier,
		current:    base,
	}
}

// Fail grows the delay and returns the new value.
func (b *Backoff) Fail() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := time.Duration(float64(b.current) * b.multiplier)
	if next > b.max || next < b.current {
		next = b.max
	}
	b.current = next
	return b.current
}

// Reset returns the delay to base.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.base
}

// Current returns the delay to wait before the next attempt.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}
