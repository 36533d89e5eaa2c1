package collector

import (
	"sync"
	"time"

	"github.com/user/dnslogd/internal/model"
)

// CircuitBreaker is a two-state breaker. It opens after threshold
// consecutive failures and closes again once cooldown has elapsed since it
// tripped. There is no separate half-open state.
type CircuitBreaker struct {
	threshold int
	cooldown  time.Duration

	mu                  sync.Mutex
	isOpen              bool
	consecutiveFailures int
	lastFailureTime     time.Time
	tripTime            time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// RecordFailure counts a failure at now. It reports the new consecutive
// failure count and whether this failure tripped the breaker open.
func (b *CircuitBreaker) RecordFailure(now time.Time) (failures int, tripped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	b.lastFailureTime = now

	if b.consecutiveFailures >= b.threshold && !b.isOpen {
		b.isOpen = true
		b.tripTime = now
		tripped = true
	}
	return b.consecutiveFailures, tripped
}

// RecordSuccess closes the breaker and clears the failure counter.
func (b *CircuitBreaker) RecordSuccess() {
	b.Reset()
}

// Reset closes the breaker and clears the failure counter.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.isOpen = false
	b.consecutiveFailures = 0
}

// IsOpen reports whether the breaker is open.
func (b *CircuitBreaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isOpen
}

// CooldownElapsed reports whether an open breaker may close at now.
func (b *CircuitBreaker) CooldownElapsed(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isOpen && now.Sub(b.tripTime) >= b.cooldown
}

// State returns a snapshot of the breaker.
func (b *CircuitBreaker) State() model.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return model.BreakerState{
		IsOpen:              b.isOpen,
		ConsecutiveFailures: b.consecutiveFailures,
		LastFailureTime:     b.lastFailureTime,
		TripTime:            b.tripTime,
	}
}
