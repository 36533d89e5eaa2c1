package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2025, 6, 1, 10, 0, 0, 0, time.Local)

func TestCircuitBreaker_TripsExactlyAtThreshold(t *testing.T) {
	b := NewCircuitBreaker(3, time.Minute)

	for i := 1; i < 3; i++ {
		failures, tripped := b.RecordFailure(epoch)
		assert.Equal(t, i, failures)
		assert.False(t, tripped)
		assert.False(t, b.IsOpen())
	}

	failures, tripped := b.RecordFailure(epoch.Add(time.Second))
	assert.Equal(t, 3, failures)
	assert.True(t, tripped)
	assert.True(t, b.IsOpen())
	assert.Equal(t, epoch.Add(time.Second), b.State().TripTime)
}

func TestCircuitBreaker_TripTimeSetOnceWhileOpen(t *testing.T) {
	b := NewCircuitBreaker(1, time.Minute)

	_, tripped := b.RecordFailure(epoch)
	assert.True(t, tripped)

	_, tripped = b.RecordFailure(epoch.Add(30 * time.Second))
	assert.False(t, tripped)
	assert.Equal(t, epoch, b.State().TripTime)
	assert.Equal(t, epoch.Add(30*time.Second), b.State().LastFailureTime)
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	b := NewCircuitBreaker(2, time.Minute)
	b.RecordFailure(epoch)
	b.RecordFailure(epoch)
	assert.True(t, b.IsOpen())

	b.RecordSuccess()
	state := b.State()
	assert.False(t, state.IsOpen)
	assert.Zero(t, state.ConsecutiveFailures)

	// A single failure after a reset must not reopen it.
	_, tripped := b.RecordFailure(epoch)
	assert.False(t, tripped)
}

func TestCircuitBreaker_Cooldown(t *testing.T) {
	b := NewCircuitBreaker(1, 5*time.Minute)
	assert.False(t, b.CooldownElapsed(epoch), "closed breaker has no cooldown")

	b.RecordFailure(epoch)
	assert.False(t, b.CooldownElapsed(epoch.Add(4*time.Minute)))
	assert.True(t, b.CooldownElapsed(epoch.Add(5*time.Minute)))
}

func TestBackoff_GrowthIsBounded(t *testing.T) {
	base := 30 * time.Second
	max := 10 * time.Minute
	b := NewBackoff(base, max, 2)

	expected := base
	for m := 1; m <= 10; m++ {
		expected *= 2
		if expected > max {
			expected = max
		}
		assert.Equal(t, expected, b.Fail(), "after %d failures", m)
		assert.LessOrEqual(t, b.Current(), max)
	}

	b.Reset()
	assert.Equal(t, base, b.Current())
}

func TestBackoff_MultiplierOfOneStaysFlat(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute, 1)
	b.Fail()
	b.Fail()
	assert.Equal(t, time.Second, b.Current())
}
