package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New("test", threshold, cooldown)
	b.SetStateChangeHandler(func(string, State, State) {})
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute)

	assert.True(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
	assert.EqualValues(t, 1, b.Snapshot().Rejected)
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)
	b.RecordFailure()
	assert.False(t, b.Allow())

	*now = now.Add(2 * time.Minute)

	t.Run("single probe admitted", func(t *testing.T) {
		assert.True(t, b.Allow())
		assert.Equal(t, StateHalfOpen, b.State())
		assert.False(t, b.Allow())
	})

	t.Run("probe success closes", func(t *testing.T) {
		b.RecordSuccess()
		assert.Equal(t, StateClosed, b.State())
		assert.True(t, b.Allow())
	})
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b, now := newTestBreaker(1, time.Second)
	b.RecordFailure()
	*now = now.Add(2 * time.Second)
	assert.True(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, "OPEN", b.Snapshot().State)
}
