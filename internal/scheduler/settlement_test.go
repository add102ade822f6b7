package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettlementRunsAfterDelay(t *testing.T) {
	s := NewSettlement()
	done := make(chan struct{})
	h := s.Schedule("s1", 10*time.Millisecond, func() { close(done) })
	require.NotNil(t, h)
	assert.Equal(t, 1, s.Pending("s1"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
	assert.Eventually(t, func() bool { return s.Pending("") == 0 }, time.Second, 5*time.Millisecond)
	assert.False(t, h.Cancel())
}

func TestSettlementCancel(t *testing.T) {
	s := NewSettlement()
	var ran atomic.Int32
	h := s.Schedule("s1", time.Hour, func() { ran.Add(1) })
	assert.True(t, h.Cancel())
	assert.False(t, h.Cancel())
	assert.Zero(t, s.Pending("s1"))

	for i := 0; i < 3; i++ {
		s.Schedule("s2", time.Hour, func() { ran.Add(1) })
	}
	s.Schedule("s3", time.Hour, func() { ran.Add(1) })
	assert.Equal(t, 3, s.CancelGroup("s2"))
	assert.Equal(t, 1, s.Pending(""))

	s.Stop()
	assert.Zero(t, s.Pending(""))
	assert.Nil(t, s.Schedule("s4", 0, func() { ran.Add(1) }))
	assert.Zero(t, ran.Load())
}

func TestSettlementFlushInOrder(t *testing.T) {
	s := NewSettlement()
	var order []int
	for i := 0; i < 4; i++ {
		i := i
		s.Schedule("s1", time.Hour, func() { order = append(order, i) })
	}
	s.Schedule("other", time.Hour, func() { order = append(order, 99) })

	assert.Equal(t, 4, s.Flush("s1"))
	assert.Equal(t, []int{0, 1, 2, 3}, order)
	assert.Equal(t, 1, s.Pending(""))
	s.Stop()
}

func TestSettlementRecoversPanic(t *testing.T) {
	s := NewSettlement()
	s.Schedule("s1", time.Hour, func() { panic("boom") })
	assert.NotPanics(t, func() { s.Flush("s1") })
	s.Stop()
}

func TestParseIntervalDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"30s":   30 * time.Second,
		"15m":   15 * time.Minute,
		"24H":   24 * time.Hour,
		"7d":    7 * 24 * time.Hour,
		"1w":    7 * 24 * time.Hour,
		"1h30m": 90 * time.Minute,
	}
	for in, want := range cases {
		got, ok := ParseIntervalDuration(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "h", "0m", "-1h", "abc", "5x"} {
		_, ok := ParseIntervalDuration(bad)
		assert.False(t, ok, bad)
	}
}

func TestIntervalSchedulerStopsOnFalse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s := NewIntervalScheduler(ctx, "test", time.Millisecond)
	s.RunImmediately = true
	var calls int
	s.Start(func(_ context.Context) bool {
		calls++
		return calls < 3
	})
	assert.Equal(t, 3, calls)
}
