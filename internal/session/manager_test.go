package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() (*Manager, *time.Time) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	m := NewManager(Config{MinProfitMargin: 0.02, MaxItemValue: 1e6, LearningFrequency: 10, EnableOnlineLearning: true})
	m.now = func() time.Time { return now }
	return m, &now
}

func TestCreateMergesDefaults(t *testing.T) {
	m, _ := newTestManager()

	s := m.Create(CreateRequest{Name: "default"})
	assert.Equal(t, StatusActive, s.Status)
	assert.Equal(t, 0.02, s.Config.MinProfitMargin)
	assert.True(t, s.Config.EnableOnlineLearning)
	assert.NotEmpty(t, s.ID)

	off := false
	freq := 5
	tr := m.Create(CreateRequest{Training: true, EnableOnlineLearning: &off, LearningFrequency: &freq})
	assert.Equal(t, StatusTraining, tr.Status)
	assert.False(t, tr.Config.EnableOnlineLearning)
	assert.Equal(t, 5, tr.Config.LearningFrequency)
	assert.True(t, tr.Config.Training)
	assert.NotEqual(t, s.ID, tr.ID)
}

func TestUpdateMetrics(t *testing.T) {
	m, _ := newTestManager()
	s := m.Create(CreateRequest{})

	r1, r2 := 120.0, -50.0
	_, err := m.UpdateMetrics(s.ID, MetricsDelta{Trades: 1, SuccessfulTrades: 1, Profit: 120, Reward: &r1})
	require.NoError(t, err)
	got, err := m.UpdateMetrics(s.ID, MetricsDelta{Trades: 1, Profit: -50, Reward: &r2})
	require.NoError(t, err)

	assert.Equal(t, 2, got.Metrics.TotalTrades)
	assert.Equal(t, 70.0, got.Metrics.TotalProfit)
	assert.Equal(t, 35.0, got.Metrics.AverageReward)
	assert.Equal(t, 50.0, got.Metrics.SuccessRate)
	assert.Equal(t, 120.0, got.Metrics.BestReward)

	_, err = m.UpdateMetrics(s.ID, MetricsDelta{Trades: -1})
	assert.ErrorIs(t, err, ErrInvalidDelta)

	_, err = m.UpdateMetrics("missing", MetricsDelta{})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestBestRewardAllLosses(t *testing.T) {
	m, _ := newTestManager()
	s := m.Create(CreateRequest{})

	r1, r2 := -50.0, -20.0
	got, err := m.UpdateMetrics(s.ID, MetricsDelta{Trades: 1, Profit: r1, Reward: &r1})
	require.NoError(t, err)
	assert.Equal(t, -50.0, got.Metrics.BestReward)
	got, err = m.UpdateMetrics(s.ID, MetricsDelta{Trades: 1, Profit: r2, Reward: &r2})
	require.NoError(t, err)
	assert.Equal(t, -20.0, got.Metrics.BestReward)
	assert.Equal(t, -35.0, got.Metrics.AverageReward)
}

func TestUpdateMetricsConcurrent(t *testing.T) {
	m, _ := newTestManager()
	s := m.Create(CreateRequest{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.UpdateMetrics(s.ID, MetricsDelta{Trades: 1, SuccessfulTrades: 1, Profit: 2})
		}()
	}
	wg.Wait()
	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Metrics.TotalTrades)
	assert.Equal(t, 100.0, got.Metrics.TotalProfit)
	assert.Equal(t, 100.0, got.Metrics.SuccessRate)
}

func TestLifecycle(t *testing.T) {
	t.Run("pause resume keeps metrics and status", func(t *testing.T) {
		m, _ := newTestManager()
		s := m.Create(CreateRequest{Training: true})
		_, err := m.UpdateMetrics(s.ID, MetricsDelta{Trades: 3, SuccessfulTrades: 2, Profit: 30})
		require.NoError(t, err)

		p, err := m.Pause(s.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPaused, p.Status)

		_, err = m.Pause(s.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)

		r, err := m.Resume(s.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusTraining, r.Status)
		assert.Equal(t, 3, r.Metrics.TotalTrades)

		_, err = m.Resume(s.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("end from paused is terminal", func(t *testing.T) {
		m, now := newTestManager()
		s := m.Create(CreateRequest{})
		_, err := m.Pause(s.ID)
		require.NoError(t, err)

		*now = now.Add(time.Minute)
		var ended []string
		m.OnEnd(func(id string) { ended = append(ended, id) })
		e, err := m.End(s.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, e.Status)
		require.NotNil(t, e.EndTime)
		assert.Equal(t, *now, *e.EndTime)
		assert.Equal(t, []string{s.ID}, ended)

		for name, op := range map[string]func(string) (Session, error){"pause": m.Pause, "resume": m.Resume, "end": m.End} {
			_, err := op(s.ID)
			assert.True(t, errors.Is(err, ErrSessionCompleted), name)
		}
		assert.Len(t, ended, 1)
	})

	t.Run("unknown id", func(t *testing.T) {
		m, _ := newTestManager()
		_, err := m.End("nope")
		assert.ErrorIs(t, err, ErrSessionNotFound)
		_, err = m.Summary("nope")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestSummary(t *testing.T) {
	m, now := newTestManager()
	s := m.Create(CreateRequest{})
	_, err := m.UpdateMetrics(s.ID, MetricsDelta{Trades: 4, SuccessfulTrades: 1, Profit: 200})
	require.NoError(t, err)
	*now = now.Add(2 * time.Hour)

	sum, err := m.Summary(s.ID)
	require.NoError(t, err)
	assert.Equal(t, (2 * time.Hour).Milliseconds(), sum.DurationMs)
	assert.Equal(t, 3, sum.FailedTrades)
	assert.Equal(t, 2.0, sum.TradesPerHour)
	assert.Equal(t, 50.0, sum.ProfitPerTrade)
}

func TestCleanupOldSessions(t *testing.T) {
	m, now := newTestManager()
	active := m.Create(CreateRequest{})
	paused := m.Create(CreateRequest{})
	done := m.Create(CreateRequest{})
	_, err := m.Pause(paused.ID)
	require.NoError(t, err)
	_, err = m.End(done.ID)
	require.NoError(t, err)

	*now = now.Add(48 * time.Hour)
	fresh := m.Create(CreateRequest{})
	_, err = m.End(fresh.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, m.CleanupOldSessions(24*time.Hour))
	ids := map[string]bool{}
	for _, s := range m.List() {
		ids[s.ID] = true
	}
	assert.True(t, ids[active.ID])
	assert.True(t, ids[fresh.ID])
	assert.False(t, ids[paused.ID])
	assert.False(t, ids[done.ID])
}
