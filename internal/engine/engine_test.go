package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"getrader/internal/decision"
	"getrader/internal/learning"
	"getrader/internal/market"
	"getrader/internal/prediction"
	"getrader/internal/session"
	"getrader/internal/store"
	"getrader/internal/store/memstore"
	"getrader/internal/tracker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticFeed struct {
	items []market.Item
}

func (f staticFeed) Items(ctx context.Context) ([]market.Item, error) {
	return f.items, ctx.Err()
}

type fixedBackend struct {
	action     decision.ActionType
	confidence float64
}

func (b fixedBackend) Name() string { return "fixed" }

func (b fixedBackend) Predict(_ context.Context, _ market.MarketState) (prediction.Prediction, error) {
	return prediction.Prediction{Action: b.action, Confidence: b.confidence, Reasoning: "fixed"}, nil
}

type failingAudit struct {
	decision.AuditStore
}

func (failingAudit) SaveDecision(context.Context, decision.Decision) (string, error) {
	return "", errors.New("disk full")
}

func risingItem() market.Item {
	item := market.Item{ID: "4151", Name: "Abyssal whip", High: 110_000, Low: 100_000, Volume: 900}
	for i := 0; i < 6; i++ {
		item.History = append(item.History, market.PricePoint{
			Price:     100_000 + float64(i)*1000,
			Timestamp: int64(1_700_000_000_000 + i*60_000),
		})
	}
	return item
}

func shortItem() market.Item {
	return market.Item{ID: "561", High: 200, Low: 190, History: []market.PricePoint{{Price: 195, Timestamp: 1}, {Price: 196, Timestamp: 2}}}
}

type fixture struct {
	engine *Engine
	mem    *memstore.Store
}

func newFixture(t *testing.T, backend prediction.Backend, stores *store.Stores) fixture {
	t.Helper()
	mem := memstore.New()
	if stores == nil {
		stores = &store.Stores{Audit: mem, Outcomes: mem, Learning: mem, Models: mem}
	}
	sessions := session.NewManager(session.Config{
		MinProfitMargin:      0.01,
		MaxItemValue:         1_000_000,
		LearningFrequency:    5,
		EnableOnlineLearning: true,
	})
	learner := learning.New(learning.Settings{Enabled: true, Frequency: 5, MinInterval: time.Hour, InitialExplore: 0.1}, stores.Audit, stores.Learning, nil)
	eng, err := New(Config{
		ConfidenceThreshold: 0.7,
		Tracker:             tracker.Config{FailurePenalty: 50, FeeRate: 0.01, HoldReward: 10},
		SettleDelayMin:      time.Hour,
		SettleDelayMax:      time.Hour,
		Seed:                1,
	}, Deps{
		Feed:     staticFeed{items: []market.Item{risingItem(), shortItem()}},
		Encoder:  market.NewEncoder(market.EncoderConfig{}),
		Gateway:  prediction.NewGateway(time.Second, backend),
		Sessions: sessions,
		Learner:  learner,
		Stores:   stores,
	})
	require.NoError(t, err)
	t.Cleanup(eng.Close)
	return fixture{engine: eng, mem: mem}
}

func TestRunCycleExecutesAndSettles(t *testing.T) {
	f := newFixture(t, fixedBackend{action: decision.ActionBuy, confidence: 0.9}, nil)
	ctx := context.Background()
	s, err := f.engine.StartSession(ctx, session.CreateRequest{Name: "whips"})
	require.NoError(t, err)

	rep, err := f.engine.RunCycle(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Items)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 1, rep.Decisions)
	assert.Equal(t, 1, rep.Executed)
	assert.Equal(t, 1, rep.BySource["fixed"])
	assert.Equal(t, 1, f.engine.settlement.Pending(s.ID))

	ds, err := f.mem.GetDecisions(ctx, decision.Filter{SessionID: s.ID}, decision.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.True(t, ds[0].Executed)
	assert.Equal(t, 9, ds[0].Action.Quantity) // floor(1e6 / 105000)
	assert.Equal(t, 105_000.0, ds[0].Action.Price)
	assert.Nil(t, ds[0].Outcome)

	assert.Equal(t, 1, f.engine.settlement.Flush(s.ID))

	perf, err := f.engine.Performance(s.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, perf.TotalTrades)
	assert.Equal(t, 0, perf.ActiveTrades)

	got, err := f.engine.Sessions().Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Metrics.EpisodeCount)
	assert.Equal(t, 1, got.Metrics.DecisionsMade)
	assert.Equal(t, 1, got.Metrics.TotalTrades)
	assert.InDelta(t, perf.NetProfit, got.Metrics.TotalProfit, 1e-9)

	ds, err = f.mem.GetDecisions(ctx, decision.Filter{SessionID: s.ID}, decision.QueryOptions{})
	require.NoError(t, err)
	require.NotNil(t, ds[0].Outcome)
	assert.InDelta(t, perf.NetProfit, ds[0].Outcome.Profit, 1e-9)

	outs, err := f.mem.ListTradeOutcomes(ctx, s.ID, 0)
	require.NoError(t, err)
	assert.Len(t, outs, 1)
}

func TestRunCycleRejectsPausedAndUnknown(t *testing.T) {
	f := newFixture(t, fixedBackend{action: decision.ActionBuy, confidence: 0.9}, nil)
	ctx := context.Background()
	s, err := f.engine.StartSession(ctx, session.CreateRequest{})
	require.NoError(t, err)
	_, err = f.engine.PauseSession(s.ID)
	require.NoError(t, err)

	_, err = f.engine.RunCycle(ctx, s.ID)
	assert.ErrorIs(t, err, ErrSessionNotRunning)

	_, err = f.engine.RunCycle(ctx, "missing")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestGates(t *testing.T) {
	ctx := context.Background()
	low := 50_000.0

	t.Run("below threshold", func(t *testing.T) {
		f := newFixture(t, fixedBackend{action: decision.ActionBuy, confidence: 0.3}, nil)
		s, err := f.engine.StartSession(ctx, session.CreateRequest{})
		require.NoError(t, err)
		rep, err := f.engine.RunCycle(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, rep.Executed)
		ds, _ := f.mem.GetDecisions(ctx, decision.Filter{SessionID: s.ID}, decision.QueryOptions{})
		require.Len(t, ds, 1)
		assert.False(t, ds[0].Executed)
		assert.Contains(t, ds[0].Reasoning, "below threshold")
	})

	t.Run("training acts on low confidence", func(t *testing.T) {
		f := newFixture(t, fixedBackend{action: decision.ActionBuy, confidence: 0.3}, nil)
		s, err := f.engine.StartSession(ctx, session.CreateRequest{Training: true})
		require.NoError(t, err)
		rep, err := f.engine.RunCycle(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Executed)
	})

	t.Run("max item value", func(t *testing.T) {
		f := newFixture(t, fixedBackend{action: decision.ActionBuy, confidence: 0.9}, nil)
		s, err := f.engine.StartSession(ctx, session.CreateRequest{MaxItemValue: &low})
		require.NoError(t, err)
		rep, err := f.engine.RunCycle(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, rep.Executed)
	})

	t.Run("margin after tax", func(t *testing.T) {
		f := newFixture(t, fixedBackend{action: decision.ActionSell, confidence: 0.9}, nil)
		margin := 0.5
		s, err := f.engine.StartSession(ctx, session.CreateRequest{MinProfitMargin: &margin})
		require.NoError(t, err)
		rep, err := f.engine.RunCycle(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, rep.Executed)
	})

	t.Run("hold is tracked", func(t *testing.T) {
		f := newFixture(t, fixedBackend{action: decision.ActionHold, confidence: 0.9}, nil)
		s, err := f.engine.StartSession(ctx, session.CreateRequest{})
		require.NoError(t, err)
		rep, err := f.engine.RunCycle(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Executed)
	})
}

func TestAuditFailureFallsBackToLocalID(t *testing.T) {
	mem := memstore.New()
	stores := &store.Stores{Audit: failingAudit{AuditStore: mem}, Outcomes: mem, Learning: mem, Models: mem}
	f := newFixture(t, fixedBackend{action: decision.ActionBuy, confidence: 0.9}, stores)
	ctx := context.Background()
	s, err := f.engine.StartSession(ctx, session.CreateRequest{})
	require.NoError(t, err)

	rep, err := f.engine.RunCycle(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Executed)
	assert.Equal(t, 1, f.engine.settlement.Flush(s.ID))

	perf, err := f.engine.Performance(s.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, perf.TotalTrades)
}

func TestEndSessionCancelsPendingSettlements(t *testing.T) {
	f := newFixture(t, fixedBackend{action: decision.ActionBuy, confidence: 0.9}, nil)
	ctx := context.Background()
	s, err := f.engine.StartSession(ctx, session.CreateRequest{})
	require.NoError(t, err)
	_, err = f.engine.RunCycle(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, 1, f.engine.settlement.Pending(s.ID))

	_, err = f.engine.EndSession(s.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.engine.settlement.Pending(s.ID))
	perf, err := f.engine.Performance(s.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, perf.ActiveTrades)
	assert.Equal(t, 0, perf.TotalTrades)

	_, err = f.engine.EndSession(s.ID)
	assert.ErrorIs(t, err, session.ErrSessionCompleted)
}

func TestCleanupTearsDownPausedSession(t *testing.T) {
	f := newFixture(t, fixedBackend{action: decision.ActionBuy, confidence: 0.9}, nil)
	ctx := context.Background()
	s, err := f.engine.StartSession(ctx, session.CreateRequest{})
	require.NoError(t, err)
	_, err = f.engine.RunCycle(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, 1, f.engine.settlement.Pending(s.ID))
	_, err = f.engine.PauseSession(s.ID)
	require.NoError(t, err)

	// 负的 maxAge 让截止时间落在未来，暂停中的会话立即过期
	assert.Equal(t, 1, f.engine.Cleanup(-time.Minute))
	assert.Equal(t, 0, f.engine.settlement.Pending(s.ID))
	assert.Equal(t, 0, f.engine.settlement.Flush(s.ID))
	f.engine.mu.Lock()
	_, looping := f.engine.loops[s.ID]
	f.engine.mu.Unlock()
	assert.False(t, looping)
	_, err = f.engine.tracker(s.ID)
	assert.Error(t, err)
	_, ok := f.engine.deps.Learner.Config(s.ID)
	assert.False(t, ok)
}

func TestSimulateStopsAtTradeBudget(t *testing.T) {
	f := newFixture(t, fixedBackend{action: decision.ActionBuy, confidence: 0.9}, nil)
	budget := 2
	rep, err := f.engine.Simulate(context.Background(), session.CreateRequest{MaxTrades: &budget}, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Cycles)
	assert.Equal(t, 2, rep.Performance.TotalTrades)
	assert.Equal(t, session.StatusCompleted, rep.Session.Status)
	assert.Equal(t, 2, rep.Session.Metrics.TotalTrades)
}

func TestSuccessProbability(t *testing.T) {
	neutral := market.MarketState{RSI: 50, SpreadPercent: 2, Trend: market.TrendFlat}
	tests := []struct {
		name   string
		action decision.ActionType
		mutate func(*market.MarketState)
		want   float64
	}{
		{"hold", decision.ActionHold, nil, 0.7},
		{"neutral buy", decision.ActionBuy, nil, 0.5},
		{"buy with trend", decision.ActionBuy, func(s *market.MarketState) { s.Trend = market.TrendUp }, 0.65},
		{"sell against trend", decision.ActionSell, func(s *market.MarketState) { s.Trend = market.TrendUp }, 0.35},
		{"oversold buy", decision.ActionBuy, func(s *market.MarketState) { s.RSI = 20 }, 0.6},
		{"overbought buy", decision.ActionBuy, func(s *market.MarketState) { s.RSI = 80 }, 0.4},
		{"wide spread", decision.ActionSell, func(s *market.MarketState) { s.SpreadPercent = 8 }, 0.4},
		{"tight spread", decision.ActionSell, func(s *market.MarketState) { s.SpreadPercent = 0.5 }, 0.55},
		{"best case", decision.ActionBuy, func(s *market.MarketState) {
			s.Trend, s.RSI, s.SpreadPercent = market.TrendUp, 10, 0.5
		}, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := neutral
			if tt.mutate != nil {
				tt.mutate(&st)
			}
			assert.InDelta(t, tt.want, SuccessProbability(tt.action, st), 1e-9)
		})
	}
}

func TestTechnicalMetricsAveragesExploration(t *testing.T) {
	f := newFixture(t, fixedBackend{action: decision.ActionHold, confidence: 0.9}, nil)
	ctx := context.Background()
	boost := true
	_, err := f.engine.StartSession(ctx, session.CreateRequest{})
	require.NoError(t, err)
	_, err = f.engine.StartSession(ctx, session.CreateRequest{ExplorationBoost: &boost})
	require.NoError(t, err)
	// 0.1 and 0.2
	assert.InDelta(t, 0.15, f.engine.TechnicalMetrics().ExplorationRate, 1e-9)
}
