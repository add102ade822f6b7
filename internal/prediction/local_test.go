package prediction

import (
	"context"
	"sync"
	"testing"

	"getrader/internal/decision"
	"getrader/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFeatures(t *testing.T) {
	f := EncodeFeatures(market.MarketState{MidPrice: 1_000_000, Volume: 5000, SpreadPercent: 2, Volatility: 6, RSI: 80, MACD: 500, Trend: market.TrendDown})
	require.Len(t, f, FeatureCount)
	for i, v := range f {
		assert.GreaterOrEqual(t, v, -1.0, "feature %d", i)
		assert.LessOrEqual(t, v, 1.0, "feature %d", i)
	}
	assert.Equal(t, -1.0, f[6])
	assert.Equal(t, 1.0, f[7])
	assert.InDelta(t, 0.6, f[4], 1e-9)
}

func TestLocalBackendPrefersBuyWhenOversoldAndRising(t *testing.T) {
	lb := NewLocalBackend(LocalConfig{ModelVersion: "1.0.0"})
	st := market.MarketState{ItemID: "1", MidPrice: 1000, RSI: 20, MACD: 8, Trend: market.TrendUp, Volatility: 6}

	p, err := lb.Predict(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, decision.ActionBuy, p.Action)
	assert.Greater(t, p.Confidence, 0.7)
	assert.Equal(t, SourceLocal, p.Source)
	assert.Greater(t, p.QValues[0], p.QValues[2])

	down := market.MarketState{ItemID: "1", MidPrice: 1000, RSI: 85, MACD: -8, Trend: market.TrendDown}
	p, err = lb.Predict(context.Background(), down)
	require.NoError(t, err)
	assert.Equal(t, decision.ActionSell, p.Action)
}

func TestLocalBackendExploration(t *testing.T) {
	lb := NewLocalBackend(LocalConfig{Seed: 3})
	st := market.MarketState{ItemID: "1", MidPrice: 1000, RSI: 20, MACD: 8, Trend: market.TrendUp}
	ctx := WithExploration(context.Background(), 1)
	for i := 0; i < 20; i++ {
		_, err := lb.Predict(ctx, st)
		require.NoError(t, err)
	}
	stats := lb.Stats()
	assert.EqualValues(t, 20, stats.Predictions)
	assert.EqualValues(t, 20, stats.Explorations)

	_, err := lb.Predict(WithExploration(context.Background(), 0), st)
	require.NoError(t, err)
	assert.EqualValues(t, 20, lb.Stats().Explorations)
}

func TestLocalBackendFeedback(t *testing.T) {
	lb := NewLocalBackend(LocalConfig{LearningRate: 0.5})
	st := market.MarketState{ItemID: "1", MidPrice: 1000, RSI: 20, MACD: 8, Trend: market.TrendUp}

	before, _ := lb.Predict(context.Background(), st)
	for i := 0; i < 10; i++ {
		lb.Feedback(st, decision.ActionBuy, -5000)
	}
	after, _ := lb.Predict(context.Background(), st)
	assert.Less(t, after.QValues[0], before.QValues[0])
	assert.EqualValues(t, 10, lb.Stats().Updates)

	lb.SetLearningRate(0)
	lb.Feedback(st, decision.ActionBuy, -5000)
	assert.EqualValues(t, 10, lb.Stats().Updates)
}

func TestStaticBackend(t *testing.T) {
	p, err := StaticBackend{}.Predict(context.Background(), market.MarketState{ItemID: "9"})
	require.NoError(t, err)
	assert.Equal(t, decision.ActionHold, p.Action)
	assert.Equal(t, 0.1, p.Confidence)
}

func TestLocalBackendLearningRateReload(t *testing.T) {
	lb := NewLocalBackend(LocalConfig{LearningRate: 0.1})
	st := market.MarketState{ItemID: "1", MidPrice: 1000, RSI: 40, MACD: 2, Trend: market.TrendUp}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				lb.Feedback(st, decision.ActionBuy, 500)
			}
		}()
		go func(i int) {
			defer wg.Done()
			lb.SetLearningRate(0.01 * float64(i+1))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int64(200), lb.Stats().Updates)

	lb.SetLearningRate(0)
	before := lb.Stats()
	lb.Feedback(st, decision.ActionBuy, 500)
	after := lb.Stats()
	assert.Equal(t, before.Updates, after.Updates)
	assert.Equal(t, before.WeightNorm, after.WeightNorm)

	lb.SetLearningRate(-1)
	assert.Equal(t, 0.0, lb.Stats().LearningRate)
}
