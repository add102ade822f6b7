package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"getrader/internal/market"
)

func itemOf(prices ...float64) market.Item {
	it := market.Item{ID: "4151"}
	for i, p := range prices {
		it.History = append(it.History, market.PricePoint{Price: p, Timestamp: int64(i)})
	}
	return it
}

func TestAnalyzeBias(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		bias   string
	}{
		{"rising", []float64{100, 102, 104, 106, 108}, "bullish"},
		{"falling", []float64{108, 106, 104, 102, 100}, "bearish"},
		{"flat", []float64{100, 100, 100, 100}, "balanced"},
		{"empty", nil, "balanced"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Analyze(itemOf(tc.prices...))
			assert.Equal(t, tc.bias, res.Bias)
			assert.Equal(t, "4151", res.ItemID)
		})
	}
}

func TestAnalyzeSlopePercent(t *testing.T) {
	res := Analyze(itemOf(100, 102, 104, 106, 108))
	// slope 2 over mean 104
	assert.InDelta(t, 2.0/104*100, res.SlopePercent, 1e-9)
	assert.InDelta(t, 0, res.Deviation, 1e-9)
}

func TestAnalyzeSignals(t *testing.T) {
	prices := []float64{
		130, 90, 130, 90, 130, 90, 130, 90, 130, 90,
		110, 100, 105, 110, 108, 100.2, 106, 109, 111, 112,
	}
	res := Analyze(itemOf(prices...))
	assert.Contains(t, res.Signals, "double bottom near 100")
	assert.Contains(t, res.Signals, "price range compressing")
	assert.Len(t, res.Signals, 2)
	assert.Contains(t, res.PatternSummary, "double bottom")
}

func TestAnalyzeShortHistoryHasNoSignals(t *testing.T) {
	res := Analyze(itemOf(100, 90, 100, 90))
	assert.Empty(t, res.Signals)
	assert.Equal(t, "no notable pattern", res.PatternSummary)
}
