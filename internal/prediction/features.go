package prediction

import (
	"math"

	"getrader/internal/market"
)

// FeatureCount is the length of the vector produced by EncodeFeatures.
const FeatureCount = 8

// EncodeFeatures flattens a market state into a fixed-length vector with
// every component roughly within [-1, 1]. The last component is a bias.
func EncodeFeatures(st market.MarketState) []float64 {
	trend := 0.0
	switch st.Trend {
	case market.TrendUp:
		trend = 1
	case market.TrendDown:
		trend = -1
	}
	macdScale := math.Max(st.MidPrice*0.01, 1e-9)
	return []float64{
		clamp(math.Log10(math.Max(st.MidPrice, 0)+1)/10, 0, 1),
		clamp(math.Log10(math.Max(st.Volume, 0)+1)/6, 0, 1),
		math.Tanh(st.SpreadPercent / 10),
		clamp(st.Volatility/10, 0, 1),
		clamp((st.RSI-50)/50, -1, 1),
		math.Tanh(st.MACD / macdScale),
		trend,
		1,
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
