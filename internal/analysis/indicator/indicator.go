package indicator

import (
	"math"

	"github.com/markcheno/go-talib"
)

// RSI 返回序列最后一个 RSI 值。period 会被收缩到 len(series)-1，
// 序列中没有任何下跌时返回 100。
func RSI(series []float64, period int) float64 {
	if len(series) < 2 {
		return 50
	}
	if period > len(series)-1 {
		period = len(series) - 1
	}
	if !hasLoss(series) {
		return 100
	}
	if period < 2 {
		// talib 要求 period >= 2；两点序列直接按单步涨跌判断
		return 0
	}
	v := lastValid(talib.Rsi(series, period))
	return clamp(v, 0, 100)
}

// EMA 返回序列最后一个指数移动平均值。序列长度不足 period 时退化为
// 以首值为种子的递推 EMA，平滑系数相同。
func EMA(series []float64, period int) float64 {
	if len(series) == 0 || period <= 0 {
		return 0
	}
	if period > 1 && len(series) >= period {
		return lastValid(talib.Ema(series, period))
	}
	k := 2.0 / float64(period+1)
	ema := series[0]
	for _, v := range series[1:] {
		ema = v*k + ema*(1-k)
	}
	return ema
}

// MACDLine 返回 EMA(fast) - EMA(slow)。
func MACDLine(series []float64, fast, slow int) float64 {
	if len(series) == 0 {
		return 0
	}
	return EMA(series, fast) - EMA(series, slow)
}

// ZoneRSI 把 RSI 归类为 oversold / overbought / neutral。
func ZoneRSI(rsi float64) string {
	switch {
	case rsi < 30:
		return "oversold"
	case rsi > 70:
		return "overbought"
	default:
		return "neutral"
	}
}

func hasLoss(series []float64) bool {
	for i := 1; i < len(series); i++ {
		if series[i] < series[i-1] {
			return true
		}
	}
	return false
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return series[i]
		}
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
