// Package pattern 对物品价格历史做线性回归和简单形态识别。
package pattern

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"getrader/internal/market"
)

// Result 是单个物品的形态分析结果。SlopePercent 为每个采样点相对均价的回归斜率(%)。
type Result struct {
	ItemID         string   `json:"itemId"`
	SlopePercent   float64  `json:"slopePercent"`
	Deviation      float64  `json:"deviationPercent"`
	Bias           string   `json:"bias"`
	PatternSummary string   `json:"patternSummary"`
	Signals        []string `json:"signals"`
}

const (
	biasThreshold   = 0.1
	extremeTolerant = 0.004
	minPatternLen   = 10
	minCompressLen  = 16
)

// Analyze 分析 item 的价格历史；历史为空时返回 balanced。
func Analyze(item market.Item) Result {
	res := Result{ItemID: item.ID, Bias: "balanced", PatternSummary: "no history"}
	series := make([]float64, 0, len(item.History))
	for _, p := range item.History {
		if v := p.Value(); v > 0 {
			series = append(series, v)
		}
	}
	if len(series) == 0 {
		return res
	}
	mean := stat.Mean(series, nil)
	if len(series) >= 2 && mean > 0 {
		xs := make([]float64, len(series))
		floats.Span(xs, 0, float64(len(series)-1))
		intercept, slope := stat.LinearRegression(xs, series, nil, false)
		res.SlopePercent = slope / mean * 100
		ref := intercept + slope*xs[len(xs)-1]
		if ref != 0 {
			res.Deviation = (series[len(series)-1] - ref) / ref * 100
		}
	}
	res.Bias = classifySlope(res.SlopePercent)

	signals := make([]string, 0, 3)
	if desc, ok := detectDoubleBottom(series); ok {
		signals = append(signals, desc)
	}
	if desc, ok := detectDoubleTop(series); ok {
		signals = append(signals, desc)
	}
	if desc, ok := detectCompression(series); ok {
		signals = append(signals, desc)
	}
	res.Signals = signals
	res.PatternSummary = "no notable pattern"
	if len(signals) > 0 {
		res.PatternSummary = strings.Join(signals, "; ")
	}
	return res
}

func classifySlope(pct float64) string {
	switch {
	case pct > biasThreshold:
		return "bullish"
	case pct < -biasThreshold:
		return "bearish"
	default:
		return "balanced"
	}
}

func detectDoubleBottom(series []float64) (string, bool) {
	first, second, ok := twoExtremes(series, func(a, b float64) bool { return a < b })
	if !ok {
		return "", false
	}
	return fmt.Sprintf("double bottom near %.0f", (first+second)/2), true
}

func detectDoubleTop(series []float64) (string, bool) {
	first, second, ok := twoExtremes(series, func(a, b float64) bool { return a > b })
	if !ok {
		return "", false
	}
	return fmt.Sprintf("double top near %.0f", (first+second)/2), true
}

// twoExtremes 在后半段找两个间隔至少 3 个点、相差不超过 0.4% 的极值。
func twoExtremes(series []float64, better func(a, b float64) bool) (float64, float64, bool) {
	if len(series) < minPatternLen {
		return 0, 0, false
	}
	window := series[len(series)/2:]
	idx1 := extremeIndex(window, better, -1, 0)
	idx2 := extremeIndex(window, better, idx1, 2)
	if idx1 < 0 || idx2 < 0 || absInt(idx1-idx2) < 3 {
		return 0, 0, false
	}
	a, b := window[idx1], window[idx2]
	if math.Abs(a-b)/math.Max(math.Max(a, b), 1) > extremeTolerant {
		return 0, 0, false
	}
	// 两个极值之间需要有明显反弹或回落
	lo, hi := idx1, idx2
	if lo > hi {
		lo, hi = hi, lo
	}
	between := window[lo+1 : hi]
	if len(between) == 0 {
		return 0, 0, false
	}
	mid := floats.Max(between)
	if better(2, 1) {
		mid = floats.Min(between)
	}
	if math.Abs(mid-a)/math.Max(a, 1) <= extremeTolerant*2 {
		return 0, 0, false
	}
	return a, b, true
}

func extremeIndex(values []float64, better func(a, b float64) bool, skip, radius int) int {
	idx := -1
	for i, v := range values {
		if skip >= 0 && absInt(i-skip) <= radius {
			continue
		}
		if idx < 0 || better(v, values[idx]) {
			idx = i
		}
	}
	return idx
}

func detectCompression(series []float64) (string, bool) {
	if len(series) < minCompressLen {
		return "", false
	}
	half := len(series) / 2
	first := rangeRatio(series[:half])
	second := rangeRatio(series[half:])
	if first > 0 && second < first*0.65 {
		return "price range compressing", true
	}
	return "", false
}

func rangeRatio(values []float64) float64 {
	hi := floats.Max(values)
	if hi <= 0 {
		return 0
	}
	return (hi - floats.Min(values)) / hi
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
