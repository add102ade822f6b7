package tracker

import (
	"math"
	"time"

	"getrader/internal/analysis/indicator"
	"getrader/internal/decision"
	"getrader/internal/pkg/stats"
)

// PerformanceMetrics computes a snapshot over outcomes completed within the
// last window. A non-positive window means the whole ledger. An empty
// selection yields a zeroed snapshot.
func (t *Tracker) PerformanceMetrics(window time.Duration) PerformanceSnapshot {
	t.mu.Lock()
	var selected []TradeOutcome
	if window > 0 {
		cutoff := t.now().Add(-window)
		for _, o := range t.ledger {
			if !o.CompletedAt.Before(cutoff) {
				selected = append(selected, o)
			}
		}
	} else {
		selected = make([]TradeOutcome, len(t.ledger))
		copy(selected, t.ledger)
	}
	agg := t.agg
	active := len(t.active)
	t.mu.Unlock()

	snap := Summarize(selected)
	snap.Window = "all"
	if window > 0 {
		snap.Window = window.String()
	}
	snap.ActiveTrades = active
	snap.CurrentDrawdown = agg.currentDrawdown
	snap.PeakProfit = agg.peakProfit
	return snap
}

// Summarize derives performance statistics from outcomes in chronological
// order.
func Summarize(outcomes []TradeOutcome) PerformanceSnapshot {
	snap := PerformanceSnapshot{ByAction: map[decision.ActionType]ActionStats{}}
	if len(outcomes) == 0 {
		return snap
	}
	profits := make([]float64, len(outcomes))
	var durations, notional float64
	snap.BestTrade = math.Inf(-1)
	snap.WorstTrade = math.Inf(1)
	for i, o := range outcomes {
		profits[i] = o.Profit
		snap.TotalTrades++
		if o.Success {
			snap.SuccessfulTrades++
		}
		if o.Profit > 0 {
			snap.WinningTrades++
			snap.TotalProfit += o.Profit
		} else {
			snap.TotalLoss += -o.Profit
		}
		snap.BestTrade = math.Max(snap.BestTrade, o.Profit)
		snap.WorstTrade = math.Min(snap.WorstTrade, o.Profit)
		durations += float64(o.DurationMs)
		notional += o.InitialPrice * float64(quantity(o.Action))

		as := snap.ByAction[o.Action.Type]
		as.Trades++
		if o.Success {
			as.Successes++
		}
		as.TotalProfit += o.Profit
		snap.ByAction[o.Action.Type] = as
	}
	for k, as := range snap.ByAction {
		as.SuccessRate = stats.Percent(as.Successes, as.Trades)
		as.AverageProfit = as.TotalProfit / float64(as.Trades)
		snap.ByAction[k] = as
	}
	n := float64(snap.TotalTrades)
	snap.FailedTrades = snap.TotalTrades - snap.SuccessfulTrades
	snap.SuccessRate = stats.Percent(snap.SuccessfulTrades, snap.TotalTrades)
	snap.NetProfit = snap.TotalProfit - snap.TotalLoss
	snap.AverageProfit = snap.NetProfit / n
	snap.ProfitFactor = stats.ProfitFactor(snap.TotalProfit, snap.TotalLoss)
	snap.SharpeRatio = stats.Sharpe(profits)
	snap.MaxDrawdown = stats.MaxDrawdown(profits)
	snap.AverageDurationMs = durations / n
	if notional > 0 {
		snap.ROI = snap.NetProfit / notional * 100
	}
	return snap
}

// AnalyticsByMarketCondition buckets settled trades by the market condition
// at entry.
func (t *Tracker) AnalyticsByMarketCondition() MarketAnalytics {
	outcomes := t.Outcomes()
	out := MarketAnalytics{
		ByTrend:      map[string]ConditionStats{},
		ByRSIZone:    map[string]ConditionStats{},
		ByVolatility: map[string]ConditionStats{},
		BySpread:     map[string]ConditionStats{},
	}
	for _, o := range outcomes {
		st := o.InitialState
		addCondition(out.ByTrend, string(st.Trend), o)
		addCondition(out.ByRSIZone, indicator.ZoneRSI(st.RSI), o)
		addCondition(out.ByVolatility, VolatilityTier(st.Volatility), o)
		addCondition(out.BySpread, SpreadTier(st.SpreadPercent), o)
	}
	for _, m := range []map[string]ConditionStats{out.ByTrend, out.ByRSIZone, out.ByVolatility, out.BySpread} {
		for k, cs := range m {
			cs.SuccessRate = stats.Percent(cs.Successes, cs.Trades)
			cs.AverageProfit = cs.TotalProfit / float64(cs.Trades)
			m[k] = cs
		}
	}
	return out
}

func addCondition(m map[string]ConditionStats, key string, o TradeOutcome) {
	if key == "" {
		key = "unknown"
	}
	cs := m[key]
	cs.Trades++
	if o.Success {
		cs.Successes++
	}
	cs.TotalProfit += o.Profit
	m[key] = cs
}

func VolatilityTier(v float64) string {
	switch {
	case v < 2:
		return "low"
	case v < 5:
		return "medium"
	default:
		return "high"
	}
}

func SpreadTier(spreadPercent float64) string {
	switch {
	case spreadPercent < 1:
		return "tight"
	case spreadPercent < 5:
		return "normal"
	default:
		return "wide"
	}
}
