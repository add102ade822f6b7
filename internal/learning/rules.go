package learning

import (
	"fmt"
	"math"

	"getrader/internal/decision"
	"getrader/internal/pkg/stats"
)

const (
	lowSuccessRate      = 50.0
	highSuccessRate     = 70.0
	targetAverageProfit = 1000.0
	minProfitFactor     = 1.2
	actionMinSamples    = 10
	actionMinSuccess    = 30.0
	calibrationMinTotal = 50
	highConfidence      = 0.8
)

// ComputeMetrics aggregates decisions that have an outcome attached; the
// others are still in flight and ignored.
func ComputeMetrics(decisions []decision.Decision) Metrics {
	m := Metrics{ByAction: map[decision.ActionType]ActionMetrics{}}
	var highOK, lowOK int
	for _, d := range decisions {
		if d.Outcome == nil {
			continue
		}
		o := d.Outcome
		m.TotalDecisions++
		if o.Success {
			m.SuccessfulDecisions++
		}
		if o.Profit > 0 {
			m.TotalProfit += o.Profit
		} else {
			m.TotalLoss += -o.Profit
		}
		am := m.ByAction[d.Action.Type]
		am.Count++
		if o.Success {
			am.Successes++
		}
		am.NetProfit += o.Profit
		m.ByAction[d.Action.Type] = am

		if d.Confidence > highConfidence {
			m.HighConfidenceCount++
			if o.Success {
				highOK++
			}
		} else {
			m.LowConfidenceCount++
			if o.Success {
				lowOK++
			}
		}
	}
	if m.TotalDecisions == 0 {
		return m
	}
	for k, am := range m.ByAction {
		am.SuccessRate = stats.Percent(am.Successes, am.Count)
		m.ByAction[k] = am
	}
	m.SuccessRate = stats.Percent(m.SuccessfulDecisions, m.TotalDecisions)
	m.AverageProfit = (m.TotalProfit - m.TotalLoss) / float64(m.TotalDecisions)
	m.ProfitFactor = stats.ProfitFactor(m.TotalProfit, m.TotalLoss)
	m.HighConfidenceSuccessRate = stats.Percent(highOK, m.HighConfidenceCount)
	m.LowConfidenceSuccessRate = stats.Percent(lowOK, m.LowConfidenceCount)
	return m
}

// DeriveActions applies the fixed tuning rules to m. Target values are
// computed from the current config and carried in each action's
// parameters.
func DeriveActions(m Metrics, cur Snapshot, s Settings) []AdaptiveAction {
	if m.TotalDecisions == 0 {
		return nil
	}
	var out []AdaptiveAction
	if m.SuccessRate < lowSuccessRate {
		next := math.Min(cur.ExplorationRate+s.ExplorationStep, s.ExplorationMax)
		out = append(out, AdaptiveAction{
			Type:       IncreaseExploration,
			Reason:     fmt.Sprintf("success rate %.1f%% below %.0f%%", m.SuccessRate, lowSuccessRate),
			Parameters: map[string]any{"explorationRate": next, "previous": cur.ExplorationRate},
		})
	}
	if m.SuccessRate > highSuccessRate && m.AverageProfit < targetAverageProfit {
		// negative averages clamp the threshold at 0
		next := math.Max(m.AverageProfit*1.5, 0)
		out = append(out, AdaptiveAction{
			Type:       IncreaseRiskTolerance,
			Reason:     fmt.Sprintf("success rate %.1f%% but average profit %.2f below %.0f", m.SuccessRate, m.AverageProfit, targetAverageProfit),
			Parameters: map[string]any{"minProfitThreshold": next, "previous": cur.MinProfitThreshold},
		})
	}
	if float64(m.ProfitFactor) < minProfitFactor {
		next := math.Max(cur.MaxItemValue*0.9, s.MinItemValue)
		out = append(out, AdaptiveAction{
			Type:       ImproveRiskManagement,
			Reason:     fmt.Sprintf("profit factor %.2f below %.1f", float64(m.ProfitFactor), minProfitFactor),
			Parameters: map[string]any{"maxItemValue": next, "previous": cur.MaxItemValue},
		})
	}
	for _, act := range decision.Actions {
		am, ok := m.ByAction[act]
		if !ok || am.Count <= actionMinSamples || am.SuccessRate >= actionMinSuccess {
			continue
		}
		prev := cur.ActionMultipliers[act]
		if prev == 0 {
			prev = 1
		}
		out = append(out, AdaptiveAction{
			Type:       ReduceActionFrequency,
			Reason:     fmt.Sprintf("%s success rate %.1f%% over %d samples", act, am.SuccessRate, am.Count),
			Parameters: map[string]any{"action": act, "multiplier": math.Max(prev*0.5, minActionWeight), "previous": prev},
		})
	}
	if m.TotalDecisions > calibrationMinTotal && m.HighConfidenceCount > 0 && m.LowConfidenceCount > 0 &&
		m.HighConfidenceSuccessRate < m.LowConfidenceSuccessRate {
		prev := cur.ConfidenceScale
		if prev == 0 {
			prev = 1
		}
		out = append(out, AdaptiveAction{
			Type: RecalibrateConfidence,
			Reason: fmt.Sprintf("high-confidence success %.1f%% below low-confidence %.1f%%",
				m.HighConfidenceSuccessRate, m.LowConfidenceSuccessRate),
			Parameters: map[string]any{"confidenceScale": math.Max(prev*0.9, minConfidenceScale), "previous": prev},
		})
	}
	return out
}
