package learning

import (
	"math"
	"sync"

	"getrader/internal/decision"
)

const (
	minConfidenceScale = 0.5
	minActionWeight    = 0.05
)

// AdaptiveConfig is the live, per-session tuning state read on the decision
// path and written by learning passes.
type AdaptiveConfig struct {
	mu                 sync.RWMutex
	explorationRate    float64
	confidenceScale    float64
	minProfitThreshold float64
	maxItemValue       float64
	multipliers        map[decision.ActionType]float64
	adjustments        int
}

// Snapshot is a copy of an AdaptiveConfig.
type Snapshot struct {
	ExplorationRate    float64                         `json:"explorationRate" yaml:"exploration_rate"`
	ConfidenceScale    float64                         `json:"confidenceScale" yaml:"confidence_scale"`
	MinProfitThreshold float64                         `json:"minProfitThreshold" yaml:"min_profit_threshold"`
	MaxItemValue       float64                         `json:"maxItemValue" yaml:"max_item_value"`
	ActionMultipliers  map[decision.ActionType]float64 `json:"actionMultipliers" yaml:"action_multipliers"`
	Adjustments        int                             `json:"adjustments" yaml:"adjustments"`
}

func NewAdaptiveConfig(exploration, maxItemValue float64) *AdaptiveConfig {
	return &AdaptiveConfig{
		explorationRate: exploration,
		confidenceScale: 1,
		maxItemValue:    maxItemValue,
		multipliers: map[decision.ActionType]float64{
			decision.ActionBuy:  1,
			decision.ActionSell: 1,
			decision.ActionHold: 1,
		},
	}
}

func (c *AdaptiveConfig) ExplorationRate() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.explorationRate
}

// CalibrateConfidence scales a raw model confidence, clamped to [0,1].
func (c *AdaptiveConfig) CalibrateConfidence(raw float64) float64 {
	c.mu.RLock()
	scale := c.confidenceScale
	c.mu.RUnlock()
	return math.Max(0, math.Min(1, raw*scale))
}

func (c *AdaptiveConfig) MinProfitThreshold() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.minProfitThreshold
}

func (c *AdaptiveConfig) MaxItemValue() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxItemValue
}

// ActionMultiplier is the probability weight applied before executing an
// action of type a. 1 means no throttling.
func (c *AdaptiveConfig) ActionMultiplier(a decision.ActionType) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if m, ok := c.multipliers[a]; ok {
		return m
	}
	return 1
}

func (c *AdaptiveConfig) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	mult := make(map[decision.ActionType]float64, len(c.multipliers))
	for k, v := range c.multipliers {
		mult[k] = v
	}
	return Snapshot{
		ExplorationRate:    c.explorationRate,
		ConfidenceScale:    c.confidenceScale,
		MinProfitThreshold: c.minProfitThreshold,
		MaxItemValue:       c.maxItemValue,
		ActionMultipliers:  mult,
		Adjustments:        c.adjustments,
	}
}

// Apply writes the target values carried by the actions' parameters.
func (c *AdaptiveConfig) Apply(actions []AdaptiveAction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range actions {
		switch a.Type {
		case IncreaseExploration:
			if v, ok := paramFloat(a.Parameters, "explorationRate"); ok {
				c.explorationRate = v
			}
		case IncreaseRiskTolerance:
			if v, ok := paramFloat(a.Parameters, "minProfitThreshold"); ok {
				c.minProfitThreshold = v
			}
		case ImproveRiskManagement:
			if v, ok := paramFloat(a.Parameters, "maxItemValue"); ok {
				c.maxItemValue = v
			}
		case ReduceActionFrequency:
			act, _ := a.Parameters["action"].(decision.ActionType)
			if v, ok := paramFloat(a.Parameters, "multiplier"); ok && act.Valid() {
				c.multipliers[act] = v
			}
		case RecalibrateConfidence:
			if v, ok := paramFloat(a.Parameters, "confidenceScale"); ok {
				c.confidenceScale = v
			}
		default:
			continue
		}
		c.adjustments++
	}
}

func paramFloat(params map[string]any, key string) (float64, bool) {
	v, ok := params[key].(float64)
	return v, ok
}
