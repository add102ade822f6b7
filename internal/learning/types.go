// Package learning retunes a session's trading parameters from its recent
// decision history. Passes are rate limited and never block the caller.
package learning

import (
	"context"
	"errors"
	"time"

	"getrader/internal/decision"
	"getrader/internal/pkg/stats"
)

var ErrUnknownSession = errors.New("session not registered for learning")

// ActionType names one rule-based tuning action.
type ActionType string

const (
	IncreaseExploration   ActionType = "INCREASE_EXPLORATION"
	IncreaseRiskTolerance ActionType = "INCREASE_RISK_TOLERANCE"
	ImproveRiskManagement ActionType = "IMPROVE_RISK_MANAGEMENT"
	ReduceActionFrequency ActionType = "REDUCE_ACTION_FREQUENCY"
	RecalibrateConfidence ActionType = "RECALIBRATE_CONFIDENCE"
)

// AdaptiveAction is produced and applied within one pass.
type AdaptiveAction struct {
	Type       ActionType     `json:"type"`
	Reason     string         `json:"reason"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Settings are the controller-wide knobs (config section "learning").
type Settings struct {
	Enabled         bool
	Frequency       int
	MinInterval     time.Duration
	Window          time.Duration
	InitialExplore  float64
	ExplorationStep float64
	ExplorationMax  float64
	MinItemValue    float64
	PassTimeout     time.Duration
}

// DefaultSettings mirrors the config defaults.
func DefaultSettings() Settings {
	return Settings{
		Enabled:         true,
		Frequency:       10,
		MinInterval:     60 * time.Second,
		Window:          24 * time.Hour,
		InitialExplore:  0.1,
		ExplorationStep: 0.05,
		ExplorationMax:  0.5,
		MinItemValue:    10000,
		PassTimeout:     30 * time.Second,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.Frequency <= 0 {
		s.Frequency = d.Frequency
	}
	if s.MinInterval <= 0 {
		s.MinInterval = d.MinInterval
	}
	if s.Window <= 0 {
		s.Window = d.Window
	}
	if s.ExplorationStep <= 0 {
		s.ExplorationStep = d.ExplorationStep
	}
	if s.ExplorationMax <= 0 {
		s.ExplorationMax = d.ExplorationMax
	}
	if s.InitialExplore < 0 {
		s.InitialExplore = 0
	}
	if s.InitialExplore > s.ExplorationMax {
		s.InitialExplore = s.ExplorationMax
	}
	if s.MinItemValue < 0 {
		s.MinItemValue = 0
	}
	if s.PassTimeout <= 0 {
		s.PassTimeout = d.PassTimeout
	}
	return s
}

// Policy is the per-session part of the trigger condition.
type Policy struct {
	Enabled          bool
	Frequency        int
	MaxItemValue     float64
	ExplorationBoost bool
}

// ActionMetrics 单一动作类型的统计。
type ActionMetrics struct {
	Count       int     `json:"count"`
	Successes   int     `json:"successes"`
	SuccessRate float64 `json:"successRate"`
	NetProfit   float64 `json:"netProfit"`
}

// Metrics are computed over the decisions of one pass that carry an outcome.
type Metrics struct {
	TotalDecisions            int                                   `json:"totalDecisions"`
	SuccessfulDecisions       int                                   `json:"successfulDecisions"`
	SuccessRate               float64                               `json:"successRate"`
	TotalProfit               float64                               `json:"totalProfit"`
	TotalLoss                 float64                               `json:"totalLoss"`
	AverageProfit             float64                               `json:"averageProfit"`
	ProfitFactor              stats.Ratio                           `json:"profitFactor"`
	ByAction                  map[decision.ActionType]ActionMetrics `json:"byAction"`
	HighConfidenceCount       int                                   `json:"highConfidenceCount"`
	HighConfidenceSuccessRate float64                               `json:"highConfidenceSuccessRate"`
	LowConfidenceCount        int                                   `json:"lowConfidenceCount"`
	LowConfidenceSuccessRate  float64                               `json:"lowConfidenceSuccessRate"`
}

// Record is the persisted result of one pass.
type Record struct {
	ID          string           `json:"id"`
	SessionID   string           `json:"sessionId"`
	StartedAt   time.Time        `json:"startedAt"`
	CompletedAt time.Time        `json:"completedAt"`
	Metrics     Metrics          `json:"metrics"`
	Actions     []AdaptiveAction `json:"actions"`
	Config      Snapshot         `json:"config"`
	ModelStats  map[string]any   `json:"modelStats,omitempty"`
}

// RecordStore persists learning-session records.
type RecordStore interface {
	SaveLearningSession(ctx context.Context, rec Record) error
}

// Hooks observe pass results; both fields are optional.
type Hooks struct {
	PassCompleted func(sessionID string, actions []AdaptiveAction)
	PassFailed    func(sessionID string, err error)
}
