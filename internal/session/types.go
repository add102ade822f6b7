// Package session owns the lifecycle and running counters of trading
// sessions. Sessions are independent; each lives in one id-keyed arena.
package session

import (
	"errors"
	"time"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionCompleted  = errors.New("session already completed")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrInvalidDelta      = errors.New("metrics delta must not decrease counters")
)

// Status 会话状态。COMPLETED 为终态。
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusTraining  Status = "TRAINING"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
)

// Running reports whether decisions should be produced in this status.
func (s Status) Running() bool {
	return s == StatusActive || s == StatusTraining
}

// Config holds the per-session trading parameters.
type Config struct {
	MinProfitMargin      float64 `json:"minProfitMargin" yaml:"min_profit_margin"`
	MaxItemValue         float64 `json:"maxItemValue" yaml:"max_item_value"`
	MaxTrades            int     `json:"maxTrades" yaml:"max_trades"`
	LearningFrequency    int     `json:"learningFrequency" yaml:"learning_frequency"`
	EnableOnlineLearning bool    `json:"enableOnlineLearning" yaml:"enable_online_learning"`
	ExplorationBoost     bool    `json:"explorationBoost" yaml:"exploration_boost"`
	Training             bool    `json:"training" yaml:"training"`
}

// Metrics are the running counters of a session. Counters only grow;
// TotalProfit is net realized profit and follows the ledger.
type Metrics struct {
	EpisodeCount     int     `json:"episodeCount" yaml:"episode_count"`
	DecisionsMade    int     `json:"decisionsMade" yaml:"decisions_made"`
	TotalTrades      int     `json:"totalTrades" yaml:"total_trades"`
	SuccessfulTrades int     `json:"successfulTrades" yaml:"successful_trades"`
	TotalProfit      float64 `json:"totalProfit" yaml:"total_profit"`
	BestReward       float64 `json:"bestReward" yaml:"best_reward"`
	AverageReward    float64 `json:"averageReward" yaml:"average_reward"`
	SuccessRate      float64 `json:"successRate" yaml:"success_rate"`
}

type Session struct {
	ID        string     `json:"id" yaml:"id"`
	Name      string     `json:"name,omitempty" yaml:"name,omitempty"`
	Status    Status     `json:"status" yaml:"status"`
	StartTime time.Time  `json:"startTime" yaml:"start_time"`
	EndTime   *time.Time `json:"endTime,omitempty" yaml:"end_time,omitempty"`
	Config    Config     `json:"config" yaml:"config"`
	Metrics   Metrics    `json:"metrics" yaml:"metrics"`
}

// CreateRequest carries optional overrides; nil fields take the manager
// defaults.
type CreateRequest struct {
	Name                 string   `json:"name"`
	Training             bool     `json:"training"`
	MinProfitMargin      *float64 `json:"minProfitMargin,omitempty"`
	MaxItemValue         *float64 `json:"maxItemValue,omitempty"`
	MaxTrades            *int     `json:"maxTrades,omitempty"`
	LearningFrequency    *int     `json:"learningFrequency,omitempty"`
	EnableOnlineLearning *bool    `json:"enableOnlineLearning,omitempty"`
	ExplorationBoost     *bool    `json:"explorationBoost,omitempty"`
}

// MetricsDelta is added to a session's counters. Reward, when set, feeds
// the BestReward running max.
type MetricsDelta struct {
	Episodes         int
	Decisions        int
	Trades           int
	SuccessfulTrades int
	Profit           float64
	Reward           *float64
}

// Summary is the read view of a session with derived fields.
type Summary struct {
	Session
	DurationMs     int64   `json:"durationMs" yaml:"duration_ms"`
	FailedTrades   int     `json:"failedTrades" yaml:"failed_trades"`
	TradesPerHour  float64 `json:"tradesPerHour" yaml:"trades_per_hour"`
	ProfitPerTrade float64 `json:"profitPerTrade" yaml:"profit_per_trade"`
}
