// Package tracker follows executed trades from entry to settlement and
// derives performance statistics from the settled ledger.
package tracker

import (
	"context"
	"errors"
	"time"

	"getrader/internal/decision"
	"getrader/internal/market"
	"getrader/internal/pkg/stats"
)

var (
	ErrTradeActive   = errors.New("trade already active")
	ErrTradeNotFound = errors.New("trade not found")
)

type Config struct {
	FailurePenalty float64
	FeeRate        float64
	HoldReward     float64
}

func (c Config) withDefaults() Config {
	if c.FailurePenalty <= 0 {
		c.FailurePenalty = 50
	}
	if c.FeeRate < 0 {
		c.FeeRate = 0
	}
	if c.HoldReward <= 0 {
		c.HoldReward = 10
	}
	return c
}

// TradeOutcome is one settled trade. The ledger never mutates entries.
type TradeOutcome struct {
	TradeID         string             `json:"tradeId"`
	DecisionID      string             `json:"decisionId"`
	SessionID       string             `json:"sessionId"`
	ItemID          string             `json:"itemId"`
	Action          decision.Action    `json:"action"`
	InitialState    market.MarketState `json:"initialState"`
	FinalState      market.MarketState `json:"finalState"`
	InitialPrice    float64            `json:"initialPrice"`
	FinalPrice      float64            `json:"finalPrice"`
	Success         bool               `json:"success"`
	Profit          float64            `json:"profit"`
	DurationMs      int64              `json:"durationMs"`
	RiskScore       float64            `json:"riskScore"`
	RiskRewardRatio float64            `json:"riskRewardRatio"`
	StartedAt       time.Time          `json:"startedAt"`
	CompletedAt     time.Time          `json:"completedAt"`
}

// OutcomeSink persists settled trades. Failures are logged, never fatal.
type OutcomeSink interface {
	SaveTradeOutcome(ctx context.Context, o TradeOutcome) error
}

// ActionStats aggregates trades of a single action type.
type ActionStats struct {
	Trades        int     `json:"trades"`
	Successes     int     `json:"successes"`
	SuccessRate   float64 `json:"successRate"`
	TotalProfit   float64 `json:"totalProfit"`
	AverageProfit float64 `json:"averageProfit"`
}

// PerformanceSnapshot is computed on demand over the ledger (or a window
// of it). Running aggregates are reported as of now regardless of window.
type PerformanceSnapshot struct {
	Window            string                               `json:"window"`
	TotalTrades       int                                  `json:"totalTrades"`
	SuccessfulTrades  int                                  `json:"successfulTrades"`
	FailedTrades      int                                  `json:"failedTrades"`
	WinningTrades     int                                  `json:"winningTrades"`
	SuccessRate       float64                              `json:"successRate"`
	TotalProfit       float64                              `json:"totalProfit"`
	TotalLoss         float64                              `json:"totalLoss"`
	NetProfit         float64                              `json:"netProfit"`
	AverageProfit     float64                              `json:"averageProfit"`
	ProfitFactor      stats.Ratio                          `json:"profitFactor"`
	SharpeRatio       float64                              `json:"sharpeRatio"`
	MaxDrawdown       float64                              `json:"maxDrawdown"`
	BestTrade         float64                              `json:"bestTrade"`
	WorstTrade        float64                              `json:"worstTrade"`
	AverageDurationMs float64                              `json:"averageDurationMs"`
	ROI               float64                              `json:"roi"`
	ByAction          map[decision.ActionType]ActionStats `json:"byAction"`
	ActiveTrades      int                                  `json:"activeTrades"`
	CurrentDrawdown   float64                              `json:"currentDrawdown"`
	PeakProfit        float64                              `json:"peakProfit"`
}

// ConditionStats aggregates trades that entered under one market condition.
type ConditionStats struct {
	Trades        int     `json:"trades"`
	Successes     int     `json:"successes"`
	SuccessRate   float64 `json:"successRate"`
	TotalProfit   float64 `json:"totalProfit"`
	AverageProfit float64 `json:"averageProfit"`
}

type MarketAnalytics struct {
	ByTrend      map[string]ConditionStats `json:"byTrend"`
	ByRSIZone    map[string]ConditionStats `json:"byRsiZone"`
	ByVolatility map[string]ConditionStats `json:"byVolatility"`
	BySpread     map[string]ConditionStats `json:"bySpread"`
}

// EquityPoint is one step of the cumulative profit curve.
type EquityPoint struct {
	Time       time.Time `json:"time"`
	Cumulative float64   `json:"cumulative"`
}
