package model

import "gorm.io/datatypes"

// TradeOutcomeModel maps to 'trade_outcome_log'. Rows are append-only.
type TradeOutcomeModel struct {
	TradeID          string         `gorm:"column:trade_id;primaryKey"`
	DecisionID       string         `gorm:"column:decision_id;index"`
	SessionID        string         `gorm:"column:session_id;index"`
	ItemID           string         `gorm:"column:item_id"`
	Action           string         `gorm:"column:action"`
	Quantity         int            `gorm:"column:quantity"`
	InitialPrice     float64        `gorm:"column:initial_price"`
	FinalPrice       float64        `gorm:"column:final_price"`
	Success          int            `gorm:"column:success"`
	Profit           float64        `gorm:"column:profit"`
	DurationMs       int64          `gorm:"column:duration_ms"`
	RiskScore        float64        `gorm:"column:risk_score"`
	RiskRewardRatio  float64        `gorm:"column:risk_reward_ratio"`
	InitialStateJSON datatypes.JSON `gorm:"column:initial_state;type:TEXT"`
	FinalStateJSON   datatypes.JSON `gorm:"column:final_state;type:TEXT"`
	StartedAtMs      int64          `gorm:"column:started_at"`
	CompletedAtMs    int64          `gorm:"column:completed_at;index"`
}

func (TradeOutcomeModel) TableName() string { return "trade_outcome_log" }
