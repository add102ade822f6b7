package model

import "gorm.io/datatypes"

// DecisionModel maps to the 'decisions' audit table.
type DecisionModel struct {
	ID            string         `gorm:"column:id;primaryKey"`
	SessionID     string         `gorm:"column:session_id;index:idx_decision_session_ts,priority:1"`
	ItemID        string         `gorm:"column:item_id"`
	Action        string         `gorm:"column:action"`
	Quantity      int            `gorm:"column:quantity"`
	Price         float64        `gorm:"column:price"`
	Confidence    float64        `gorm:"column:confidence"`
	SourceBackend string         `gorm:"column:source_backend"`
	ModelVersion  string         `gorm:"column:model_version"`
	Reasoning     string         `gorm:"column:reasoning"`
	Executed      int            `gorm:"column:executed"`
	TimestampMs   int64          `gorm:"column:ts;index:idx_decision_session_ts,priority:2"`
	HasOutcome    int            `gorm:"column:has_outcome"`
	OutcomeJSON   datatypes.JSON `gorm:"column:outcome_json;type:TEXT"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (DecisionModel) TableName() string { return "decisions" }

type ModelStatus string

// ModelMetadataModel maps to 'model_metadata'. Metric groups are JSON
// columns; roi is duplicated as a column for range queries.
type ModelMetadataModel struct {
	ModelID         string         `gorm:"column:model_id;primaryKey"`
	Version         string         `gorm:"column:version"`
	Description     string         `gorm:"column:description"`
	TrainingDateMs  int64          `gorm:"column:training_date"`
	Status          ModelStatus    `gorm:"column:status;index"`
	ROI             float64        `gorm:"column:roi;index"`
	PerformanceJSON datatypes.JSON `gorm:"column:performance_json;type:TEXT"`
	TechnicalJSON   datatypes.JSON `gorm:"column:technical_json;type:TEXT"`
	UsageJSON       datatypes.JSON `gorm:"column:usage_json;type:TEXT"`
	PromotedAtMs    int64          `gorm:"column:promoted_at"`
	ArchivedAtMs    int64          `gorm:"column:archived_at"`
	CreatedAtMs     int64          `gorm:"column:created_at;index"`
	UpdatedAtMs     int64          `gorm:"column:updated_at"`
}

func (ModelMetadataModel) TableName() string { return "model_metadata" }
