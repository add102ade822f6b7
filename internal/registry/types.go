// Package registry tracks model versions, their performance snapshots and
// status transitions. At most one model is in production at a time.
package registry

import (
	"context"
	"errors"
	"time"
)

var (
	ErrModelNotFound  = errors.New("model not found")
	ErrModelExists    = errors.New("model already exists")
	ErrInvalidVersion = errors.New("invalid semantic version")
	ErrInvalidStatus  = errors.New("invalid model status transition")
)

type Status string

const (
	StatusTraining   Status = "training"
	StatusTesting    Status = "testing"
	StatusProduction Status = "production"
	StatusArchived   Status = "archived"
)

// PerformanceMetrics 模型评估指标。比例字段均为 0~1 的小数。
type PerformanceMetrics struct {
	TotalTrades   int     `json:"totalTrades" yaml:"total_trades"`
	ROI           float64 `json:"roi" yaml:"roi"`
	Accuracy      float64 `json:"accuracy" yaml:"accuracy"`
	WinRate       float64 `json:"winRate" yaml:"win_rate"`
	AverageReward float64 `json:"averageReward" yaml:"average_reward"`
	NetProfit     float64 `json:"netProfit" yaml:"net_profit"`
	ProfitFactor  float64 `json:"profitFactor" yaml:"profit_factor"`
	SharpeRatio   float64 `json:"sharpeRatio" yaml:"sharpe_ratio"`
	MaxDrawdown   float64 `json:"maxDrawdown" yaml:"max_drawdown"`
}

// TechnicalMetrics describe the model internals at snapshot time.
type TechnicalMetrics struct {
	Predictions     int64   `json:"predictions" yaml:"predictions"`
	Explorations    int64   `json:"explorations" yaml:"explorations"`
	Updates         int64   `json:"updates" yaml:"updates"`
	LearningRate    float64 `json:"learningRate" yaml:"learning_rate"`
	WeightNorm      float64 `json:"weightNorm" yaml:"weight_norm"`
	ExplorationRate float64 `json:"explorationRate" yaml:"exploration_rate"`
}

type UsageStats struct {
	Predictions int64      `json:"predictions" yaml:"predictions"`
	Sessions    int        `json:"sessions" yaml:"sessions"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty" yaml:"last_used_at,omitempty"`
}

type ModelMetadata struct {
	ModelID      string             `json:"modelId" yaml:"model_id"`
	Version      string             `json:"version" yaml:"version"`
	Description  string             `json:"description,omitempty" yaml:"description,omitempty"`
	TrainingDate time.Time          `json:"trainingDate" yaml:"training_date"`
	Status       Status             `json:"status" yaml:"status"`
	Performance  PerformanceMetrics `json:"performanceMetrics" yaml:"performance_metrics"`
	Technical    TechnicalMetrics   `json:"technicalMetrics" yaml:"technical_metrics"`
	Usage        UsageStats         `json:"usageStats" yaml:"usage_stats"`
	PromotedAt   *time.Time         `json:"promotedAt,omitempty" yaml:"promoted_at,omitempty"`
	ArchivedAt   *time.Time         `json:"archivedAt,omitempty" yaml:"archived_at,omitempty"`
	CreatedAt    time.Time          `json:"createdAt" yaml:"created_at"`
	UpdatedAt    time.Time          `json:"updatedAt" yaml:"updated_at"`
}

// Comparison is one ranked row of GetModelPerformanceComparison.
type Comparison struct {
	ModelID       string    `json:"modelId" yaml:"model_id"`
	Version       string    `json:"version" yaml:"version"`
	Status        Status    `json:"status" yaml:"status"`
	Efficiency    float64   `json:"efficiency" yaml:"efficiency"`
	ROI           float64   `json:"roi" yaml:"roi"`
	Accuracy      float64   `json:"accuracy" yaml:"accuracy"`
	WinRate       float64   `json:"winRate" yaml:"win_rate"`
	AverageReward float64   `json:"averageReward" yaml:"average_reward"`
	TrainingDate  time.Time `json:"trainingDate" yaml:"training_date"`
}

// Store persists model metadata. PromoteModel must archive the current
// production model and promote id atomically. Status and its timestamps
// change only through PromoteModel and ArchiveModel; UpdateModel leaves
// them untouched.
type Store interface {
	SaveModel(ctx context.Context, m ModelMetadata) error
	GetModel(ctx context.Context, id string) (ModelMetadata, error)
	UpdateModel(ctx context.Context, m ModelMetadata) error
	IncrementUsage(ctx context.Context, id string, predictions int64, at time.Time) error
	ArchiveModel(ctx context.Context, id string, at time.Time) error
	DeleteModel(ctx context.Context, id string) error
	GetProductionModel(ctx context.Context) (ModelMetadata, error)
	GetRecentModels(ctx context.Context, limit int) ([]ModelMetadata, error)
	GetModelsByPerformance(ctx context.Context, minROI float64) ([]ModelMetadata, error)
	PromoteModel(ctx context.Context, id string, at time.Time) error
}
