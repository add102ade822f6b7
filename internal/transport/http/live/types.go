package livehttp

import (
	"context"
	"time"

	"getrader/internal/analysis/pattern"
	"getrader/internal/decision"
	"getrader/internal/engine"
	"getrader/internal/learning"
	"getrader/internal/registry"
	"getrader/internal/session"
	"getrader/internal/tracker"
)

// SessionService 由 engine.Engine 实现。
type SessionService interface {
	StartSession(ctx context.Context, req session.CreateRequest) (session.Session, error)
	ListSessions() []session.Session
	SessionSummary(id string) (session.Summary, error)
	PauseSession(id string) (session.Session, error)
	ResumeSession(id string) (session.Session, error)
	EndSession(id string) (session.Session, error)
	RunCycle(ctx context.Context, id string) (engine.CycleReport, error)
	Performance(id string, window time.Duration) (tracker.PerformanceSnapshot, error)
	Analytics(id string) (tracker.MarketAnalytics, error)
	Equity(id string) ([]tracker.EquityPoint, error)
	Outcomes(id string) ([]tracker.TradeOutcome, error)
	Adaptive(id string) (learning.Snapshot, error)
	Decisions(ctx context.Context, id string, limit int) ([]decision.Decision, error)
	LearningHistory(ctx context.Context, id string, limit int) ([]learning.Record, error)
	MarketPatterns(ctx context.Context) ([]pattern.Result, error)
}

// ModelService 由 registry.Registry 实现。
type ModelService interface {
	SaveModelWithMetadata(ctx context.Context, modelID, version, description string) (registry.ModelMetadata, error)
	SetModelAsProduction(ctx context.Context, modelID string) (registry.ModelMetadata, error)
	ArchiveModel(ctx context.Context, modelID string) (registry.ModelMetadata, error)
	ProductionModel(ctx context.Context) (registry.ModelMetadata, error)
	Model(ctx context.Context, modelID string) (registry.ModelMetadata, error)
	GetModelPerformanceComparison(ctx context.Context, limit int) ([]registry.Comparison, error)
}

type saveModelRequest struct {
	ModelID     string `json:"modelId" binding:"required"`
	Version     string `json:"version" binding:"required"`
	Description string `json:"description"`
}
