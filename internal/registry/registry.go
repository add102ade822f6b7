package registry

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"getrader/internal/logger"
	"getrader/internal/pkg/stats"
	"getrader/internal/tracker"

	"golang.org/x/mod/semver"
)

// Registry snapshots live performance into model records and manages
// their status.
type Registry struct {
	store       Store
	performance func() PerformanceMetrics
	technical   func() TechnicalMetrics
	now         func() time.Time
}

// New builds a registry. performance and technical supply the snapshot
// taken by SaveModelWithMetadata; either may be nil.
func New(store Store, performance func() PerformanceMetrics, technical func() TechnicalMetrics) *Registry {
	return &Registry{store: store, performance: performance, technical: technical, now: time.Now}
}

// NormalizeVersion accepts "1.2.3" or "v1.2.3" and returns "1.2.3".
func NormalizeVersion(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidVersion)
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) || semver.Canonical(v) != v {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, strings.TrimPrefix(v, "v"))
	}
	return strings.TrimPrefix(v, "v"), nil
}

// CompareVersions orders two normalized versions like semver.Compare.
func CompareVersions(a, b string) int {
	return semver.Compare("v"+a, "v"+b)
}

// SaveModelWithMetadata records the current performance and technical
// stats under a new model id with status testing.
func (r *Registry) SaveModelWithMetadata(ctx context.Context, modelID, version, description string) (ModelMetadata, error) {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return ModelMetadata{}, fmt.Errorf("model id is required")
	}
	ver, err := NormalizeVersion(version)
	if err != nil {
		return ModelMetadata{}, err
	}
	if _, err := r.store.GetModel(ctx, modelID); err == nil {
		return ModelMetadata{}, fmt.Errorf("%w: %s", ErrModelExists, modelID)
	}
	now := r.now()
	m := ModelMetadata{
		ModelID:      modelID,
		Version:      ver,
		Description:  description,
		TrainingDate: now,
		Status:       StatusTesting,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if r.performance != nil {
		m.Performance = r.performance()
	}
	if r.technical != nil {
		m.Technical = r.technical()
	}
	if err := r.store.SaveModel(ctx, m); err != nil {
		return ModelMetadata{}, fmt.Errorf("save model %s: %w", modelID, err)
	}
	logger.Infof("[registry] saved model %s v%s roi=%.4f win=%.2f", modelID, ver, m.Performance.ROI, m.Performance.WinRate)
	return m, nil
}

// SetModelAsProduction archives the current production model, if any, and
// promotes modelID. Promoting the production model again is a no-op.
func (r *Registry) SetModelAsProduction(ctx context.Context, modelID string) (ModelMetadata, error) {
	m, err := r.store.GetModel(ctx, modelID)
	if err != nil {
		return ModelMetadata{}, err
	}
	if m.Status == StatusProduction {
		return m, nil
	}
	if m.Status == StatusTraining {
		return ModelMetadata{}, fmt.Errorf("%w: %s is still training", ErrInvalidStatus, modelID)
	}
	if err := r.store.PromoteModel(ctx, modelID, r.now()); err != nil {
		return ModelMetadata{}, fmt.Errorf("promote %s: %w", modelID, err)
	}
	logger.Infof("[registry] model %s v%s promoted to production", modelID, m.Version)
	return r.store.GetModel(ctx, modelID)
}

func (r *Registry) ArchiveModel(ctx context.Context, modelID string) (ModelMetadata, error) {
	m, err := r.store.GetModel(ctx, modelID)
	if err != nil {
		return ModelMetadata{}, err
	}
	if m.Status == StatusArchived {
		return m, nil
	}
	if err := r.store.ArchiveModel(ctx, modelID, r.now()); err != nil {
		return ModelMetadata{}, fmt.Errorf("archive %s: %w", modelID, err)
	}
	logger.Infof("[registry] model %s v%s archived", modelID, m.Version)
	return r.store.GetModel(ctx, modelID)
}

// RecordUsage adds predictions served by the model in one session. Only
// the usage counters are written.
func (r *Registry) RecordUsage(ctx context.Context, modelID string, predictions int64) error {
	if predictions < 0 {
		return fmt.Errorf("predictions must be >= 0, got %d", predictions)
	}
	return r.store.IncrementUsage(ctx, modelID, predictions, r.now())
}

func (r *Registry) ProductionModel(ctx context.Context) (ModelMetadata, error) {
	return r.store.GetProductionModel(ctx)
}

func (r *Registry) Model(ctx context.Context, modelID string) (ModelMetadata, error) {
	return r.store.GetModel(ctx, modelID)
}

func (r *Registry) ModelsByPerformance(ctx context.Context, minROI float64) ([]ModelMetadata, error) {
	return r.store.GetModelsByPerformance(ctx, minROI)
}

// GetModelPerformanceComparison ranks the limit most recent models by
// efficiency, highest first. Ties prefer the newer version.
func (r *Registry) GetModelPerformanceComparison(ctx context.Context, limit int) ([]Comparison, error) {
	models, err := r.store.GetRecentModels(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Comparison, 0, len(models))
	for _, m := range models {
		p := m.Performance
		out = append(out, Comparison{
			ModelID:       m.ModelID,
			Version:       m.Version,
			Status:        m.Status,
			Efficiency:    Efficiency(p),
			ROI:           p.ROI,
			Accuracy:      p.Accuracy,
			WinRate:       p.WinRate,
			AverageReward: p.AverageReward,
			TrainingDate:  m.TrainingDate,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Efficiency != out[j].Efficiency {
			return out[i].Efficiency > out[j].Efficiency
		}
		return CompareVersions(out[i].Version, out[j].Version) > 0
	})
	return out, nil
}

// Efficiency = 0.3·roi + 0.25·accuracy + 0.25·winRate + 0.2·averageReward,
// clamped to [0,1].
func Efficiency(p PerformanceMetrics) float64 {
	e := 0.3*p.ROI + 0.25*p.Accuracy + 0.25*p.WinRate + 0.2*p.AverageReward
	if math.IsNaN(e) {
		return 0
	}
	return math.Max(0, math.Min(1, e))
}

// FromSnapshot converts a tracker snapshot into registry metrics. ROI and
// rates become fractions and the average reward is tanh(avg/1000).
func FromSnapshot(s tracker.PerformanceSnapshot) PerformanceMetrics {
	return PerformanceMetrics{
		TotalTrades:   s.TotalTrades,
		ROI:           s.ROI / 100,
		Accuracy:      s.SuccessRate / 100,
		WinRate:       stats.Percent(s.WinningTrades, s.TotalTrades) / 100,
		AverageReward: math.Tanh(s.AverageProfit / 1000),
		NetProfit:     s.NetProfit,
		ProfitFactor:  s.ProfitFactor.Finite(100),
		SharpeRatio:   s.SharpeRatio,
		MaxDrawdown:   s.MaxDrawdown,
	}
}
