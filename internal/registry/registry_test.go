package registry_test

import (
	"context"
	"testing"
	"time"

	"getrader/internal/decision"
	"getrader/internal/pkg/stats"
	"getrader/internal/registry"
	"getrader/internal/store/memstore"
	"getrader/internal/tracker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(perf registry.PerformanceMetrics) *registry.Registry {
	return registry.New(memstore.New(),
		func() registry.PerformanceMetrics { return perf },
		func() registry.TechnicalMetrics { return registry.TechnicalMetrics{Updates: 12, LearningRate: 0.01} })
}

func TestNormalizeVersion(t *testing.T) {
	for in, want := range map[string]string{"1.0.0": "1.0.0", "v2.3.4": "2.3.4", " 1.2.3-rc.1 ": "1.2.3-rc.1"} {
		got, err := registry.NormalizeVersion(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, bad := range []string{"", "1", "1.2", "one", "1.2.3.4"} {
		_, err := registry.NormalizeVersion(bad)
		assert.ErrorIs(t, err, registry.ErrInvalidVersion, bad)
	}
	assert.Equal(t, 1, registry.CompareVersions("1.10.0", "1.9.0"))
}

func TestSaveModelWithMetadata(t *testing.T) {
	r := newRegistry(registry.PerformanceMetrics{ROI: 0.12, WinRate: 0.6})
	ctx := context.Background()

	m, err := r.SaveModelWithMetadata(ctx, "dqn-a", "v1.0.0", "first")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusTesting, m.Status)
	assert.Equal(t, "1.0.0", m.Version)
	assert.Equal(t, 0.12, m.Performance.ROI)
	assert.Equal(t, int64(12), m.Technical.Updates)
	assert.False(t, m.TrainingDate.IsZero())

	_, err = r.SaveModelWithMetadata(ctx, "dqn-a", "1.0.1", "")
	assert.ErrorIs(t, err, registry.ErrModelExists)
	_, err = r.SaveModelWithMetadata(ctx, "dqn-b", "latest", "")
	assert.ErrorIs(t, err, registry.ErrInvalidVersion)
	_, err = r.SaveModelWithMetadata(ctx, " ", "1.0.0", "")
	assert.Error(t, err)
}

func TestSetModelAsProductionArchivesPrevious(t *testing.T) {
	r := newRegistry(registry.PerformanceMetrics{})
	ctx := context.Background()
	_, err := r.SaveModelWithMetadata(ctx, "a", "1.0.0", "")
	require.NoError(t, err)
	_, err = r.SaveModelWithMetadata(ctx, "b", "1.1.0", "")
	require.NoError(t, err)

	a, err := r.SetModelAsProduction(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusProduction, a.Status)

	b, err := r.SetModelAsProduction(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusProduction, b.Status)

	prev, err := r.Model(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusArchived, prev.Status)

	prod, err := r.ProductionModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", prod.ModelID)

	again, err := r.SetModelAsProduction(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, b.PromotedAt, again.PromotedAt)

	_, err = r.SetModelAsProduction(ctx, "missing")
	assert.ErrorIs(t, err, registry.ErrModelNotFound)
}

func TestArchiveAndUsage(t *testing.T) {
	r := newRegistry(registry.PerformanceMetrics{})
	ctx := context.Background()
	_, err := r.SaveModelWithMetadata(ctx, "a", "1.0.0", "")
	require.NoError(t, err)

	require.NoError(t, r.RecordUsage(ctx, "a", 30))
	require.NoError(t, r.RecordUsage(ctx, "a", 12))
	m, err := r.Model(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(42), m.Usage.Predictions)
	assert.Equal(t, 2, m.Usage.Sessions)
	require.NotNil(t, m.Usage.LastUsedAt)

	arch, err := r.ArchiveModel(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusArchived, arch.Status)
	require.NotNil(t, arch.ArchivedAt)

	assert.ErrorIs(t, r.RecordUsage(ctx, "zzz", 1), registry.ErrModelNotFound)
}

func TestEfficiency(t *testing.T) {
	assert.Equal(t, 0.0, registry.Efficiency(registry.PerformanceMetrics{ROI: -5}))
	assert.Equal(t, 1.0, registry.Efficiency(registry.PerformanceMetrics{ROI: 3, Accuracy: 1, WinRate: 1, AverageReward: 1}))
	assert.InDelta(t, 0.3*0.1+0.25*0.6+0.25*0.5+0.2*0.2,
		registry.Efficiency(registry.PerformanceMetrics{ROI: 0.1, Accuracy: 0.6, WinRate: 0.5, AverageReward: 0.2}), 1e-12)
}

func TestGetModelPerformanceComparison(t *testing.T) {
	store := memstore.New()
	perf := registry.PerformanceMetrics{}
	r := registry.New(store, func() registry.PerformanceMetrics { return perf }, nil)
	ctx := context.Background()

	perf = registry.PerformanceMetrics{ROI: 0.05, Accuracy: 0.4, WinRate: 0.4}
	_, err := r.SaveModelWithMetadata(ctx, "weak", "1.0.0", "")
	require.NoError(t, err)
	perf = registry.PerformanceMetrics{ROI: 0.2, Accuracy: 0.7, WinRate: 0.6, AverageReward: 0.3}
	_, err = r.SaveModelWithMetadata(ctx, "strong", "1.1.0", "")
	require.NoError(t, err)
	perf = registry.PerformanceMetrics{ROI: 0.05, Accuracy: 0.4, WinRate: 0.4}
	_, err = r.SaveModelWithMetadata(ctx, "weak-newer", "1.2.0", "")
	require.NoError(t, err)

	rows, err := r.GetModelPerformanceComparison(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "strong", rows[0].ModelID)
	assert.Equal(t, "weak-newer", rows[1].ModelID)
	for _, row := range rows {
		assert.GreaterOrEqual(t, row.Efficiency, 0.0)
		assert.LessOrEqual(t, row.Efficiency, 1.0)
	}

	better, err := r.ModelsByPerformance(ctx, 0.1)
	require.NoError(t, err)
	require.Len(t, better, 1)
}

func TestFromSnapshot(t *testing.T) {
	snap := tracker.PerformanceSnapshot{
		TotalTrades:   4,
		WinningTrades: 3,
		SuccessRate:   75,
		ROI:           12,
		AverageProfit: 0,
		ProfitFactor:  stats.ProfitFactor(10, 0),
		ByAction:      map[decision.ActionType]tracker.ActionStats{},
	}
	p := registry.FromSnapshot(snap)
	assert.Equal(t, 0.12, p.ROI)
	assert.Equal(t, 0.75, p.Accuracy)
	assert.Equal(t, 0.75, p.WinRate)
	assert.Equal(t, 0.0, p.AverageReward)
	assert.Equal(t, 100.0, p.ProfitFactor)
}

// promotingStore promotes another model right before usage is written, as
// a concurrent SetModelAsProduction would.
type promotingStore struct {
	registry.Store
	promote string
}

func (s *promotingStore) IncrementUsage(ctx context.Context, id string, predictions int64, at time.Time) error {
	if s.promote != "" {
		if err := s.Store.PromoteModel(ctx, s.promote, at); err != nil {
			return err
		}
		s.promote = ""
	}
	return s.Store.IncrementUsage(ctx, id, predictions, at)
}

func TestRecordUsageDuringPromotionKeepsSingleProduction(t *testing.T) {
	st := &promotingStore{Store: memstore.New()}
	r := registry.New(st, nil, nil)
	ctx := context.Background()
	_, err := r.SaveModelWithMetadata(ctx, "a", "1.0.0", "")
	require.NoError(t, err)
	_, err = r.SaveModelWithMetadata(ctx, "b", "1.1.0", "")
	require.NoError(t, err)
	_, err = r.SetModelAsProduction(ctx, "a")
	require.NoError(t, err)

	st.promote = "b"
	require.NoError(t, r.RecordUsage(ctx, "a", 9))

	models, err := st.GetRecentModels(ctx, 0)
	require.NoError(t, err)
	var production []string
	for _, m := range models {
		if m.Status == registry.StatusProduction {
			production = append(production, m.ModelID)
		}
	}
	assert.Equal(t, []string{"b"}, production)

	a, err := r.Model(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusArchived, a.Status)
	assert.Equal(t, int64(9), a.Usage.Predictions)

	assert.Error(t, r.RecordUsage(ctx, "a", -1))
}
