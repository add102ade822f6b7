package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"getrader/internal/decision"
	"getrader/internal/market"
	"getrader/internal/registry"
	"getrader/internal/tracker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := NewGormStore(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewGormStoreRequiresPath(t *testing.T) {
	_, err := NewGormStore("  ")
	assert.Error(t, err)
}

func TestDecisionAudit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.SaveDecision(ctx, decision.Decision{
			SessionID:     "s1",
			ItemID:        "4151",
			Action:        decision.Action{Type: decision.ActionBuy, Quantity: i + 1, Price: 1000},
			Confidence:    0.8,
			SourceBackend: "local",
			Executed:      true,
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		ids = append(ids, id)
	}
	_, err := s.SaveDecision(ctx, decision.Decision{SessionID: "s2", Timestamp: base})
	require.NoError(t, err)

	outcome := decision.Outcome{TradeID: "t1", Success: true, Profit: 120, DurationMs: 3000, CompletedAt: base.Add(time.Hour)}
	require.NoError(t, s.UpdateDecisionOutcome(ctx, ids[0], outcome))
	assert.ErrorIs(t, s.UpdateDecisionOutcome(ctx, ids[0], outcome), decision.ErrOutcomeAttached)
	assert.ErrorIs(t, s.UpdateDecisionOutcome(ctx, "missing", outcome), decision.ErrDecisionNotFound)

	all, err := s.GetDecisions(ctx, decision.Filter{SessionID: "s1"}, decision.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[0], all[0].ID)
	require.NotNil(t, all[0].Outcome)
	assert.Equal(t, 120.0, all[0].Outcome.Profit)
	assert.True(t, all[0].Executed)
	assert.Equal(t, decision.ActionBuy, all[0].Action.Type)
	assert.Nil(t, all[1].Outcome)

	recent, err := s.GetDecisions(ctx,
		decision.Filter{SessionID: "s1", StartTime: base.Add(time.Minute)},
		decision.QueryOptions{SortDesc: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, ids[2], recent[0].ID)
}

func TestTradeOutcomes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)
	o := tracker.TradeOutcome{
		TradeID:      "t1",
		DecisionID:   "d1",
		SessionID:    "s1",
		ItemID:       "4151",
		Action:       decision.Action{Type: decision.ActionSell, Quantity: 2, Price: 500},
		InitialState: market.MarketState{ItemID: "4151", MidPrice: 500, Trend: market.TrendDown},
		InitialPrice: 500,
		FinalPrice:   450,
		Success:      true,
		Profit:       99,
		StartedAt:    now,
		CompletedAt:  now.Add(time.Second),
	}
	require.NoError(t, s.SaveTradeOutcome(ctx, o))
	assert.Error(t, s.SaveTradeOutcome(ctx, o), "trade ids are unique")

	got, err := s.ListTradeOutcomes(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 99.0, got[0].Profit)
	assert.True(t, got[0].Success)
	assert.Equal(t, market.TrendDown, got[0].InitialState.Trend)
	assert.True(t, got[0].CompletedAt.Equal(o.CompletedAt))
}

func TestModelMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)
	mk := func(id string, roi float64, age time.Duration) registry.ModelMetadata {
		return registry.ModelMetadata{
			ModelID:     id,
			Version:     "1.0.0",
			Status:      registry.StatusTesting,
			Performance: registry.PerformanceMetrics{ROI: roi, WinRate: 0.5},
			Technical:   registry.TechnicalMetrics{Updates: 7},
			CreatedAt:   now.Add(-age),
			UpdatedAt:   now.Add(-age),
		}
	}
	require.NoError(t, s.SaveModel(ctx, mk("a", 0.1, 2*time.Hour)))
	require.NoError(t, s.SaveModel(ctx, mk("b", 0.3, time.Hour)))
	assert.ErrorIs(t, s.SaveModel(ctx, mk("a", 0, 0)), registry.ErrModelExists)

	got, err := s.GetModel(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Technical.Updates)
	assert.Equal(t, 0.5, got.Performance.WinRate)
	_, err = s.GetModel(ctx, "zzz")
	assert.ErrorIs(t, err, registry.ErrModelNotFound)

	_, err = s.GetProductionModel(ctx)
	assert.ErrorIs(t, err, registry.ErrModelNotFound)

	require.NoError(t, s.PromoteModel(ctx, "a", now))
	require.NoError(t, s.PromoteModel(ctx, "b", now.Add(time.Minute)))
	prod, err := s.GetProductionModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", prod.ModelID)
	a, err := s.GetModel(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusArchived, a.Status)
	require.NotNil(t, a.ArchivedAt)
	assert.ErrorIs(t, s.PromoteModel(ctx, "zzz", now), registry.ErrModelNotFound)

	recent, err := s.GetRecentModels(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "b", recent[0].ModelID)

	better, err := s.GetModelsByPerformance(ctx, 0.2)
	require.NoError(t, err)
	require.Len(t, better, 1)
	assert.Equal(t, "b", better[0].ModelID)

	// a was read while archived; a stale copy claiming production must not
	// bring it back.
	a.Usage.Predictions = 42
	a.Status = registry.StatusProduction
	require.NoError(t, s.UpdateModel(ctx, a))
	a2, err := s.GetModel(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(42), a2.Usage.Predictions)
	assert.Equal(t, registry.StatusArchived, a2.Status)
	prod, err = s.GetProductionModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", prod.ModelID)
	assert.ErrorIs(t, s.UpdateModel(ctx, registry.ModelMetadata{ModelID: "zzz"}), registry.ErrModelNotFound)

	require.NoError(t, s.IncrementUsage(ctx, "b", 5, now))
	require.NoError(t, s.IncrementUsage(ctx, "b", 3, now.Add(time.Minute)))
	b, err := s.GetModel(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(8), b.Usage.Predictions)
	assert.Equal(t, 2, b.Usage.Sessions)
	require.NotNil(t, b.Usage.LastUsedAt)
	assert.Equal(t, registry.StatusProduction, b.Status)
	assert.ErrorIs(t, s.IncrementUsage(ctx, "zzz", 1, now), registry.ErrModelNotFound)

	require.NoError(t, s.ArchiveModel(ctx, "b", now.Add(2*time.Minute)))
	_, err = s.GetProductionModel(ctx)
	assert.ErrorIs(t, err, registry.ErrModelNotFound)
	assert.ErrorIs(t, s.ArchiveModel(ctx, "zzz", now), registry.ErrModelNotFound)

	require.NoError(t, s.DeleteModel(ctx, "a"))
	assert.ErrorIs(t, s.DeleteModel(ctx, "a"), registry.ErrModelNotFound)
}
