package memstore

import (
	"context"
	"testing"
	"time"

	"getrader/internal/decision"
	"getrader/internal/learning"
	"getrader/internal/registry"
	"getrader/internal/tracker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecisions(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now()
	id1, err := s.SaveDecision(ctx, decision.Decision{SessionID: "s1", Timestamp: base})
	require.NoError(t, err)
	id2, err := s.SaveDecision(ctx, decision.Decision{SessionID: "s1", Timestamp: base.Add(time.Second)})
	require.NoError(t, err)
	_, err = s.SaveDecision(ctx, decision.Decision{SessionID: "s2", Timestamp: base})
	require.NoError(t, err)

	require.NoError(t, s.UpdateDecisionOutcome(ctx, id1, decision.Outcome{Success: true, Profit: 5}))
	assert.ErrorIs(t, s.UpdateDecisionOutcome(ctx, id1, decision.Outcome{}), decision.ErrOutcomeAttached)
	assert.ErrorIs(t, s.UpdateDecisionOutcome(ctx, "nope", decision.Outcome{}), decision.ErrDecisionNotFound)

	got, err := s.GetDecisions(ctx, decision.Filter{SessionID: "s1"}, decision.QueryOptions{SortDesc: true})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, id2, got[0].ID)
	require.NotNil(t, got[1].Outcome)

	got[1].Outcome.Profit = 999
	again, _ := s.GetDecisions(ctx, decision.Filter{SessionID: "s1"}, decision.QueryOptions{})
	assert.Equal(t, 5.0, again[0].Outcome.Profit, "callers get copies")

	since, _ := s.GetDecisions(ctx, decision.Filter{StartTime: base.Add(time.Millisecond)}, decision.QueryOptions{})
	assert.Len(t, since, 1)
}

func TestOutcomesAndRecords(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.SaveTradeOutcome(ctx, tracker.TradeOutcome{TradeID: "a", SessionID: "s1"}))
	require.NoError(t, s.SaveTradeOutcome(ctx, tracker.TradeOutcome{TradeID: "b", SessionID: "s2"}))
	out, err := s.ListTradeOutcomes(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, out, 1)

	require.NoError(t, s.SaveLearningSession(ctx, learning.Record{ID: "r1", SessionID: "s1"}))
	require.NoError(t, s.SaveLearningSession(ctx, learning.Record{ID: "r2", SessionID: "s1"}))
	recs, err := s.ListLearningSessions(ctx, "s1", 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "r2", recs[0].ID)
}

func TestPromoteKeepsSingleProduction(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveModel(ctx, registry.ModelMetadata{ModelID: id, Status: registry.StatusTesting, CreatedAt: now}))
	}
	require.NoError(t, s.PromoteModel(ctx, "a", now))
	require.NoError(t, s.PromoteModel(ctx, "b", now))
	require.NoError(t, s.PromoteModel(ctx, "c", now))

	recent, err := s.GetRecentModels(ctx, 0)
	require.NoError(t, err)
	production := 0
	for _, m := range recent {
		if m.Status == registry.StatusProduction {
			production++
			assert.Equal(t, "c", m.ModelID)
		}
	}
	assert.Equal(t, 1, production)
}

func TestStaleModelWritesKeepStatus(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	for _, id := range []string{"a", "b"} {
		require.NoError(t, s.SaveModel(ctx, registry.ModelMetadata{ModelID: id, Status: registry.StatusTesting, CreatedAt: now}))
	}
	require.NoError(t, s.PromoteModel(ctx, "a", now))
	stale, err := s.GetModel(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, s.PromoteModel(ctx, "b", now.Add(time.Second)))

	stale.Description = "retuned"
	require.NoError(t, s.UpdateModel(ctx, stale))
	require.NoError(t, s.IncrementUsage(ctx, "a", 7, now.Add(2*time.Second)))

	a, err := s.GetModel(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusArchived, a.Status)
	assert.Equal(t, "retuned", a.Description)
	assert.Equal(t, int64(7), a.Usage.Predictions)
	assert.Equal(t, 1, a.Usage.Sessions)

	prod, err := s.GetProductionModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", prod.ModelID)

	assert.ErrorIs(t, s.UpdateModel(ctx, registry.ModelMetadata{ModelID: "zzz"}), registry.ErrModelNotFound)
	assert.ErrorIs(t, s.IncrementUsage(ctx, "zzz", 1, now), registry.ErrModelNotFound)
	assert.ErrorIs(t, s.ArchiveModel(ctx, "zzz", now), registry.ErrModelNotFound)
}
