package learninglog

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"getrader/internal/decision"
	"getrader/internal/learning"
	"getrader/internal/pkg/stats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndListLearningSessions(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "learning.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	for i, sid := range []string{"s1", "s1", "s2"} {
		rec := learning.Record{
			ID:          string(rune('a' + i)),
			SessionID:   sid,
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
			CompletedAt: base.Add(time.Duration(i)*time.Minute + time.Second),
			Metrics: learning.Metrics{
				TotalDecisions: 10 + i,
				SuccessRate:    40,
				ProfitFactor:   stats.Ratio(math.Inf(1)),
				ByAction:       map[decision.ActionType]learning.ActionMetrics{decision.ActionBuy: {Count: 3}},
			},
			Actions: []learning.AdaptiveAction{{
				Type:       learning.IncreaseExploration,
				Reason:     "low success",
				Parameters: map[string]any{"explorationRate": 0.15},
			}},
			ModelStats: map[string]any{"updates": 4},
		}
		require.NoError(t, s.SaveLearningSession(ctx, rec))
	}
	assert.Error(t, s.SaveLearningSession(ctx, learning.Record{}))

	recs, err := s.ListLearningSessions(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[0].ID)
	assert.Equal(t, 11, recs[0].Metrics.TotalDecisions)
	assert.True(t, recs[0].Metrics.ProfitFactor.IsInf())
	assert.Equal(t, 3, recs[0].Metrics.ByAction[decision.ActionBuy].Count)
	require.Len(t, recs[0].Actions, 1)
	assert.Equal(t, learning.IncreaseExploration, recs[0].Actions[0].Type)
	assert.Equal(t, 0.15, recs[0].Actions[0].Parameters["explorationRate"])
	assert.Equal(t, 4.0, recs[0].ModelStats["updates"])

	all, err := s.ListLearningSessions(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "c", all[0].ID)

	require.NoError(t, s.Close())
	_, err = s.ListLearningSessions(ctx, "", 0)
	assert.Error(t, err)
}
