package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"getrader/internal/decision"
	"getrader/internal/learning"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		s, err := Open("memory", "", "")
		require.NoError(t, err)
		assert.NotNil(t, s.Audit)
		assert.NoError(t, s.Close())
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := Open("postgres", "", "")
		assert.Error(t, err)
	})

	for name, split := range map[string]bool{"shared connection": false, "separate learning db": true} {
		t.Run("sqlite "+name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "getrader.db")
			learningPath := path
			if split {
				learningPath = filepath.Join(dir, "learning.db")
			}
			s, err := Open("sqlite", path, learningPath)
			require.NoError(t, err)
			defer s.Close()

			ctx := context.Background()
			id, err := s.Audit.SaveDecision(ctx, decision.Decision{SessionID: "s1", Timestamp: time.Now()})
			require.NoError(t, err)
			assert.NotEmpty(t, id)

			require.NoError(t, s.Learning.SaveLearningSession(ctx, learning.Record{ID: "r1", SessionID: "s1", StartedAt: time.Now(), CompletedAt: time.Now()}))
			recs, err := s.Learning.ListLearningSessions(ctx, "s1", 0)
			require.NoError(t, err)
			assert.Len(t, recs, 1)
		})
	}
}
