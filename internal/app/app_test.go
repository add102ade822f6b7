package app

import (
	"bytes"
	"context"
	"testing"

	"getrader/internal/config"
	"getrader/internal/registry"
	"getrader/internal/session"
	"getrader/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryStores(config.StoreConfig) (*store.Stores, error) {
	return store.Memory(), nil
}

func TestBuildWithDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.App.MetricsEnabled = true
	a, err := NewAppBuilder(cfg, WithStores(memoryStores)).Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.NotNil(t, a.Engine())
	require.NotNil(t, a.Registry())
	require.NotNil(t, a.liveHTTP)

	var buf bytes.Buffer
	a.Summary.Fprint(&buf)
	assert.Contains(t, buf.String(), "local -> static")
}

func TestSimulateThroughApp(t *testing.T) {
	cfg := config.Default()
	cfg.Feed.SyntheticItems = 4
	cfg.Prediction.ConfidenceThreshold = 0
	a, err := NewAppBuilder(cfg, WithStores(memoryStores), WithoutHTTP()).Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	assert.Nil(t, a.liveHTTP)

	rep, err := a.Engine().Simulate(context.Background(), session.CreateRequest{Training: true}, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Cycles)
	assert.Equal(t, 3, rep.Session.Metrics.EpisodeCount)
	assert.Equal(t, 12, rep.Session.Metrics.DecisionsMade)
	assert.Equal(t, rep.Session.Metrics.TotalTrades, rep.Performance.TotalTrades)
	assert.Equal(t, session.StatusCompleted, rep.Session.Status)
}

func TestApplyReload(t *testing.T) {
	cfg := config.Default()
	a, err := NewAppBuilder(cfg, WithStores(memoryStores), WithoutHTTP()).Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	next := config.Default()
	next.Learning.Frequency = 25
	next.Prediction.ConfidenceThreshold = 0.9
	next.Prediction.LocalLearningRate = 0.05
	a.applyReload(next)
	assert.Equal(t, 25, a.learner.Settings().Frequency)
	require.NotNil(t, a.local)
	assert.Equal(t, 0.05, a.local.Stats().LearningRate)

	next.Prediction.LocalLearningRate = 0
	a.applyReload(next)
	assert.Equal(t, 0.0, a.local.Stats().LearningRate)
}

func TestSessionEndRecordsProductionUsage(t *testing.T) {
	cfg := config.Default()
	cfg.Feed.SyntheticItems = 3
	a, err := NewAppBuilder(cfg, WithStores(memoryStores), WithoutHTTP()).Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	ctx := context.Background()

	_, err = a.Registry().SaveModelWithMetadata(ctx, "local-q", "1.0.0", "")
	require.NoError(t, err)
	_, err = a.Registry().SetModelAsProduction(ctx, "local-q")
	require.NoError(t, err)

	rep, err := a.Engine().Simulate(ctx, session.CreateRequest{Training: true}, 2)
	require.NoError(t, err)
	require.Equal(t, 6, rep.Session.Metrics.DecisionsMade)

	m, err := a.Registry().Model(ctx, "local-q")
	require.NoError(t, err)
	assert.Equal(t, int64(6), m.Usage.Predictions)
	assert.Equal(t, 1, m.Usage.Sessions)
	assert.Equal(t, registry.StatusProduction, m.Status)
}
