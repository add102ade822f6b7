package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"getrader/internal/config"
	"getrader/internal/engine"
	"getrader/internal/learning"
	"getrader/internal/logger"
	"getrader/internal/market"
	"getrader/internal/metrics"
	"getrader/internal/pkg/trading"
	"getrader/internal/prediction"
	"getrader/internal/registry"
	"getrader/internal/session"
	"getrader/internal/store"
	"getrader/internal/tracker"
	livehttp "getrader/internal/transport/http/live"
)

type AppBuilder struct {
	cfg *config.Config

	storesFn func(config.StoreConfig) (*store.Stores, error)
	feedFn   func(config.FeedConfig) (market.Feed, error)
	httpFn   func(config.AppConfig, livehttp.SessionService, livehttp.ModelService, *metrics.Metrics) (*livehttp.Server, error)
}

type AppBuilderOption func(*AppBuilder)

// WithStores 覆盖存储构建（测试用内存存储）。
func WithStores(fn func(config.StoreConfig) (*store.Stores, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.storesFn = fn }
}

func WithFeed(fn func(config.FeedConfig) (market.Feed, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.feedFn = fn }
}

// WithoutHTTP 跳过 HTTP 服务，供批量模拟使用。
func WithoutHTTP() AppBuilderOption {
	return func(b *AppBuilder) { b.httpFn = nil }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:      cfg,
		storesFn: openStores,
		feedFn:   buildFeed,
		httpFn:   buildLiveHTTPServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func openStores(cfg config.StoreConfig) (*store.Stores, error) {
	return store.Open(cfg.Driver, cfg.Path, cfg.LearningLogPath)
}

func buildFeed(cfg config.FeedConfig) (market.Feed, error) {
	if path := strings.TrimSpace(cfg.Path); path != "" {
		return market.NewFileFeed(path), nil
	}
	return market.NewSyntheticFeed(cfg.SyntheticItems, cfg.HistoryLength, cfg.Seed), nil
}

func buildLiveHTTPServer(cfg config.AppConfig, sessions livehttp.SessionService, models livehttp.ModelService, m *metrics.Metrics) (*livehttp.Server, error) {
	sc := livehttp.ServerConfig{Addr: cfg.HTTPAddr, Sessions: sessions, Models: models}
	if m != nil {
		sc.Metrics = m.Handler()
	}
	return livehttp.NewServer(sc)
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	stores, err := b.storesFn(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}
	feed, err := b.feedFn(cfg.Feed)
	if err != nil {
		_ = stores.Close()
		return nil, fmt.Errorf("build feed: %w", err)
	}

	var m *metrics.Metrics
	if cfg.App.MetricsEnabled {
		m = metrics.New()
	}

	gateway, local, err := buildGateway(cfg, m)
	if err != nil {
		_ = stores.Close()
		return nil, err
	}

	var eng *engine.Engine
	learner := learning.New(learningSettings(cfg.Learning), stores.Audit, stores.Learning, func() map[string]any {
		if eng == nil {
			return nil
		}
		return eng.ModelStats()
	})
	learner.SetHooks(learningHooks(m))

	sessions := session.NewManager(session.Config{
		MinProfitMargin:      cfg.Session.MinProfitMargin,
		MaxItemValue:         cfg.Session.MaxItemValue,
		MaxTrades:            cfg.Session.MaxTrades,
		LearningFrequency:    cfg.Learning.Frequency,
		EnableOnlineLearning: cfg.Learning.Enabled,
	})

	eng, err = engine.New(engineConfig(cfg), engine.Deps{
		Feed:     feed,
		Encoder:  market.NewEncoder(encoderConfig(cfg.Encoder)),
		Gateway:  gateway,
		Local:    local,
		Sessions: sessions,
		Learner:  learner,
		Stores:   stores,
		Metrics:  m,
	})
	if err != nil {
		_ = stores.Close()
		return nil, err
	}
	reg := registry.New(stores.Models, eng.ModelPerformance, eng.TechnicalMetrics)
	sessions.OnEnd(modelUsageRecorder(reg, sessions))

	var server *livehttp.Server
	if b.httpFn != nil {
		server, err = b.httpFn(cfg.App, eng, reg, m)
		if err != nil {
			_ = stores.Close()
			return nil, fmt.Errorf("build http server: %w", err)
		}
	}

	return &App{
		cfg:      cfg,
		engine:   eng,
		learner:  learner,
		local:    local,
		registry: reg,
		stores:   stores,
		liveHTTP: server,
		Summary:  newStartupSummary(cfg, gateway.Backends()),
	}, nil
}

// buildGateway 按 remote → local 顺序组装预测链，static 兜底由网关内置。
func buildGateway(cfg *config.Config, m *metrics.Metrics) (*prediction.Gateway, *prediction.LocalBackend, error) {
	pc := cfg.Prediction
	var backends []prediction.Backend
	timeout := 2 * time.Second
	if pc.RemoteEnabled() {
		remoteTimeout := time.Duration(pc.RemoteTimeoutMs) * time.Millisecond
		remote, err := prediction.NewRemoteBackend(prediction.RemoteConfig{
			URL:              pc.RemoteURL,
			Timeout:          remoteTimeout,
			RatePerMinute:    pc.RemoteRatePerMinute,
			BreakerThreshold: pc.BreakerThreshold,
			BreakerCooldown:  time.Duration(pc.BreakerCooldownSeconds) * time.Second,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build remote backend: %w", err)
		}
		backends = append(backends, remote)
		timeout = remoteTimeout + 500*time.Millisecond
	}
	var local *prediction.LocalBackend
	if pc.LocalEnabled {
		local = prediction.NewLocalBackend(prediction.LocalConfig{
			LearningRate: pc.LocalLearningRate,
			Exploration:  cfg.Learning.InitialExploration,
			ModelVersion: pc.ModelVersion,
			Seed:         cfg.Simulation.Seed,
		})
		backends = append(backends, local)
	}
	gw := prediction.NewGateway(timeout, backends...)
	if m != nil {
		gw.SetHooks(prediction.Hooks{
			Failed: func(backend string, _ error) { m.ObserveBackendFailure(backend) },
		})
	}
	return gw, local, nil
}

// modelUsageRecorder 在会话结束时把该会话的决策数记到当前生产模型上。
func modelUsageRecorder(reg *registry.Registry, sessions *session.Manager) func(string) {
	return func(id string) {
		s, err := sessions.Get(id)
		if err != nil || s.Metrics.DecisionsMade == 0 {
			return
		}
		ctx := context.Background()
		prod, err := reg.ProductionModel(ctx)
		if err != nil {
			if !errors.Is(err, registry.ErrModelNotFound) {
				logger.Warnf("[app] load production model: %v", err)
			}
			return
		}
		if err := reg.RecordUsage(ctx, prod.ModelID, int64(s.Metrics.DecisionsMade)); err != nil {
			logger.Warnf("[app] record usage of %s for session %s: %v", prod.ModelID, id, err)
		}
	}
}

func learningHooks(m *metrics.Metrics) learning.Hooks {
	if m == nil {
		return learning.Hooks{}
	}
	return learning.Hooks{
		PassCompleted: func(_ string, actions []learning.AdaptiveAction) {
			types := make([]string, len(actions))
			for i, a := range actions {
				types[i] = string(a.Type)
			}
			m.ObserveLearningPass(true, types)
		},
		PassFailed: func(string, error) { m.ObserveLearningPass(false, nil) },
	}
}

func learningSettings(c config.LearningConfig) learning.Settings {
	return learning.Settings{
		Enabled:         c.Enabled,
		Frequency:       c.Frequency,
		MinInterval:     time.Duration(c.MinIntervalSeconds) * time.Second,
		Window:          time.Duration(c.WindowHours) * time.Hour,
		InitialExplore:  c.InitialExploration,
		ExplorationStep: c.ExplorationStep,
		ExplorationMax:  c.ExplorationMax,
		MinItemValue:    c.MinItemValue,
	}
}

func encoderConfig(c config.EncoderConfig) market.EncoderConfig {
	return market.EncoderConfig{
		RSIPeriod:  c.RSIPeriod,
		MACDFast:   c.MACDFast,
		MACDSlow:   c.MACDSlow,
		MinHistory: c.MinHistory,
	}
}

func engineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		ConfidenceThreshold: cfg.Prediction.ConfidenceThreshold,
		Tax:                 trading.TaxRule{Rate: cfg.Tax.Rate, Threshold: cfg.Tax.Threshold, Cap: cfg.Tax.Cap},
		Tracker: tracker.Config{
			FailurePenalty: cfg.Tracker.FailurePenalty,
			FeeRate:        cfg.Tracker.FeeRate,
			HoldReward:     cfg.Tracker.HoldReward,
		},
		CycleInterval:  time.Duration(cfg.Session.CycleIntervalSeconds) * time.Second,
		CleanupMaxAge:  time.Duration(cfg.Session.CleanupMaxAgeHours) * time.Hour,
		SettleDelayMin: time.Duration(cfg.Simulation.SettleDelayMinMs) * time.Millisecond,
		SettleDelayMax: time.Duration(cfg.Simulation.SettleDelayMaxMs) * time.Millisecond,
		PriceNoise:     cfg.Simulation.PriceNoise,
		Seed:           cfg.Simulation.Seed,
	}
}
