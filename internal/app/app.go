package app

import (
	"context"
	"fmt"

	"getrader/internal/config"
	"getrader/internal/engine"
	"getrader/internal/learning"
	"getrader/internal/logger"
	"getrader/internal/prediction"
	"getrader/internal/registry"
	"getrader/internal/store"
	livehttp "getrader/internal/transport/http/live"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动引擎、HTTP 与配置热更新。
type App struct {
	cfg      *config.Config
	cfgPath  string
	engine   *engine.Engine
	learner  *learning.Controller
	local    *prediction.LocalBackend
	registry *registry.Registry
	stores   *store.Stores
	liveHTTP *livehttp.Server
	Summary  *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）。cfgPath 为空时不监听配置变更。
func NewApp(cfg *config.Config, cfgPath string) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	a, err := buildAppWithWire(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	a.cfgPath = cfgPath
	return a, nil
}

// Run 启动引擎循环、HTTP 服务与配置监听，任一退出即整体退出。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.engine == nil {
		return fmt.Errorf("engine not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	defer a.Close()

	group, ctx := errgroup.WithContext(ctx)
	if a.liveHTTP != nil {
		group.Go(func() error {
			if err := a.liveHTTP.Start(ctx); err != nil {
				return fmt.Errorf("http server error: %w", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		return a.engine.Run(ctx)
	})
	if a.cfgPath != "" {
		group.Go(func() error {
			return config.Watch(ctx, a.cfgPath, a.applyReload)
		})
	}
	return group.Wait()
}

// applyReload 只热更新可在运行中安全调整的字段。
func (a *App) applyReload(cfg *config.Config) {
	logger.SetLevel(cfg.App.LogLevel)
	a.engine.SetConfidenceThreshold(cfg.Prediction.ConfidenceThreshold)
	a.learner.UpdateSettings(learningSettings(cfg.Learning))
	if a.local != nil {
		a.local.SetLearningRate(cfg.Prediction.LocalLearningRate)
	}
	logger.Infof("[app] config reloaded: threshold=%.2f learning.enabled=%v frequency=%d local_lr=%.4f",
		cfg.Prediction.ConfidenceThreshold, cfg.Learning.Enabled, cfg.Learning.Frequency, cfg.Prediction.LocalLearningRate)
}

// Close 停止引擎并关闭存储。可重复调用。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.engine != nil {
		a.engine.Close()
	}
	if a.stores != nil {
		if err := a.stores.Close(); err != nil {
			logger.Warnf("[app] close stores: %v", err)
		}
		a.stores = nil
	}
}

func (a *App) Engine() *engine.Engine { return a.engine }

func (a *App) Registry() *registry.Registry { return a.registry }
