package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"getrader/internal/config"
)

type StartupSummary struct {
	Store      StoreSummary
	Prediction PredictionSummary
	Session    SessionSummary
	Learning   LearningSummary
	HTTPAddr   string
	Metrics    bool
}

type StoreSummary struct {
	Driver      string
	Path        string
	LearningLog string
	Feed        string
}

type PredictionSummary struct {
	Backends  []string
	Threshold float64
	Remote    string
}

type SessionSummary struct {
	MaxTrades       int
	MaxItemValue    float64
	MinProfitMargin float64
	CycleInterval   int
}

type LearningSummary struct {
	Enabled     bool
	Frequency   int
	MinInterval int
	Exploration string
}

func newStartupSummary(cfg *config.Config, backends []string) *StartupSummary {
	feed := fmt.Sprintf("synthetic (%d items, seed %d)", cfg.Feed.SyntheticItems, cfg.Feed.Seed)
	if strings.TrimSpace(cfg.Feed.Path) != "" {
		feed = cfg.Feed.Path
	}
	remote := "-"
	if cfg.Prediction.RemoteEnabled() {
		remote = fmt.Sprintf("%s (timeout %dms, %.0f/min)", cfg.Prediction.RemoteURL, cfg.Prediction.RemoteTimeoutMs, cfg.Prediction.RemoteRatePerMinute)
	}
	return &StartupSummary{
		Store: StoreSummary{
			Driver:      cfg.Store.Driver,
			Path:        cfg.Store.Path,
			LearningLog: cfg.Store.LearningLogPath,
			Feed:        feed,
		},
		Prediction: PredictionSummary{
			Backends:  append(backends, "static"),
			Threshold: cfg.Prediction.ConfidenceThreshold,
			Remote:    remote,
		},
		Session: SessionSummary{
			MaxTrades:       cfg.Session.MaxTrades,
			MaxItemValue:    cfg.Session.MaxItemValue,
			MinProfitMargin: cfg.Session.MinProfitMargin,
			CycleInterval:   cfg.Session.CycleIntervalSeconds,
		},
		Learning: LearningSummary{
			Enabled:     cfg.Learning.Enabled,
			Frequency:   cfg.Learning.Frequency,
			MinInterval: cfg.Learning.MinIntervalSeconds,
			Exploration: fmt.Sprintf("%.2f (+%.2f, max %.2f)", cfg.Learning.InitialExploration, cfg.Learning.ExplorationStep, cfg.Learning.ExplorationMax),
		},
		HTTPAddr: cfg.App.HTTPAddr,
		Metrics:  cfg.App.MetricsEnabled,
	}
}

func (s *StartupSummary) Print() {
	s.Fprint(os.Stdout)
}

func (s *StartupSummary) Fprint(w io.Writer) {
	title := "启动配置摘要 (STARTUP SUMMARY)"
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "[存储 (STORE)]")
	fmt.Fprintf(w, "  驱动: %s\n", s.Store.Driver)
	if s.Store.Driver == "sqlite" {
		fmt.Fprintf(w, "  数据库: %s\n", s.Store.Path)
		fmt.Fprintf(w, "  学习日志: %s\n", s.Store.LearningLog)
	}
	fmt.Fprintf(w, "  行情源: %s\n", s.Store.Feed)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[预测 (PREDICTION)]")
	fmt.Fprintf(w, "  后端链: %s\n", strings.Join(s.Prediction.Backends, " -> "))
	fmt.Fprintf(w, "  远端: %s\n", s.Prediction.Remote)
	fmt.Fprintf(w, "  置信度阈值: %.2f\n", s.Prediction.Threshold)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[会话默认值 (SESSION)]")
	fmt.Fprintf(w, "  最大交易数: %d\n", s.Session.MaxTrades)
	fmt.Fprintf(w, "  最大单价: %.0f gp\n", s.Session.MaxItemValue)
	fmt.Fprintf(w, "  最小税后利润率: %.2f%%\n", s.Session.MinProfitMargin*100)
	fmt.Fprintf(w, "  周期: %ds\n", s.Session.CycleInterval)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[在线学习 (LEARNING)]")
	fmt.Fprintf(w, "  启用: %v\n", s.Learning.Enabled)
	fmt.Fprintf(w, "  频率: 每 %d 笔交易，最小间隔 %ds\n", s.Learning.Frequency, s.Learning.MinInterval)
	fmt.Fprintf(w, "  探索率: %s\n", s.Learning.Exploration)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "HTTP: %s  /metrics: %v\n", s.HTTPAddr, s.Metrics)
	fmt.Fprintln(w, strings.Repeat("=", 80))
}
