package config

import "strings"

// Config 是 getrader 的主配置载体。
type Config struct {
	App        AppConfig        `toml:"app"`
	Store      StoreConfig      `toml:"store"`
	Feed       FeedConfig       `toml:"feed"`
	Encoder    EncoderConfig    `toml:"encoder"`
	Prediction PredictionConfig `toml:"prediction"`
	Tracker    TrackerConfig    `toml:"tracker"`
	Tax        TaxConfig        `toml:"tax"`
	Session    SessionConfig    `toml:"session"`
	Learning   LearningConfig   `toml:"learning"`
	Simulation SimulationConfig `toml:"simulation"`
}

type AppConfig struct {
	Env            string `toml:"env"`
	LogLevel       string `toml:"log_level"`
	LogFormat      string `toml:"log_format"`
	LogPath        string `toml:"log_path"`
	HTTPAddr       string `toml:"http_addr"`
	MetricsEnabled bool   `toml:"metrics_enabled"`
}

// StoreConfig selects the persistence backend. Driver "memory" keeps
// everything in-process; "sqlite" writes to Path and LearningLogPath.
type StoreConfig struct {
	Driver          string `toml:"driver"`
	Path            string `toml:"path"`
	LearningLogPath string `toml:"learning_log_path"`
}

// FeedConfig points at a JSON market snapshot. When Path is empty a
// seeded synthetic feed with SyntheticItems items is used instead.
type FeedConfig struct {
	Path           string `toml:"path"`
	SyntheticItems int    `toml:"synthetic_items"`
	HistoryLength  int    `toml:"history_length"`
	Seed           int64  `toml:"seed"`
}

type EncoderConfig struct {
	RSIPeriod  int `toml:"rsi_period"`
	MACDFast   int `toml:"macd_fast"`
	MACDSlow   int `toml:"macd_slow"`
	MinHistory int `toml:"min_history"`
}

type PredictionConfig struct {
	RemoteURL              string  `toml:"remote_url"`
	RemoteTimeoutMs        int     `toml:"remote_timeout_ms"`
	RemoteRatePerMinute    float64 `toml:"remote_rate_per_minute"`
	BreakerThreshold       int     `toml:"breaker_threshold"`
	BreakerCooldownSeconds int     `toml:"breaker_cooldown_seconds"`
	LocalEnabled           bool    `toml:"local_enabled"`
	LocalLearningRate      float64 `toml:"local_learning_rate"`
	ConfidenceThreshold    float64 `toml:"confidence_threshold"`
	ModelVersion           string  `toml:"model_version"`
}

// RemoteEnabled 报告是否配置了远端推理服务。
func (p PredictionConfig) RemoteEnabled() bool {
	return strings.TrimSpace(p.RemoteURL) != ""
}

type TrackerConfig struct {
	FailurePenalty float64 `toml:"failure_penalty"`
	FeeRate        float64 `toml:"fee_rate"`
	HoldReward     float64 `toml:"hold_reward"`
}

// TaxConfig describes the exchange sale tax: Rate of the sell price,
// skipped at or below Threshold, capped per unit at Cap.
type TaxConfig struct {
	Rate      float64 `toml:"rate"`
	Threshold float64 `toml:"threshold"`
	Cap       float64 `toml:"cap"`
}

// SessionConfig 是新建会话的默认参数。
type SessionConfig struct {
	MaxTrades            int     `toml:"max_trades"`
	MaxItemValue         float64 `toml:"max_item_value"`
	MinProfitMargin      float64 `toml:"min_profit_margin"`
	CycleIntervalSeconds int     `toml:"cycle_interval_seconds"`
	CleanupMaxAgeHours   int     `toml:"cleanup_max_age_hours"`
}

type LearningConfig struct {
	Enabled            bool    `toml:"enabled"`
	Frequency          int     `toml:"frequency"`
	MinIntervalSeconds int     `toml:"min_interval_seconds"`
	WindowHours        int     `toml:"window_hours"`
	InitialExploration float64 `toml:"initial_exploration"`
	ExplorationStep    float64 `toml:"exploration_step"`
	ExplorationMax     float64 `toml:"exploration_max"`
	MinItemValue       float64 `toml:"min_item_value"`
}

type SimulationConfig struct {
	SettleDelayMinMs int     `toml:"settle_delay_min_ms"`
	SettleDelayMaxMs int     `toml:"settle_delay_max_ms"`
	PriceNoise       float64 `toml:"price_noise"`
	Seed             int64   `toml:"seed"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
