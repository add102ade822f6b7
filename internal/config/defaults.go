package config

import (
	"strings"
)

// 默认值常量
const (
	defaultAppEnv             = "dev"
	defaultAppLogLevel        = "info"
	defaultAppLogFormat       = "text"
	defaultAppHTTPAddr        = ":9992"
	defaultStoreDriver        = "sqlite"
	defaultStorePath          = "data/getrader.db"
	defaultLearningLogPath    = "data/learning.db"
	defaultFeedItems          = 12
	defaultFeedHistory        = 40
	defaultFeedSeed           = 42
	defaultRSIPeriod          = 14
	defaultMACDFast           = 12
	defaultMACDSlow           = 26
	defaultMinHistory         = 3
	defaultRemoteTimeoutMs    = 1500
	defaultRemoteRatePerMin   = 120
	defaultBreakerThreshold   = 3
	defaultBreakerCooldown    = 30
	defaultLocalLearningRate  = 0.01
	defaultConfidence         = 0.7
	defaultModelVersion       = "1.0.0"
	defaultFailurePenalty     = 50
	defaultFeeRate            = 0.01
	defaultHoldReward         = 10
	defaultTaxRate            = 0.02
	defaultTaxThreshold       = 1000
	defaultTaxCap             = 5_000_000
	defaultSessionMaxTrades   = 100
	defaultSessionMaxValue    = 1_000_000
	defaultSessionMinMargin   = 0.01
	defaultSessionCycleSecs   = 30
	defaultSessionCleanupHrs  = 24
	defaultLearningFrequency  = 10
	defaultLearningMinSecs    = 60
	defaultLearningWindowHrs  = 24
	defaultInitialExploration = 0.1
	defaultExplorationStep    = 0.05
	defaultExplorationMax     = 0.5
	defaultMinItemValue       = 10_000
	defaultSettleDelayMinMs   = 2000
	defaultSettleDelayMaxMs   = 8000
	defaultPriceNoise         = 0.03
	defaultSimulationSeed     = 7
)

// Default 返回仅包含默认值的配置，用于无配置文件启动与测试。
func Default() *Config {
	var cfg Config
	cfg.applyDefaults(make(keySet))
	return &cfg
}

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Feed.applyDefaults(keys)
	c.Encoder.applyDefaults(keys)
	c.Prediction.applyDefaults(keys)
	c.Tracker.applyDefaults(keys)
	c.Tax.applyDefaults(keys)
	c.Session.applyDefaults(keys)
	c.Learning.applyDefaults(keys)
	c.Simulation.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		boolFieldDefault("app.metrics_enabled", &a.MetricsEnabled, true),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.driver", &s.Driver, defaultStoreDriver),
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
		stringFieldDefault("store.learning_log_path", &s.LearningLogPath, defaultLearningLogPath),
	)
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
}

func (f *FeedConfig) applyDefaults(keys keySet) {
	if f == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("feed.synthetic_items", &f.SyntheticItems, defaultFeedItems),
		intFieldDefault("feed.history_length", &f.HistoryLength, defaultFeedHistory),
		fieldDefault{
			key:   "feed.seed",
			need:  func() bool { return f.Seed == 0 },
			apply: func() { f.Seed = defaultFeedSeed },
		},
	)
}

func (e *EncoderConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("encoder.rsi_period", &e.RSIPeriod, defaultRSIPeriod),
		intFieldDefault("encoder.macd_fast", &e.MACDFast, defaultMACDFast),
		intFieldDefault("encoder.macd_slow", &e.MACDSlow, defaultMACDSlow),
		intFieldDefault("encoder.min_history", &e.MinHistory, defaultMinHistory),
	)
}

func (p *PredictionConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("prediction.remote_timeout_ms", &p.RemoteTimeoutMs, defaultRemoteTimeoutMs),
		floatFieldDefault("prediction.remote_rate_per_minute", &p.RemoteRatePerMinute, defaultRemoteRatePerMin),
		intFieldDefault("prediction.breaker_threshold", &p.BreakerThreshold, defaultBreakerThreshold),
		intFieldDefault("prediction.breaker_cooldown_seconds", &p.BreakerCooldownSeconds, defaultBreakerCooldown),
		boolFieldDefault("prediction.local_enabled", &p.LocalEnabled, true),
		floatFieldDefault("prediction.local_learning_rate", &p.LocalLearningRate, defaultLocalLearningRate),
		floatFieldDefault("prediction.confidence_threshold", &p.ConfidenceThreshold, defaultConfidence),
		stringFieldDefault("prediction.model_version", &p.ModelVersion, defaultModelVersion),
	)
}

func (t *TrackerConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("tracker.failure_penalty", &t.FailurePenalty, defaultFailurePenalty),
		floatFieldDefault("tracker.fee_rate", &t.FeeRate, defaultFeeRate),
		floatFieldDefault("tracker.hold_reward", &t.HoldReward, defaultHoldReward),
	)
}

func (t *TaxConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("tax.rate", &t.Rate, defaultTaxRate),
		floatFieldDefault("tax.threshold", &t.Threshold, defaultTaxThreshold),
		floatFieldDefault("tax.cap", &t.Cap, defaultTaxCap),
	)
}

func (s *SessionConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("session.max_trades", &s.MaxTrades, defaultSessionMaxTrades),
		floatFieldDefault("session.max_item_value", &s.MaxItemValue, defaultSessionMaxValue),
		floatFieldDefault("session.min_profit_margin", &s.MinProfitMargin, defaultSessionMinMargin),
		intFieldDefault("session.cycle_interval_seconds", &s.CycleIntervalSeconds, defaultSessionCycleSecs),
		intFieldDefault("session.cleanup_max_age_hours", &s.CleanupMaxAgeHours, defaultSessionCleanupHrs),
	)
}

func (l *LearningConfig) applyDefaults(keys keySet) {
	if l == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("learning.enabled", &l.Enabled, true),
		intFieldDefault("learning.frequency", &l.Frequency, defaultLearningFrequency),
		intFieldDefault("learning.min_interval_seconds", &l.MinIntervalSeconds, defaultLearningMinSecs),
		intFieldDefault("learning.window_hours", &l.WindowHours, defaultLearningWindowHrs),
		floatFieldDefault("learning.initial_exploration", &l.InitialExploration, defaultInitialExploration),
		floatFieldDefault("learning.exploration_step", &l.ExplorationStep, defaultExplorationStep),
		floatFieldDefault("learning.exploration_max", &l.ExplorationMax, defaultExplorationMax),
		floatFieldDefault("learning.min_item_value", &l.MinItemValue, defaultMinItemValue),
	)
}

func (s *SimulationConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("simulation.settle_delay_min_ms", &s.SettleDelayMinMs, defaultSettleDelayMinMs),
		intFieldDefault("simulation.settle_delay_max_ms", &s.SettleDelayMaxMs, defaultSettleDelayMaxMs),
		floatFieldDefault("simulation.price_noise", &s.PriceNoise, defaultPriceNoise),
		fieldDefault{
			key:   "simulation.seed",
			need:  func() bool { return s.Seed == 0 },
			apply: func() { s.Seed = defaultSimulationSeed },
		},
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
