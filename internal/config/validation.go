package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Store.validate(); err != nil {
		return err
	}
	if err := c.Encoder.validate(); err != nil {
		return err
	}
	if err := c.Prediction.validate(); err != nil {
		return err
	}
	if err := c.Tax.validate(); err != nil {
		return err
	}
	if err := c.Learning.validate(); err != nil {
		return err
	}
	if err := c.Simulation.validate(); err != nil {
		return err
	}
	return nil
}

func (s *StoreConfig) validate() error {
	switch s.Driver {
	case "memory":
		return nil
	case "sqlite":
		if strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("store.path cannot be empty when store.driver=sqlite")
		}
		if strings.TrimSpace(s.LearningLogPath) == "" {
			return fmt.Errorf("store.learning_log_path cannot be empty when store.driver=sqlite")
		}
		return nil
	default:
		return fmt.Errorf("store.driver must be memory or sqlite, got %q", s.Driver)
	}
}

func (e *EncoderConfig) validate() error {
	if e.RSIPeriod < 2 {
		return fmt.Errorf("encoder.rsi_period must be >= 2")
	}
	if e.MACDFast <= 0 || e.MACDSlow <= 0 {
		return fmt.Errorf("encoder.macd_fast and encoder.macd_slow must be > 0")
	}
	if e.MACDFast >= e.MACDSlow {
		return fmt.Errorf("encoder.macd_fast (%d) must be < encoder.macd_slow (%d)", e.MACDFast, e.MACDSlow)
	}
	if e.MinHistory < 3 {
		return fmt.Errorf("encoder.min_history must be >= 3")
	}
	return nil
}

func (p *PredictionConfig) validate() error {
	if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 1 {
		return fmt.Errorf("prediction.confidence_threshold must be within [0,1]")
	}
	if p.RemoteEnabled() {
		url := strings.ToLower(strings.TrimSpace(p.RemoteURL))
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return fmt.Errorf("prediction.remote_url must be an http(s) url")
		}
		if p.RemoteTimeoutMs <= 0 {
			return fmt.Errorf("prediction.remote_timeout_ms must be > 0")
		}
	}
	if p.LocalLearningRate < 0 {
		return fmt.Errorf("prediction.local_learning_rate must be >= 0")
	}
	return nil
}

func (t *TaxConfig) validate() error {
	if t.Rate < 0 || t.Rate >= 1 {
		return fmt.Errorf("tax.rate must be within [0,1)")
	}
	if t.Threshold < 0 || t.Cap < 0 {
		return fmt.Errorf("tax.threshold and tax.cap must be >= 0")
	}
	return nil
}

func (l *LearningConfig) validate() error {
	if !l.Enabled {
		return nil
	}
	if l.Frequency <= 0 {
		return fmt.Errorf("learning.frequency must be > 0")
	}
	if l.ExplorationMax < l.InitialExploration {
		return fmt.Errorf("learning.exploration_max must be >= learning.initial_exploration")
	}
	if l.ExplorationMax > 1 {
		return fmt.Errorf("learning.exploration_max must be <= 1")
	}
	return nil
}

func (s *SimulationConfig) validate() error {
	if s.SettleDelayMinMs < 0 || s.SettleDelayMaxMs < s.SettleDelayMinMs {
		return fmt.Errorf("simulation settle delay range invalid: [%d,%d]", s.SettleDelayMinMs, s.SettleDelayMaxMs)
	}
	return nil
}
