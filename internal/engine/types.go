// Package engine wires the decision loop: feed → encoder → prediction →
// gate → simulated execution → settlement → metrics and learning.
package engine

import (
	"errors"
	"time"

	"getrader/internal/learning"
	"getrader/internal/market"
	"getrader/internal/metrics"
	"getrader/internal/pkg/trading"
	"getrader/internal/prediction"
	"getrader/internal/session"
	"getrader/internal/store"
	"getrader/internal/tracker"
)

var ErrSessionNotRunning = errors.New("session is not running")

// Config 引擎运行参数，由 config 包的各段拼装。
type Config struct {
	ConfidenceThreshold float64
	Tax                 trading.TaxRule
	Tracker             tracker.Config
	CycleInterval       time.Duration
	CleanupMaxAge       time.Duration
	SettleDelayMin      time.Duration
	SettleDelayMax      time.Duration
	PriceNoise          float64
	Seed                int64
}

func (c Config) withDefaults() Config {
	if c.Tax == (trading.TaxRule{}) {
		c.Tax = trading.DefaultTaxRule
	}
	if c.CycleInterval <= 0 {
		c.CycleInterval = 30 * time.Second
	}
	if c.SettleDelayMax < c.SettleDelayMin {
		c.SettleDelayMax = c.SettleDelayMin
	}
	if c.PriceNoise <= 0 {
		c.PriceNoise = 0.03
	}
	return c
}

// Deps are the collaborators of an Engine. Local and Metrics may be nil.
type Deps struct {
	Feed     market.Feed
	Encoder  *market.Encoder
	Gateway  *prediction.Gateway
	Local    *prediction.LocalBackend
	Sessions *session.Manager
	Learner  *learning.Controller
	Stores   *store.Stores
	Metrics  *metrics.Metrics
}

// CycleReport summarises one RunCycle call.
type CycleReport struct {
	SessionID string         `json:"sessionId" yaml:"session_id"`
	Items     int            `json:"items" yaml:"items"`
	Skipped   int            `json:"skipped" yaml:"skipped"`
	Decisions int            `json:"decisions" yaml:"decisions"`
	Executed  int            `json:"executed" yaml:"executed"`
	BySource  map[string]int `json:"bySource" yaml:"by_source"`
}
