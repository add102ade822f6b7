package learning

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"getrader/internal/decision"
	"getrader/internal/logger"

	"github.com/google/uuid"
)

type sessionState struct {
	policy  Policy
	config  *AdaptiveConfig
	lastRun time.Time
	passes  int
}

// Controller decides when a session is due for a learning pass and runs it
// in the background.
type Controller struct {
	mu         sync.Mutex
	settings   Settings
	sessions   map[string]*sessionState
	audit      decision.AuditStore
	records    RecordStore
	modelStats func() map[string]any
	hooks      Hooks
	wg         sync.WaitGroup
	now        func() time.Time
}

// New builds a controller. records and modelStats may be nil.
func New(settings Settings, audit decision.AuditStore, records RecordStore, modelStats func() map[string]any) *Controller {
	return &Controller{
		settings:   settings.withDefaults(),
		sessions:   make(map[string]*sessionState),
		audit:      audit,
		records:    records,
		modelStats: modelStats,
		now:        time.Now,
	}
}

func (c *Controller) SetHooks(h Hooks) {
	c.mu.Lock()
	c.hooks = h
	c.mu.Unlock()
}

// UpdateSettings swaps the controller-wide settings. Existing adaptive
// configs keep their tuned values.
func (c *Controller) UpdateSettings(s Settings) {
	c.mu.Lock()
	c.settings = s.withDefaults()
	c.mu.Unlock()
}

func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Register creates the adaptive config of a session. An exploration boost
// starts the session at twice the initial exploration rate.
func (c *Controller) Register(sessionID string, p Policy) *AdaptiveConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.sessions[sessionID]; ok {
		st.policy = p
		return st.config
	}
	explore := c.settings.InitialExplore
	if p.ExplorationBoost {
		explore = minFloat(explore*2, c.settings.ExplorationMax)
	}
	if p.Frequency <= 0 {
		p.Frequency = c.settings.Frequency
	}
	cfg := NewAdaptiveConfig(explore, p.MaxItemValue)
	c.sessions[sessionID] = &sessionState{policy: p, config: cfg}
	return cfg
}

func (c *Controller) Forget(sessionID string) {
	c.mu.Lock()
	delete(c.sessions, sessionID)
	c.mu.Unlock()
}

// Config returns the live adaptive config of a session.
func (c *Controller) Config(sessionID string) (*AdaptiveConfig, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return st.config, true
}

// MaybeTrigger starts a pass when learning is enabled, completed is a
// positive multiple of the session's frequency and the minimum interval
// has passed since the last pass. The check and the claim happen under one
// lock so concurrent completions cannot start two passes. It reports
// whether a pass was started.
func (c *Controller) MaybeTrigger(ctx context.Context, sessionID string, completed int) bool {
	c.mu.Lock()
	st, ok := c.sessions[sessionID]
	if !ok || !c.settings.Enabled || !st.policy.Enabled {
		c.mu.Unlock()
		return false
	}
	if completed <= 0 || completed%st.policy.Frequency != 0 {
		c.mu.Unlock()
		return false
	}
	now := c.now()
	if !st.lastRun.IsZero() && now.Sub(st.lastRun) < c.settings.MinInterval {
		c.mu.Unlock()
		logger.Debugf("[learning] %s skip trigger at %d: last pass %s ago", sessionID, completed, now.Sub(st.lastRun).Truncate(time.Second))
		return false
	}
	st.lastRun = now
	timeout := c.settings.PassTimeout
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		passCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if _, err := c.RunPass(passCtx, sessionID); err != nil {
			logger.Warnf("[learning] pass %s failed: %v", sessionID, err)
		}
	}()
	logger.Infof("[learning] %s pass triggered after %d completed trades", sessionID, completed)
	return true
}

// Wait blocks until every triggered pass has returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// RunPass reads the session's recent decisions, derives tuning actions,
// applies them and persists the record. A session without settled
// decisions yields an empty record and no error. Panics are recovered and
// reported as errors.
func (c *Controller) RunPass(ctx context.Context, sessionID string) (rec Record, err error) {
	c.mu.Lock()
	st, ok := c.sessions[sessionID]
	settings := c.settings
	hooks := c.hooks
	if ok {
		st.passes++
	}
	c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[learning] pass %s panic: %v\n%s", sessionID, r, debug.Stack())
			err = fmt.Errorf("learning pass panic: %v", r)
		}
		if err != nil && hooks.PassFailed != nil {
			hooks.PassFailed(sessionID, err)
		}
	}()
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	if c.audit == nil {
		return Record{}, fmt.Errorf("learning pass %s: audit store not configured", sessionID)
	}

	started := c.now()
	decisions, err := c.audit.GetDecisions(ctx,
		decision.Filter{SessionID: sessionID, StartTime: started.Add(-settings.Window)},
		decision.QueryOptions{})
	if err != nil {
		return Record{}, fmt.Errorf("load decisions: %w", err)
	}
	metrics := ComputeMetrics(decisions)
	rec = Record{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		StartedAt: started,
		Metrics:   metrics,
	}
	if metrics.TotalDecisions == 0 {
		rec.CompletedAt = c.now()
		rec.Config = st.config.Snapshot()
		logger.Infof("[learning] %s no settled decisions in %s, nothing to learn", sessionID, settings.Window)
		return rec, nil
	}

	actions := DeriveActions(metrics, st.config.Snapshot(), settings)
	st.config.Apply(actions)
	rec.Actions = actions
	rec.Config = st.config.Snapshot()
	if c.modelStats != nil {
		rec.ModelStats = c.modelStats()
	}
	rec.CompletedAt = c.now()

	for _, a := range actions {
		logger.Infof("[learning] %s apply %s: %s", sessionID, a.Type, a.Reason)
	}
	logger.Infof("[learning] %s pass done decisions=%d success=%.1f%% pf=%.2f actions=%d",
		sessionID, metrics.TotalDecisions, metrics.SuccessRate, metrics.ProfitFactor.Finite(999), len(actions))

	if c.records != nil {
		if perr := c.records.SaveLearningSession(ctx, rec); perr != nil {
			logger.Warnf("[learning] persist record %s failed: %v", rec.ID, perr)
		}
	}
	if hooks.PassCompleted != nil {
		hooks.PassCompleted(sessionID, actions)
	}
	return rec, nil
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
