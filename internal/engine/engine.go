package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"getrader/internal/decision"
	"getrader/internal/learning"
	"getrader/internal/logger"
	"getrader/internal/registry"
	"getrader/internal/scheduler"
	"getrader/internal/session"
	"getrader/internal/tracker"
)

// Engine drives trading sessions. Each session owns its tracker, adaptive
// config and settlement group; sessions never share state.
type Engine struct {
	deps       Deps
	settlement *scheduler.Settlement

	mu       sync.Mutex
	cfg      Config
	trackers map[string]*tracker.Tracker
	loops    map[string]context.CancelFunc
	serveCtx context.Context
	wg       sync.WaitGroup

	rngMu sync.Mutex
	rng   *rand.Rand

	now func() time.Time
}

func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Feed == nil || deps.Encoder == nil || deps.Gateway == nil {
		return nil, fmt.Errorf("engine requires feed, encoder and gateway")
	}
	if deps.Sessions == nil || deps.Learner == nil || deps.Stores == nil {
		return nil, fmt.Errorf("engine requires sessions, learner and stores")
	}
	cfg = cfg.withDefaults()
	e := &Engine{
		deps:       deps,
		settlement: scheduler.NewSettlement(),
		cfg:        cfg,
		trackers:   make(map[string]*tracker.Tracker),
		loops:      make(map[string]context.CancelFunc),
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		now:        time.Now,
	}
	deps.Sessions.OnEnd(e.onSessionEnd)
	return e, nil
}

// SetConfidenceThreshold applies a reloaded threshold to later cycles.
func (e *Engine) SetConfidenceThreshold(v float64) {
	e.mu.Lock()
	e.cfg.ConfidenceThreshold = v
	e.mu.Unlock()
}

func (e *Engine) config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

func (e *Engine) Sessions() *session.Manager { return e.deps.Sessions }

// StartSession creates a session, registers it for learning and, when the
// engine is serving, starts its cycle loop.
func (e *Engine) StartSession(ctx context.Context, req session.CreateRequest) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return session.Session{}, err
	}
	s := e.deps.Sessions.Create(req)
	e.deps.Learner.Register(s.ID, learning.Policy{
		Enabled:          s.Config.EnableOnlineLearning,
		Frequency:        s.Config.LearningFrequency,
		MaxItemValue:     s.Config.MaxItemValue,
		ExplorationBoost: s.Config.ExplorationBoost,
	})

	e.mu.Lock()
	e.trackers[s.ID] = tracker.New(e.cfg.Tracker, e.deps.Stores.Outcomes)
	serving := e.serveCtx != nil
	e.mu.Unlock()

	if serving {
		e.startLoop(s.ID)
	}
	e.updateActiveGauge()
	return s, nil
}

// EndSession completes the session. Pending settlements are cancelled and
// its active trades dropped.
func (e *Engine) EndSession(sessionID string) (session.Session, error) {
	return e.deps.Sessions.End(sessionID)
}

func (e *Engine) PauseSession(sessionID string) (session.Session, error) {
	s, err := e.deps.Sessions.Pause(sessionID)
	if err == nil {
		e.updateActiveGauge()
	}
	return s, err
}

func (e *Engine) ResumeSession(sessionID string) (session.Session, error) {
	s, err := e.deps.Sessions.Resume(sessionID)
	if err == nil {
		e.updateActiveGauge()
	}
	return s, err
}

func (e *Engine) onSessionEnd(id string) {
	pending, dropped := e.teardown(id, false)
	logger.Infof("[engine] session %s ended: cancelled %d settlements, dropped %d active trades", id, pending, dropped)
	e.updateActiveGauge()
}

// teardown stops the session loop, cancels its pending settlements and
// drops its active trades. With forget it also releases the tracker and
// the adaptive config.
func (e *Engine) teardown(id string, forget bool) (pending, dropped int) {
	e.mu.Lock()
	cancel := e.loops[id]
	delete(e.loops, id)
	tr := e.trackers[id]
	if forget {
		delete(e.trackers, id)
	}
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	pending = e.settlement.CancelGroup(id)
	if tr != nil {
		dropped = tr.CancelAll()
	}
	if forget {
		e.deps.Learner.Forget(id)
	}
	return pending, dropped
}

// Run serves every running session on its own interval loop plus a cleanup
// loop until ctx is done, then drains pending settlements.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.serveCtx != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.serveCtx = ctx
	e.mu.Unlock()

	for _, s := range e.deps.Sessions.List() {
		if s.Status != session.StatusCompleted {
			e.startLoop(s.ID)
		}
	}
	cfg := e.config()
	if cfg.CleanupMaxAge > 0 {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			sched := scheduler.NewIntervalScheduler(ctx, "session-cleanup", time.Hour)
			sched.Start(func(context.Context) bool {
				e.Cleanup(cfg.CleanupMaxAge)
				return true
			})
		}()
	}
	logger.Infof("[engine] serving, cycle interval %s", cfg.CycleInterval)
	<-ctx.Done()
	e.Close()
	return nil
}

func (e *Engine) startLoop(id string) {
	e.mu.Lock()
	if _, ok := e.loops[id]; ok || e.serveCtx == nil {
		e.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(e.serveCtx)
	e.loops[id] = cancel
	interval := e.cfg.CycleInterval
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		sched := scheduler.NewIntervalScheduler(ctx, "cycle-"+id, interval)
		sched.RunImmediately = true
		sched.Start(func(ctx context.Context) bool {
			s, err := e.deps.Sessions.Get(id)
			if err != nil || s.Status == session.StatusCompleted {
				return false
			}
			if !s.Status.Running() {
				return true
			}
			if _, err := e.RunCycle(ctx, id); err != nil {
				logger.Warnf("[engine] cycle %s: %v", id, err)
			}
			return true
		})
	}()
}

// Close stops every loop and waits for pending work. Pending settlements
// are cancelled.
func (e *Engine) Close() {
	e.mu.Lock()
	for id, cancel := range e.loops {
		cancel()
		delete(e.loops, id)
	}
	e.mu.Unlock()
	e.wg.Wait()
	e.settlement.Stop()
	e.deps.Learner.Wait()
}

// Cleanup removes non-running sessions older than maxAge. Each removed
// session is torn down like an ended one, then its tracker and adaptive
// config are released.
func (e *Engine) Cleanup(maxAge time.Duration) int {
	before := e.deps.Sessions.List()
	removed := e.deps.Sessions.CleanupOldSessions(maxAge)
	if removed == 0 {
		return 0
	}
	alive := make(map[string]bool)
	for _, s := range e.deps.Sessions.List() {
		alive[s.ID] = true
	}
	for _, s := range before {
		if alive[s.ID] {
			continue
		}
		pending, dropped := e.teardown(s.ID, true)
		if pending > 0 || dropped > 0 {
			logger.Infof("[engine] cleaned session %s: cancelled %d settlements, dropped %d active trades", s.ID, pending, dropped)
		}
	}
	e.updateActiveGauge()
	return removed
}

func (e *Engine) updateActiveGauge() {
	if e.deps.Metrics == nil {
		return
	}
	n := 0
	for _, s := range e.deps.Sessions.List() {
		if s.Status.Running() {
			n++
		}
	}
	e.deps.Metrics.SetActiveSessions(n)
}

func (e *Engine) tracker(sessionID string) (*tracker.Tracker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tr, ok := e.trackers[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", session.ErrSessionNotFound, sessionID)
	}
	return tr, nil
}

// Performance returns the session's snapshot over window (<=0 for all).
func (e *Engine) Performance(sessionID string, window time.Duration) (tracker.PerformanceSnapshot, error) {
	tr, err := e.tracker(sessionID)
	if err != nil {
		return tracker.PerformanceSnapshot{}, err
	}
	return tr.PerformanceMetrics(window), nil
}

func (e *Engine) Analytics(sessionID string) (tracker.MarketAnalytics, error) {
	tr, err := e.tracker(sessionID)
	if err != nil {
		return tracker.MarketAnalytics{}, err
	}
	return tr.AnalyticsByMarketCondition(), nil
}

func (e *Engine) Equity(sessionID string) ([]tracker.EquityPoint, error) {
	tr, err := e.tracker(sessionID)
	if err != nil {
		return nil, err
	}
	return tr.EquityCurve(), nil
}

func (e *Engine) Adaptive(sessionID string) (learning.Snapshot, error) {
	cfg, ok := e.deps.Learner.Config(sessionID)
	if !ok {
		return learning.Snapshot{}, fmt.Errorf("%w: %s", session.ErrSessionNotFound, sessionID)
	}
	return cfg.Snapshot(), nil
}

// Decisions lists the session's audit records, newest first.
func (e *Engine) Decisions(ctx context.Context, sessionID string, limit int) ([]decision.Decision, error) {
	if _, err := e.deps.Sessions.Get(sessionID); err != nil {
		return nil, err
	}
	return e.deps.Stores.Audit.GetDecisions(ctx,
		decision.Filter{SessionID: sessionID},
		decision.QueryOptions{SortDesc: true, Limit: limit})
}

func (e *Engine) LearningHistory(ctx context.Context, sessionID string, limit int) ([]learning.Record, error) {
	if _, err := e.deps.Sessions.Get(sessionID); err != nil {
		return nil, err
	}
	return e.deps.Stores.Learning.ListLearningSessions(ctx, sessionID, limit)
}

// OverallPerformance summarises the ledgers of every session in completion
// order.
func (e *Engine) OverallPerformance() tracker.PerformanceSnapshot {
	e.mu.Lock()
	trackers := make([]*tracker.Tracker, 0, len(e.trackers))
	for _, tr := range e.trackers {
		trackers = append(trackers, tr)
	}
	e.mu.Unlock()

	var all []tracker.TradeOutcome
	for _, tr := range trackers {
		all = append(all, tr.Outcomes()...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CompletedAt.Before(all[j].CompletedAt) })
	snap := tracker.Summarize(all)
	snap.Window = "all"
	return snap
}

// ModelPerformance feeds registry snapshots.
func (e *Engine) ModelPerformance() registry.PerformanceMetrics {
	return registry.FromSnapshot(e.OverallPerformance())
}

// TechnicalMetrics reports the local scorer state and the mean exploration
// rate across sessions.
func (e *Engine) TechnicalMetrics() registry.TechnicalMetrics {
	var tm registry.TechnicalMetrics
	if e.deps.Local != nil {
		st := e.deps.Local.Stats()
		tm.Predictions = st.Predictions
		tm.Explorations = st.Explorations
		tm.Updates = st.Updates
		tm.LearningRate = st.LearningRate
		tm.WeightNorm = st.WeightNorm
	}
	sessions := e.deps.Sessions.List()
	n := 0
	for _, s := range sessions {
		if cfg, ok := e.deps.Learner.Config(s.ID); ok {
			tm.ExplorationRate += cfg.ExplorationRate()
			n++
		}
	}
	if n > 0 {
		tm.ExplorationRate /= float64(n)
	}
	return tm
}

// ModelStats is attached to every learning record.
func (e *Engine) ModelStats() map[string]any {
	tm := e.TechnicalMetrics()
	return map[string]any{
		"predictions":     tm.Predictions,
		"explorations":    tm.Explorations,
		"updates":         tm.Updates,
		"learningRate":    tm.LearningRate,
		"weightNorm":      tm.WeightNorm,
		"explorationRate": tm.ExplorationRate,
		"backends":        e.deps.Gateway.Backends(),
	}
}

func (e *Engine) ListSessions() []session.Session { return e.deps.Sessions.List() }

func (e *Engine) SessionSummary(sessionID string) (session.Summary, error) {
	return e.deps.Sessions.Summary(sessionID)
}

// Outcomes returns the session's settled trades, oldest first.
func (e *Engine) Outcomes(sessionID string) ([]tracker.TradeOutcome, error) {
	tr, err := e.tracker(sessionID)
	if err != nil {
		return nil, err
	}
	return tr.Outcomes(), nil
}
