package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"getrader/internal/logger"

	"github.com/google/uuid"
)

// Manager is the session arena. Callers always receive copies.
type Manager struct {
	mu       sync.Mutex
	defaults Config
	sessions map[string]*Session
	// prior 记录暂停前的运行状态，用于 Resume 恢复。
	prior map[string]Status
	onEnd []func(id string)
	now   func() time.Time
}

func NewManager(defaults Config) *Manager {
	return &Manager{
		defaults: defaults,
		sessions: make(map[string]*Session),
		prior:    make(map[string]Status),
		now:      time.Now,
	}
}

// OnEnd registers a hook fired (outside the lock) after a session ends.
func (m *Manager) OnEnd(fn func(id string)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.onEnd = append(m.onEnd, fn)
	m.mu.Unlock()
}

func (m *Manager) Create(req CreateRequest) Session {
	cfg := m.defaults
	cfg.Training = req.Training
	if req.MinProfitMargin != nil {
		cfg.MinProfitMargin = *req.MinProfitMargin
	}
	if req.MaxItemValue != nil {
		cfg.MaxItemValue = *req.MaxItemValue
	}
	if req.MaxTrades != nil {
		cfg.MaxTrades = *req.MaxTrades
	}
	if req.LearningFrequency != nil {
		cfg.LearningFrequency = *req.LearningFrequency
	}
	if req.EnableOnlineLearning != nil {
		cfg.EnableOnlineLearning = *req.EnableOnlineLearning
	}
	if req.ExplorationBoost != nil {
		cfg.ExplorationBoost = *req.ExplorationBoost
	}
	status := StatusActive
	if req.Training {
		status = StatusTraining
	}
	s := &Session{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Status:    status,
		StartTime: m.now(),
		Config:    cfg,
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	logger.Infof("[session] created %s status=%s", s.ID, s.Status)
	return *s
}

func (m *Manager) Get(id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return *s, nil
}

// List returns every session, oldest first.
func (m *Manager) List() []Session {
	m.mu.Lock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// UpdateMetrics adds delta to the session counters and recomputes the
// derived ratios. Completed sessions still accept updates so settlements
// already in flight are not lost.
func (m *Manager) UpdateMetrics(id string, delta MetricsDelta) (Session, error) {
	if delta.Episodes < 0 || delta.Decisions < 0 || delta.Trades < 0 || delta.SuccessfulTrades < 0 {
		return Session{}, ErrInvalidDelta
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	mt := &s.Metrics
	if delta.Reward != nil && (mt.TotalTrades == 0 || *delta.Reward > mt.BestReward) {
		mt.BestReward = *delta.Reward
	}
	mt.EpisodeCount += delta.Episodes
	mt.DecisionsMade += delta.Decisions
	mt.TotalTrades += delta.Trades
	mt.SuccessfulTrades += delta.SuccessfulTrades
	mt.TotalProfit += delta.Profit
	if mt.TotalTrades > 0 {
		mt.AverageReward = mt.TotalProfit / float64(mt.TotalTrades)
		mt.SuccessRate = float64(mt.SuccessfulTrades) / float64(mt.TotalTrades) * 100
	}
	return *s, nil
}

func (m *Manager) Pause(id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookupLocked(id)
	if err != nil {
		return Session{}, err
	}
	if !s.Status.Running() {
		return Session{}, fmt.Errorf("%w: pause from %s", ErrInvalidTransition, s.Status)
	}
	m.prior[id] = s.Status
	s.Status = StatusPaused
	return *s, nil
}

func (m *Manager) Resume(id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookupLocked(id)
	if err != nil {
		return Session{}, err
	}
	if s.Status != StatusPaused {
		return Session{}, fmt.Errorf("%w: resume from %s", ErrInvalidTransition, s.Status)
	}
	s.Status = m.prior[id]
	if s.Status == "" {
		s.Status = StatusActive
	}
	delete(m.prior, id)
	return *s, nil
}

// End marks the session COMPLETED. It is valid from any non-terminal
// status, including PAUSED.
func (m *Manager) End(id string) (Session, error) {
	m.mu.Lock()
	s, err := m.lookupLocked(id)
	if err != nil {
		m.mu.Unlock()
		return Session{}, err
	}
	end := m.now()
	s.Status = StatusCompleted
	s.EndTime = &end
	delete(m.prior, id)
	out := *s
	hooks := append([]func(string){}, m.onEnd...)
	m.mu.Unlock()

	for _, fn := range hooks {
		fn(id)
	}
	logger.Infof("[session] ended %s trades=%d profit=%.2f", id, out.Metrics.TotalTrades, out.Metrics.TotalProfit)
	return out, nil
}

// lookupLocked returns the mutable session, failing on unknown or completed
// sessions. Caller holds m.mu.
func (m *Manager) lookupLocked(id string) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if s.Status == StatusCompleted {
		return nil, fmt.Errorf("%w: %s", ErrSessionCompleted, id)
	}
	return s, nil
}

func (m *Manager) Summary(id string) (Summary, error) {
	s, err := m.Get(id)
	if err != nil {
		return Summary{}, err
	}
	end := m.now()
	if s.EndTime != nil {
		end = *s.EndTime
	}
	dur := end.Sub(s.StartTime)
	sum := Summary{
		Session:      s,
		DurationMs:   dur.Milliseconds(),
		FailedTrades: s.Metrics.TotalTrades - s.Metrics.SuccessfulTrades,
	}
	if hours := dur.Hours(); hours > 0 {
		sum.TradesPerHour = float64(s.Metrics.TotalTrades) / hours
	}
	if s.Metrics.TotalTrades > 0 {
		sum.ProfitPerTrade = s.Metrics.TotalProfit / float64(s.Metrics.TotalTrades)
	}
	return sum, nil
}

// CleanupOldSessions removes non-running sessions that started more than
// maxAge ago and returns how many were removed.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	cutoff := m.now().Add(-maxAge)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.Status.Running() || !s.StartTime.Before(cutoff) {
			continue
		}
		delete(m.sessions, id)
		delete(m.prior, id)
		removed++
	}
	if removed > 0 {
		logger.Infof("[session] cleanup removed %d sessions older than %s", removed, maxAge)
	}
	return removed
}
