// Package memstore keeps every persisted record in process memory. It is
// the "memory" store driver and the fixture store of the engine tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"getrader/internal/decision"
	"getrader/internal/learning"
	"getrader/internal/registry"
	"getrader/internal/tracker"

	"github.com/google/uuid"
)

type Store struct {
	mu        sync.RWMutex
	decisions map[string]decision.Decision
	order     []string
	outcomes  []tracker.TradeOutcome
	records   []learning.Record
	models    map[string]registry.ModelMetadata
}

var (
	_ decision.AuditStore  = (*Store)(nil)
	_ tracker.OutcomeSink  = (*Store)(nil)
	_ learning.RecordStore = (*Store)(nil)
	_ registry.Store       = (*Store)(nil)
)

func New() *Store {
	return &Store{
		decisions: make(map[string]decision.Decision),
		models:    make(map[string]registry.ModelMetadata),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) SaveDecision(_ context.Context, d decision.Decision) (string, error) {
	if strings.TrimSpace(d.ID) == "" {
		d.ID = uuid.NewString()
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.decisions[d.ID]; ok {
		return "", fmt.Errorf("decision %s already saved", d.ID)
	}
	s.decisions[d.ID] = cloneDecision(d)
	s.order = append(s.order, d.ID)
	return d.ID, nil
}

func (s *Store) UpdateDecisionOutcome(_ context.Context, id string, o decision.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.decisions[id]
	if !ok {
		return fmt.Errorf("%w: %s", decision.ErrDecisionNotFound, id)
	}
	if d.Outcome != nil {
		return fmt.Errorf("%w: %s", decision.ErrOutcomeAttached, id)
	}
	d.Outcome = &o
	s.decisions[id] = d
	return nil
}

func (s *Store) GetDecisions(_ context.Context, f decision.Filter, opts decision.QueryOptions) ([]decision.Decision, error) {
	s.mu.RLock()
	out := make([]decision.Decision, 0, len(s.order))
	for _, id := range s.order {
		d := s.decisions[id]
		if f.SessionID != "" && d.SessionID != f.SessionID {
			continue
		}
		if !f.StartTime.IsZero() && d.Timestamp.Before(f.StartTime) {
			continue
		}
		out = append(out, cloneDecision(d))
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if opts.SortDesc {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *Store) SaveTradeOutcome(_ context.Context, o tracker.TradeOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
	return nil
}

// ListTradeOutcomes returns a session's settled trades, oldest first.
func (s *Store) ListTradeOutcomes(_ context.Context, sessionID string, limit int) ([]tracker.TradeOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []tracker.TradeOutcome
	for _, o := range s.outcomes {
		if o.SessionID != sessionID {
			continue
		}
		out = append(out, o)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) SaveLearningSession(_ context.Context, rec learning.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// ListLearningSessions returns records newest first.
func (s *Store) ListLearningSessions(_ context.Context, sessionID string, limit int) ([]learning.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []learning.Record
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if sessionID != "" && rec.SessionID != sessionID {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func cloneDecision(d decision.Decision) decision.Decision {
	if d.Outcome != nil {
		o := *d.Outcome
		d.Outcome = &o
	}
	return d
}
