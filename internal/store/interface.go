// Package store selects and opens the persistence backend.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"getrader/internal/decision"
	"getrader/internal/learning"
	"getrader/internal/logger"
	"getrader/internal/registry"
	"getrader/internal/store/gormstore"
	"getrader/internal/store/learninglog"
	"getrader/internal/store/memstore"
	"getrader/internal/tracker"
)

// LearningHistory lists persisted learning passes, newest first.
type LearningHistory interface {
	learning.RecordStore
	ListLearningSessions(ctx context.Context, sessionID string, limit int) ([]learning.Record, error)
}

// OutcomeLog persists and lists settled trades.
type OutcomeLog interface {
	tracker.OutcomeSink
	ListTradeOutcomes(ctx context.Context, sessionID string, limit int) ([]tracker.TradeOutcome, error)
}

// Stores is the set of persistence collaborators used by the engine.
type Stores struct {
	Audit    decision.AuditStore
	Outcomes OutcomeLog
	Learning LearningHistory
	Models   registry.Store

	closers []func() error
}

// Close closes every opened backend.
func (s *Stores) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Memory returns stores backed by one in-process memstore.
func Memory() *Stores {
	mem := memstore.New()
	return &Stores{Audit: mem, Outcomes: mem, Learning: mem, Models: mem, closers: []func() error{mem.Close}}
}

// Open builds the stores for driver "memory" or "sqlite". With sqlite the
// gorm database holds decisions, outcomes and models; learning records go
// to learningPath, or share the gorm connection when the paths match.
func Open(driver, path, learningPath string) (*Stores, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "memory":
		return Memory(), nil
	case "sqlite":
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
	gs, err := gormstore.NewGormStore(path)
	if err != nil {
		return nil, fmt.Errorf("open gorm store: %w", err)
	}
	out := &Stores{Audit: gs, Outcomes: gs, Models: gs, closers: []func() error{gs.Close}}

	var ls *learninglog.Store
	if strings.TrimSpace(learningPath) == "" || learningPath == path {
		sqlDB, err := gs.SQLDB()
		if err != nil {
			_ = out.Close()
			return nil, err
		}
		ls = &learninglog.Store{}
		if err := ls.UseExternalDB(sqlDB); err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("share learning log db: %w", err)
		}
	} else {
		ls, err = learninglog.NewStore(learningPath)
		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("open learning log: %w", err)
		}
	}
	out.Learning = ls
	out.closers = append(out.closers, ls.Close)
	logger.Infof("[store] sqlite stores ready path=%s learning=%s", path, learningPath)
	return out, nil
}
