package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"getrader/internal/learning"
	"getrader/internal/logger"
	"getrader/internal/session"
	"getrader/internal/tracker"
)

// SimulationReport is the result of a batch run.
type SimulationReport struct {
	Session     session.Summary             `json:"session" yaml:"session"`
	Cycles      int                         `json:"cycles" yaml:"cycles"`
	Performance tracker.PerformanceSnapshot `json:"performance" yaml:"performance"`
	Adaptive    learning.Snapshot           `json:"adaptive" yaml:"adaptive"`
	Learning    []learning.Record           `json:"learning,omitempty" yaml:"learning,omitempty"`
	Elapsed     time.Duration               `json:"elapsedNs" yaml:"elapsed"`
}

// Simulate runs a session for the given number of cycles without waiting on
// settlement delays: each cycle's trades are settled right after it. The
// session is ended when the run finishes.
func (e *Engine) Simulate(ctx context.Context, req session.CreateRequest, cycles int) (SimulationReport, error) {
	if cycles <= 0 {
		return SimulationReport{}, fmt.Errorf("cycles must be > 0")
	}
	started := time.Now()
	s, err := e.StartSession(ctx, req)
	if err != nil {
		return SimulationReport{}, err
	}
	ran := 0
	for ran < cycles {
		if _, err := e.RunCycle(ctx, s.ID); err != nil {
			if errors.Is(err, ErrSessionNotRunning) {
				break
			}
			return SimulationReport{}, err
		}
		ran++
		e.settlement.Flush(s.ID)
		e.deps.Learner.Wait()
	}
	if _, err := e.EndSession(s.ID); err != nil && !errors.Is(err, session.ErrSessionCompleted) {
		return SimulationReport{}, err
	}

	rep := SimulationReport{Cycles: ran, Elapsed: time.Since(started)}
	if rep.Session, err = e.deps.Sessions.Summary(s.ID); err != nil {
		return SimulationReport{}, err
	}
	if rep.Performance, err = e.Performance(s.ID, 0); err != nil {
		return SimulationReport{}, err
	}
	if rep.Adaptive, err = e.Adaptive(s.ID); err != nil {
		return SimulationReport{}, err
	}
	rep.Learning, err = e.deps.Stores.Learning.ListLearningSessions(ctx, s.ID, 0)
	if err != nil {
		logger.Warnf("[engine] list learning records of %s: %v", s.ID, err)
	}
	logger.Infof("[engine] simulation %s finished: cycles=%d trades=%d net=%.0f",
		s.ID, ran, rep.Performance.TotalTrades, rep.Performance.NetProfit)
	return rep, nil
}
