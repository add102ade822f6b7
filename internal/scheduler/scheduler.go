// Package scheduler runs the periodic decision cycles and the delayed trade
// settlements of the engine.
package scheduler

import (
	"context"
	"time"

	"getrader/internal/logger"
)

// IntervalScheduler runs a task every Interval until its context is done.
type IntervalScheduler struct {
	Name           string
	Interval       time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewIntervalScheduler(ctx context.Context, name string, interval time.Duration) *IntervalScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &IntervalScheduler{
		Name:     name,
		Interval: interval,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

// Start blocks until the context is cancelled or the task asks to stop by
// returning false.
func (s *IntervalScheduler) Start(task func(ctx context.Context) bool) {
	if s == nil {
		return
	}
	if task == nil {
		logger.Warnf("IntervalScheduler[%s]: task is nil, exit", s.Name)
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("IntervalScheduler[%s]: invalid interval=%s, exit", s.Name, s.Interval)
		return
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}
	startAt := s.nowFn().UTC()
	logger.Infof("IntervalScheduler[%s]: started interval=%s run_immediately=%v at=%s",
		s.Name, s.Interval, s.RunImmediately, startAt.Format(time.RFC3339))

	if s.RunImmediately {
		if !task(s.ctx) {
			logger.Infof("IntervalScheduler[%s]: task finished, exit", s.Name)
			return
		}
	}
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	rounds := 0
	for {
		select {
		case <-s.ctx.Done():
			logger.Infof("IntervalScheduler[%s]: ctx done after %d rounds, uptime=%s",
				s.Name, rounds, s.nowFn().UTC().Sub(startAt).Truncate(time.Second))
			return
		case <-ticker.C:
		}
		rounds++
		if !task(s.ctx) {
			logger.Infof("IntervalScheduler[%s]: task finished after %d rounds, exit", s.Name, rounds)
			return
		}
	}
}
