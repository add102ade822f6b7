package scheduler

import (
	"sort"
	"sync"
	"time"

	"getrader/internal/logger"
)

// Handle cancels one scheduled settlement.
type Handle struct {
	id    uint64
	group string
	s     *Settlement
}

// Cancel stops the task if it has not started. It reports whether the task
// was removed.
func (h *Handle) Cancel() bool {
	if h == nil || h.s == nil {
		return false
	}
	return h.s.cancel(h.group, h.id)
}

type pendingTask struct {
	timer *time.Timer
	fn    func()
}

// Settlement schedules delayed tasks grouped by session. Tasks of a group
// can be cancelled together when the session ends; Stop cancels what is
// pending and waits for running tasks.
type Settlement struct {
	mu      sync.Mutex
	nextID  uint64
	groups  map[string]map[uint64]*pendingTask
	running sync.WaitGroup
	stopped bool
}

func NewSettlement() *Settlement {
	return &Settlement{groups: make(map[string]map[uint64]*pendingTask)}
}

// Schedule runs fn after delay unless cancelled first. It returns nil once
// the scheduler is stopped.
func (s *Settlement) Schedule(group string, delay time.Duration, fn func()) *Handle {
	if fn == nil {
		return nil
	}
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.nextID++
	id := s.nextID
	task := &pendingTask{fn: fn}
	if s.groups[group] == nil {
		s.groups[group] = make(map[uint64]*pendingTask)
	}
	s.groups[group][id] = task
	s.running.Add(1)
	task.timer = time.AfterFunc(delay, func() { s.run(group, id) })
	return &Handle{id: id, group: group, s: s}
}

func (s *Settlement) run(group string, id uint64) bool {
	task, ok := s.claim(group, id)
	if !ok {
		return false
	}
	defer s.running.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[settlement] task %s/%d panic: %v", group, id, r)
		}
	}()
	task.fn()
	return true
}

// claim removes the task from the pending set. Exactly one of claim and
// cancel wins for a given task.
func (s *Settlement) claim(group string, id uint64) (*pendingTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := s.groups[group]
	task, ok := tasks[id]
	if !ok {
		return nil, false
	}
	delete(tasks, id)
	if len(tasks) == 0 {
		delete(s.groups, group)
	}
	return task, true
}

func (s *Settlement) cancel(group string, id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := s.groups[group]
	task, ok := tasks[id]
	if !ok {
		return false
	}
	task.timer.Stop()
	delete(tasks, id)
	if len(tasks) == 0 {
		delete(s.groups, group)
	}
	s.running.Done()
	return true
}

// CancelGroup cancels every pending task of the group and returns how many
// were cancelled.
func (s *Settlement) CancelGroup(group string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := s.groups[group]
	for _, task := range tasks {
		task.timer.Stop()
		s.running.Done()
	}
	delete(s.groups, group)
	if len(tasks) > 0 {
		logger.Infof("[settlement] cancelled %d pending tasks of %s", len(tasks), group)
	}
	return len(tasks)
}

// Pending returns the number of tasks not yet started in group, or in all
// groups when group is empty.
func (s *Settlement) Pending(group string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if group != "" {
		return len(s.groups[group])
	}
	n := 0
	for _, tasks := range s.groups {
		n += len(tasks)
	}
	return n
}

// Stop cancels all pending tasks, rejects new ones and waits for tasks
// already running.
func (s *Settlement) Stop() {
	s.mu.Lock()
	s.stopped = true
	groups := make([]string, 0, len(s.groups))
	for g := range s.groups {
		groups = append(groups, g)
	}
	s.mu.Unlock()
	for _, g := range groups {
		s.CancelGroup(g)
	}
	s.running.Wait()
}

// Flush runs every pending task of group immediately on the caller's
// goroutine, in scheduling order, and returns how many ran. Used by the
// batch simulator to settle a cycle without waiting.
func (s *Settlement) Flush(group string) int {
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.groups[group]))
	for id, task := range s.groups[group] {
		task.timer.Stop()
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	n := 0
	for _, id := range ids {
		if s.run(group, id) {
			n++
		}
	}
	return n
}
