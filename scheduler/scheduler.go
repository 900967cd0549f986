package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is a background job body. It must not block for long; a job that
// needs a deadline should carry its own context internally.
type TaskFn func()

// Scheduler runs named periodic and one-shot background jobs: the
// notification retention purge, presence reconciliation, and similar
// housekeeping. Registering a name again replaces the previous job.
type Scheduler struct {
	mu     sync.Mutex
	jobs   map[string]context.CancelFunc
	timers map[string]*time.Timer
	logger *zap.Logger

	root     context.Context
	shutdown context.CancelFunc
	stopOnce sync.Once
}

// New creates an empty Scheduler.
func New(logger *zap.Logger) *Scheduler {
	root, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:     make(map[string]context.CancelFunc),
		timers:   make(map[string]*time.Timer),
		logger:   logger,
		root:     root,
		shutdown: cancel,
	}
}

// AddTicker runs fn every interval until removed or the scheduler stops.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, ok := s.jobs[name]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(s.root)
	s.jobs[name] = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.run(name, fn)
			case <-ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("background job registered",
		zap.String("job", name), zap.Duration("interval", interval))
}

// AddDelay runs fn once after delay. Re-registering the name before it
// fires cancels the pending run.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[name]; ok {
		old.Stop()
	}
	s.timers[name] = time.AfterFunc(delay, func() {
		s.run(name, fn)
		s.mu.Lock()
		delete(s.timers, name)
		s.mu.Unlock()
	})
}

// run executes one job invocation, containing panics to that invocation.
func (s *Scheduler) run(name string, fn TaskFn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("background job panicked",
				zap.String("job", name), zap.Any("panic", r))
		}
	}()
	fn()
}

// Remove cancels the named job, periodic or pending one-shot. Unknown
// names are a no-op.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.jobs[name]; ok {
		cancel()
		delete(s.jobs, name)
	}
	if t, ok := s.timers[name]; ok {
		t.Stop()
		delete(s.timers, name)
	}
}

// Stop cancels every job. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(s.shutdown)
}

// ListTickers returns the names of registered periodic jobs, sorted.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
