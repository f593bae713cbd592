package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is the function signature for scheduled tasks.
type TaskFn func()

type job struct {
	cancel chan struct{}
	once   sync.Once
}

func (j *job) stop() {
	j.once.Do(func() { close(j.cancel) })
}

// Scheduler runs named periodic and one-shot tasks. Registering a name that
// already exists replaces the previous task.
type Scheduler struct {
	mu      sync.Mutex
	periods map[string]*job
	oneoffs map[string]*job
	logger  *zap.Logger
	stopped chan struct{}
	stopOne sync.Once
}

// New creates a Scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		periods: make(map[string]*job),
		oneoffs: make(map[string]*job),
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

// run invokes fn, confining panics to the task.
func (s *Scheduler) run(name string, fn TaskFn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked",
				zap.String("task", name),
				zap.Any("panic", r))
		}
	}()
	fn()
}

// AddTicker runs fn every interval until removed or the scheduler stops.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	j := &job{cancel: make(chan struct{})}

	s.mu.Lock()
	if old, ok := s.periods[name]; ok {
		old.stop()
	}
	s.periods[name] = j
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.run(name, fn)
			case <-j.cancel:
				return
			case <-s.stopped:
				return
			}
		}
	}()

	s.logger.Info("scheduled task registered",
		zap.String("name", name),
		zap.Duration("interval", interval))
}

// AddDelay runs fn once after delay, unless removed first.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn TaskFn) {
	j := &job{cancel: make(chan struct{})}

	s.mu.Lock()
	if old, ok := s.oneoffs[name]; ok {
		old.stop()
	}
	s.oneoffs[name] = j
	s.mu.Unlock()

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			s.run(name, fn)
			s.mu.Lock()
			if s.oneoffs[name] == j {
				delete(s.oneoffs, name)
			}
			s.mu.Unlock()
		case <-j.cancel:
		case <-s.stopped:
		}
	}()
}

// Remove cancels the named task, whether periodic or one-shot.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.periods[name]; ok {
		j.stop()
		delete(s.periods, name)
	}
	if j, ok := s.oneoffs[name]; ok {
		j.stop()
		delete(s.oneoffs, name)
	}
}

// Stop cancels every task. The scheduler cannot be restarted.
func (s *Scheduler) Stop() {
	s.stopOne.Do(func() { close(s.stopped) })
}

// ListTickers returns the names of the registered periodic tasks.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.periods))
	for name := range s.periods {
		names = append(names, name)
	}
	return names
}
