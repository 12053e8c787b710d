package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultTick is how often the scheduler checks for due tasks.
const DefaultTick = 100 * time.Millisecond

// Task is the work fired by a schedule.
type Task func(ctx context.Context) error

type entry struct {
	name     string
	schedule Schedule
	task     Task
	lastRun  time.Time
	running  bool
}

// Scheduler fires named tasks when their schedule is due. A task that is
// still running when it comes due again is skipped for that round.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
	tick    time.Duration
	logger  *slog.Logger
	now     func() time.Time
	wg      sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTick sets the polling interval.
func WithTick(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScheduler creates an empty scheduler.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		entries: make(map[string]*entry),
		tick:    DefaultTick,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers task under name, replacing any previous entry. The first
// run is the schedule's next time after now.
func (s *Scheduler) Add(name string, sched Schedule, task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = &entry{
		name:     name,
		schedule: sched,
		task:     task,
		lastRun:  s.now(),
	}
}

// Remove unregisters name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, name)
}

// Next returns when name runs next.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return e.schedule.Next(e.lastRun), true
}

// Run polls until ctx is done, then waits for running tasks.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	defer s.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.fireDue(ctx)
		}
	}
}

func (s *Scheduler) fireDue(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for name, e := range s.entries {
		next := e.schedule.Next(e.lastRun)
		if now.Before(next) {
			continue
		}
		e.lastRun = now
		if e.running {
			s.logger.Warn("skipping scheduled task, previous run still active", "name", name)
			continue
		}
		e.running = true
		s.wg.Add(1)
		go s.runTask(ctx, e)
	}
}

func (s *Scheduler) runTask(ctx context.Context, e *entry) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		e.running = false
		s.mu.Unlock()
	}()

	start := time.Now()
	if err := e.task(ctx); err != nil {
		s.logger.Error("scheduled task failed", "name", e.name, "error", err)
		return
	}
	s.logger.Info("scheduled task finished", "name", e.name, "duration", time.Since(start))
}
