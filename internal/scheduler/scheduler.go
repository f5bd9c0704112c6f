// Package scheduler runs named periodic tasks with per-tick failure isolation.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// TaskFunc is one tick of a periodic task.
type TaskFunc func(ctx context.Context) error

// task is a named periodic job.
type task struct {
	name     string
	interval time.Duration
	fn       TaskFunc
}

// Scheduler owns a set of named periodic tasks, each running on its own
// ticker. A failing or panicking tick is logged and isolated; it never
// halts the task's loop or any other task.
type Scheduler struct {
	mu      sync.Mutex
	tasks   []task
	started bool
	logger  *log.Logger
	wg      sync.WaitGroup
}

// New creates an empty scheduler.
func New(logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{logger: logger}
}

// Add registers a named periodic task. Must be called before Run.
func (s *Scheduler) Add(name string, interval time.Duration, fn TaskFunc) error {
	if name == "" || interval <= 0 || fn == nil {
		return fmt.Errorf("invalid task %q", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already running, cannot add %q", name)
	}
	s.tasks = append(s.tasks, task{name: name, interval: interval, fn: fn})
	return nil
}

// Run launches all registered tasks and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.started = true
	tasks := s.tasks
	s.mu.Unlock()

	for _, t := range tasks {
		s.wg.Add(1)
		go s.loop(ctx, t)
	}

	s.logger.Printf("scheduler started: %d tasks", len(tasks))
	<-ctx.Done()
	s.wg.Wait()
	s.logger.Println("scheduler stopped")
	return ctx.Err()
}

// loop drives one task's ticker until shutdown.
func (s *Scheduler) loop(ctx context.Context, t task) {
	defer s.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, t)
		}
	}
}

// runOnce executes a single tick, converting panics into logged errors.
func (s *Scheduler) runOnce(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("task %s panicked: %v", t.name, r)
		}
	}()

	if err := t.fn(ctx); err != nil {
		s.logger.Printf("task %s: %v", t.name, err)
	}
}
