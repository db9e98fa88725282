// Package jobs runs periodic maintenance tasks in the background.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task does one round of work and reports how many rows it touched.
type Task struct {
	Name    string
	Run     func(ctx context.Context) (int, error)
	Timeout time.Duration
}

// Scheduler runs every task once per interval, sequentially.
type Scheduler struct {
	mu       sync.RWMutex
	tasks    []Task
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewScheduler(interval time.Duration, logger *slog.Logger, tasks ...Task) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{tasks: tasks, interval: interval, logger: logger}
}

// Start begins the loop. The first round runs after one interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the current round to finish.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// RunOnce runs each task a single time. A failing task does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, t := range s.tasks {
		if ctx.Err() != nil {
			return
		}
		timeout := t.Timeout
		if timeout <= 0 {
			timeout = time.Minute
		}
		tctx, cancel := context.WithTimeout(ctx, timeout)
		n, err := t.Run(tctx)
		cancel()
		if err != nil {
			s.logger.Error("job failed", "job", t.Name, "error", err)
			continue
		}
		if n > 0 {
			s.logger.Info("job completed", "job", t.Name, "affected", n)
		}
	}
}
