package worker

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is one unit of periodic work.
type Task func(ctx context.Context) error

// Scheduler runs a Task on a fixed period until its context is cancelled.
// Runs never overlap: a tick or trigger that arrives while the task is
// running is coalesced into at most one follow-up run.
type Scheduler struct {
	name     string
	interval time.Duration
	task     Task
	logger   *zap.Logger
	trigger  chan struct{}
	running  atomic.Bool
}

// NewScheduler builds a scheduler. The task is not started until Run.
func NewScheduler(name string, interval time.Duration, task Task, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		name:     name,
		interval: interval,
		task:     task,
		logger:   logger.With(zap.String("scheduler", name)),
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger asks for a run as soon as possible without waiting for the next tick.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run executes the task once immediately and then on every tick or trigger,
// returning when ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.trigger:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs the task unless a run is already in progress. It reports
// whether the task ran. A task error is logged and does not stop the loop.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	defer s.running.Store(false)

	if ctx.Err() != nil {
		return false
	}
	if err := s.task(ctx); err != nil {
		s.logger.Warn("scheduled task failed", zap.Error(err))
	}
	return true
}
