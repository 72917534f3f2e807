package sla

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	logger "github.com/sirupsen/logrus"
)

// Scheduler runs the sweeper on a cron schedule.
type Scheduler struct {
	cfg     Config
	sweeper *Sweeper

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

func NewScheduler(cfg Config, sweeper *Sweeper) *Scheduler {
	return &Scheduler{cfg: cfg, sweeper: sweeper}
}

// StartWithContext registers the sweep job and starts the cron loop. Sweeps
// never overlap: a run still in progress makes the next tick a no-op.
func (s *Scheduler) StartWithContext(ctx context.Context) error {
	if s == nil || s.sweeper == nil || !s.cfg.SweepEnabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(s.cfg.SweepSchedule, func() {
		if _, err := s.sweeper.CheckSLABreach(runCtx); err != nil {
			logger.WithError(err).Error("Scheduled SLA sweep failed")
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("invalid SLA_SWEEP_SCHEDULE %q: %w", s.cfg.SweepSchedule, err)
	}

	c.Start()
	s.cron = c
	s.cancel = cancel
	s.running = true

	logger.WithField("schedule", s.cfg.SweepSchedule).Info("SLA sweeper scheduled")
	return nil
}

// StopWithContext stops scheduling new sweeps and waits for a running one,
// or for ctx to expire.
func (s *Scheduler) StopWithContext(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	c, cancel, wasRunning := s.cron, s.cancel, s.running
	s.cron, s.cancel, s.running = nil, nil, false
	s.mu.Unlock()
	if !wasRunning {
		return nil
	}

	done := c.Stop()
	select {
	case <-done.Done():
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}
