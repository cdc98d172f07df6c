// Package ingress runs the two event sources that drive publication: a
// periodic tick that sweeps existing proposals and publishes pending runs,
// and an event-driven listener reacting to worker results as they land.
// The scheduled half's lifecycle (Start/Stop, ticker, mutex-guarded
// running flag, WaitGroup) is grounded on the teacher's
// internal/app/services/automation/scheduler.go.
package ingress

import (
	"context"
	"sync"
	"time"

	"github.com/openjanitor/janitor/internal/janitor/publisher"
	"github.com/openjanitor/janitor/pkg/logger"
)

// ScheduledConfig tunes the periodic sweep loop.
type ScheduledConfig struct {
	Interval     time.Duration
	PendingLimit int
}

// DefaultScheduledConfig returns the periodic-loop defaults.
func DefaultScheduledConfig() ScheduledConfig {
	return ScheduledConfig{Interval: 5 * time.Minute, PendingLimit: 200}
}

// ScheduledLoop ticks every Interval, calling the publisher's reconciliation
// sweep followed by publish_pending.
type ScheduledLoop struct {
	pub *publisher.Publisher
	cfg ScheduledConfig
	log *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewScheduledLoop creates a ScheduledLoop over pub.
func NewScheduledLoop(pub *publisher.Publisher, cfg ScheduledConfig, log *logger.Logger) *ScheduledLoop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultScheduledConfig().Interval
	}
	if log == nil {
		log = logger.NewFromEnv("janitor-ingress")
	}
	return &ScheduledLoop{pub: pub, cfg: cfg, log: log}
}

// Start begins the background tick loop. Calling Start twice without an
// intervening Stop is a no-op.
func (s *ScheduledLoop) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.tick(runCtx)
			}
		}
	}()

	s.log.Info("ingress scheduled loop started")
}

// Stop cancels the tick loop and waits for the in-flight tick, if any, to
// finish or for ctx to expire.
func (s *ScheduledLoop) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info("ingress scheduled loop stopped")
	return nil
}

// Tick runs one sweep-and-publish pass synchronously, for --once mode.
func (s *ScheduledLoop) Tick(ctx context.Context) {
	s.tick(ctx)
}

func (s *ScheduledLoop) tick(ctx context.Context) {
	sweep, published, err := s.pub.SweepAndPublish(ctx, s.cfg.PendingLimit)
	if err != nil {
		s.log.WithError(err).Warn("ingress tick failed")
		return
	}
	s.log.WithFields(map[string]interface{}{
		"proposals_checked": sweep.Checked,
		"proposals_updated": sweep.Updated,
		"proposals_closed":  sweep.Closed,
		"conflict_refresh":  sweep.Refresh,
		"runs_published":    published,
	}).Info("ingress tick complete")
}
