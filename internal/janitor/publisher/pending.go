package publisher

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// PublishPending implements publish_pending: iterate publish_ready runs
// (successful, not yet published) and run each through the state machine.
// Failures are logged and do not stop the sweep.
func (p *Publisher) PublishPending(ctx context.Context, limit int) (int, error) {
	runs, err := p.store.ListPublishReadyRuns(ctx, limit)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, run := range runs {
		if _, err := p.PublishRun(ctx, run); err != nil {
			p.log.WithFields(logrus.Fields{"run": run.ID, "codebase": run.Codebase}).
				WithError(err).Warn("publish_pending: run failed, continuing")
			continue
		}
		published++
	}
	return published, nil
}

// SweepAndPublish runs the reconciliation sweep followed by publish_pending,
// the pairing the scheduled ingress loop performs every tick.
func (p *Publisher) SweepAndPublish(ctx context.Context, pendingLimit int) (SweepResult, int, error) {
	sweep, err := p.Sweep(ctx)
	if err != nil {
		return sweep, 0, fmt.Errorf("reconciliation sweep: %w", err)
	}
	published, err := p.PublishPending(ctx, pendingLimit)
	if err != nil {
		return sweep, published, fmt.Errorf("publish_pending: %w", err)
	}
	return sweep, published, nil
}
