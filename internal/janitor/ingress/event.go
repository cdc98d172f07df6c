package ingress

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/openjanitor/janitor/internal/janitor/domain"
	"github.com/openjanitor/janitor/internal/janitor/publisher"
	"github.com/openjanitor/janitor/internal/platform/pgnotify"
	"github.com/openjanitor/janitor/pkg/logger"
)

// ResultChannel is the pgnotify channel a stored worker result is announced
// on, consumed here. Nothing in this repository publishes on it.
const ResultChannel = "result"

// EventLoop reacts to worker results as they land, debounced per campaign
// so at most one publish task per campaign is in-flight at a time; a
// result arriving for a campaign with a task already running is left for
// the next scheduled tick to pick up.
type EventLoop struct {
	bus *pgnotify.Bus
	pub *publisher.Publisher
	log *logger.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewEventLoop creates an EventLoop subscribing to bus.
func NewEventLoop(bus *pgnotify.Bus, pub *publisher.Publisher, log *logger.Logger) *EventLoop {
	if log == nil {
		log = logger.NewFromEnv("janitor-ingress")
	}
	return &EventLoop{bus: bus, pub: pub, log: log, inFlight: make(map[string]bool)}
}

// Start subscribes to ResultChannel. Subsequent results are handled
// asynchronously by the bus's own listener goroutine.
func (e *EventLoop) Start() error {
	return e.bus.Subscribe(ResultChannel, e.handle)
}

func (e *EventLoop) handle(ctx context.Context, event pgnotify.Event) error {
	var run domain.Run
	if err := json.Unmarshal(event.Payload, &run); err != nil {
		e.log.WithError(err).Warn("ingress: malformed result event")
		return nil
	}
	if !run.Success() {
		return nil
	}

	if !e.claim(run.Campaign) {
		e.log.WithFields(map[string]interface{}{"campaign": run.Campaign}).
			Debug("ingress: campaign already has a publish task in flight, deferring to next tick")
		return nil
	}
	defer e.release(run.Campaign)

	if _, err := e.pub.PublishRun(ctx, run); err != nil {
		e.log.WithFields(map[string]interface{}{"run": run.ID, "codebase": run.Codebase}).
			WithError(err).Warn("ingress: publish on result failed")
	}
	return nil
}

func (e *EventLoop) claim(campaign string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[campaign] {
		return false
	}
	e.inFlight[campaign] = true
	return true
}

func (e *EventLoop) release(campaign string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, campaign)
}
