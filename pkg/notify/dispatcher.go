package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/flightline-dev/flightline/internal/telemetry"
)

// Dispatcher fans an Event out to every registered channel whose filter
// matches, in parallel, waiting for every outcome before returning.
// Channel failures are logged and never surfaced to the caller.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher over registry.
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, logger: logger}
}

// Send dispatches event to every subscribed channel concurrently and
// blocks until all have returned, per spec.md §4.H.
func (d *Dispatcher) Send(ctx context.Context, event Event) {
	channels := d.registry.All()
	var wg sync.WaitGroup
	for _, ch := range channels {
		if !Matches(ch, event) {
			continue
		}
		wg.Add(1)
		go func(c Channel) {
			defer wg.Done()
			outcome := "ok"
			if err := c.Send(ctx, event); err != nil {
				outcome = "error"
				d.logger.Error("notification channel send failed",
					"channel", c.Name(), "event_kind", event.Kind, "error", err)
			}
			telemetry.NotificationsTotal.WithLabelValues(c.Name(), outcome).Inc()
		}(ch)
	}
	wg.Wait()
}
