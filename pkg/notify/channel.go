package notify

import "context"

// Channel is a single notification sink: Slack, PagerDuty, email, or any
// future destination.
type Channel interface {
	// Name returns the channel identifier ("slack", "pagerduty", "email").
	Name() string

	// Events returns the event kinds this channel subscribes to. A single
	// "all" entry matches every event kind.
	Events() []string

	// Send delivers event to the channel. A returned error is logged by the
	// dispatcher and never propagated to the caller of Dispatcher.Send.
	Send(ctx context.Context, event Event) error
}

// Matches reports whether event.Kind is in the channel's configured filter.
func Matches(channel Channel, event Event) bool {
	for _, k := range channel.Events() {
		if k == "all" || k == event.Kind {
			return true
		}
	}
	return false
}
