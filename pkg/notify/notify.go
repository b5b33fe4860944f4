// Package notify implements the Notification Fan-out (Component H): a
// multi-channel event dispatcher where each channel declares the event
// kinds it subscribes to and dispatch happens in parallel, never failing
// the caller on a channel-level error.
package notify

import "time"

// Severity is a notification's urgency, presentational only — it never
// drives routing decisions beyond the channel event filter.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is a platform-agnostic notification fanned out to every channel
// whose event filter matches Kind.
type Event struct {
	Kind         string
	DeploymentID string
	DeliveryID   string
	Service      string
	Partner      string
	Severity     Severity
	Message      string
	Timestamp    time.Time
}
