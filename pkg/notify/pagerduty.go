package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const pagerDutyEventsURL = "https://events.pagerduty.com/v2/enqueue"

// PagerDutyChannel posts Events API v2 alerts. No PagerDuty SDK appears
// anywhere in the retrieved pack, so this is a plain JSON POST carrying the
// routing key in its body rather than a generated client.
type PagerDutyChannel struct {
	routingKey string
	events     []string
	http       *http.Client
}

// NewPagerDutyChannel builds a PagerDutyChannel. If routingKey is empty,
// Send is a no-op.
func NewPagerDutyChannel(routingKey string, events []string) *PagerDutyChannel {
	return &PagerDutyChannel{
		routingKey: routingKey,
		events:     events,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *PagerDutyChannel) Name() string     { return "pagerduty" }
func (p *PagerDutyChannel) Events() []string { return p.events }

func pagerDutySeverity(s Severity) string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

func (p *PagerDutyChannel) Send(ctx context.Context, event Event) error {
	if p.routingKey == "" {
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"routing_key":  p.routingKey,
		"event_action": "trigger",
		"dedup_key":    event.DeploymentID + ":" + event.DeliveryID + ":" + event.Kind,
		"payload": map[string]any{
			"summary":  event.Message,
			"source":   event.Service,
			"severity": pagerDutySeverity(event.Severity),
			"custom_details": map[string]any{
				"deployment_id": event.DeploymentID,
				"delivery_id":   event.DeliveryID,
				"partner":       event.Partner,
				"kind":          event.Kind,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("marshaling pagerduty payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pagerDutyEventsURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building pagerduty request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting to pagerduty: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("pagerduty returned status %d", resp.StatusCode)
	}
	return nil
}
