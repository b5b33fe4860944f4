package notify

import (
	"context"
	"fmt"

	goslack "github.com/slack-go/slack"
)

// severityColor returns the Slack attachment side-bar color for a
// severity. Purely presentational, per spec.md §4.H.
func severityColor(s Severity) string {
	switch s {
	case SeverityCritical:
		return "#d32f2f"
	case SeverityWarning:
		return "#f9a825"
	default:
		return "#2e7d32"
	}
}

func severityEmoji(s Severity) string {
	switch s {
	case SeverityCritical:
		return ":rotating_light:"
	case SeverityWarning:
		return ":warning:"
	default:
		return ":information_source:"
	}
}

// SlackChannel posts notifications to a single configured Slack channel.
type SlackChannel struct {
	client  *goslack.Client
	channel string
	events  []string
}

// NewSlackChannel builds a SlackChannel. If botToken is empty, Send is a
// no-op (useful for local dev without Slack wired up).
func NewSlackChannel(botToken, channel string, events []string) *SlackChannel {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &SlackChannel{client: client, channel: channel, events: events}
}

func (s *SlackChannel) Name() string     { return "slack" }
func (s *SlackChannel) Events() []string { return s.events }

func (s *SlackChannel) Send(ctx context.Context, event Event) error {
	if s.client == nil || s.channel == "" {
		return nil
	}

	text := fmt.Sprintf("%s *%s*: %s", severityEmoji(event.Severity), event.Kind, event.Message)
	attachment := goslack.Attachment{
		Color: severityColor(event.Severity),
		Fields: []goslack.AttachmentField{
			{Title: "Service", Value: event.Service, Short: true},
			{Title: "Partner", Value: event.Partner, Short: true},
			{Title: "Deployment", Value: event.DeploymentID, Short: true},
			{Title: "Delivery", Value: event.DeliveryID, Short: true},
		},
	}

	_, _, err := s.client.PostMessageContext(ctx, s.channel,
		goslack.MsgOptionText(text, false),
		goslack.MsgOptionAttachments(attachment),
	)
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	return nil
}
