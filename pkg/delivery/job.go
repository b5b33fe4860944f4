// Package delivery implements the Delivery Orchestrator (Component F):
// an at-least-once, idempotent pipeline that receives outbound records,
// fans them out to the Partner Delivery Client, records outcomes, and
// schedules replays under retry/backoff.
package delivery

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is a DeliveryJob's lifecycle state, per spec.md §3.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInFlight  Status = "in_flight"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusDead      Status = "dead"
)

// Job is a single outbound delivery attempt sequence. Once Status reaches
// StatusDelivered, Payload is frozen and never mutated again.
type Job struct {
	ID             uuid.UUID
	Tenant         string
	Partner        string
	Payload        json.RawMessage
	IdempotencyKey string
	Attempts       int
	Status         Status
	LastError      *string
	LastAttemptAt  *time.Time
	NextEligibleAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
