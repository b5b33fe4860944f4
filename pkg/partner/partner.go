// Package partner implements the Partner Delivery Client (Component E):
// a polymorphic client over heterogeneous third-party partner APIs with
// per-partner authentication, rate-limit discipline, idempotent POST via
// the Idempotency Cache, retry/backoff, and inbound webhook signature
// verification.
package partner

import (
	"context"
	"encoding/json"
	"fmt"
)

// Record is a normalized outbound delivery payload.
type Record struct {
	Tenant  string
	Payload json.RawMessage
}

// Response is the normalized outcome of a Send call.
type Response struct {
	Accepted   bool
	ExternalID string
	Retryable  bool
	StatusCode int
	Body       json.RawMessage
	FromCache  bool
}

// TransientError wraps a retryable failure: 5xx, timeout, 429, network error.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError wraps a non-retryable failure: 4xx other than 429, or a
// schema-validation failure.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return fmt.Sprintf("permanent: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// AuthError wraps a 401 observed after an already-attempted token refresh.
type AuthError struct{ Err error }

func (e *AuthError) Error() string { return fmt.Sprintf("auth: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// Client is the capability set every partner-kind variant implements.
type Client interface {
	// Kind returns the partner identifier this client serves (e.g. "benevity").
	Kind() string

	// Send delivers record, honoring rate limiting, retry/backoff, and the
	// idempotency cache. idempotencyKey may be empty, in which case the
	// client derives one from the redacted payload.
	Send(ctx context.Context, tenant string, record Record, idempotencyKey string) (Response, error)

	// Verify checks an inbound webhook signature in constant time.
	Verify(signature string, payload []byte, secret string) bool
}

// Redactor transforms a payload to remove PII before the idempotency key
// is computed and before the payload is logged, per spec.md §4.E.5.
type Redactor interface {
	Redact(payload json.RawMessage) (json.RawMessage, error)
}

// NoopRedactor performs no redaction; used for partners/tenants with no
// redaction rules configured.
type NoopRedactor struct{}

func (NoopRedactor) Redact(payload json.RawMessage) (json.RawMessage, error) {
	return payload, nil
}
