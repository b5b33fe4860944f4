package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flightline-dev/flightline/pkg/idempotency"
	"github.com/flightline-dev/flightline/pkg/notify"
	"github.com/flightline-dev/flightline/pkg/partner"
)

// Clients resolves a partner kind to the client that delivers to it.
type Clients interface {
	Get(kind string) (partner.Client, error)
}

// Config is the Delivery Orchestrator's tunables, sourced from
// internal/config.Config.
type Config struct {
	Concurrency  int
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// backoffFor is the fixed schedule spec.md §4.F step 4 calls "backoff(attempts)":
// the same base/multiplier/cap shape as pkg/partner's retry policy, applied
// between separate Deliver/engine-tick attempts rather than within one call.
func backoffFor(attempts int) time.Duration {
	d := time.Second
	for i := 0; i < attempts; i++ {
		d *= 2
		if d > 30*time.Second {
			return 30 * time.Second
		}
	}
	return d
}

// Service implements spec.md §4.F's Deliver/Replay operations.
type Service struct {
	store    *Store
	clients  Clients
	cache    *idempotency.Cache
	dispatch *notify.Dispatcher
	cfg      Config
	logger   *slog.Logger
	keys     *keyMutex
}

// NewService creates a delivery Service. Its keyMutex is shared with Engine
// (see NewEngine) so the synchronous Deliver path and the async retry path
// serialize against each other, not just against themselves.
func NewService(store *Store, clients Clients, cache *idempotency.Cache, dispatch *notify.Dispatcher, cfg Config, logger *slog.Logger) *Service {
	return &Service{store: store, clients: clients, cache: cache, dispatch: dispatch, cfg: cfg, logger: logger, keys: newKeyMutex()}
}

// Deliver receives a single outbound record and runs it through the steps
// in spec.md §4.F: validate, resolve, cache lookup, send, record outcome.
func (s *Service) Deliver(ctx context.Context, tenant, partnerKind string, payload json.RawMessage) (Job, error) {
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		job, createErr := s.store.Create(ctx, tenant, partnerKind, payload, "")
		if createErr != nil {
			return Job{}, fmt.Errorf("recording invalid payload: %w", createErr)
		}
		job.Status = StatusDead
		errMsg := fmt.Sprintf("invalid payload: %v", err)
		job.LastError = &errMsg
		_ = s.store.Update(ctx, job)
		s.notifyCritical(ctx, job, "delivery_validation_failed", errMsg)
		return job, fmt.Errorf("validating payload: %w", err)
	}

	key, err := idempotency.Key(partnerKind, decoded, tenant)
	if err != nil {
		return Job{}, fmt.Errorf("deriving idempotency key: %w", err)
	}

	job, err := s.store.Create(ctx, tenant, partnerKind, payload, key)
	if err != nil {
		return Job{}, fmt.Errorf("creating delivery job: %w", err)
	}

	unlock := s.keys.Lock(jobKey(tenant, partnerKind, key))
	defer unlock()

	if cached, ok := s.cache.Lookup(ctx, partnerKind, key); ok {
		job.Status = StatusDelivered
		job.Payload = cached.Body
		now := time.Now()
		job.LastAttemptAt = &now
		if err := s.store.Update(ctx, job); err != nil {
			s.logger.Error("recording cache-hit delivery", "job_id", job.ID, "error", err)
		}
		return job, nil
	}

	client, err := s.clients.Get(partnerKind)
	if err != nil {
		job.Status = StatusDead
		errMsg := err.Error()
		job.LastError = &errMsg
		_ = s.store.Update(ctx, job)
		s.notifyCritical(ctx, job, "delivery_no_client", errMsg)
		return job, err
	}

	return s.attempt(ctx, job, client)
}

// attempt performs one send against a partner client and records the
// resulting job state.
func (s *Service) attempt(ctx context.Context, job Job, client partner.Client) (Job, error) {
	maxAttempts := s.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	job.Status = StatusInFlight
	job.Attempts++
	now := time.Now()
	job.LastAttemptAt = &now
	if err := s.store.Update(ctx, job); err != nil {
		s.logger.Error("marking job in-flight", "job_id", job.ID, "error", err)
	}

	resp, err := client.Send(ctx, job.Tenant, partner.Record{Tenant: job.Tenant, Payload: job.Payload}, job.IdempotencyKey)
	switch e := err.(type) {
	case nil:
		job.Status = StatusDelivered
		if resp.Body != nil {
			job.Payload = resp.Body
		}
		if err := s.store.Update(ctx, job); err != nil {
			s.logger.Error("recording delivered job", "job_id", job.ID, "error", err)
		}
		return job, nil

	case *partner.TransientError:
		msg := e.Error()
		job.LastError = &msg
		if job.Attempts < maxAttempts {
			next := time.Now().Add(backoffFor(job.Attempts))
			job.NextEligibleAt = &next
			job.Status = StatusPending
		} else {
			job.Status = StatusDead
			s.notifyCritical(ctx, job, "delivery_exhausted", msg)
		}
		if err := s.store.Update(ctx, job); err != nil {
			s.logger.Error("recording transient failure", "job_id", job.ID, "error", err)
		}
		return job, e

	case *partner.PermanentError:
		msg := e.Error()
		job.Status = StatusFailed
		job.LastError = &msg
		if err := s.store.Update(ctx, job); err != nil {
			s.logger.Error("recording permanent failure", "job_id", job.ID, "error", err)
		}
		s.notifyWarning(ctx, job, "delivery_failed", msg)
		return job, e

	default:
		msg := err.Error()
		job.LastError = &msg
		job.Status = StatusPending
		next := time.Now().Add(backoffFor(job.Attempts))
		job.NextEligibleAt = &next
		if err := s.store.Update(ctx, job); err != nil {
			s.logger.Error("recording unexpected failure", "job_id", job.ID, "error", err)
		}
		return job, err
	}
}

// Replay reconstructs a new attempt sequence from a job's frozen payload.
// force bypasses the idempotency cache, matching spec.md §4.F step 5's
// operator-only escape hatch.
func (s *Service) Replay(ctx context.Context, jobID uuid.UUID, force bool) (Job, error) {
	original, err := s.store.Get(ctx, jobID)
	if err != nil {
		return Job{}, fmt.Errorf("getting job to replay: %w", err)
	}

	unlock := s.keys.Lock(jobKey(original.Tenant, original.Partner, original.IdempotencyKey))
	defer unlock()

	if !force {
		if cached, ok := s.cache.Lookup(ctx, original.Partner, original.IdempotencyKey); ok {
			replay, createErr := s.store.Create(ctx, original.Tenant, original.Partner, original.Payload, original.IdempotencyKey)
			if createErr != nil {
				return Job{}, fmt.Errorf("creating replay job: %w", createErr)
			}
			replay.Status = StatusDelivered
			replay.Payload = cached.Body
			_ = s.store.Update(ctx, replay)
			return replay, nil
		}
	}

	replay, err := s.store.Create(ctx, original.Tenant, original.Partner, original.Payload, original.IdempotencyKey)
	if err != nil {
		return Job{}, fmt.Errorf("creating replay job: %w", err)
	}

	client, err := s.clients.Get(original.Partner)
	if err != nil {
		replay.Status = StatusDead
		errMsg := err.Error()
		replay.LastError = &errMsg
		_ = s.store.Update(ctx, replay)
		return replay, err
	}

	return s.attempt(ctx, replay, client)
}

func (s *Service) notifyCritical(ctx context.Context, job Job, kind, msg string) {
	if s.dispatch == nil {
		return
	}
	s.dispatch.Send(ctx, notify.Event{
		Kind: kind, DeliveryID: job.ID.String(), Partner: job.Partner,
		Severity: notify.SeverityCritical, Message: msg, Timestamp: time.Now(),
	})
}

func (s *Service) notifyWarning(ctx context.Context, job Job, kind, msg string) {
	if s.dispatch == nil {
		return
	}
	s.dispatch.Send(ctx, notify.Event{
		Kind: kind, DeliveryID: job.ID.String(), Partner: job.Partner,
		Severity: notify.SeverityWarning, Message: msg, Timestamp: time.Now(),
	})
}
