package canary

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flightline-dev/flightline/internal/config"
	"github.com/flightline-dev/flightline/internal/telemetry"
	"github.com/flightline-dev/flightline/pkg/metricsource"
	"github.com/flightline-dev/flightline/pkg/notify"
)

// Router is the subset of pkg/router.Router the controller depends on.
type Router interface {
	SetPercentage(ctx context.Context, flag, region string, fraction float64) error
	GetPercentage(ctx context.Context, flag, region string) (float64, error)
}

// MetricSource is the subset of pkg/metricsource.Client the controller
// depends on.
type MetricSource interface {
	QueryBundle(ctx context.Context, b metricsource.Bundle, labels map[string]string) (metricsource.Snapshot, error)
}

// ErrServiceNotCanaryEnabled is returned by Start when the target service
// has no enabled policy.
type ErrServiceNotCanaryEnabled struct{ Service string }

func (e ErrServiceNotCanaryEnabled) Error() string {
	return fmt.Sprintf("service %q is not canary-enabled", e.Service)
}

// ErrRegionNotAllowed is returned by Start when the policy's region
// allow-list excludes the requested region.
type ErrRegionNotAllowed struct{ Service, Region string }

func (e ErrRegionNotAllowed) Error() string {
	return fmt.Sprintf("region %q is not permitted for service %q", e.Region, e.Service)
}

// ErrNoStages is returned by Start when a service has no configured stage
// table.
type ErrNoStages struct{ Service string }

func (e ErrNoStages) Error() string {
	return fmt.Sprintf("service %q has no configured rollout stages", e.Service)
}

// Service is the Canary Controller: it owns the exclusive per-deployment
// mutation path used by both manual operations and the monitor loop.
type Service struct {
	store    *Store
	policy   *config.Policy
	router   Router
	metrics  MetricSource
	dispatch *notify.Dispatcher
	logger   *slog.Logger

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

// NewService creates the Canary Controller.
func NewService(store *Store, policy *config.Policy, router Router, metrics MetricSource, dispatch *notify.Dispatcher, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		policy:   policy,
		router:   router,
		metrics:  metrics,
		dispatch: dispatch,
		logger:   logger,
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

// lockFor returns the per-deployment mutex, creating it on first use. This
// is the exclusion spec.md §4.G requires: exactly one monitor tick or
// operator mutation in flight per deployment at a time.
func (s *Service) lockFor(id uuid.UUID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Start creates a new Deployment at stage 0 and sets the router weight to
// the first stage's weight.
func (s *Service) Start(ctx context.Context, service, version, region string) (Deployment, error) {
	if !s.policy.ServiceEnabled(service) {
		return Deployment{}, ErrServiceNotCanaryEnabled{Service: service}
	}
	if !s.policy.RegionAllowed(service, region) {
		return Deployment{}, ErrRegionNotAllowed{Service: service, Region: region}
	}
	stages := s.policy.StagesFor(service)
	if len(stages) == 0 {
		return Deployment{}, ErrNoStages{Service: service}
	}

	now := time.Now()
	d := Deployment{
		ID:               uuid.New(),
		Service:          service,
		Version:          version,
		Region:           region,
		Status:           StatusInitializing,
		CurrentStage:     0,
		CurrentWeight:    stages[0].Weight,
		StartedAt:        now,
		LastTransitionAt: now,
	}

	if err := s.router.SetPercentage(ctx, d.flagName(), d.Region, d.CurrentWeight); err != nil {
		return Deployment{}, fmt.Errorf("setting initial traffic weight: %w", err)
	}
	d.Status = StatusActive

	created := s.store.Create(d)

	telemetry.DeploymentsActive.WithLabelValues(service).Inc()
	s.notify(ctx, notify.SeverityInfo, "start", created, "deployment started")

	return created, nil
}

// Rollback cuts traffic for a Deployment to zero, or — if the service's
// policy requires manual approval — pauses it pending operator
// confirmation.
func (s *Service) Rollback(ctx context.Context, id uuid.UUID, reason string) (Deployment, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	d, err := s.store.Get(id)
	if err != nil {
		return Deployment{}, fmt.Errorf("getting deployment: %w", err)
	}

	if s.policy.ManualApprovalRequired(d.Service) && d.Status != StatusPaused {
		d.Status = StatusPaused
		if err := s.store.Update(d); err != nil {
			return Deployment{}, fmt.Errorf("pausing deployment: %w", err)
		}
		s.notify(ctx, notify.SeverityCritical, "rollback_approval_required", d, reason)
		return d, nil
	}

	if err := s.cutToZero(ctx, &d); err != nil {
		return Deployment{}, err
	}
	now := time.Now()
	d.Status = StatusRolledBack
	d.CompletedAt = &now
	d.LastTransitionAt = now

	if err := s.store.Update(d); err != nil {
		return Deployment{}, fmt.Errorf("persisting rollback: %w", err)
	}

	telemetry.DeploymentsActive.WithLabelValues(d.Service).Dec()
	telemetry.RollbacksTotal.WithLabelValues(d.Service, "operator").Inc()
	s.notify(ctx, notify.SeverityCritical, "rollback", d, reason)

	return d, nil
}

// cutToZero sets the router weight to 0, retrying with exponential backoff
// until it succeeds: spec.md §4.G's failure semantics forbid leaving a
// rolled-back deployment serving non-zero traffic.
func (s *Service) cutToZero(ctx context.Context, d *Deployment) error {
	delay := 500 * time.Millisecond
	for {
		err := s.router.SetPercentage(ctx, d.flagName(), d.Region, 0)
		if err == nil {
			return nil
		}
		s.logger.Error("cutting traffic to zero failed, retrying", "deployment_id", d.ID, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
}

// Status returns a single Deployment by id.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (Deployment, error) {
	return s.store.Get(id)
}

// List returns every Deployment.
func (s *Service) List(ctx context.Context) ([]Deployment, error) {
	return s.store.List(), nil
}

// Resume transitions a paused Deployment back to active, the operator
// confirmation path out of the manual-approval rollback gate.
func (s *Service) Resume(ctx context.Context, id uuid.UUID) (Deployment, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	d, err := s.store.Get(id)
	if err != nil {
		return Deployment{}, fmt.Errorf("getting deployment: %w", err)
	}
	if d.Status != StatusPaused {
		return Deployment{}, fmt.Errorf("deployment %s is not paused", id)
	}
	d.Status = StatusActive
	if err := s.store.Update(d); err != nil {
		return Deployment{}, fmt.Errorf("resuming deployment: %w", err)
	}
	return d, nil
}

func (s *Service) notify(ctx context.Context, sev notify.Severity, kind string, d Deployment, message string) {
	if s.dispatch == nil {
		return
	}
	s.dispatch.Send(ctx, notify.Event{
		Kind:         kind,
		DeploymentID: d.ID.String(),
		Service:      d.Service,
		Severity:     sev,
		Message:      message,
		Timestamp:    time.Now(),
	})
}
