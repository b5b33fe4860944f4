package canary

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flightline-dev/flightline/internal/config"
	"github.com/flightline-dev/flightline/internal/telemetry"
	"github.com/flightline-dev/flightline/pkg/metricsource"
	"github.com/flightline-dev/flightline/pkg/notify"
)

// Tick runs one monitor-loop evaluation for a single Deployment: fetch
// metrics, compute the error budget, evaluate the rollback gate, and
// otherwise evaluate the advance gate. Transient errors (metric source
// unreachable, router write fails) are logged and leave the deployment
// untouched so the next tick retries — spec.md §4.G step 5.
func (s *Service) Tick(ctx context.Context, id uuid.UUID) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	d, err := s.store.Get(id)
	if err != nil {
		return fmt.Errorf("getting deployment: %w", err)
	}
	if d.Status != StatusActive {
		return nil
	}

	labels := map[string]string{
		"service":    d.Service,
		"version":    d.Version,
		"region":     d.Region,
		"deployment": "canary",
	}
	snap, err := s.metrics.QueryBundle(ctx, metricsource.DefaultBundle, labels)
	if err != nil {
		s.logger.Error("querying metric source for tick", "deployment_id", d.ID, "error", err)
		return nil
	}

	d.Metrics = deriveMetrics(snap)
	d.ErrorBudget = deriveBudget(d.Metrics, s.policy.ErrorBudgetFor(d.Service))
	telemetry.ErrorBudgetRemaining.WithLabelValues(d.Service, d.ID.String()).Set(d.ErrorBudget.RemainingPct)

	rollback := s.policy.RollbackFor(d.Service)
	if fired, rule, reason := evaluateRollbackGate(d.Metrics, d.ErrorBudget, rollback.Criteria); fired {
		if err := s.store.Update(d); err != nil {
			s.logger.Error("persisting tick metrics before rollback", "deployment_id", d.ID, "error", err)
		}
		telemetry.RollbacksTotal.WithLabelValues(d.Service, rule).Inc()
		return s.rollbackLocked(ctx, &d, reason)
	}

	stages := s.policy.StagesFor(d.Service)
	stage := stages[d.CurrentStage]
	minDuration, _ := stage.MinDuration()

	advanceEligible := time.Since(d.LastTransitionAt) >= minDuration &&
		int64(stage.MinSampleSize) <= d.Metrics.RequestCount &&
		d.ErrorBudget.Status != BudgetCritical && d.ErrorBudget.Status != BudgetExhausted

	if !advanceEligible {
		return s.store.Update(d)
	}

	if d.CurrentStage+1 >= len(stages) {
		return s.completeLocked(ctx, &d)
	}
	return s.advanceLocked(ctx, &d, stages[d.CurrentStage+1])
}

// rollbackLocked is Rollback's mutation body, reused by Tick which already
// holds the per-deployment lock. It does not itself re-acquire the lock.
func (s *Service) rollbackLocked(ctx context.Context, d *Deployment, reason string) error {
	if s.policy.ManualApprovalRequired(d.Service) {
		d.Status = StatusPaused
		if err := s.store.Update(*d); err != nil {
			return fmt.Errorf("pausing deployment: %w", err)
		}
		s.notify(ctx, notify.SeverityCritical, "rollback_approval_required", *d, reason)
		return nil
	}

	if err := s.cutToZero(ctx, d); err != nil {
		return err
	}
	now := time.Now()
	d.Status = StatusRolledBack
	d.CompletedAt = &now
	d.LastTransitionAt = now
	if err := s.store.Update(*d); err != nil {
		return fmt.Errorf("persisting rollback: %w", err)
	}
	telemetry.DeploymentsActive.WithLabelValues(d.Service).Dec()
	s.notify(ctx, notify.SeverityCritical, "rollback", *d, reason)
	return nil
}

func (s *Service) completeLocked(ctx context.Context, d *Deployment) error {
	if err := s.router.SetPercentage(ctx, d.flagName(), d.Region, 1.0); err != nil {
		return fmt.Errorf("setting final traffic weight: %w", err)
	}
	now := time.Now()
	d.CurrentWeight = 1.0
	d.Status = StatusCompleted
	d.CompletedAt = &now
	d.LastTransitionAt = now
	if err := s.store.Update(*d); err != nil {
		return fmt.Errorf("persisting completion: %w", err)
	}
	telemetry.DeploymentsActive.WithLabelValues(d.Service).Dec()
	s.notify(ctx, notify.SeverityInfo, "complete", *d, "deployment completed")
	return nil
}

func (s *Service) advanceLocked(ctx context.Context, d *Deployment, next config.StagePolicy) error {
	if err := s.router.SetPercentage(ctx, d.flagName(), d.Region, next.Weight); err != nil {
		return fmt.Errorf("advancing traffic weight: %w", err)
	}
	d.CurrentStage++
	d.CurrentWeight = next.Weight
	d.LastTransitionAt = time.Now()
	if err := s.store.Update(*d); err != nil {
		return fmt.Errorf("persisting stage advance: %w", err)
	}
	telemetry.StageTransitionsTotal.WithLabelValues(d.Service).Inc()
	s.notify(ctx, notify.SeverityInfo, "stage_transition", *d, fmt.Sprintf("advanced to stage %d", d.CurrentStage))
	return nil
}
