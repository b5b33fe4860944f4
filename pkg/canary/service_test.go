package canary

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/flightline-dev/flightline/internal/config"
	"github.com/flightline-dev/flightline/pkg/metricsource"
)

type fakeRouter struct {
	mu    sync.Mutex
	calls []float64
	fail  bool
}

func (r *fakeRouter) SetPercentage(ctx context.Context, flag, region string, fraction float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return context.DeadlineExceeded
	}
	r.calls = append(r.calls, fraction)
	return nil
}

func (r *fakeRouter) GetPercentage(ctx context.Context, flag, region string) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return 0, nil
	}
	return r.calls[len(r.calls)-1], nil
}

func (r *fakeRouter) lastCall() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return -1
	}
	return r.calls[len(r.calls)-1]
}

type fakeMetricSource struct {
	snap metricsource.Snapshot
	err  error
}

func (f *fakeMetricSource) QueryBundle(ctx context.Context, b metricsource.Bundle, labels map[string]string) (metricsource.Snapshot, error) {
	return f.snap, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPolicy() *config.Policy {
	return &config.Policy{
		Global: config.GlobalPolicy{
			ErrorBudget: config.ErrorBudgetPolicy{
				Availability:       99.9,
				BurnRateThresholds: config.BurnRateThresholds{Warning: 2, Critical: 5},
			},
			Rollback: config.RollbackPolicy{
				Criteria: []config.RollbackCriterion{
					{Metric: "errorRate", Threshold: 0.05},
				},
			},
			Stages: []config.StagePolicy{
				{Weight: 0.01, Duration: "5m", MinSampleSize: 100},
				{Weight: 0.25, Duration: "5m", MinSampleSize: 100},
				{Weight: 1.0, Duration: "0m", MinSampleSize: 0},
			},
		},
		Services: map[string]config.ServicePolicy{
			"api": {Enabled: true},
		},
	}
}

func TestStartCreatesInitialDeploymentAndSetsWeight(t *testing.T) {
	store := NewStore()
	router := &fakeRouter{}
	svc := NewService(store, testPolicy(), router, &fakeMetricSource{}, nil, discardLogger())

	d, err := svc.Start(context.Background(), "api", "v2", "us-east-1")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if d.Status != StatusActive {
		t.Errorf("expected active, got %s", d.Status)
	}
	if d.CurrentWeight != 0.01 {
		t.Errorf("expected initial weight 0.01, got %v", d.CurrentWeight)
	}
	if router.lastCall() != 0.01 {
		t.Errorf("expected router to be set to 0.01, got %v", router.lastCall())
	}
}

func TestStartRejectsDisabledService(t *testing.T) {
	store := NewStore()
	svc := NewService(store, testPolicy(), &fakeRouter{}, &fakeMetricSource{}, nil, discardLogger())

	_, err := svc.Start(context.Background(), "not-enabled", "v1", "us-east-1")
	if _, ok := err.(ErrServiceNotCanaryEnabled); !ok {
		t.Fatalf("expected ErrServiceNotCanaryEnabled, got %v", err)
	}
}

func TestRollbackCutsTrafficToZero(t *testing.T) {
	store := NewStore()
	router := &fakeRouter{}
	svc := NewService(store, testPolicy(), router, &fakeMetricSource{}, nil, discardLogger())

	d, err := svc.Start(context.Background(), "api", "v2", "us-east-1")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	rolled, err := svc.Rollback(context.Background(), d.ID, "bad deploy")
	if err != nil {
		t.Fatalf("Rollback() error: %v", err)
	}
	if rolled.Status != StatusRolledBack {
		t.Errorf("expected rolled_back, got %s", rolled.Status)
	}
	if rolled.CompletedAt == nil {
		t.Error("expected completedAt to be set")
	}
	if router.lastCall() != 0 {
		t.Errorf("expected router weight 0 after rollback, got %v", router.lastCall())
	}
}

func TestRollbackRequiresManualApprovalPauses(t *testing.T) {
	store := NewStore()
	router := &fakeRouter{}
	policy := testPolicy()
	policy.Global.Rollback.ManualApprovalRequired = true
	svc := NewService(store, policy, router, &fakeMetricSource{}, nil, discardLogger())

	d, err := svc.Start(context.Background(), "api", "v2", "us-east-1")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	paused, err := svc.Rollback(context.Background(), d.ID, "bad deploy")
	if err != nil {
		t.Fatalf("Rollback() error: %v", err)
	}
	if paused.Status != StatusPaused {
		t.Errorf("expected paused, got %s", paused.Status)
	}
	if router.lastCall() != 0.01 {
		t.Errorf("expected traffic weight unchanged at 0.01 pending approval, got %v", router.lastCall())
	}
}

func TestTickAdvancesStageWhenGateSatisfied(t *testing.T) {
	store := NewStore()
	router := &fakeRouter{}
	metrics := &fakeMetricSource{snap: metricsource.Snapshot{RequestCount: 1000, ErrorCount: 1}}
	svc := NewService(store, testPolicy(), router, metrics, nil, discardLogger())

	d, err := svc.Start(context.Background(), "api", "v2", "us-east-1")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	// Backdate lastTransitionAt past the 5m minDuration.
	stored, _ := store.Get(d.ID)
	stored.LastTransitionAt = time.Now().Add(-10 * time.Minute)
	_ = store.Update(stored)

	if err := svc.Tick(context.Background(), d.ID); err != nil {
		t.Fatalf("Tick() error: %v", err)
	}

	after, _ := store.Get(d.ID)
	if after.CurrentStage != 1 {
		t.Errorf("expected stage to advance to 1, got %d", after.CurrentStage)
	}
	if after.CurrentWeight != 0.25 {
		t.Errorf("expected weight 0.25, got %v", after.CurrentWeight)
	}
	if router.lastCall() != 0.25 {
		t.Errorf("expected router set to 0.25, got %v", router.lastCall())
	}
}

func TestTickHoldsBeforeMinDurationElapses(t *testing.T) {
	store := NewStore()
	router := &fakeRouter{}
	metrics := &fakeMetricSource{snap: metricsource.Snapshot{RequestCount: 1000, ErrorCount: 1}}
	svc := NewService(store, testPolicy(), router, metrics, nil, discardLogger())

	d, err := svc.Start(context.Background(), "api", "v2", "us-east-1")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if err := svc.Tick(context.Background(), d.ID); err != nil {
		t.Fatalf("Tick() error: %v", err)
	}

	after, _ := store.Get(d.ID)
	if after.CurrentStage != 0 {
		t.Errorf("expected stage to remain 0, got %d", after.CurrentStage)
	}
}

func TestTickRollsBackOnRuleMatch(t *testing.T) {
	store := NewStore()
	router := &fakeRouter{}
	metrics := &fakeMetricSource{snap: metricsource.Snapshot{RequestCount: 1000, ErrorCount: 200}}
	svc := NewService(store, testPolicy(), router, metrics, nil, discardLogger())

	d, err := svc.Start(context.Background(), "api", "v2", "us-east-1")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if err := svc.Tick(context.Background(), d.ID); err != nil {
		t.Fatalf("Tick() error: %v", err)
	}

	after, _ := store.Get(d.ID)
	if after.Status != StatusRolledBack {
		t.Errorf("expected rolled_back, got %s", after.Status)
	}
	if router.lastCall() != 0 {
		t.Errorf("expected router weight 0 after triggered rollback, got %v", router.lastCall())
	}
}

func TestTickCompletesAtFinalStage(t *testing.T) {
	store := NewStore()
	router := &fakeRouter{}
	metrics := &fakeMetricSource{snap: metricsource.Snapshot{RequestCount: 1000, ErrorCount: 1}}
	svc := NewService(store, testPolicy(), router, metrics, nil, discardLogger())

	d, err := svc.Start(context.Background(), "api", "v2", "us-east-1")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	stored, _ := store.Get(d.ID)
	stored.CurrentStage = 2 // last stage index (weight 1.0, 0m duration)
	stored.LastTransitionAt = time.Now().Add(-time.Minute)
	_ = store.Update(stored)

	if err := svc.Tick(context.Background(), d.ID); err != nil {
		t.Fatalf("Tick() error: %v", err)
	}

	after, _ := store.Get(d.ID)
	if after.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", after.Status)
	}
	if after.CurrentWeight != 1.0 {
		t.Errorf("expected weight 1.0, got %v", after.CurrentWeight)
	}
	if after.CompletedAt == nil {
		t.Error("expected completedAt to be set")
	}
}
