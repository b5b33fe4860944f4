package canary

import (
	"testing"

	"github.com/flightline-dev/flightline/internal/config"
	"github.com/flightline-dev/flightline/pkg/metricsource"
)

func TestDeriveMetricsZeroRequestWindow(t *testing.T) {
	m := deriveMetrics(metricsource.Snapshot{RequestCount: 0, ErrorCount: 0})
	if m.ErrorRate != 0 || m.Availability != 100 {
		t.Errorf("expected errorRate=0, availability=100 for zero requests, got %+v", m)
	}
}

func TestDeriveMetricsComputesRateAndAvailability(t *testing.T) {
	m := deriveMetrics(metricsource.Snapshot{RequestCount: 1000, ErrorCount: 10})
	if m.ErrorRate != 0.01 {
		t.Errorf("expected errorRate 0.01, got %v", m.ErrorRate)
	}
	if m.Availability != 99 {
		t.Errorf("expected availability 99, got %v", m.Availability)
	}
}

func TestDeriveBudgetExhaustedRegardlessOfBurnRate(t *testing.T) {
	policy := config.ErrorBudgetPolicy{
		Availability:       99.9,
		BurnRateThresholds: config.BurnRateThresholds{Warning: 10, Critical: 100},
	}
	// availability so low that consumed exceeds totalPct entirely.
	m := Metrics{Availability: 0}
	b := deriveBudget(m, policy)
	if b.Status != BudgetExhausted {
		t.Errorf("expected exhausted, got %s", b.Status)
	}
	if b.RemainingPct != 0 {
		t.Errorf("expected remaining 0, got %v", b.RemainingPct)
	}
}

func TestDeriveBudgetHealthyAtFullAvailability(t *testing.T) {
	policy := config.ErrorBudgetPolicy{
		Availability:       99.9,
		BurnRateThresholds: config.BurnRateThresholds{Warning: 10, Critical: 100},
	}
	m := Metrics{Availability: 100}
	b := deriveBudget(m, policy)
	if b.Status != BudgetHealthy {
		t.Errorf("expected healthy, got %s", b.Status)
	}
	if b.BurnRate != 0 {
		t.Errorf("expected burn rate 0, got %v", b.BurnRate)
	}
}

func TestEvaluateRollbackGateFirstMatchWins(t *testing.T) {
	criteria := []config.RollbackCriterion{
		{Metric: "errorRate", Threshold: 0.05},
		{Metric: "availability", Threshold: 99.0},
	}
	m := Metrics{ErrorRate: 0.1, Availability: 95}
	fired, rule, _ := evaluateRollbackGate(m, ErrorBudget{}, criteria)
	if !fired || rule != "errorRate" {
		t.Errorf("expected errorRate rule to fire first, got fired=%v rule=%s", fired, rule)
	}
}

func TestEvaluateRollbackGateNoneFire(t *testing.T) {
	criteria := []config.RollbackCriterion{
		{Metric: "errorRate", Threshold: 0.05},
	}
	m := Metrics{ErrorRate: 0.01}
	fired, _, _ := evaluateRollbackGate(m, ErrorBudget{}, criteria)
	if fired {
		t.Error("expected no rule to fire")
	}
}

func TestEvaluateRollbackGateBudgetBurnRate(t *testing.T) {
	criteria := []config.RollbackCriterion{
		{Metric: "budgetBurnRate", Threshold: 2.0},
	}
	fired, rule, _ := evaluateRollbackGate(Metrics{}, ErrorBudget{BurnRate: 3.0}, criteria)
	if !fired || rule != "budgetBurnRate" {
		t.Errorf("expected budgetBurnRate rule to fire, got fired=%v rule=%s", fired, rule)
	}
}
