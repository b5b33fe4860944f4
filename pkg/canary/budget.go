package canary

import (
	"math"

	"github.com/flightline-dev/flightline/internal/config"
	"github.com/flightline-dev/flightline/pkg/metricsource"
)

// deriveMetrics converts a raw five-query snapshot into the Metrics a
// Deployment reports, handling the zero-request boundary case.
func deriveMetrics(snap metricsource.Snapshot) Metrics {
	m := Metrics{
		RequestCount: int64(snap.RequestCount),
		ErrorCount:   int64(snap.ErrorCount),
		LatencyP50Ms: snap.LatencyP50Ms,
		LatencyP95Ms: snap.LatencyP95Ms,
		LatencyP99Ms: snap.LatencyP99Ms,
	}
	if snap.RequestCount == 0 {
		m.ErrorRate = 0
		m.Availability = 100
		return m
	}
	m.ErrorRate = snap.ErrorCount / snap.RequestCount
	m.Availability = 100 * (snap.RequestCount - snap.ErrorCount) / snap.RequestCount
	return m
}

// deriveBudget computes the error budget for a Deployment given its
// Metrics and the service's configured SLO and burn-rate thresholds.
func deriveBudget(m Metrics, policy config.ErrorBudgetPolicy) ErrorBudget {
	totalPct := (1 - policy.Availability/100) * 100
	consumed := 100 - m.Availability
	remaining := math.Max(0, totalPct-consumed)

	var burnRate float64
	if totalPct > 0 {
		burnRate = consumed / totalPct
	}

	status := BudgetHealthy
	switch {
	case remaining <= 0:
		status = BudgetExhausted
	case burnRate >= policy.BurnRateThresholds.Critical:
		status = BudgetCritical
	case burnRate >= policy.BurnRateThresholds.Warning:
		status = BudgetWarning
	}

	return ErrorBudget{
		TotalPct:     totalPct,
		ConsumedPct:  consumed,
		RemainingPct: remaining,
		BurnRate:     burnRate,
		Status:       status,
	}
}

// evaluateRollbackGate walks the configured rollback criteria in declared
// order and returns the first one that fires, along with its reason. Rule
// metrics: errorRate, latencyP95, availability, budgetBurnRate (the
// snake_case spellings error_rate, latency_p95 and budget_burn_rate are
// accepted too) — availability trips when it falls *below* its threshold,
// everything else when it rises *above*.
func evaluateRollbackGate(m Metrics, b ErrorBudget, criteria []config.RollbackCriterion) (fired bool, rule string, reason string) {
	for _, c := range criteria {
		switch c.Metric {
		case "errorRate", "error_rate":
			if m.ErrorRate > c.Threshold {
				return true, c.Metric, "error rate exceeded rollback threshold"
			}
		case "latencyP95", "latency_p95":
			if m.LatencyP95Ms > c.Threshold {
				return true, c.Metric, "p95 latency exceeded rollback threshold"
			}
		case "availability":
			if m.Availability < c.Threshold {
				return true, c.Metric, "availability fell below rollback threshold"
			}
		case "budgetBurnRate", "budget_burn_rate":
			if b.BurnRate > c.Threshold {
				return true, c.Metric, "error budget burn rate exceeded rollback threshold"
			}
		}
	}
	return false, "", ""
}
