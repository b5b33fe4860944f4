// Package canary implements the Canary Controller: it owns the lifecycle
// of progressive-delivery Deployments, ticking a monitor loop that
// advances, holds, or rolls back traffic weight based on observed metrics
// and a configured error budget. Deployment/Metrics/ErrorBudget shapes are
// adapted from a job-queue canary's CanaryDeployment/MetricsSnapshot into a
// weighted-stage service canary.
package canary

import (
	"time"

	"github.com/google/uuid"
)

// Status is a Deployment's lifecycle state.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusActive       Status = "active"
	StatusPaused       Status = "paused"
	StatusCompleted    Status = "completed"
	StatusRolledBack   Status = "rolled_back"
)

// BudgetStatus buckets how much of a Deployment's error budget remains.
type BudgetStatus string

const (
	BudgetHealthy   BudgetStatus = "healthy"
	BudgetWarning   BudgetStatus = "warning"
	BudgetCritical  BudgetStatus = "critical"
	BudgetExhausted BudgetStatus = "exhausted"
)

// Metrics is the observable state of a Deployment at one monitor tick.
// Derived quantities, never persisted as truth — always recomputed from
// the Metric Source Adapter.
type Metrics struct {
	RequestCount int64   `json:"requestCount"`
	ErrorCount   int64   `json:"errorCount"`
	ErrorRate    float64 `json:"errorRate"`
	LatencyP50Ms float64 `json:"latencyP50Ms"`
	LatencyP95Ms float64 `json:"latencyP95Ms"`
	LatencyP99Ms float64 `json:"latencyP99Ms"`
	Availability float64 `json:"availability"`
}

// ErrorBudget is derived from (1 - SLO) over a rolling window, reduced by
// observed unavailability.
type ErrorBudget struct {
	TotalPct     float64      `json:"totalPct"`
	ConsumedPct  float64      `json:"consumedPct"`
	RemainingPct float64      `json:"remainingPct"`
	BurnRate     float64      `json:"burnRate"`
	Status       BudgetStatus `json:"status"`
}

// Deployment is one canary rollout of a service version into a region.
// Mutated only by the single controller tick owning it.
type Deployment struct {
	ID               uuid.UUID   `json:"id"`
	Service          string      `json:"service"`
	Version          string      `json:"version"`
	Region           string      `json:"region"`
	Status           Status      `json:"status"`
	CurrentStage     int         `json:"currentStage"`
	CurrentWeight    float64     `json:"currentWeight"`
	StartedAt        time.Time   `json:"startedAt"`
	LastTransitionAt time.Time   `json:"lastTransitionAt"`
	CompletedAt      *time.Time  `json:"completedAt,omitempty"`
	Metrics          Metrics     `json:"metrics"`
	ErrorBudget      ErrorBudget `json:"errorBudget"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// flagName is the traffic-router flag key a Deployment's weight is stored
// under: one flag per service, so that a deployment's weight is visible
// to the router under the same key regardless of version or region.
func (d Deployment) flagName() string {
	return "canary:" + d.Service
}
