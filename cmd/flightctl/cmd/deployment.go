package cmd

import "time"

// deployment mirrors pkg/canary.Deployment's JSON shape. Kept separate
// rather than importing pkg/canary so flightctl only depends on the wire
// contract, not the controller's internal types.
type deployment struct {
	ID               string      `json:"id"`
	Service          string      `json:"service"`
	Version          string      `json:"version"`
	Region           string      `json:"region"`
	Status           string      `json:"status"`
	CurrentStage     int         `json:"currentStage"`
	CurrentWeight    float64     `json:"currentWeight"`
	StartedAt        time.Time   `json:"startedAt"`
	LastTransitionAt time.Time   `json:"lastTransitionAt"`
	CompletedAt      *time.Time  `json:"completedAt,omitempty"`
	Metrics          metrics     `json:"metrics"`
	ErrorBudget      errorBudget `json:"errorBudget"`
}

type metrics struct {
	RequestCount int64   `json:"requestCount"`
	ErrorCount   int64   `json:"errorCount"`
	ErrorRate    float64 `json:"errorRate"`
	LatencyP50Ms float64 `json:"latencyP50Ms"`
	LatencyP95Ms float64 `json:"latencyP95Ms"`
	LatencyP99Ms float64 `json:"latencyP99Ms"`
	Availability float64 `json:"availability"`
}

type errorBudget struct {
	TotalPct     float64 `json:"totalPct"`
	ConsumedPct  float64 `json:"consumedPct"`
	RemainingPct float64 `json:"remainingPct"`
	BurnRate     float64 `json:"burnRate"`
	Status       string  `json:"status"`
}
