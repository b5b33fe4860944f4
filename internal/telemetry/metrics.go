package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency for the operator API.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "flightline",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// --- Canary Controller (G) ---

var DeploymentsActive = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "flightline",
		Subsystem: "canary",
		Name:      "deployments_active",
		Help:      "Number of deployments currently in the active state, by service.",
	},
	[]string{"service"},
)

var StageTransitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "flightline",
		Subsystem: "canary",
		Name:      "stage_transitions_total",
		Help:      "Total number of stage advance transitions, by service.",
	},
	[]string{"service"},
)

var RollbacksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "flightline",
		Subsystem: "canary",
		Name:      "rollbacks_total",
		Help:      "Total number of deployment rollbacks, by service and triggering rule.",
	},
	[]string{"service", "rule"},
)

var ErrorBudgetRemaining = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "flightline",
		Subsystem: "canary",
		Name:      "error_budget_remaining_pct",
		Help:      "Remaining error budget percent for the active deployment, by service and deployment.",
	},
	[]string{"service", "deployment_id"},
)

var MonitorTickDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "flightline",
		Subsystem: "canary",
		Name:      "monitor_tick_duration_seconds",
		Help:      "Duration of one monitor-loop tick across all deployments.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"outcome"},
)

// --- Delivery Orchestrator (F) ---

var DeliveryJobsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "flightline",
		Subsystem: "delivery",
		Name:      "jobs_total",
		Help:      "Total delivery jobs processed, by partner and outcome.",
	},
	[]string{"partner", "outcome"},
)

var DeliveryAttemptDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "flightline",
		Subsystem: "delivery",
		Name:      "attempt_duration_seconds",
		Help:      "Duration of a single partner delivery attempt.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	},
	[]string{"partner"},
)

var DeliveryQueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "flightline",
		Subsystem: "delivery",
		Name:      "queue_depth",
		Help:      "Number of delivery jobs currently pending or in-flight.",
	},
)

// --- Idempotency Cache (C) ---

var CacheLookupsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "flightline",
		Subsystem: "idempotency",
		Name:      "lookups_total",
		Help:      "Idempotency cache lookups, by namespace and result (hit/miss/degraded).",
	},
	[]string{"namespace", "result"},
)

// --- Provider Token Store (D) ---

var TokenRefreshesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "flightline",
		Subsystem: "tokenstore",
		Name:      "refreshes_total",
		Help:      "OAuth2 token refresh exchanges performed, by partner.",
	},
	[]string{"partner"},
)

// --- Partner Delivery Client (E) ---

var PartnerRateLimitWaitSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "flightline",
		Subsystem: "partner",
		Name:      "rate_limit_wait_seconds",
		Help:      "Time spent waiting on the per-partner rate limiter before send.",
		Buckets:   []float64{0, 0.01, 0.05, 0.1, 0.5, 1, 5},
	},
	[]string{"partner"},
)

var PartnerRetriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "flightline",
		Subsystem: "partner",
		Name:      "retries_total",
		Help:      "Retry attempts issued to a partner, by partner and error kind.",
	},
	[]string{"partner", "kind"},
)

var PartnerCircuitState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "flightline",
		Subsystem: "partner",
		Name:      "circuit_state",
		Help:      "Circuit breaker state per partner (0=closed, 1=half-open, 2=open).",
	},
	[]string{"partner"},
)

// --- Notification Fan-out (H) ---

var NotificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "flightline",
		Subsystem: "notify",
		Name:      "sent_total",
		Help:      "Notifications dispatched, by channel and outcome.",
	},
	[]string{"channel", "outcome"},
)

// All returns every Flightline-specific collector for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		DeploymentsActive,
		StageTransitionsTotal,
		RollbacksTotal,
		ErrorBudgetRemaining,
		MonitorTickDuration,
		DeliveryJobsTotal,
		DeliveryAttemptDuration,
		DeliveryQueueDepth,
		CacheLookupsTotal,
		TokenRefreshesTotal,
		PartnerRateLimitWaitSeconds,
		PartnerRetriesTotal,
		PartnerCircuitState,
		NotificationsTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTPRequestDuration metric, and any additional service-specific
// collectors passed as arguments.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
