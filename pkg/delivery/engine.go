package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/flightline-dev/flightline/internal/telemetry"
)

// Engine is the delivery worker pool: it polls for pending, eligible jobs
// and dispatches them to workers bounded by Config.Concurrency, grounded
// on the poll-loop/semaphore/per-item-goroutine shape of a relay delivery
// engine retrieved alongside this codebase.
type Engine struct {
	store   *Store
	service *Service
	cfg     Config
	logger  *slog.Logger
	keys    *keyMutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a delivery Engine. It reuses service's keyMutex rather
// than creating its own, so a retry dispatched from the poll loop serializes
// against a concurrent synchronous Deliver call carrying the same
// (tenant, partner, idempotencyKey), not just against other retries.
func NewEngine(store *Store, service *Service, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 16
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Engine{store: store, service: service, cfg: cfg, logger: logger, keys: service.keys}
}

// Start begins the poll loop in a background goroutine.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.pollLoop(ctx)
	}()
}

// Stop cancels the poll loop and waits for in-flight sends to finish.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, e.cfg.Concurrency)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch, err := e.store.DequeueEligible(ctx, e.cfg.BatchSize)
			if err != nil {
				e.logger.Error("dequeuing delivery jobs", "error", err)
				continue
			}
			telemetry.DeliveryQueueDepth.Set(float64(len(batch)))

			for _, job := range batch {
				select {
				case <-ctx.Done():
					return
				case sem <- struct{}{}:
				}

				e.wg.Add(1)
				go func(j Job) {
					defer e.wg.Done()
					defer func() { <-sem }()
					e.process(ctx, j)
				}(job)
			}
		}
	}
}

func (e *Engine) process(ctx context.Context, job Job) {
	unlock := e.keys.Lock(jobKey(job.Tenant, job.Partner, job.IdempotencyKey))
	defer unlock()

	client, err := e.service.clients.Get(job.Partner)
	if err != nil {
		e.logger.Error("resolving partner client for retry", "job_id", job.ID, "partner", job.Partner, "error", err)
		return
	}

	start := time.Now()
	updated, err := e.service.attempt(ctx, job, client)
	outcome := "delivered"
	if err != nil {
		outcome = string(updated.Status)
	}
	telemetry.DeliveryJobsTotal.WithLabelValues(job.Partner, outcome).Inc()
	telemetry.DeliveryAttemptDuration.WithLabelValues(job.Partner).Observe(time.Since(start).Seconds())
}
