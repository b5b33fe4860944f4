package canary

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flightline-dev/flightline/internal/telemetry"
)

// Monitor is the background worker that ticks every active Deployment on
// a fixed interval, grounded on the escalation engine's ticker/per-entity/
// swallow-and-log shape: tier escalation becomes stage advancement, tenant
// iteration becomes deployment iteration.
type Monitor struct {
	service   *Service
	store     *Store
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewMonitor creates a Monitor ticking at interval (default 30s per
// spec.md §4.G). retention controls how long a terminal deployment
// (completed or rolled back) is kept around before the loop prunes it;
// retention <= 0 disables pruning.
func NewMonitor(service *Service, store *Store, interval, retention time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{service: service, store: store, interval: interval, retention: retention, logger: logger}
}

// StartMonitoring begins the tick loop in a background goroutine. It is a
// no-op if monitoring is already running.
func (m *Monitor) StartMonitoring(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.running = true

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.loop(ctx)
	}()
}

// StopMonitoring cancels the tick loop and waits for the in-flight tick
// round to finish.
func (m *Monitor) StopMonitoring() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Monitor) loop(ctx context.Context) {
	m.logger.Info("canary monitor started", "interval", m.interval)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("canary monitor stopped")
			return
		case <-ticker.C:
			m.tickAll(ctx)
			m.sweep()
		}
	}
}

// tickAll runs one round across every active deployment. Deployments for
// different (service, region) advance concurrently; Service.Tick's
// per-deployment lock enforces the single-tick-in-flight invariant.
func (m *Monitor) tickAll(ctx context.Context) {
	start := time.Now()
	deployments := m.store.ListActive()

	var wg sync.WaitGroup
	for _, d := range deployments {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			if err := m.service.Tick(ctx, id); err != nil {
				m.logger.Error("ticking deployment", "deployment_id", id, "error", err)
			}
		}(d.ID)
	}
	wg.Wait()

	telemetry.MonitorTickDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
}

// sweep prunes terminal deployments past their retention window, the
// "destroyed on retention expiry" behavior spec.md §4.G.1 describes.
func (m *Monitor) sweep() {
	if m.retention <= 0 {
		return
	}
	if removed := m.store.DeleteExpired(m.retention); removed > 0 {
		m.logger.Info("pruned expired deployments", "count", removed)
	}
}
