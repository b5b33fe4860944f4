package canary

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store holds Deployments in memory behind a single mutex — the monitor
// loop and the operator-facing handlers are its only two callers, so a
// map is both simpler and sufficient: deployment state does not need to
// survive a process restart, and spreading it across instances would
// only complicate the single-owner-per-deployment invariant Service
// already enforces with its per-ID lock. Metrics and ErrorBudget are
// recomputed on every tick rather than trusted from storage; what's held
// here is simply the last observed tick's result.
type Store struct {
	mu          sync.RWMutex
	deployments map[uuid.UUID]Deployment
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{deployments: make(map[uuid.UUID]Deployment)}
}

// Create inserts a new Deployment at stage 0.
func (s *Store) Create(d Deployment) Deployment {
	now := time.Now()
	d.CreatedAt, d.UpdatedAt = now, now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.deployments[d.ID] = d
	return d
}

// Get fetches a Deployment by id.
func (s *Store) Get(id uuid.UUID) (Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deployments[id]
	if !ok {
		return Deployment{}, pgx.ErrNoRows
	}
	return d, nil
}

// Update persists a Deployment's mutable fields.
func (s *Store) Update(d Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deployments[d.ID]; !ok {
		return fmt.Errorf("updating deployment %s: %w", d.ID, pgx.ErrNoRows)
	}
	d.UpdatedAt = time.Now()
	s.deployments[d.ID] = d
	return nil
}

// ListActive returns every Deployment currently in the active or paused
// state — the set the monitor loop ticks.
func (s *Store) ListActive() []Deployment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Deployment
	for _, d := range s.deployments {
		if d.Status == StatusActive || d.Status == StatusPaused {
			out = append(out, d)
		}
	}
	return out
}

// List returns every Deployment, newest first.
func (s *Store) List() []Deployment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Deployment, 0, len(s.deployments))
	for _, d := range s.deployments {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// DeleteExpired removes terminal deployments whose CompletedAt is older
// than retention, implementing the retention sweep spec.md §4.G names as
// "destroyed on retention expiry".
func (s *Store) DeleteExpired(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, d := range s.deployments {
		if (d.Status == StatusCompleted || d.Status == StatusRolledBack) && d.CompletedAt != nil && d.CompletedAt.Before(cutoff) {
			delete(s.deployments, id)
			removed++
		}
	}
	return removed
}
