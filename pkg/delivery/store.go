package delivery

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// store is the subset of *pgxpool.Pool the delivery Store needs.
type store interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const jobColumns = `id, tenant, partner, payload, idempotency_key, attempts, status,
	last_error, last_attempt_at, next_eligible_at, created_at, updated_at`

// Store persists DeliveryJob rows in Postgres, grounded on the
// hand-scanned raw-SQL pattern pkg/incident's store uses.
type Store struct {
	db store
}

// NewStore creates a delivery Store.
func NewStore(db store) *Store {
	return &Store{db: db}
}

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	err := row.Scan(
		&j.ID, &j.Tenant, &j.Partner, &j.Payload, &j.IdempotencyKey, &j.Attempts, &j.Status,
		&j.LastError, &j.LastAttemptAt, &j.NextEligibleAt, &j.CreatedAt, &j.UpdatedAt,
	)
	return j, err
}

// Create inserts a new pending job.
func (s *Store) Create(ctx context.Context, tenant, partner string, payload []byte, idempotencyKey string) (Job, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO delivery_jobs (id, tenant, partner, payload, idempotency_key, attempts, status)
		VALUES ($1, $2, $3, $4, $5, 0, $6)
		RETURNING `+jobColumns,
		uuid.New(), tenant, partner, payload, idempotencyKey, StatusPending,
	)
	j, err := scanJob(row)
	if err != nil {
		return Job{}, fmt.Errorf("creating delivery job: %w", err)
	}
	return j, nil
}

// Get returns a single job by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Job, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM delivery_jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if err != nil {
		return Job{}, fmt.Errorf("getting delivery job: %w", err)
	}
	return j, nil
}

// Update persists every mutable field of j.
func (s *Store) Update(ctx context.Context, j Job) error {
	_, err := s.db.Exec(ctx, `
		UPDATE delivery_jobs
		SET attempts = $2, status = $3, last_error = $4, last_attempt_at = $5,
		    next_eligible_at = $6, payload = $7, updated_at = now()
		WHERE id = $1
	`, j.ID, j.Attempts, j.Status, j.LastError, j.LastAttemptAt, j.NextEligibleAt, j.Payload)
	if err != nil {
		return fmt.Errorf("updating delivery job: %w", err)
	}
	return nil
}

// DequeueEligible returns up to limit pending jobs whose NextEligibleAt
// has passed (or is unset), ordered oldest first, for the engine's poll
// loop to dispatch.
func (s *Store) DequeueEligible(ctx context.Context, limit int) ([]Job, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+jobColumns+` FROM delivery_jobs
		WHERE status = $1 AND (next_eligible_at IS NULL OR next_eligible_at <= now())
		ORDER BY created_at ASC
		LIMIT $2
	`, StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("dequeuing delivery jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating delivery jobs: %w", err)
	}
	return jobs, nil
}

// List returns jobs for a tenant, newest first.
func (s *Store) List(ctx context.Context, tenant string, limit, offset int) ([]Job, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+jobColumns+` FROM delivery_jobs
		WHERE tenant = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, tenant, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing delivery jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating delivery jobs: %w", err)
	}
	return jobs, nil
}
