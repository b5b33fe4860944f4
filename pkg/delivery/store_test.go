package delivery

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeStore is an in-memory stand-in for Postgres, exercising the same
// store interface *pgxpool.Pool satisfies.
type fakeStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]Job
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: make(map[uuid.UUID]Job)}
}

type fakeRow struct {
	job Job
	ok  bool
}

func (r fakeRow) Scan(dest ...any) error {
	if !r.ok {
		return pgx.ErrNoRows
	}
	*(dest[0].(*uuid.UUID)) = r.job.ID
	*(dest[1].(*string)) = r.job.Tenant
	*(dest[2].(*string)) = r.job.Partner
	*(dest[3].(*json.RawMessage)) = r.job.Payload
	*(dest[4].(*string)) = r.job.IdempotencyKey
	*(dest[5].(*int)) = r.job.Attempts
	*(dest[6].(*Status)) = r.job.Status
	*(dest[7].(**string)) = r.job.LastError
	*(dest[8].(**time.Time)) = r.job.LastAttemptAt
	*(dest[9].(**time.Time)) = r.job.NextEligibleAt
	*(dest[10].(*time.Time)) = r.job.CreatedAt
	*(dest[11].(*time.Time)) = r.job.UpdatedAt
	return nil
}

type fakeRows struct {
	jobs []Job
	i    int
}

func (r *fakeRows) Next() bool {
	if r.i >= len(r.jobs) {
		return false
	}
	r.i++
	return true
}
func (r *fakeRows) Scan(dest ...any) error {
	row := fakeRow{job: r.jobs[r.i-1], ok: true}
	return row.Scan(dest...)
}
func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                               { return nil }

func (s *fakeStore) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(args) >= 6 {
		// INSERT ... RETURNING
		if id, ok := args[0].(uuid.UUID); ok {
			payload, _ := args[3].([]byte)
			j := Job{
				ID: id, Tenant: args[1].(string), Partner: args[2].(string), Payload: payload,
				IdempotencyKey: args[4].(string), Attempts: 0, Status: args[5].(Status),
				CreatedAt: time.Now(), UpdatedAt: time.Now(),
			}
			s.jobs[id] = j
			return fakeRow{job: j, ok: true}
		}
	}

	// SELECT ... WHERE id = $1
	id, _ := args[0].(uuid.UUID)
	j, ok := s.jobs[id]
	return fakeRow{job: j, ok: ok}
}

func (s *fakeStore) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jobs []Job
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	return &fakeRows{jobs: jobs}, nil
}

func (s *fakeStore) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := args[0].(uuid.UUID)
	j, ok := s.jobs[id]
	if !ok {
		return pgconn.CommandTag{}, nil
	}
	j.Attempts = args[1].(int)
	j.Status = args[2].(Status)
	j.LastError, _ = args[3].(*string)
	j.LastAttemptAt, _ = args[4].(*time.Time)
	j.NextEligibleAt, _ = args[5].(*time.Time)
	j.Payload, _ = args[6].(json.RawMessage)
	s.jobs[id] = j
	return pgconn.CommandTag{}, nil
}
