package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/domain"
)

type ListJobsInput struct {
	Status domain.Status // empty = all statuses
	Type   string        // empty = all job types
	Limit  int
	Offset int
}

// ReadyRef is a light reference to an eligible row, used to republish the
// fast-tier index without hauling full payloads out of the store.
type ReadyRef struct {
	ID          string
	Priority    int
	ScheduledAt time.Time
}

type JobStats struct {
	Total          int
	ByStatus       map[domain.Status]int
	AvgDurationSec float64 // over terminal jobs with a recorded duration
	SuccessRate    float64 // succeeded / (succeeded + failed), 0 when neither
	LastHour       int     // jobs created in the last hour
	Last24Hours    int
}

// UseCase and worker code depend on this interface, not the pgx
// implementation, so tests can pass function-backed fakes.
type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) (*domain.Job, error)
	// CreateBatch inserts all jobs in one transaction — all-or-nothing.
	CreateBatch(ctx context.Context, jobs []*domain.Job) ([]*domain.Job, error)
	GetByID(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, input ListJobsInput) ([]*domain.Job, int, error)

	// ClaimNext atomically picks the single best eligible row
	// (priority desc, scheduled_at asc, id asc) with FOR UPDATE SKIP LOCKED,
	// marks it running and increments attempts. Returns (nil, nil) when
	// nothing is eligible.
	ClaimNext(ctx context.Context, workerID string, now time.Time) (*domain.Job, error)
	// ClaimByID is the focused variant used after a fast-tier pop. It
	// re-verifies eligibility and returns (nil, nil) when the row is gone,
	// already taken, cancelled, or still scheduled in the future.
	ClaimByID(ctx context.Context, jobID, workerID string, now time.Time) (*domain.Job, error)

	// Outcome writes. All three are guarded by status = 'running' so a late
	// writer can never clobber a row the reaper already recovered.
	Complete(ctx context.Context, jobID string, result json.RawMessage) error
	Fail(ctx context.Context, jobID string, lastError string) error
	Reschedule(ctx context.Context, jobID string, lastError string, retryAt time.Time) error
	// Requeue returns an interrupted execution to the queue without
	// consuming the attempt (shutdown drain path).
	Requeue(ctx context.Context, jobID string, reason string) error

	// Operator commands.
	Cancel(ctx context.Context, jobID string) error
	ResetForRetry(ctx context.Context, jobID string) error

	// Introspection.
	CountsByStatus(ctx context.Context) (map[domain.Status]int, error)
	Stats(ctx context.Context) (*JobStats, error)
	ListReady(ctx context.Context, now time.Time, limit int) ([]ReadyRef, error)
	CountReady(ctx context.Context, now time.Time) (int, error)

	// Reaper methods — recover claims from crashed workers.
	RescheduleStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error)
	FailStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error)
}
