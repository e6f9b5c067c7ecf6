package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/domain"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, name, job_type, priority, payload, status, attempts,
       max_retries, scheduled_at, created_at, started_at, completed_at,
       result, error, claimed_by, duration_seconds, owner_id`

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	query := `
		INSERT INTO jobs (
			name, job_type, priority, payload, status,
			max_retries, scheduled_at, owner_id
		) VALUES ($1, $2, $3, $4, 'pending', $5, $6, $7)
		RETURNING ` + jobColumns

	row := r.pool.QueryRow(ctx, query,
		job.Name,
		job.Type,
		job.Priority,
		payloadOrEmpty(job.Payload),
		job.MaxRetries,
		job.ScheduledAt,
		job.OwnerID,
	)
	return scanJob(row)
}

// CreateBatch inserts every job inside one transaction. A failure on any row
// rolls the whole batch back — no partial submissions.
func (r *JobRepository) CreateBatch(ctx context.Context, jobs []*domain.Job) ([]*domain.Job, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO jobs (
			name, job_type, priority, payload, status,
			max_retries, scheduled_at, owner_id
		) VALUES ($1, $2, $3, $4, 'pending', $5, $6, $7)
		RETURNING ` + jobColumns

	created := make([]*domain.Job, 0, len(jobs))
	for _, job := range jobs {
		row := tx.QueryRow(ctx, query,
			job.Name,
			job.Type,
			job.Priority,
			payloadOrEmpty(job.Payload),
			job.MaxRetries,
			job.ScheduledAt,
			job.OwnerID,
		)
		j, err := scanJob(row)
		if err != nil {
			return nil, fmt.Errorf("batch insert: %w", err)
		}
		created = append(created, j)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}
	return created, nil
}

func (r *JobRepository) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	return scanJob(row)
}

// ClaimNext transitions the single best eligible row to running.
// FOR UPDATE SKIP LOCKED prevents double-execution across workers: K
// concurrent callers receive K distinct rows (or fewer) without blocking.
func (r *JobRepository) ClaimNext(ctx context.Context, workerID string, now time.Time) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET    status     = 'running',
		       started_at = $2,
		       claimed_by = $1,
		       attempts   = attempts + 1
		WHERE id = (
			SELECT id FROM jobs
			WHERE  status IN ('pending', 'retrying')
			  AND  scheduled_at <= $2
			ORDER BY priority DESC, scheduled_at ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	row := r.pool.QueryRow(ctx, query, workerID, now)
	job, err := scanJob(row)
	if errors.Is(err, domain.ErrJobNotFound) {
		return nil, nil // nothing eligible
	}
	if err != nil {
		return nil, fmt.Errorf("claim next: %w", err)
	}
	return job, nil
}

// ClaimByID is the focused claim used after a fast-tier pop. The eligibility
// predicate is re-checked here, so a stale or premature index entry simply
// yields no row.
func (r *JobRepository) ClaimByID(ctx context.Context, jobID, workerID string, now time.Time) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET    status     = 'running',
		       started_at = $3,
		       claimed_by = $2,
		       attempts   = attempts + 1
		WHERE id = (
			SELECT id FROM jobs
			WHERE  id = $1
			  AND  status IN ('pending', 'retrying')
			  AND  scheduled_at <= $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	row := r.pool.QueryRow(ctx, query, jobID, workerID, now)
	job, err := scanJob(row)
	if errors.Is(err, domain.ErrJobNotFound) {
		return nil, nil // no longer eligible
	}
	if err != nil {
		return nil, fmt.Errorf("claim by id: %w", err)
	}
	return job, nil
}

// Complete marks a running job succeeded. The status guard means a writer
// that lost its claim (reaper recovery, shutdown requeue) cannot clobber the
// row afterwards.
func (r *JobRepository) Complete(ctx context.Context, jobID string, result json.RawMessage) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET    status           = 'succeeded',
		       completed_at     = NOW(),
		       result           = $2,
		       error            = NULL,
		       duration_seconds = EXTRACT(EPOCH FROM (NOW() - started_at))
		WHERE id = $1 AND status = 'running'`,
		jobID, payloadOrEmpty(result))
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete job %s: no longer running", jobID)
	}
	return nil
}

func (r *JobRepository) Fail(ctx context.Context, jobID string, lastError string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET    status           = 'failed',
		       completed_at     = NOW(),
		       error            = $2,
		       duration_seconds = EXTRACT(EPOCH FROM (NOW() - started_at))
		WHERE id = $1 AND status = 'running'`,
		jobID, truncateError(lastError))
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("fail job %s: no longer running", jobID)
	}
	return nil
}

// Reschedule records a retryable failure. completed_at stays NULL — the job
// is not terminal yet.
func (r *JobRepository) Reschedule(ctx context.Context, jobID string, lastError string, retryAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET    status       = 'retrying',
		       error        = $2,
		       scheduled_at = $3
		WHERE id = $1 AND status = 'running'`,
		jobID, truncateError(lastError), retryAt)
	if err != nil {
		return fmt.Errorf("reschedule job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reschedule job %s: no longer running", jobID)
	}
	return nil
}

// Requeue returns a shutdown-interrupted job to the queue. The aborted run
// does not count, so attempts is rolled back by one.
func (r *JobRepository) Requeue(ctx context.Context, jobID string, reason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET    status       = 'retrying',
		       attempts     = GREATEST(attempts - 1, 0),
		       error        = $2,
		       scheduled_at = NOW(),
		       started_at   = NULL,
		       claimed_by   = NULL
		WHERE id = $1 AND status = 'running'`,
		jobID, truncateError(reason))
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("requeue job %s: no longer running", jobID)
	}
	return nil
}

func (r *JobRepository) Cancel(ctx context.Context, jobID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET    status       = 'cancelled',
		       completed_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'retrying')`,
		jobID)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish not-found from a state conflict.
		if _, err := r.GetByID(ctx, jobID); err != nil {
			return err
		}
		return domain.ErrJobNotCancellable
	}
	return nil
}

// ResetForRetry is the operator escape hatch out of a terminal state.
// attempts is left untouched: a job that already burned through its retries
// gets exactly one more execution.
func (r *JobRepository) ResetForRetry(ctx context.Context, jobID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET    status           = 'pending',
		       error            = NULL,
		       scheduled_at     = NOW(),
		       completed_at     = NULL,
		       duration_seconds = NULL
		WHERE id = $1 AND status IN ('failed', 'cancelled')`,
		jobID)
	if err != nil {
		return fmt.Errorf("reset job for retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, jobID); err != nil {
			return err
		}
		return domain.ErrJobNotRetryable
	}
	return nil
}

func (r *JobRepository) ListJobs(ctx context.Context, input repository.ListJobsInput) ([]*domain.Job, int, error) {
	args := []any{}
	where := []string{}

	if input.Status != "" {
		args = append(args, input.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if input.Type != "" {
		args = append(args, input.Type)
		where = append(where, fmt.Sprintf("job_type = $%d", len(args)))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM jobs %s`, whereClause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	args = append(args, input.Limit, input.Offset)
	query := fmt.Sprintf(`
		SELECT %s FROM jobs
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		jobColumns, whereClause, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, j)
	}
	return jobs, total, rows.Err()
}

func (r *JobRepository) CountsByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Status]int)
	for rows.Next() {
		var status domain.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *JobRepository) Stats(ctx context.Context) (*repository.JobStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'running'),
			COUNT(*) FILTER (WHERE status = 'succeeded'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COUNT(*) FILTER (WHERE status = 'retrying'),
			COALESCE(AVG(duration_seconds), 0),
			COUNT(*) FILTER (WHERE created_at > NOW() - INTERVAL '1 hour'),
			COUNT(*) FILTER (WHERE created_at > NOW() - INTERVAL '24 hours')
		FROM jobs`

	var (
		total, pending, running, succeeded int
		failed, cancelled, retrying        int
		avgDuration                        float64
		lastHour, last24h                  int
	)
	err := r.pool.QueryRow(ctx, query).Scan(
		&total, &pending, &running, &succeeded,
		&failed, &cancelled, &retrying,
		&avgDuration, &lastHour, &last24h,
	)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}

	successRate := 0.0
	if succeeded+failed > 0 {
		successRate = float64(succeeded) / float64(succeeded+failed)
	}

	return &repository.JobStats{
		Total: total,
		ByStatus: map[domain.Status]int{
			domain.StatusPending:   pending,
			domain.StatusRunning:   running,
			domain.StatusSucceeded: succeeded,
			domain.StatusFailed:    failed,
			domain.StatusCancelled: cancelled,
			domain.StatusRetrying:  retrying,
		},
		AvgDurationSec: avgDuration,
		SuccessRate:    successRate,
		LastHour:       lastHour,
		Last24Hours:    last24h,
	}, nil
}

// ListReady feeds the reclaim scan: eligible rows in dispatch order, id and
// ordering key only.
func (r *JobRepository) ListReady(ctx context.Context, now time.Time, limit int) ([]repository.ReadyRef, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, priority, scheduled_at
		FROM jobs
		WHERE  status IN ('pending', 'retrying')
		  AND  scheduled_at <= $1
		ORDER BY priority DESC, scheduled_at ASC, id ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list ready: %w", err)
	}
	defer rows.Close()

	var refs []repository.ReadyRef
	for rows.Next() {
		var ref repository.ReadyRef
		if err := rows.Scan(&ref.ID, &ref.Priority, &ref.ScheduledAt); err != nil {
			return nil, fmt.Errorf("scan ready ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (r *JobRepository) CountReady(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM jobs
		WHERE status IN ('pending', 'retrying') AND scheduled_at <= $1`, now).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count ready: %w", err)
	}
	return n, nil
}

// RescheduleStale recovers running rows whose worker died mid-execution. A
// live worker would have written an outcome before started_at aged past the
// cutoff (execution timeout + margin), so these claims are orphaned.
func (r *JobRepository) RescheduleStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET    status       = 'retrying',
		       error        = 'worker lost: stale claim',
		       scheduled_at = NOW()
		WHERE id IN (
			SELECT id FROM jobs
			WHERE  status = 'running'
			  AND  started_at < $1
			  AND  attempts <= max_retries
			ORDER BY started_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, staleCutoff, limit)
	return int(tag.RowsAffected()), err
}

func (r *JobRepository) FailStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET    status           = 'failed',
		       error            = 'worker lost: max retries exceeded',
		       completed_at     = NOW(),
		       duration_seconds = EXTRACT(EPOCH FROM (NOW() - started_at))
		WHERE id IN (
			SELECT id FROM jobs
			WHERE  status = 'running'
			  AND  started_at < $1
			  AND  attempts > max_retries
			ORDER BY started_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, staleCutoff, limit)
	return int(tag.RowsAffected()), err
}

// pgx.Row and pgx.Rows both implement this.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var j domain.Job
	err := row.Scan(
		&j.ID, &j.Name, &j.Type, &j.Priority, &j.Payload, &j.Status, &j.Attempts,
		&j.MaxRetries, &j.ScheduledAt, &j.CreatedAt, &j.StartedAt, &j.CompletedAt,
		&j.Result, &j.Error, &j.ClaimedBy, &j.DurationSec, &j.OwnerID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}

func payloadOrEmpty(p json.RawMessage) json.RawMessage {
	if len(p) == 0 {
		return json.RawMessage(`{}`)
	}
	return p
}

func truncateError(msg string) string {
	if len(msg) > domain.MaxErrorLen {
		return msg[:domain.MaxErrorLen]
	}
	return msg
}

// isUniqueViolation maps the Postgres duplicate-key error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
