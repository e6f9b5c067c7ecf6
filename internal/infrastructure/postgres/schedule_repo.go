package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const scheduleColumns = `id, name, job_type, payload, priority, max_retries,
       cron_expr, paused, next_run_at, last_run_at, owner_id, created_at, updated_at`

type ScheduleRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewScheduleRepository(pool *pgxpool.Pool, logger *slog.Logger) *ScheduleRepository {
	return &ScheduleRepository{pool: pool, logger: logger.With("component", "schedule_repo")}
}

func (r *ScheduleRepository) Create(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error) {
	query := `
		INSERT INTO schedules (
			name, job_type, payload, priority, max_retries,
			cron_expr, paused, next_run_at, owner_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + scheduleColumns

	row := r.pool.QueryRow(ctx, query,
		s.Name, s.JobType, payloadOrEmpty(s.Payload), s.Priority, s.MaxRetries,
		s.CronExpr, s.Paused, s.NextRunAt, s.OwnerID,
	)

	created, err := scanSchedule(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrScheduleNameConflict
		}
		return nil, err
	}
	return created, nil
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*domain.Schedule, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id)
	return scanSchedule(row)
}

func (r *ScheduleRepository) List(ctx context.Context, limit, offset int) ([]*domain.Schedule, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM schedules`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count schedules: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*domain.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, 0, err
		}
		schedules = append(schedules, s)
	}
	return schedules, total, rows.Err()
}

func (r *ScheduleRepository) SetPaused(ctx context.Context, id string, paused bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE schedules SET paused = $2, updated_at = NOW()
		 WHERE id = $1 AND paused = $3`,
		id, paused, !paused)
	if err != nil {
		return fmt.Errorf("set paused: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish not-found vs already-in-desired-state.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		if paused {
			return domain.ErrScheduleAlreadyPaused
		}
		return domain.ErrScheduleNotPaused
	}
	return nil
}

func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

// ClaimAndFire atomically claims due schedules, inserts a pending job for
// each, and advances next_run_at. All in a single transaction — no partial
// state on crash, and SKIP LOCKED keeps replicas from double-firing.
func (r *ScheduleRepository) ClaimAndFire(ctx context.Context, limit int, computeNext func(*domain.Schedule) time.Time) ([]*domain.Job, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	rows, err := tx.Query(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE next_run_at <= NOW() AND NOT paused
		ORDER BY next_run_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim schedules: %w", err)
	}

	var schedules []*domain.Schedule
	for rows.Next() {
		s, scanErr := scanSchedule(rows)
		if scanErr != nil {
			rows.Close()
			err = scanErr
			return nil, err
		}
		schedules = append(schedules, s)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}

	var fired []*domain.Job

	for _, s := range schedules {
		next := computeNext(s)

		row := tx.QueryRow(ctx, `
			INSERT INTO jobs (
				name, job_type, priority, payload, status,
				max_retries, scheduled_at, owner_id
			) VALUES ($1, $2, $3, $4, 'pending', $5, NOW(), $6)
			RETURNING `+jobColumns,
			s.Name, s.JobType, s.Priority, payloadOrEmpty(s.Payload),
			s.MaxRetries, s.OwnerID,
		)
		j, scanErr := scanJob(row)
		if scanErr != nil {
			err = fmt.Errorf("insert job for schedule %s: %w", s.ID, scanErr)
			return nil, err
		}
		fired = append(fired, j)

		if _, updateErr := tx.Exec(ctx,
			`UPDATE schedules SET next_run_at = $2, last_run_at = NOW(), updated_at = NOW() WHERE id = $1`,
			s.ID, next,
		); updateErr != nil {
			err = fmt.Errorf("advance schedule %s: %w", s.ID, updateErr)
			return nil, err
		}

		r.logger.Debug("schedule fired", "schedule_id", s.ID, "job_id", j.ID, "next_run_at", next)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return fired, nil
}

func scanSchedule(row rowScanner) (*domain.Schedule, error) {
	var s domain.Schedule
	err := row.Scan(
		&s.ID, &s.Name, &s.JobType, &s.Payload, &s.Priority, &s.MaxRetries,
		&s.CronExpr, &s.Paused, &s.NextRunAt, &s.LastRunAt, &s.OwnerID,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	return &s, nil
}
