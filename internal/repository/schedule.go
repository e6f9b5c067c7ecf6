package repository

import (
	"context"
	"time"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/domain"
)

type ScheduleRepository interface {
	Create(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error)
	GetByID(ctx context.Context, id string) (*domain.Schedule, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Schedule, int, error)
	SetPaused(ctx context.Context, id string, paused bool) error
	Delete(ctx context.Context, id string) error
	// Atomic: claim due schedules, insert a job row for each, advance
	// next_run_at — all in one tx so replicas never double-fire.
	ClaimAndFire(ctx context.Context, limit int, computeNext func(*domain.Schedule) time.Time) ([]*domain.Job, error)
}
