package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/domain"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/repository"
)

type ScheduleUsecase struct {
	repo              repository.ScheduleRepository
	types             typeChecker
	defaultMaxRetries int
}

func NewScheduleUsecase(repo repository.ScheduleRepository, types typeChecker, defaultMaxRetries int) *ScheduleUsecase {
	return &ScheduleUsecase{
		repo:              repo,
		types:             types,
		defaultMaxRetries: defaultMaxRetries,
	}
}

type CreateScheduleInput struct {
	Name       string
	JobType    string
	CronExpr   string
	Payload    json.RawMessage
	Priority   int
	MaxRetries *int
	OwnerID    *string
}

func (u *ScheduleUsecase) CreateSchedule(ctx context.Context, input CreateScheduleInput) (*domain.Schedule, error) {
	sched, err := cron.ParseStandard(input.CronExpr)
	if err != nil {
		return nil, domain.ErrInvalidCronExpr
	}

	if input.Name == "" {
		return nil, domain.NewValidationError("name", "required")
	}
	if len(input.Name) > domain.MaxNameLen {
		return nil, domain.NewValidationError("name", "longer than %d characters", domain.MaxNameLen)
	}
	if input.JobType == "" {
		return nil, domain.NewValidationError("job_type", "required")
	}
	if !u.types.Has(input.JobType) {
		return nil, domain.NewValidationError("job_type", "unknown job type: %s", input.JobType)
	}
	if input.Priority < domain.MinPriority || input.Priority > domain.MaxPriority {
		return nil, domain.NewValidationError("priority", "must be between %d and %d", domain.MinPriority, domain.MaxPriority)
	}
	if len(input.Payload) > domain.MaxPayloadBytes {
		return nil, domain.NewValidationError("payload", "exceeds %d bytes", domain.MaxPayloadBytes)
	}
	if len(input.Payload) > 0 && !json.Valid(input.Payload) {
		return nil, domain.NewValidationError("payload", "not valid JSON")
	}
	if input.MaxRetries != nil && *input.MaxRetries < 0 {
		return nil, domain.NewValidationError("max_retries", "must be >= 0")
	}

	maxRetries := u.defaultMaxRetries
	if input.MaxRetries != nil {
		maxRetries = *input.MaxRetries
	}
	payload := input.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	s := &domain.Schedule{
		Name:       input.Name,
		JobType:    input.JobType,
		CronExpr:   input.CronExpr,
		Payload:    payload,
		Priority:   input.Priority,
		MaxRetries: maxRetries,
		Paused:     false,
		NextRunAt:  sched.Next(time.Now()),
		OwnerID:    input.OwnerID,
	}

	created, err := u.repo.Create(ctx, s)
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (u *ScheduleUsecase) GetSchedule(ctx context.Context, id string) (*domain.Schedule, error) {
	s, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return s, nil
}

type ListSchedulesResult struct {
	Schedules []*domain.Schedule
	Total     int
	Page      int
	PageSize  int
}

func (u *ScheduleUsecase) ListSchedules(ctx context.Context, page, pageSize int) (ListSchedulesResult, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 500 {
		pageSize = 500
	}

	schedules, total, err := u.repo.List(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return ListSchedulesResult{}, fmt.Errorf("list schedules: %w", err)
	}
	return ListSchedulesResult{Schedules: schedules, Total: total, Page: page, PageSize: pageSize}, nil
}

func (u *ScheduleUsecase) PauseSchedule(ctx context.Context, id string) error {
	return u.repo.SetPaused(ctx, id, true)
}

func (u *ScheduleUsecase) ResumeSchedule(ctx context.Context, id string) error {
	return u.repo.SetPaused(ctx, id, false)
}

func (u *ScheduleUsecase) DeleteSchedule(ctx context.Context, id string) error {
	return u.repo.Delete(ctx, id)
}
