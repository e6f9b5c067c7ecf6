package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/domain"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/queue"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/repository"
)

// jobQueue is the coordinator surface the job usecase drives.
type jobQueue interface {
	Submit(ctx context.Context, job *domain.Job) (*domain.Job, error)
	SubmitMany(ctx context.Context, jobs []*domain.Job) ([]*domain.Job, error)
	Remove(ctx context.Context, id string)
	Requeue(ctx context.Context, id string, priority int, at time.Time)
	Depth(ctx context.Context) (queue.Depth, error)
}

// typeChecker reports which job types have a registered handler.
type typeChecker interface {
	Has(jobType string) bool
}

type JobUsecase struct {
	queue             jobQueue
	repo              repository.JobRepository
	types             typeChecker
	defaultMaxRetries int
	bulkCap           int
}

func NewJobUsecase(q jobQueue, repo repository.JobRepository, types typeChecker, defaultMaxRetries, bulkCap int) *JobUsecase {
	return &JobUsecase{
		queue:             q,
		repo:              repo,
		types:             types,
		defaultMaxRetries: defaultMaxRetries,
		bulkCap:           bulkCap,
	}
}

type SubmitJobInput struct {
	Name        string
	Type        string
	Payload     json.RawMessage
	Priority    int
	MaxRetries  *int // nil = configured default
	ScheduledAt *time.Time
	OwnerID     *string
}

func (u *JobUsecase) SubmitJob(ctx context.Context, input SubmitJobInput) (*domain.Job, error) {
	job, err := u.buildJob(input, time.Now())
	if err != nil {
		return nil, err
	}
	created, err := u.queue.Submit(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("submit job: %w", err)
	}
	return created, nil
}

// SubmitBulk validates the whole batch before anything is written; the
// insert itself is one transaction, so a batch either lands fully or not at
// all.
func (u *JobUsecase) SubmitBulk(ctx context.Context, inputs []SubmitJobInput) ([]*domain.Job, error) {
	if len(inputs) == 0 {
		return nil, domain.NewValidationError("jobs", "at least one job required")
	}
	if len(inputs) > u.bulkCap {
		return nil, domain.NewValidationError("jobs", "more than %d jobs in one batch", u.bulkCap)
	}

	now := time.Now()
	jobs := make([]*domain.Job, 0, len(inputs))
	for i, input := range inputs {
		job, err := u.buildJob(input, now)
		if err != nil {
			return nil, fmt.Errorf("jobs[%d]: %w", i, err)
		}
		jobs = append(jobs, job)
	}

	created, err := u.queue.SubmitMany(ctx, jobs)
	if err != nil {
		return nil, fmt.Errorf("submit bulk: %w", err)
	}
	return created, nil
}

func (u *JobUsecase) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := u.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

type ListJobsInput struct {
	Status   string
	Type     string
	Page     int
	PageSize int
}

type ListJobsResult struct {
	Jobs     []*domain.Job
	Total    int
	Page     int
	PageSize int
}

func (u *JobUsecase) ListJobs(ctx context.Context, input ListJobsInput) (ListJobsResult, error) {
	page := input.Page
	if page <= 0 {
		page = 1
	}
	size := input.PageSize
	if size <= 0 {
		size = 50
	}
	if size > 500 {
		size = 500
	}

	var status domain.Status
	if input.Status != "" {
		status = domain.Status(input.Status)
		if !status.Valid() {
			return ListJobsResult{}, domain.NewValidationError("status", "unknown status: %s", input.Status)
		}
	}

	jobs, total, err := u.repo.ListJobs(ctx, repository.ListJobsInput{
		Status: status,
		Type:   input.Type,
		Limit:  size,
		Offset: (page - 1) * size,
	})
	if err != nil {
		return ListJobsResult{}, fmt.Errorf("list jobs: %w", err)
	}
	return ListJobsResult{Jobs: jobs, Total: total, Page: page, PageSize: size}, nil
}

// CancelJob cancels a job that no worker owns yet. Running jobs are not
// interruptible; the call returns the state conflict instead.
func (u *JobUsecase) CancelJob(ctx context.Context, jobID string) (*domain.Job, error) {
	if err := u.repo.Cancel(ctx, jobID); err != nil {
		return nil, err
	}
	u.queue.Remove(ctx, jobID)

	job, err := u.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get cancelled job: %w", err)
	}
	return job, nil
}

// RetryJob puts a failed or cancelled job back in line. Attempts already
// burned stay on the record; the job gets exactly one more execution before
// the retry ladder re-applies.
func (u *JobUsecase) RetryJob(ctx context.Context, jobID string) (*domain.Job, error) {
	if err := u.repo.ResetForRetry(ctx, jobID); err != nil {
		return nil, err
	}

	job, err := u.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get retried job: %w", err)
	}
	u.queue.Requeue(ctx, job.ID, job.Priority, job.ScheduledAt)
	return job, nil
}

type StatsResult struct {
	Total          int
	ByStatus       map[domain.Status]int
	AvgDurationSec float64
	SuccessRate    float64
	LastHour       int
	Last24Hours    int
	Queue          queue.Depth
}

func (u *JobUsecase) Stats(ctx context.Context) (*StatsResult, error) {
	stats, err := u.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	depth, err := u.queue.Depth(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue depth: %w", err)
	}
	return &StatsResult{
		Total:          stats.Total,
		ByStatus:       stats.ByStatus,
		AvgDurationSec: stats.AvgDurationSec,
		SuccessRate:    stats.SuccessRate,
		LastHour:       stats.LastHour,
		Last24Hours:    stats.Last24Hours,
		Queue:          depth,
	}, nil
}

func (u *JobUsecase) buildJob(input SubmitJobInput, now time.Time) (*domain.Job, error) {
	if input.Name == "" {
		return nil, domain.NewValidationError("name", "required")
	}
	if len(input.Name) > domain.MaxNameLen {
		return nil, domain.NewValidationError("name", "longer than %d characters", domain.MaxNameLen)
	}
	if input.Type == "" {
		return nil, domain.NewValidationError("type", "required")
	}
	if !u.types.Has(input.Type) {
		return nil, domain.NewValidationError("type", "unknown job type: %s", input.Type)
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
	scheduledAt := now
	if input.ScheduledAt != nil {
		scheduledAt = *input.ScheduledAt
	}
	payload := input.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	return &domain.Job{
		Name:        input.Name,
		Type:        input.Type,
		Priority:    input.Priority,
		Payload:     payload,
		Status:      domain.StatusPending,
		MaxRetries:  maxRetries,
		ScheduledAt: scheduledAt,
		OwnerID:     input.OwnerID,
	}, nil
}
