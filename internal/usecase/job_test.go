package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/domain"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/queue"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/repository"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/usecase"
)

// ---- fakes ----

type fakeQueue struct {
	submit     func(ctx context.Context, job *domain.Job) (*domain.Job, error)
	submitMany func(ctx context.Context, jobs []*domain.Job) ([]*domain.Job, error)
	depth      queue.Depth
	depthErr   error

	removed  []string
	requeued []string
}

func (q *fakeQueue) Submit(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	return q.submit(ctx, job)
}

func (q *fakeQueue) SubmitMany(ctx context.Context, jobs []*domain.Job) ([]*domain.Job, error) {
	return q.submitMany(ctx, jobs)
}

func (q *fakeQueue) Remove(_ context.Context, id string) {
	q.removed = append(q.removed, id)
}

func (q *fakeQueue) Requeue(_ context.Context, id string, _ int, _ time.Time) {
	q.requeued = append(q.requeued, id)
}

func (q *fakeQueue) Depth(_ context.Context) (queue.Depth, error) {
	return q.depth, q.depthErr
}

// fakeJobRepo panics on any method a test did not stub.
type fakeJobRepo struct {
	repository.JobRepository

	getByID       func(ctx context.Context, id string) (*domain.Job, error)
	listJobs      func(ctx context.Context, input repository.ListJobsInput) ([]*domain.Job, int, error)
	cancel        func(ctx context.Context, id string) error
	resetForRetry func(ctx context.Context, id string) error
	stats         func(ctx context.Context) (*repository.JobStats, error)
}

func (r *fakeJobRepo) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	return r.getByID(ctx, id)
}

func (r *fakeJobRepo) ListJobs(ctx context.Context, input repository.ListJobsInput) ([]*domain.Job, int, error) {
	return r.listJobs(ctx, input)
}

func (r *fakeJobRepo) Cancel(ctx context.Context, id string) error {
	return r.cancel(ctx, id)
}

func (r *fakeJobRepo) ResetForRetry(ctx context.Context, id string) error {
	return r.resetForRetry(ctx, id)
}

func (r *fakeJobRepo) Stats(ctx context.Context) (*repository.JobStats, error) {
	return r.stats(ctx)
}

type fakeTypes map[string]bool

func (f fakeTypes) Has(jobType string) bool { return f[jobType] }

// ---- helpers ----

var knownTypes = fakeTypes{"email": true, "ai_task": true, "data_cleaning": true}

func echoQueue() *fakeQueue {
	return &fakeQueue{
		submit: func(_ context.Context, j *domain.Job) (*domain.Job, error) { return j, nil },
		submitMany: func(_ context.Context, jobs []*domain.Job) ([]*domain.Job, error) {
			return jobs, nil
		},
	}
}

func newJobUsecase(q *fakeQueue, repo *fakeJobRepo) *usecase.JobUsecase {
	return usecase.NewJobUsecase(q, repo, knownTypes, 3, 100)
}

func asValidation(t *testing.T, err error, field string) {
	t.Helper()
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	if verr.Field != field {
		t.Errorf("validation field = %q, want %q", verr.Field, field)
	}
}

// ---- SubmitJob ----

func TestSubmitJob_AppliesDefaults(t *testing.T) {
	var captured *domain.Job
	q := echoQueue()
	q.submit = func(_ context.Context, j *domain.Job) (*domain.Job, error) {
		captured = j
		return j, nil
	}

	before := time.Now()
	_, err := newJobUsecase(q, &fakeJobRepo{}).SubmitJob(context.Background(), usecase.SubmitJobInput{
		Name: "welcome-email",
		Type: "email",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if captured.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want default 3", captured.MaxRetries)
	}
	if string(captured.Payload) != "{}" {
		t.Errorf("Payload = %q, want empty object", captured.Payload)
	}
	if captured.Status != domain.StatusPending {
		t.Errorf("Status = %q, want pending", captured.Status)
	}
	if captured.ScheduledAt.Before(before) || captured.ScheduledAt.After(time.Now()) {
		t.Errorf("ScheduledAt = %v, want ~now", captured.ScheduledAt)
	}
}

func TestSubmitJob_ExplicitZeroRetriesKept(t *testing.T) {
	var captured *domain.Job
	q := echoQueue()
	q.submit = func(_ context.Context, j *domain.Job) (*domain.Job, error) {
		captured = j
		return j, nil
	}

	zero := 0
	_, err := newJobUsecase(q, &fakeJobRepo{}).SubmitJob(context.Background(), usecase.SubmitJobInput{
		Name:       "one-shot",
		Type:       "email",
		MaxRetries: &zero,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want explicit 0", captured.MaxRetries)
	}
}

func TestSubmitJob_UnknownTypeRejected(t *testing.T) {
	submitted := false
	q := echoQueue()
	q.submit = func(_ context.Context, j *domain.Job) (*domain.Job, error) {
		submitted = true
		return j, nil
	}

	_, err := newJobUsecase(q, &fakeJobRepo{}).SubmitJob(context.Background(), usecase.SubmitJobInput{
		Name: "x",
		Type: "webhook",
	})
	asValidation(t, err, "type")
	if submitted {
		t.Error("job was submitted despite failed validation")
	}
}

func TestSubmitJob_PriorityOutOfRange(t *testing.T) {
	_, err := newJobUsecase(echoQueue(), &fakeJobRepo{}).SubmitJob(context.Background(), usecase.SubmitJobInput{
		Name:     "x",
		Type:     "email",
		Priority: domain.MaxPriority + 1,
	})
	asValidation(t, err, "priority")
}

func TestSubmitJob_PayloadMustBeJSON(t *testing.T) {
	_, err := newJobUsecase(echoQueue(), &fakeJobRepo{}).SubmitJob(context.Background(), usecase.SubmitJobInput{
		Name:    "x",
		Type:    "email",
		Payload: []byte(`{broken`),
	})
	asValidation(t, err, "payload")
}

// ---- SubmitBulk ----

func TestSubmitBulk_ItemErrorNamesIndex(t *testing.T) {
	called := false
	q := echoQueue()
	q.submitMany = func(_ context.Context, jobs []*domain.Job) ([]*domain.Job, error) {
		called = true
		return jobs, nil
	}

	_, err := newJobUsecase(q, &fakeJobRepo{}).SubmitBulk(context.Background(), []usecase.SubmitJobInput{
		{Name: "a", Type: "email"},
		{Name: "b", Type: "nope"},
	})
	asValidation(t, err, "type")
	if !strings.Contains(err.Error(), "jobs[1]:") {
		t.Errorf("error %q does not name the failing index", err)
	}
	if called {
		t.Error("batch was written despite a failing item")
	}
}

func TestSubmitBulk_EmptyRejected(t *testing.T) {
	_, err := newJobUsecase(echoQueue(), &fakeJobRepo{}).SubmitBulk(context.Background(), nil)
	asValidation(t, err, "jobs")
}

func TestSubmitBulk_CapEnforced(t *testing.T) {
	u := usecase.NewJobUsecase(echoQueue(), &fakeJobRepo{}, knownTypes, 3, 2)
	inputs := []usecase.SubmitJobInput{
		{Name: "a", Type: "email"},
		{Name: "b", Type: "email"},
		{Name: "c", Type: "email"},
	}
	_, err := u.SubmitBulk(context.Background(), inputs)
	asValidation(t, err, "jobs")
}

func TestSubmitBulk_SharesOneTimestamp(t *testing.T) {
	var captured []*domain.Job
	q := echoQueue()
	q.submitMany = func(_ context.Context, jobs []*domain.Job) ([]*domain.Job, error) {
		captured = jobs
		return jobs, nil
	}

	_, err := newJobUsecase(q, &fakeJobRepo{}).SubmitBulk(context.Background(), []usecase.SubmitJobInput{
		{Name: "a", Type: "email"},
		{Name: "b", Type: "ai_task"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(captured) != 2 {
		t.Fatalf("submitted %d jobs, want 2", len(captured))
	}
	if !captured[0].ScheduledAt.Equal(captured[1].ScheduledAt) {
		t.Error("batch items got different default ScheduledAt values")
	}
}

// ---- ListJobs ----

func TestListJobs_ClampsPaging(t *testing.T) {
	var captured repository.ListJobsInput
	repo := &fakeJobRepo{
		listJobs: func(_ context.Context, input repository.ListJobsInput) ([]*domain.Job, int, error) {
			captured = input
			return nil, 0, nil
		},
	}

	res, err := newJobUsecase(echoQueue(), repo).ListJobs(context.Background(), usecase.ListJobsInput{
		Page:     0,
		PageSize: 9999,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.Limit != 500 || captured.Offset != 0 {
		t.Errorf("repo got limit=%d offset=%d, want 500/0", captured.Limit, captured.Offset)
	}
	if res.Page != 1 || res.PageSize != 500 {
		t.Errorf("result page=%d size=%d, want 1/500", res.Page, res.PageSize)
	}
}

func TestListJobs_PassesFilters(t *testing.T) {
	var captured repository.ListJobsInput
	repo := &fakeJobRepo{
		listJobs: func(_ context.Context, input repository.ListJobsInput) ([]*domain.Job, int, error) {
			captured = input
			return nil, 42, nil
		},
	}

	res, err := newJobUsecase(echoQueue(), repo).ListJobs(context.Background(), usecase.ListJobsInput{
		Status:   "failed",
		Type:     "email",
		Page:     3,
		PageSize: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.Status != domain.StatusFailed || captured.Type != "email" {
		t.Errorf("filters not forwarded: %+v", captured)
	}
	if captured.Limit != 10 || captured.Offset != 20 {
		t.Errorf("repo got limit=%d offset=%d, want 10/20", captured.Limit, captured.Offset)
	}
	if res.Total != 42 {
		t.Errorf("Total = %d, want 42", res.Total)
	}
}

func TestListJobs_RejectsUnknownStatus(t *testing.T) {
	_, err := newJobUsecase(echoQueue(), &fakeJobRepo{}).ListJobs(context.Background(), usecase.ListJobsInput{
		Status: "sleeping",
	})
	asValidation(t, err, "status")
}

// ---- CancelJob / RetryJob ----

func TestCancelJob_DropsQueueReference(t *testing.T) {
	q := echoQueue()
	repo := &fakeJobRepo{
		cancel: func(_ context.Context, _ string) error { return nil },
		getByID: func(_ context.Context, id string) (*domain.Job, error) {
			return &domain.Job{ID: id, Status: domain.StatusCancelled}, nil
		},
	}

	job, err := newJobUsecase(q, repo).CancelJob(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != domain.StatusCancelled {
		t.Errorf("Status = %q, want cancelled", job.Status)
	}
	if len(q.removed) != 1 || q.removed[0] != "job-1" {
		t.Errorf("queue removals = %v, want [job-1]", q.removed)
	}
}

func TestCancelJob_StateConflictPropagates(t *testing.T) {
	q := echoQueue()
	repo := &fakeJobRepo{
		cancel: func(_ context.Context, _ string) error { return domain.ErrJobNotCancellable },
	}

	_, err := newJobUsecase(q, repo).CancelJob(context.Background(), "job-1")
	if !errors.Is(err, domain.ErrJobNotCancellable) {
		t.Errorf("want ErrJobNotCancellable, got %v", err)
	}
	if len(q.removed) != 0 {
		t.Error("queue reference was removed for a job that was not cancelled")
	}
}

func TestRetryJob_RepublishesReference(t *testing.T) {
	q := echoQueue()
	repo := &fakeJobRepo{
		resetForRetry: func(_ context.Context, _ string) error { return nil },
		getByID: func(_ context.Context, id string) (*domain.Job, error) {
			return &domain.Job{ID: id, Status: domain.StatusPending, Priority: 7}, nil
		},
	}

	job, err := newJobUsecase(q, repo).RetryJob(context.Background(), "job-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ID != "job-9" {
		t.Errorf("returned job %q, want job-9", job.ID)
	}
	if len(q.requeued) != 1 || q.requeued[0] != "job-9" {
		t.Errorf("requeued = %v, want [job-9]", q.requeued)
	}
}

func TestRetryJob_NotRetryablePropagates(t *testing.T) {
	repo := &fakeJobRepo{
		resetForRetry: func(_ context.Context, _ string) error { return domain.ErrJobNotRetryable },
	}

	_, err := newJobUsecase(echoQueue(), repo).RetryJob(context.Background(), "job-1")
	if !errors.Is(err, domain.ErrJobNotRetryable) {
		t.Errorf("want ErrJobNotRetryable, got %v", err)
	}
}

// ---- Stats ----

func TestStats_IncludesQueueDepth(t *testing.T) {
	q := echoQueue()
	q.depth = queue.Depth{Fast: 4, DurableReady: 9}
	repo := &fakeJobRepo{
		stats: func(_ context.Context) (*repository.JobStats, error) {
			return &repository.JobStats{
				Total:       100,
				ByStatus:    map[domain.Status]int{domain.StatusSucceeded: 90},
				SuccessRate: 0.9,
			}, nil
		},
	}

	stats, err := newJobUsecase(q, repo).Stats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Total != 100 || stats.SuccessRate != 0.9 {
		t.Errorf("store stats not carried over: %+v", stats)
	}
	if stats.Queue != q.depth {
		t.Errorf("Queue = %+v, want %+v", stats.Queue, q.depth)
	}
}
