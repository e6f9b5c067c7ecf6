package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/domain"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/queue"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/transport/http/handler"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/usecase"
)

type fakeJobUsecase struct {
	submitJob  func(ctx context.Context, input usecase.SubmitJobInput) (*domain.Job, error)
	submitBulk func(ctx context.Context, inputs []usecase.SubmitJobInput) ([]*domain.Job, error)
	getJob     func(ctx context.Context, jobID string) (*domain.Job, error)
	listJobs   func(ctx context.Context, input usecase.ListJobsInput) (usecase.ListJobsResult, error)
	cancelJob  func(ctx context.Context, jobID string) (*domain.Job, error)
	retryJob   func(ctx context.Context, jobID string) (*domain.Job, error)
	stats      func(ctx context.Context) (*usecase.StatsResult, error)
}

func (f *fakeJobUsecase) SubmitJob(ctx context.Context, input usecase.SubmitJobInput) (*domain.Job, error) {
	return f.submitJob(ctx, input)
}

func (f *fakeJobUsecase) SubmitBulk(ctx context.Context, inputs []usecase.SubmitJobInput) ([]*domain.Job, error) {
	return f.submitBulk(ctx, inputs)
}

func (f *fakeJobUsecase) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return f.getJob(ctx, jobID)
}

func (f *fakeJobUsecase) ListJobs(ctx context.Context, input usecase.ListJobsInput) (usecase.ListJobsResult, error) {
	return f.listJobs(ctx, input)
}

func (f *fakeJobUsecase) CancelJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return f.cancelJob(ctx, jobID)
}

func (f *fakeJobUsecase) RetryJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return f.retryJob(ctx, jobID)
}

func (f *fakeJobUsecase) Stats(ctx context.Context) (*usecase.StatsResult, error) {
	return f.stats(ctx)
}

func newJobEngine(uc *fakeJobUsecase) *gin.Engine {
	h := handler.NewJobHandler(uc, testLogger())

	r := gin.New()
	r.POST("/jobs", h.Submit)
	r.POST("/jobs/bulk", h.SubmitBulk)
	r.GET("/jobs", h.List)
	r.GET("/jobs/stats", h.Stats)
	r.GET("/jobs/:id", h.GetByID)
	r.POST("/jobs/:id/cancel", h.Cancel)
	r.POST("/jobs/:id/retry", h.Retry)
	return r
}

func sampleJob(id string, status domain.Status) *domain.Job {
	return &domain.Job{
		ID:          id,
		Name:        "welcome-email",
		Type:        "email",
		Status:      status,
		Payload:     json.RawMessage(`{"to":"a@b.c"}`),
		MaxRetries:  3,
		ScheduledAt: time.Now(),
		CreatedAt:   time.Now(),
	}
}

// ---- Submit ----

func TestSubmitJob_Success_Returns201(t *testing.T) {
	uc := &fakeJobUsecase{
		submitJob: func(_ context.Context, _ usecase.SubmitJobInput) (*domain.Job, error) {
			return sampleJob("job-1", domain.StatusPending), nil
		},
	}

	w := postJSON(newJobEngine(uc), "/jobs", `{"name":"welcome-email","type":"email"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["id"] != "job-1" || body["status"] != "pending" {
		t.Errorf("body = %v, want id job-1 status pending", body)
	}
}

func TestSubmitJob_MissingName_Returns400(t *testing.T) {
	called := false
	uc := &fakeJobUsecase{
		submitJob: func(_ context.Context, _ usecase.SubmitJobInput) (*domain.Job, error) {
			called = true
			return nil, nil
		},
	}

	w := postJSON(newJobEngine(uc), "/jobs", `{"type":"email"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if called {
		t.Error("usecase called despite binding failure")
	}
}

func TestSubmitJob_ValidationError_Returns400WithField(t *testing.T) {
	uc := &fakeJobUsecase{
		submitJob: func(_ context.Context, _ usecase.SubmitJobInput) (*domain.Job, error) {
			return nil, domain.NewValidationError("type", "unknown job type: webhook")
		},
	}

	w := postJSON(newJobEngine(uc), "/jobs", `{"name":"x","type":"webhook"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "unknown job type") {
		t.Errorf("body %q lacks field message", w.Body.String())
	}
}

// ---- SubmitBulk ----

func TestSubmitBulk_Success_Returns201Array(t *testing.T) {
	uc := &fakeJobUsecase{
		submitBulk: func(_ context.Context, inputs []usecase.SubmitJobInput) ([]*domain.Job, error) {
			jobs := make([]*domain.Job, len(inputs))
			for i := range inputs {
				jobs[i] = sampleJob("job-"+inputs[i].Name, domain.StatusPending)
			}
			return jobs, nil
		},
	}

	w := postJSON(newJobEngine(uc), "/jobs/bulk",
		`{"jobs":[{"name":"a","type":"email"},{"name":"b","type":"ai_task"}]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}

	var body []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 2 {
		t.Errorf("got %d jobs, want 2", len(body))
	}
}

func TestSubmitBulk_EmptyList_Returns400(t *testing.T) {
	w := postJSON(newJobEngine(&fakeJobUsecase{}), "/jobs/bulk", `{"jobs":[]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSubmitBulk_ItemError_Returns400NamingIndex(t *testing.T) {
	uc := &fakeJobUsecase{
		submitBulk: func(_ context.Context, _ []usecase.SubmitJobInput) ([]*domain.Job, error) {
			verr := domain.NewValidationError("type", "unknown job type: nope")
			return nil, fmt.Errorf("jobs[1]: %w", verr)
		},
	}

	w := postJSON(newJobEngine(uc), "/jobs/bulk",
		`{"jobs":[{"name":"a","type":"email"},{"name":"b","type":"nope"}]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "jobs[1]") {
		t.Errorf("body %q does not name the failing item", w.Body.String())
	}
}

// ---- List / Stats ----

func TestListJobs_ForwardsQueryParams(t *testing.T) {
	var captured usecase.ListJobsInput
	uc := &fakeJobUsecase{
		listJobs: func(_ context.Context, input usecase.ListJobsInput) (usecase.ListJobsResult, error) {
			captured = input
			return usecase.ListJobsResult{Jobs: []*domain.Job{sampleJob("job-1", domain.StatusFailed)}, Total: 1, Page: 2, PageSize: 10}, nil
		},
	}

	w := getPath(newJobEngine(uc), "/jobs?status=failed&job_type=email&page=2&page_size=10")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if captured.Status != "failed" || captured.Type != "email" || captured.Page != 2 || captured.PageSize != 10 {
		t.Errorf("forwarded input = %+v", captured)
	}

	var body struct {
		Jobs     []map[string]any `json:"jobs"`
		Total    int              `json:"total"`
		Page     int              `json:"page"`
		PageSize int              `json:"page_size"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Total != 1 || body.Page != 2 || body.PageSize != 10 || len(body.Jobs) != 1 {
		t.Errorf("body = %+v", body)
	}
}

func TestListJobs_UnknownStatus_Returns400(t *testing.T) {
	uc := &fakeJobUsecase{
		listJobs: func(_ context.Context, _ usecase.ListJobsInput) (usecase.ListJobsResult, error) {
			return usecase.ListJobsResult{}, domain.NewValidationError("status", "unknown status: sleeping")
		},
	}

	w := getPath(newJobEngine(uc), "/jobs?status=sleeping")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestStats_ReportsQueueDepth(t *testing.T) {
	uc := &fakeJobUsecase{
		stats: func(_ context.Context) (*usecase.StatsResult, error) {
			return &usecase.StatsResult{
				Total:       10,
				ByStatus:    map[domain.Status]int{domain.StatusSucceeded: 8, domain.StatusFailed: 2},
				SuccessRate: 0.8,
				Queue:       queue.Depth{Fast: 3, DurableReady: 5},
			}, nil
		},
	}

	w := getPath(newJobEngine(uc), "/jobs/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		ByStatus map[string]int `json:"by_status"`
		Queue    struct {
			Fast         int `json:"fast"`
			DurableReady int `json:"durable_ready"`
		} `json:"queue"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.ByStatus["succeeded"] != 8 {
		t.Errorf("by_status = %v", body.ByStatus)
	}
	if body.Queue.Fast != 3 || body.Queue.DurableReady != 5 {
		t.Errorf("queue = %+v, want fast 3 durable 5", body.Queue)
	}
}

// ---- GetByID / Cancel / Retry ----

func TestGetJob_NotFound_Returns404(t *testing.T) {
	uc := &fakeJobUsecase{
		getJob: func(_ context.Context, _ string) (*domain.Job, error) {
			return nil, domain.ErrJobNotFound
		},
	}

	w := getPath(newJobEngine(uc), "/jobs/missing")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestCancelJob_Success_ReturnsUpdatedJob(t *testing.T) {
	uc := &fakeJobUsecase{
		cancelJob: func(_ context.Context, id string) (*domain.Job, error) {
			return sampleJob(id, domain.StatusCancelled), nil
		},
	}

	w := postJSON(newJobEngine(uc), "/jobs/job-1/cancel", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"cancelled"`) {
		t.Errorf("body %q lacks cancelled status", w.Body.String())
	}
}

func TestCancelJob_RunningJob_Returns409(t *testing.T) {
	uc := &fakeJobUsecase{
		cancelJob: func(_ context.Context, _ string) (*domain.Job, error) {
			return nil, domain.ErrJobNotCancellable
		},
	}

	w := postJSON(newJobEngine(uc), "/jobs/job-1/cancel", "")
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestRetryJob_NotTerminal_Returns409(t *testing.T) {
	uc := &fakeJobUsecase{
		retryJob: func(_ context.Context, _ string) (*domain.Job, error) {
			return nil, domain.ErrJobNotRetryable
		},
	}

	w := postJSON(newJobEngine(uc), "/jobs/job-1/retry", "")
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestRetryJob_Success_Returns200(t *testing.T) {
	uc := &fakeJobUsecase{
		retryJob: func(_ context.Context, id string) (*domain.Job, error) {
			return sampleJob(id, domain.StatusPending), nil
		},
	}

	w := postJSON(newJobEngine(uc), "/jobs/job-1/retry", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
