package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/domain"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/transport/http/middleware"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/usecase"
)

// jobUsecaser is the subset of JobUsecase the handler needs.
type jobUsecaser interface {
	SubmitJob(ctx context.Context, input usecase.SubmitJobInput) (*domain.Job, error)
	SubmitBulk(ctx context.Context, inputs []usecase.SubmitJobInput) ([]*domain.Job, error)
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, input usecase.ListJobsInput) (usecase.ListJobsResult, error)
	CancelJob(ctx context.Context, jobID string) (*domain.Job, error)
	RetryJob(ctx context.Context, jobID string) (*domain.Job, error)
	Stats(ctx context.Context) (*usecase.StatsResult, error)
}

type JobHandler struct {
	uc     jobUsecaser
	logger *slog.Logger
}

func NewJobHandler(uc jobUsecaser, logger *slog.Logger) *JobHandler {
	return &JobHandler{uc: uc, logger: logger.With("component", "job_handler")}
}

type submitJobRequest struct {
	Name        string          `json:"name"         binding:"required,max=200"`
	Type        string          `json:"type"         binding:"required,max=100"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"     binding:"omitempty,min=-1000,max=1000"`
	MaxRetries  *int            `json:"max_retries"`
	ScheduledAt *time.Time      `json:"scheduled_at"`
}

type jobResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Status      domain.Status   `json:"status"`
	Priority    int             `json:"priority"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Attempts    int             `json:"attempts"`
	MaxRetries  int             `json:"max_retries"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *string         `json:"error,omitempty"`
	ClaimedBy   *string         `json:"claimed_by,omitempty"`
	DurationSec *float64        `json:"duration_sec,omitempty"`
}

func toJobResponse(j *domain.Job) jobResponse {
	return jobResponse{
		ID:          j.ID,
		Name:        j.Name,
		Type:        j.Type,
		Status:      j.Status,
		Priority:    j.Priority,
		Payload:     j.Payload,
		Attempts:    j.Attempts,
		MaxRetries:  j.MaxRetries,
		ScheduledAt: j.ScheduledAt,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Result:      j.Result,
		Error:       j.Error,
		ClaimedBy:   j.ClaimedBy,
		DurationSec: j.DurationSec,
	}
}

func (r submitJobRequest) toInput(ownerID *string) usecase.SubmitJobInput {
	return usecase.SubmitJobInput{
		Name:        r.Name,
		Type:        r.Type,
		Payload:     r.Payload,
		Priority:    r.Priority,
		MaxRetries:  r.MaxRetries,
		ScheduledAt: r.ScheduledAt,
		OwnerID:     ownerID,
	}
}

// ownerID returns the authenticated user as an owner reference, or nil for
// contexts without one.
func ownerID(ctx *gin.Context) *string {
	if id := ctx.GetString(middleware.CtxUserID); id != "" {
		return &id
	}
	return nil
}

// POST /api/v1/jobs (operator)
func (h *JobHandler) Submit(ctx *gin.Context) {
	var req submitJobRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.uc.SubmitJob(ctx.Request.Context(), req.toInput(ownerID(ctx)))
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		}
		h.logger.ErrorContext(ctx.Request.Context(), "submit job", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusCreated, toJobResponse(job))
}

type bulkSubmitRequest struct {
	Jobs []submitJobRequest `json:"jobs" binding:"required,min=1,dive"`
}

// POST /api/v1/jobs/bulk (operator)
// The batch is atomic: one bad item rejects the whole request and nothing
// is enqueued.
func (h *JobHandler) SubmitBulk(ctx *gin.Context) {
	var req bulkSubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	owner := ownerID(ctx)
	inputs := make([]usecase.SubmitJobInput, len(req.Jobs))
	for i, r := range req.Jobs {
		inputs[i] = r.toInput(owner)
	}

	jobs, err := h.uc.SubmitBulk(ctx.Request.Context(), inputs)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.ErrorContext(ctx.Request.Context(), "submit bulk", "count", len(inputs), "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	items := make([]jobResponse, len(jobs))
	for i, j := range jobs {
		items[i] = toJobResponse(j)
	}
	ctx.JSON(http.StatusCreated, items)
}

type listJobsResponse struct {
	Jobs     []jobResponse `json:"jobs"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// GET /api/v1/jobs (viewer)
func (h *JobHandler) List(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.Query("page"))
	pageSize, _ := strconv.Atoi(ctx.Query("page_size"))

	result, err := h.uc.ListJobs(ctx.Request.Context(), usecase.ListJobsInput{
		Status:   ctx.Query("status"),
		Type:     ctx.Query("job_type"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		}
		h.logger.ErrorContext(ctx.Request.Context(), "list jobs", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	items := make([]jobResponse, len(result.Jobs))
	for i, j := range result.Jobs {
		items[i] = toJobResponse(j)
	}
	ctx.JSON(http.StatusOK, listJobsResponse{
		Jobs:     items,
		Total:    result.Total,
		Page:     result.Page,
		PageSize: result.PageSize,
	})
}

type statsResponse struct {
	Total          int            `json:"total"`
	ByStatus       map[string]int `json:"by_status"`
	AvgDurationSec float64        `json:"avg_duration_sec"`
	SuccessRate    float64        `json:"success_rate"`
	LastHour       int            `json:"last_hour"`
	Last24Hours    int            `json:"last_24_hours"`
	Queue          statsQueue     `json:"queue"`
}

type statsQueue struct {
	Fast         int `json:"fast"`
	DurableReady int `json:"durable_ready"`
}

// GET /api/v1/jobs/stats (viewer)
func (h *JobHandler) Stats(ctx *gin.Context) {
	stats, err := h.uc.Stats(ctx.Request.Context())
	if err != nil {
		h.logger.ErrorContext(ctx.Request.Context(), "job stats", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	byStatus := make(map[string]int, len(stats.ByStatus))
	for s, n := range stats.ByStatus {
		byStatus[string(s)] = n
	}
	ctx.JSON(http.StatusOK, statsResponse{
		Total:          stats.Total,
		ByStatus:       byStatus,
		AvgDurationSec: stats.AvgDurationSec,
		SuccessRate:    stats.SuccessRate,
		LastHour:       stats.LastHour,
		Last24Hours:    stats.Last24Hours,
		Queue: statsQueue{
			Fast:         stats.Queue.Fast,
			DurableReady: stats.Queue.DurableReady,
		},
	})
}

// GET /api/v1/jobs/:id (viewer)
func (h *JobHandler) GetByID(ctx *gin.Context) {
	jobID := ctx.Param("id")

	job, err := h.uc.GetJob(ctx.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
			return
		}
		h.logger.ErrorContext(ctx.Request.Context(), "get job", "job_id", jobID, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, toJobResponse(job))
}

// POST /api/v1/jobs/:id/cancel (operator)
func (h *JobHandler) Cancel(ctx *gin.Context) {
	jobID := ctx.Param("id")

	job, err := h.uc.CancelJob(ctx.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
		case errors.Is(err, domain.ErrJobNotCancellable):
			ctx.JSON(http.StatusConflict, gin.H{"error": errJobNotCancellable})
		default:
			h.logger.ErrorContext(ctx.Request.Context(), "cancel job", "job_id", jobID, "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	ctx.JSON(http.StatusOK, toJobResponse(job))
}

// POST /api/v1/jobs/:id/retry (operator)
func (h *JobHandler) Retry(ctx *gin.Context) {
	jobID := ctx.Param("id")

	job, err := h.uc.RetryJob(ctx.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
		case errors.Is(err, domain.ErrJobNotRetryable):
			ctx.JSON(http.StatusConflict, gin.H{"error": errJobNotRetryable})
		default:
			h.logger.ErrorContext(ctx.Request.Context(), "retry job", "job_id", jobID, "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	ctx.JSON(http.StatusOK, toJobResponse(job))
}
