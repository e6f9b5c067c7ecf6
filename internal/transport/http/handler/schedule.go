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

type scheduleUsecaser interface {
	CreateSchedule(ctx context.Context, input usecase.CreateScheduleInput) (*domain.Schedule, error)
	GetSchedule(ctx context.Context, id string) (*domain.Schedule, error)
	ListSchedules(ctx context.Context, page, pageSize int) (usecase.ListSchedulesResult, error)
	PauseSchedule(ctx context.Context, id string) error
	ResumeSchedule(ctx context.Context, id string) error
	DeleteSchedule(ctx context.Context, id string) error
}

type ScheduleHandler struct {
	uc     scheduleUsecaser
	logger *slog.Logger
}

func NewScheduleHandler(uc scheduleUsecaser, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{uc: uc, logger: logger.With("component", "schedule_handler")}
}

type createScheduleRequest struct {
	Name       string          `json:"name"      binding:"required,max=200"`
	JobType    string          `json:"job_type"  binding:"required,max=100"`
	CronExpr   string          `json:"cron_expr" binding:"required"`
	Payload    json.RawMessage `json:"payload"`
	Priority   int             `json:"priority"  binding:"omitempty,min=-1000,max=1000"`
	MaxRetries *int            `json:"max_retries"`
}

type scheduleResponse struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	JobType    string          `json:"job_type"`
	CronExpr   string          `json:"cron_expr"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Priority   int             `json:"priority"`
	MaxRetries int             `json:"max_retries"`
	Paused     bool            `json:"paused"`
	NextRunAt  time.Time       `json:"next_run_at"`
	LastRunAt  *time.Time      `json:"last_run_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func toScheduleResponse(s *domain.Schedule) scheduleResponse {
	return scheduleResponse{
		ID:         s.ID,
		Name:       s.Name,
		JobType:    s.JobType,
		CronExpr:   s.CronExpr,
		Payload:    s.Payload,
		Priority:   s.Priority,
		MaxRetries: s.MaxRetries,
		Paused:     s.Paused,
		NextRunAt:  s.NextRunAt,
		LastRunAt:  s.LastRunAt,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

// POST /api/v1/schedules (operator)
func (h *ScheduleHandler) Create(ctx *gin.Context) {
	var req createScheduleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var owner *string
	if id := ctx.GetString(middleware.CtxUserID); id != "" {
		owner = &id
	}

	s, err := h.uc.CreateSchedule(ctx.Request.Context(), usecase.CreateScheduleInput{
		Name:       req.Name,
		JobType:    req.JobType,
		CronExpr:   req.CronExpr,
		Payload:    req.Payload,
		Priority:   req.Priority,
		MaxRetries: req.MaxRetries,
		OwnerID:    owner,
	})
	if err != nil {
		var verr *domain.ValidationError
		switch {
		case errors.Is(err, domain.ErrInvalidCronExpr):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidCronExpr})
		case errors.As(err, &verr):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
		case errors.Is(err, domain.ErrScheduleNameConflict):
			ctx.JSON(http.StatusConflict, gin.H{"error": errScheduleNameConflict})
		default:
			h.logger.ErrorContext(ctx.Request.Context(), "create schedule", "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	ctx.JSON(http.StatusCreated, toScheduleResponse(s))
}

// GET /api/v1/schedules (viewer)
func (h *ScheduleHandler) List(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.Query("page"))
	pageSize, _ := strconv.Atoi(ctx.Query("page_size"))

	result, err := h.uc.ListSchedules(ctx.Request.Context(), page, pageSize)
	if err != nil {
		h.logger.ErrorContext(ctx.Request.Context(), "list schedules", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	items := make([]scheduleResponse, len(result.Schedules))
	for i, s := range result.Schedules {
		items[i] = toScheduleResponse(s)
	}
	ctx.JSON(http.StatusOK, gin.H{
		"schedules": items,
		"total":     result.Total,
		"page":      result.Page,
		"page_size": result.PageSize,
	})
}

// GET /api/v1/schedules/:id (viewer)
func (h *ScheduleHandler) GetByID(ctx *gin.Context) {
	id := ctx.Param("id")

	s, err := h.uc.GetSchedule(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrScheduleNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errScheduleNotFound})
			return
		}
		h.logger.ErrorContext(ctx.Request.Context(), "get schedule", "schedule_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, toScheduleResponse(s))
}

// POST /api/v1/schedules/:id/pause (operator)
func (h *ScheduleHandler) Pause(ctx *gin.Context) {
	id := ctx.Param("id")

	if err := h.uc.PauseSchedule(ctx.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrScheduleNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": errScheduleNotFound})
		case errors.Is(err, domain.ErrScheduleAlreadyPaused):
			ctx.JSON(http.StatusConflict, gin.H{"error": errScheduleAlreadyPaused})
		default:
			h.logger.ErrorContext(ctx.Request.Context(), "pause schedule", "schedule_id", id, "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	ctx.Status(http.StatusNoContent)
}

// POST /api/v1/schedules/:id/resume (operator)
func (h *ScheduleHandler) Resume(ctx *gin.Context) {
	id := ctx.Param("id")

	if err := h.uc.ResumeSchedule(ctx.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrScheduleNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": errScheduleNotFound})
		case errors.Is(err, domain.ErrScheduleNotPaused):
			ctx.JSON(http.StatusConflict, gin.H{"error": errScheduleNotPaused})
		default:
			h.logger.ErrorContext(ctx.Request.Context(), "resume schedule", "schedule_id", id, "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	ctx.Status(http.StatusNoContent)
}

// DELETE /api/v1/schedules/:id (operator)
func (h *ScheduleHandler) Delete(ctx *gin.Context) {
	id := ctx.Param("id")

	if err := h.uc.DeleteSchedule(ctx.Request.Context(), id); err != nil {
		if errors.Is(err, domain.ErrScheduleNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errScheduleNotFound})
			return
		}
		h.logger.ErrorContext(ctx.Request.Context(), "delete schedule", "schedule_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.Status(http.StatusNoContent)
}
