package httptransport

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/domain"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/transport/http/handler"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/transport/http/middleware"
)

func NewRouter(
	logger *slog.Logger,
	authHandler *handler.AuthHandler,
	jobHandler *handler.JobHandler,
	scheduleHandler *handler.ScheduleHandler,
	jwtKey []byte,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	authMW := middleware.Auth(jwtKey)
	viewer := middleware.RequireRole(domain.RoleViewer)
	operator := middleware.RequireRole(domain.RoleOperator)
	admin := middleware.RequireRole(domain.RoleAdmin)

	v1 := r.Group("/api/v1")

	auth := v1.Group("/auth")
	auth.POST("/register", middleware.OptionalAuth(jwtKey), authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.GET("/users", authMW, admin, authHandler.ListUsers)

	jobs := v1.Group("/jobs", authMW)
	jobs.POST("", operator, jobHandler.Submit)
	jobs.POST("/bulk", operator, jobHandler.SubmitBulk)
	jobs.GET("", viewer, jobHandler.List)
	jobs.GET("/stats", viewer, jobHandler.Stats)
	jobs.GET("/:id", viewer, jobHandler.GetByID)
	jobs.POST("/:id/cancel", operator, jobHandler.Cancel)
	jobs.POST("/:id/retry", operator, jobHandler.Retry)

	schedules := v1.Group("/schedules", authMW)
	schedules.POST("", operator, scheduleHandler.Create)
	schedules.GET("", viewer, scheduleHandler.List)
	schedules.GET("/:id", viewer, scheduleHandler.GetByID)
	schedules.POST("/:id/pause", operator, scheduleHandler.Pause)
	schedules.POST("/:id/resume", operator, scheduleHandler.Resume)
	schedules.DELETE("/:id", operator, scheduleHandler.Delete)

	return r
}
