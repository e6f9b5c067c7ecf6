package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/config"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/email"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/health"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/infrastructure/postgres"
	ctxlog "github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/log"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/metrics"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/queue"
	httptransport "github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/transport/http"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/transport/http/handler"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/usecase"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/worker"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/worker/handlers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	if cfg.JWTSecret == "" {
		log.Fatal("config error: JWT_SECRET is required")
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	if cfg.AutoMigrate {
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			stop()
			log.Fatalf("migrate: %v", err)
		}
		logger.Info("migrations applied")
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	metrics.Register()
	checker := health.NewChecker(logger, prometheus.DefaultRegisterer)
	checker.Watch("postgres", pool)

	var fast queue.ReadyQueue
	if cfg.UseFastQueue {
		rq, err := queue.NewRedisQueue(cfg.RedisURL)
		if err != nil {
			stop()
			log.Fatalf("redis: %v", err)
		}
		defer rq.Close()
		checker.Watch("redis", rq)
		fast = rq
	}

	jobRepo := postgres.NewJobRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	scheduleRepo := postgres.NewScheduleRepository(pool, logger)

	coordinator := queue.NewCoordinator(jobRepo, fast, logger)

	// The API never executes jobs, but it validates job types against the
	// same registry the workers run, so unknown types are rejected at submit.
	registry := worker.NewRegistry()
	handlers.Register(registry, email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.EmailFrom, logger), logger)

	jobUsecase := usecase.NewJobUsecase(coordinator, jobRepo, registry, cfg.MaxRetries, cfg.BulkSubmitCap)
	authUsecase := usecase.NewAuthUsecase(userRepo, []byte(cfg.JWTSecret), time.Duration(cfg.TokenTTLMin)*time.Minute)
	scheduleUsecase := usecase.NewScheduleUsecase(scheduleRepo, registry, cfg.MaxRetries)

	jobHandler := handler.NewJobHandler(jobUsecase, logger)
	authHandler := handler.NewAuthHandler(authUsecase, logger)
	scheduleHandler := handler.NewScheduleHandler(scheduleUsecase, logger)

	srv := http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httptransport.NewRouter(logger, authHandler, jobHandler, scheduleHandler, []byte(cfg.JWTSecret)),
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
