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

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/config"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/email"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/health"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/infrastructure/postgres"
	ctxlog "github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/log"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/metrics"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/queue"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/scheduler"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/worker"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/worker/handlers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

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
	scheduleRepo := postgres.NewScheduleRepository(pool, logger)

	coordinator := queue.NewCoordinator(jobRepo, fast, logger)

	registry := worker.NewRegistry()
	handlers.Register(registry, email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.EmailFrom, logger), logger)
	logger.Info("handlers registered", "types", registry.Types())

	executor := worker.NewExecutor(
		jobRepo,
		coordinator,
		registry,
		logger,
		cfg.JobTimeout(),
		cfg.RetryBackoffBase,
	)
	workerPool := worker.NewPool(
		coordinator,
		executor,
		logger,
		cfg.MaxWorkers,
		cfg.PollInterval(),
		time.Duration(cfg.ShutdownGraceSec)*time.Second,
	)

	go coordinator.ReclaimScan(ctx, time.Duration(cfg.ReclaimIntervalSec)*time.Second)

	dispatcher := scheduler.NewDispatcher(scheduleRepo, coordinator, logger, time.Duration(cfg.DispatchIntervalSec)*time.Second)
	go dispatcher.Start(ctx)

	reaper := scheduler.NewReaper(jobRepo, logger, time.Duration(cfg.ReaperIntervalSec)*time.Second, cfg.JobTimeout())
	go reaper.Start(ctx)

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	// Blocks until the signal arrives and every in-flight job is drained or
	// requeued.
	workerPool.Run(ctx)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("worker shut down")
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
