// seed provisions a local dev database: an admin user, a batch of demo jobs
// across every built-in handler, and one recurring schedule.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/domain"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/email"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/infrastructure/postgres"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/queue"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/usecase"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/worker"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/worker/handlers"
)

const (
	seedUsername = "admin"
	seedEmail    = "admin@test.local"
	seedPassword = "admin-dev-password"
)

type jobSpec struct {
	name     string
	jobType  string
	priority int
	payload  string
}

var jobs = []jobSpec{
	// Happy path across every handler, mixed priorities
	{"welcome email", "email", 10, `{"to":"new-user@test.local","subject":"Welcome!","body":"Thanks for signing up."}`},
	{"digest email", "email", 0, `{"to":"digest@test.local","subject":"Daily digest","body":"Here is what happened today."}`},
	{"classify feedback", "ai_task", 5, `{"task":"classification","input":"The new release is fantastic, great work"}`},
	{"summarize report", "ai_task", 0, `{"task":"summarization","input":"Quarterly numbers were up across every region, with the strongest growth in the newly launched product lines."}`},
	{"clean signup data", "data_cleaning", -5, `{"source":"signups.csv","row_count":5000,"operations":["dedup","normalize"]}`},
	{"clean event log", "data_cleaning", 0, `{"source":"events","row_count":20000}`},

	// Will fail and walk the retry ladder
	{"flaky email", "email", 0, `{"to":"flaky@test.local","subject":"Flaky","simulate_failure":true}`},
	{"flaky inference", "ai_task", 0, `{"task":"classification","input":"short","simulate_failure":true}`},
	{"broken etl", "data_cleaning", 0, `{"source":"broken","row_count":100,"simulate_failure":true}`},
}

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	if err := postgres.Migrate(dbURL); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	jobRepo := postgres.NewJobRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	scheduleRepo := postgres.NewScheduleRepository(pool, logger)

	// No fast tier here: the reclaim scan republishes these rows as soon as a
	// worker instance is up.
	coordinator := queue.NewCoordinator(jobRepo, nil, logger)

	registry := worker.NewRegistry()
	handlers.Register(registry, email.NewLogSender(logger), logger)

	authUC := usecase.NewAuthUsecase(userRepo, []byte("seed-only-secret-never-used-to-sign"), time.Hour)
	jobUC := usecase.NewJobUsecase(coordinator, jobRepo, registry, 5, 100)
	scheduleUC := usecase.NewScheduleUsecase(scheduleRepo, registry, 5)

	// Admin user, idempotent across re-runs.
	admin, err := authUC.Register(ctx, usecase.RegisterInput{
		Username:  seedUsername,
		Email:     seedEmail,
		Password:  seedPassword,
		Role:      domain.RoleAdmin,
		ActorRole: domain.RoleAdmin,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrUsernameTaken) && !errors.Is(err, domain.ErrEmailTaken) {
			log.Fatalf("seed admin: %v", err)
		}
		admin, err = userRepo.FindByUsername(ctx, seedUsername)
		if err != nil {
			log.Fatalf("find admin: %v", err)
		}
	}

	inputs := make([]usecase.SubmitJobInput, 0, len(jobs))
	for _, spec := range jobs {
		inputs = append(inputs, usecase.SubmitJobInput{
			Name:     spec.name,
			Type:     spec.jobType,
			Priority: spec.priority,
			Payload:  json.RawMessage(spec.payload),
			OwnerID:  &admin.ID,
		})
	}
	created, err := jobUC.SubmitBulk(ctx, inputs)
	if err != nil {
		log.Fatalf("submit demo jobs: %v", err)
	}

	sched, err := scheduleUC.CreateSchedule(ctx, usecase.CreateScheduleInput{
		Name:     "hourly-digest",
		JobType:  "email",
		CronExpr: "0 * * * *",
		Payload:  json.RawMessage(`{"to":"digest@test.local","subject":"Hourly digest","body":"Scheduled run."}`),
		OwnerID:  &admin.ID,
	})
	if err != nil && !errors.Is(err, domain.ErrScheduleNameConflict) {
		log.Fatalf("create schedule: %v", err)
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Admin user:   %s / %s\n", seedUsername, seedPassword)
	fmt.Printf("  Jobs created: %d\n", len(created))
	if sched != nil {
		fmt.Printf("  Schedule:     %s (%s)\n", sched.Name, sched.CronExpr)
	}
	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Println("  Step 1 — get a token:")
	fmt.Println()
	fmt.Printf("    curl -s -X POST http://localhost:8080/api/v1/auth/login \\\n")
	fmt.Printf("      -H 'Content-Type: application/json' \\\n")
	fmt.Printf("      -d '{\"username\":\"%s\",\"password\":\"%s\"}'\n", seedUsername, seedPassword)
	fmt.Println()
	fmt.Println("  Step 2 — start a worker (go run ./cmd/worker) and watch the queue drain:")
	fmt.Println()
	fmt.Println("    export JWT=eyJ...")
	fmt.Println("    curl -s http://localhost:8080/api/v1/jobs/stats -H \"Authorization: Bearer $JWT\"")
	fmt.Println()
	fmt.Println("  What to expect:")
	fmt.Println("    the six demo jobs     →  succeeded, highest priority first")
	fmt.Println("    the three flaky jobs  →  retrying with growing gaps, then failed")
	fmt.Println("    hourly-digest         →  a new email job at the top of each hour")
}
