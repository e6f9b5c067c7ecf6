package scheduler

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/domain"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/repository"
)

type fakeScheduleRepo struct {
	repository.ScheduleRepository
	claimAndFire func(ctx context.Context, limit int, computeNext func(*domain.Schedule) time.Time) ([]*domain.Job, error)
}

func (f *fakeScheduleRepo) ClaimAndFire(ctx context.Context, limit int, computeNext func(*domain.Schedule) time.Time) ([]*domain.Job, error) {
	return f.claimAndFire(ctx, limit, computeNext)
}

type recordingRefs struct {
	ids []string
}

func (r *recordingRefs) Requeue(_ context.Context, id string, _ int, _ time.Time) {
	r.ids = append(r.ids, id)
}

func TestComputeNext_SkipsMissedRuns(t *testing.T) {
	d := NewDispatcher(nil, nil, slog.Default(), time.Second)
	s := &domain.Schedule{
		ID:        "s1",
		CronExpr:  "*/5 * * * *",
		NextRunAt: time.Now().Add(-30 * time.Minute),
	}

	next := d.computeNext(s)
	now := time.Now()
	if !next.After(now) {
		t.Fatalf("expected future run, got %v", next)
	}
	if next.Sub(now) > 5*time.Minute {
		t.Fatalf("expected next run within one period, got %v away", next.Sub(now))
	}
}

func TestComputeNext_InvalidExpressionFallsBackAnHour(t *testing.T) {
	d := NewDispatcher(nil, nil, slog.Default(), time.Second)
	s := &domain.Schedule{ID: "s1", CronExpr: "not a cron", NextRunAt: time.Now()}

	next := d.computeNext(s)
	d2 := time.Until(next)
	if d2 < 59*time.Minute || d2 > 61*time.Minute {
		t.Fatalf("expected ~1h fallback, got %v", d2)
	}
}

func TestDispatch_PublishesFiredJobsToFastTier(t *testing.T) {
	now := time.Now()
	repo := &fakeScheduleRepo{
		claimAndFire: func(_ context.Context, limit int, _ func(*domain.Schedule) time.Time) ([]*domain.Job, error) {
			if limit != 100 {
				t.Fatalf("expected batch limit 100, got %d", limit)
			}
			return []*domain.Job{
				{ID: "j1", Priority: 5, ScheduledAt: now},
				{ID: "j2", Priority: 0, ScheduledAt: now},
			}, nil
		},
	}
	refs := &recordingRefs{}

	d := NewDispatcher(repo, refs, slog.Default(), time.Second)
	d.dispatch(context.Background())

	if len(refs.ids) != 2 || refs.ids[0] != "j1" || refs.ids[1] != "j2" {
		t.Fatalf("expected both fired jobs published, got %v", refs.ids)
	}
}
