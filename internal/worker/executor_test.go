package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/domain"
	"github.com/Mark-maati/High-Performance-Async-Job-Processing-Engine/internal/worker"
)

type fakeStore struct {
	mu          sync.Mutex
	completed   map[string]json.RawMessage
	failed      map[string]string
	rescheduled map[string]time.Time
	retryErrs   map[string]string
	requeued    map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		completed:   make(map[string]json.RawMessage),
		failed:      make(map[string]string),
		rescheduled: make(map[string]time.Time),
		retryErrs:   make(map[string]string),
		requeued:    make(map[string]string),
	}
}

func (f *fakeStore) Complete(_ context.Context, id string, result json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[id] = result
	return nil
}

func (f *fakeStore) Fail(_ context.Context, id, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = lastError
	return nil
}

func (f *fakeStore) Reschedule(_ context.Context, id, lastError string, retryAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rescheduled[id] = retryAt
	f.retryErrs[id] = lastError
	return nil
}

func (f *fakeStore) Requeue(_ context.Context, id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requeued[id] = reason
	return nil
}

type fakeRefs struct {
	mu     sync.Mutex
	pushed map[string]time.Time
}

func newFakeRefs() *fakeRefs { return &fakeRefs{pushed: make(map[string]time.Time)} }

func (f *fakeRefs) Requeue(_ context.Context, id string, _ int, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed[id] = at
}

func newTestExecutor(store *fakeStore, refs *fakeRefs, reg *worker.Registry, timeout time.Duration) *worker.Executor {
	return worker.NewExecutor(store, refs, reg, slog.Default(), timeout, 2.0)
}

func TestExecute_Success(t *testing.T) {
	store := newFakeStore()
	reg := worker.NewRegistry()
	reg.Register("noop", func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"ok":true}`), nil
	})

	e := newTestExecutor(store, newFakeRefs(), reg, time.Minute)
	e.Execute(context.Background(), &domain.Job{ID: "j1", Type: "noop", Attempts: 1, MaxRetries: 5})

	if string(store.completed["j1"]) != `{"ok":true}` {
		t.Fatalf("expected result stored, got %s", store.completed["j1"])
	}
	if len(store.failed) != 0 || len(store.rescheduled) != 0 {
		t.Fatal("unexpected failure writes on success")
	}
}

func TestExecute_UnknownTypeIsTerminal(t *testing.T) {
	store := newFakeStore()
	e := newTestExecutor(store, newFakeRefs(), worker.NewRegistry(), time.Minute)

	// First attempt with retries left — unknown type must still skip the
	// retry ladder entirely.
	e.Execute(context.Background(), &domain.Job{ID: "j1", Type: "webhook", Attempts: 1, MaxRetries: 5})

	if got := store.failed["j1"]; got != "unknown job type: webhook" {
		t.Fatalf("expected terminal unknown-type failure, got %q", got)
	}
	if len(store.rescheduled) != 0 {
		t.Fatal("unknown type must not be retried")
	}
}

func TestExecute_FailureSchedulesRetry(t *testing.T) {
	store := newFakeStore()
	refs := newFakeRefs()
	reg := worker.NewRegistry()
	reg.Register("flaky", func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("upstream 503")
	})

	e := newTestExecutor(store, refs, reg, time.Minute)
	before := time.Now()
	e.Execute(context.Background(), &domain.Job{ID: "j1", Type: "flaky", Attempts: 1, MaxRetries: 5, Priority: 10})

	retryAt, ok := store.rescheduled["j1"]
	if !ok {
		t.Fatal("expected reschedule")
	}
	// attempts=1, base=2 → at least 2s out, jitter adds at most 10%.
	if d := retryAt.Sub(before); d < 2*time.Second || d > 2300*time.Millisecond {
		t.Fatalf("retry delay %v outside expected band", d)
	}
	if store.retryErrs["j1"] != "upstream 503" {
		t.Fatalf("expected handler error recorded, got %q", store.retryErrs["j1"])
	}
	if _, ok := refs.pushed["j1"]; !ok {
		t.Fatal("expected retry ref republished to fast tier")
	}
	if len(store.failed) != 0 {
		t.Fatal("job with retries left must not fail terminally")
	}
}

func TestExecute_LastAllowedAttemptStillRetries(t *testing.T) {
	store := newFakeStore()
	reg := worker.NewRegistry()
	reg.Register("flaky", func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("boom")
	})

	e := newTestExecutor(store, newFakeRefs(), reg, time.Minute)
	// attempts == max_retries is the final retry-eligible failure.
	e.Execute(context.Background(), &domain.Job{ID: "j1", Type: "flaky", Attempts: 5, MaxRetries: 5})

	if _, ok := store.rescheduled["j1"]; !ok {
		t.Fatal("expected reschedule at attempts == max_retries")
	}
}

func TestExecute_ExhaustedRetriesFailTerminally(t *testing.T) {
	store := newFakeStore()
	reg := worker.NewRegistry()
	reg.Register("flaky", func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("boom")
	})

	e := newTestExecutor(store, newFakeRefs(), reg, time.Minute)
	e.Execute(context.Background(), &domain.Job{ID: "j1", Type: "flaky", Attempts: 6, MaxRetries: 5})

	if store.failed["j1"] != "boom" {
		t.Fatalf("expected terminal failure, got %q", store.failed["j1"])
	}
	if len(store.rescheduled) != 0 {
		t.Fatal("exhausted job must not be rescheduled")
	}
}

func TestExecute_TimeoutRecordedWithConfiguredSeconds(t *testing.T) {
	store := newFakeStore()
	reg := worker.NewRegistry()
	reg.Register("slow", func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	e := newTestExecutor(store, newFakeRefs(), reg, time.Second)
	e.Execute(context.Background(), &domain.Job{ID: "j1", Type: "slow", Attempts: 6, MaxRetries: 5})

	if store.failed["j1"] != "timeout after 1s" {
		t.Fatalf("expected timeout message, got %q", store.failed["j1"])
	}
}

func TestExecute_PanicBecomesFailure(t *testing.T) {
	store := newFakeStore()
	reg := worker.NewRegistry()
	reg.Register("bad", func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		panic("nil map write")
	})

	e := newTestExecutor(store, newFakeRefs(), reg, time.Minute)
	e.Execute(context.Background(), &domain.Job{ID: "j1", Type: "bad", Attempts: 6, MaxRetries: 5})

	if store.failed["j1"] != "handler panic: nil map write" {
		t.Fatalf("expected recovered panic, got %q", store.failed["j1"])
	}
}

func TestExecute_ShutdownInterruptRequeuesWithoutBurningAttempt(t *testing.T) {
	store := newFakeStore()
	reg := worker.NewRegistry()
	reg.Register("slow", func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newTestExecutor(store, newFakeRefs(), reg, time.Minute)
	e.Execute(ctx, &domain.Job{ID: "j1", Type: "slow", Attempts: 1, MaxRetries: 5})

	if store.requeued["j1"] != "interrupted by shutdown" {
		t.Fatalf("expected shutdown requeue, got %q", store.requeued["j1"])
	}
	if len(store.failed) != 0 || len(store.rescheduled) != 0 {
		t.Fatal("interrupted job must not take a failure outcome")
	}
}
