package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"distill/internal/config"
	"distill/internal/model"
)

type recordingExecutor struct {
	mu  sync.Mutex
	ran []uuid.UUID
}

func (r *recordingExecutor) Execute(_ context.Context, job *model.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, job.ID)
}

func TestDispatchJobRoutesToRegisteredExecutor(t *testing.T) {
	st := newFakeStore()
	exec := &recordingExecutor{}
	cfg := &config.Config{}
	r := NewRunner(cfg, st, Executors{model.JobTypeMap: exec})

	job := &model.Job{ID: uuid.New(), Type: model.JobTypeMap, Status: model.JobStatusRunning}
	r.dispatchJob(context.Background(), job)

	exec.mu.Lock()
	defer exec.mu.Unlock()
	if len(exec.ran) != 1 || exec.ran[0] != job.ID {
		t.Fatalf("expected executor to run for job %s, ran=%v", job.ID, exec.ran)
	}
}

func TestDispatchJobFailsUnknownType(t *testing.T) {
	st := newFakeStore()
	cfg := &config.Config{}
	r := NewRunner(cfg, st, Executors{})

	job := &model.Job{ID: uuid.New(), Type: model.JobTypeSearchScrape, Status: model.JobStatusRunning}
	st.jobs[job.ID] = job
	r.dispatchJob(context.Background(), job)

	if _, failed := st.failures[job.ID]; !failed {
		t.Fatalf("expected job with no registered executor to be marked failed")
	}
}

type staleTrackingStore struct {
	*fakeStore
	mu    sync.Mutex
	calls int
}

func (s *staleTrackingStore) FailStaleRunningJobs(_ context.Context, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return 0, nil
}

func TestStartSweepsStaleRunningJobs(t *testing.T) {
	st := &staleTrackingStore{fakeStore: newFakeStore()}
	cfg := &config.Config{}
	cfg.Worker.PollIntervalMs = 5
	cfg.Worker.MaxConcurrentJobs = 2
	r := NewRunner(cfg, st, Executors{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r.Start(ctx)

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.calls == 0 {
		t.Fatal("expected Start to sweep stale running jobs at least once")
	}
}

func TestStartDispatchesClaimedJobsUntilCancelled(t *testing.T) {
	st := newFakeStore()
	exec := &recordingExecutor{}
	cfg := &config.Config{}
	cfg.Worker.PollIntervalMs = 5
	cfg.Worker.MaxConcurrentJobs = 2
	r := NewRunner(cfg, st, Executors{model.JobTypeMap: exec})

	cred := uuid.New()
	if _, err := Submit(context.Background(), st, cred, model.JobTypeMap, map[string]any{"url": "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	r.Start(ctx)

	exec.mu.Lock()
	defer exec.mu.Unlock()
	if len(exec.ran) != 1 {
		t.Fatalf("expected 1 job to be dispatched, got %d", len(exec.ran))
	}
}
