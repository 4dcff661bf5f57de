package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"distill/internal/model"
	"distill/internal/store"
)

type fakeStore struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*model.Job
	byKey    map[string]*model.Job
	queued   []*model.Job
	failures map[uuid.UUID]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:     make(map[uuid.UUID]*model.Job),
		byKey:    make(map[string]*model.Job),
		failures: make(map[uuid.UUID]string),
	}
}

func (f *fakeStore) CreateJob(_ context.Context, job *model.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *job
	f.jobs[job.ID] = &cp
	f.byKey[job.OwnerCredentialID.String()+"|"+job.IdempotencyKey] = &cp
	if job.Status == model.JobStatusQueued {
		f.queued = append(f.queued, &cp)
	}
	return nil
}

func (f *fakeStore) GetJobByIdempotencyKey(_ context.Context, credentialID uuid.UUID, key string) (*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.byKey[credentialID.String()+"|"+key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return job, nil
}

func (f *fakeStore) ClaimQueuedJobs(_ context.Context, limit int) ([]*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.queued) {
		limit = len(f.queued)
	}
	claimed := f.queued[:limit]
	f.queued = f.queued[limit:]
	for _, j := range claimed {
		j.Status = model.JobStatusRunning
	}
	return claimed, nil
}

func (f *fakeStore) CompleteJob(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[id]; ok {
		j.Status = model.JobStatusCompleted
	}
	return nil
}

func (f *fakeStore) FailJob(_ context.Context, id uuid.UUID, code, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[id] = code
	if j, ok := f.jobs[id]; ok {
		j.Status = model.JobStatusFailed
		j.ErrorCode = code
		j.ErrorMessage = message
	}
	return nil
}

func (f *fakeStore) DeletePagesOlderThan(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeStore) DeleteJobsOlderThanByType(_ context.Context, _ string, _ time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeStore) FailStaleRunningJobs(_ context.Context, _ time.Duration) (int64, error) {
	return 0, nil
}

func TestIdempotencyKeyStableAndDistinct(t *testing.T) {
	cred := uuid.New()
	params1 := map[string]any{"url": "https://example.com", "max_depth": 2}
	params2 := map[string]any{"max_depth": 2, "url": "https://example.com"} // different key order

	k1, err := IdempotencyKey(cred, model.JobTypeMap, params1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	k2, err := IdempotencyKey(cred, model.JobTypeMap, params2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k1 != k2 {
		t.Fatalf("expected key order to not affect idempotency key, got %q vs %q", k1, k2)
	}

	params3 := map[string]any{"url": "https://example.com", "max_depth": 3}
	k3, err := IdempotencyKey(cred, model.JobTypeMap, params3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k1 == k3 {
		t.Fatalf("expected different params to produce a different key")
	}

	k4, err := IdempotencyKey(cred, model.JobTypeAgentExtract, params1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k1 == k4 {
		t.Fatalf("expected different job type to produce a different key")
	}
}

func TestSubmitDeduplicatesByIdempotencyKey(t *testing.T) {
	st := newFakeStore()
	cred := uuid.New()
	params := map[string]any{"url": "https://example.com"}

	job1, err := Submit(context.Background(), st, cred, model.JobTypeMap, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	job2, err := Submit(context.Background(), st, cred, model.JobTypeMap, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job1.ID != job2.ID {
		t.Fatalf("expected resubmission to return the same job, got %s vs %s", job1.ID, job2.ID)
	}

	other := map[string]any{"url": "https://example.org"}
	job3, err := Submit(context.Background(), st, cred, model.JobTypeMap, other)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job3.ID == job1.ID {
		t.Fatalf("expected different params to create a new job")
	}
}

func TestSubmitPropagatesLookupErrors(t *testing.T) {
	st := &erroringStore{fakeStore: newFakeStore()}
	_, err := Submit(context.Background(), st, uuid.New(), model.JobTypeMap, map[string]any{"url": "x"})
	if err == nil {
		t.Fatal("expected error from lookup failure to propagate")
	}
}

type erroringStore struct {
	*fakeStore
}

func (e *erroringStore) GetJobByIdempotencyKey(_ context.Context, _ uuid.UUID, _ string) (*model.Job, error) {
	return nil, errors.New("boom")
}
