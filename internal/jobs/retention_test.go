package jobs

import (
	"context"
	"testing"
	"time"

	"distill/internal/config"
)

type retentionStore struct {
	*fakeStore
	pagesDeleted     int64
	jobsDeletedByType map[string]int64
}

func newRetentionStore() *retentionStore {
	return &retentionStore{fakeStore: newFakeStore(), jobsDeletedByType: make(map[string]int64)}
}

func (r *retentionStore) DeletePagesOlderThan(_ context.Context, _ time.Time) (int64, error) {
	return r.pagesDeleted, nil
}

func (r *retentionStore) DeleteJobsOlderThanByType(_ context.Context, jobType string, _ time.Time) (int64, error) {
	return r.jobsDeletedByType[jobType], nil
}

func TestCleanupExpiredDataAppliesPerTypeTTL(t *testing.T) {
	st := newRetentionStore()
	st.pagesDeleted = 5
	st.jobsDeletedByType["map"] = 3
	st.jobsDeletedByType["agent_extract"] = 0

	cfg := &config.Config{}
	cfg.Retention.Enabled = true
	cfg.Retention.Pages.DefaultDays = 30
	cfg.Retention.Jobs.DefaultDays = 7
	cfg.Retention.Jobs.MapDays = 14

	stats := CleanupExpiredData(context.Background(), cfg, st)

	if stats.PagesDeleted != 5 {
		t.Fatalf("expected 5 pages deleted, got %d", stats.PagesDeleted)
	}
	if stats.JobsDeleted["map"] != 3 {
		t.Fatalf("expected 3 map jobs deleted, got %d", stats.JobsDeleted["map"])
	}
	if _, ok := stats.JobsDeleted["agent_extract"]; ok {
		t.Fatalf("expected zero-deletion job types to be omitted, got entry")
	}
}

func TestCleanupExpiredDataSkipsZeroTTL(t *testing.T) {
	st := newRetentionStore()
	st.pagesDeleted = 9

	cfg := &config.Config{}
	cfg.Retention.Enabled = true
	// Pages.DefaultDays left at zero: cleanup must not call delete.

	stats := CleanupExpiredData(context.Background(), cfg, st)
	if stats.PagesDeleted != 0 {
		t.Fatalf("expected no page deletion when DefaultDays is 0, got %d", stats.PagesDeleted)
	}
}
