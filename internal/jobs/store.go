package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"distill/internal/model"
)

// JobStore is the narrow slice of internal/store.Store this package
// depends on, grounded on the teacher's handlers_test.go pattern of
// depending on small local interfaces rather than a concrete store
// type so Runner/Submit/retention can be exercised against fakes.
type JobStore interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJobByIdempotencyKey(ctx context.Context, credentialID uuid.UUID, key string) (*model.Job, error)
	ClaimQueuedJobs(ctx context.Context, limit int) ([]*model.Job, error)
	CompleteJob(ctx context.Context, id uuid.UUID) error
	FailJob(ctx context.Context, id uuid.UUID, code, message string) error
	DeletePagesOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteJobsOlderThanByType(ctx context.Context, jobType string, cutoff time.Time) (int64, error)
	FailStaleRunningJobs(ctx context.Context, timeout time.Duration) (int64, error)
}
