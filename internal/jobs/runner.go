package jobs

import (
	"context"
	"time"

	"distill/internal/apierr"
	"distill/internal/config"
	"distill/internal/metrics"
	"distill/internal/model"
)

// Executor runs a single claimed job to completion, including marking
// it completed/failed in the store (so it can report partial progress
// via store.UpdateJobProgress before reaching a terminal state).
type Executor interface {
	Execute(ctx context.Context, job *model.Job)
}

// Executors maps each job type to the executor responsible for it. A
// job type with no registered executor fails immediately.
type Executors map[model.JobType]Executor

// Runner polls the jobs table for queued work and dispatches it to
// job-type-specific executors. It encapsulates concurrency limits,
// polling intervals, and periodic retention cleanup.
type Runner struct {
	cfg       *config.Config
	store     JobStore
	executors Executors
}

// NewRunner constructs a Runner with the given configuration, store,
// and job executors.
func NewRunner(cfg *config.Config, st JobStore, execs Executors) *Runner {
	return &Runner{cfg: cfg, store: st, executors: execs}
}

// Start launches the worker loop in the current goroutine. Callers
// typically run this in its own goroutine and keep the process alive
// until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	pollInterval := time.Duration(r.cfg.Worker.PollIntervalMs) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	maxJobs := r.cfg.Worker.MaxConcurrentJobs
	if maxJobs <= 0 {
		maxJobs = 4
	}

	sem := make(chan struct{}, maxJobs)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastCleanup time.Time
	cleanupInterval := time.Duration(r.cfg.Retention.CleanupIntervalMinutes) * time.Minute
	if cleanupInterval <= 0 {
		cleanupInterval = time.Hour
	}

	jobTimeout := time.Duration(r.cfg.Worker.JobTimeoutSeconds) * time.Second
	if jobTimeout <= 0 {
		jobTimeout = 300 * time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if r.cfg.Retention.Enabled {
			now := time.Now().UTC()
			if lastCleanup.IsZero() || now.Sub(lastCleanup) >= cleanupInterval {
				_ = CleanupExpiredData(ctx, r.cfg, r.store)
				lastCleanup = now
			}
		}

		_, _ = r.store.FailStaleRunningJobs(ctx, jobTimeout)

		capacity := maxJobs - len(sem)
		if capacity <= 0 {
			continue
		}

		claimed, err := r.store.ClaimQueuedJobs(ctx, capacity)
		if err != nil {
			continue
		}

		for _, job := range claimed {
			job := job
			sem <- struct{}{}
			go func() {
				defer func() { <-sem }()
				r.dispatchJob(ctx, job)
			}()
		}
	}
}

func (r *Runner) dispatchJob(ctx context.Context, job *model.Job) {
	metrics.RecordJobRunning(string(job.Type))
	defer metrics.RecordJobFinished(string(job.Type))

	executor, ok := r.executors[job.Type]
	if !ok || executor == nil {
		_ = r.store.FailJob(ctx, job.ID, string(apierr.CodeValidation), "no executor registered for job type: "+string(job.Type))
		metrics.RecordJobFailed(string(job.Type))
		return
	}
	executor.Execute(ctx, job)
}
