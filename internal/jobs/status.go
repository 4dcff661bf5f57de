package jobs

import "distill/internal/model"

// Re-exported so callers throughout this package can write jobs.StatusX
// without importing internal/model directly; the canonical definitions
// live there so store, cache, and httpapi all share one vocabulary.
const (
	StatusQueued    = model.JobStatusQueued
	StatusRunning   = model.JobStatusRunning
	StatusCompleted = model.JobStatusCompleted
	StatusFailed    = model.JobStatusFailed
	StatusCancelled = model.JobStatusCancelled
)
