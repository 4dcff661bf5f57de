package jobs

import (
	"context"
	"time"

	"distill/internal/config"
	"distill/internal/metrics"
	"distill/internal/model"
)

// RetentionStats captures the number of records deleted by TTL cleanup.
type RetentionStats struct {
	PagesDeleted int64            `json:"pagesDeleted"`
	JobsDeleted  map[string]int64 `json:"jobsDeleted"`
}

// CleanupExpiredData deletes old jobs and pages based on retention
// settings so that the database does not grow without bound. Run
// periodically by Runner.Start.
func CleanupExpiredData(ctx context.Context, cfg *config.Config, st JobStore) RetentionStats {
	now := time.Now().UTC()
	stats := RetentionStats{JobsDeleted: make(map[string]int64)}

	if cfg.Retention.Pages.DefaultDays > 0 {
		cutoff := now.AddDate(0, 0, -cfg.Retention.Pages.DefaultDays)
		if n, err := st.DeletePagesOlderThan(ctx, cutoff); err == nil && n > 0 {
			stats.PagesDeleted += n
			metrics.RecordRetentionPages(n)
		}
	}

	jobTTL := cfg.Retention.Jobs

	applyJobTTL := func(jobType model.JobType, days int) {
		if days <= 0 {
			return
		}
		cutoff := now.AddDate(0, 0, -days)
		if n, err := st.DeleteJobsOlderThanByType(ctx, string(jobType), cutoff); err == nil && n > 0 {
			stats.JobsDeleted[string(jobType)] += n
			metrics.RecordRetentionJobs(string(jobType), n)
		}
	}

	effectiveDays := func(specific int) int {
		if specific > 0 {
			return specific
		}
		return jobTTL.DefaultDays
	}

	applyJobTTL(model.JobTypeMap, effectiveDays(jobTTL.MapDays))
	applyJobTTL(model.JobTypeAgentExtract, effectiveDays(jobTTL.AgentExtractDays))
	applyJobTTL(model.JobTypeSearchScrape, effectiveDays(jobTTL.SearchScrapeDays))

	return stats
}
