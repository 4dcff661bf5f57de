// Package store persists pages, jobs, job_pages, extractions, and
// credentials directly against Postgres via database/sql and the pgx
// stdlib driver. Grounded on the teacher's Store (same *sql.DB
// wrapping, same SHA-256 key-hashing helper, same pgx/stdlib import),
// generalized to hand-written SQL since the sqlc-generated Queries
// type the teacher relied on has no analogue for this data model.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"distill/internal/apierr"
	"distill/internal/model"
)

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("store: not found")

// Store wraps a shared *sql.DB connection pool.
type Store struct {
	DB *sql.DB
}

// New creates a Store over an already-opened, pooled *sql.DB.
func New(database *sql.DB) *Store {
	return &Store{DB: database}
}

// --- pages -----------------------------------------------------------

// GetPage looks up a page by its canonicalized URL hash. Returns
// (nil, nil) on miss so callers can treat "not found" as a cache miss
// without special-casing an error.
func (s *Store) GetPage(ctx context.Context, urlHash string) (*model.Page, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT url_hash, url, canonical_url, content_hash, status_code, title,
		       description, markdown, raw_html, renderer, links_internal,
		       links_external, word_count, read_time_minutes, fetch_duration_ms,
		       og_image, favicon_url, site_name, language, fetched_at,
		       error_code, error_message
		FROM pages WHERE url_hash = $1`, urlHash)

	page, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get page: %w", err)
	}
	return page, nil
}

// UpsertPage inserts or replaces the page row for page.URLHash.
func (s *Store) UpsertPage(ctx context.Context, page *model.Page) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO pages (
			url_hash, url, canonical_url, content_hash, status_code, title,
			description, markdown, raw_html, renderer, links_internal,
			links_external, word_count, read_time_minutes, fetch_duration_ms,
			og_image, favicon_url, site_name, language, fetched_at,
			error_code, error_message
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		ON CONFLICT (url_hash) DO UPDATE SET
			url = EXCLUDED.url,
			canonical_url = EXCLUDED.canonical_url,
			content_hash = EXCLUDED.content_hash,
			status_code = EXCLUDED.status_code,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			markdown = EXCLUDED.markdown,
			raw_html = EXCLUDED.raw_html,
			renderer = EXCLUDED.renderer,
			links_internal = EXCLUDED.links_internal,
			links_external = EXCLUDED.links_external,
			word_count = EXCLUDED.word_count,
			read_time_minutes = EXCLUDED.read_time_minutes,
			fetch_duration_ms = EXCLUDED.fetch_duration_ms,
			og_image = EXCLUDED.og_image,
			favicon_url = EXCLUDED.favicon_url,
			site_name = EXCLUDED.site_name,
			language = EXCLUDED.language,
			fetched_at = EXCLUDED.fetched_at,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message`,
		page.URLHash, page.URL, page.CanonicalURL, page.ContentHash, page.StatusCode, page.Title,
		page.Description, page.Markdown, page.RawHTML, string(page.Renderer),
		mustMarshalStrings(page.LinksInternal), mustMarshalStrings(page.LinksExternal),
		page.WordCount, page.ReadTimeMinutes, page.FetchDurationMs,
		page.OGImage, page.FaviconURL, page.SiteName, page.Language, page.FetchedAt,
		page.ErrorCode, page.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("upsert page: %w", err)
	}
	return nil
}

func scanPage(row *sql.Row) (*model.Page, error) {
	var p model.Page
	var renderer string
	var linksInternal, linksExternal []byte
	if err := row.Scan(
		&p.URLHash, &p.URL, &p.CanonicalURL, &p.ContentHash, &p.StatusCode, &p.Title,
		&p.Description, &p.Markdown, &p.RawHTML, &renderer,
		&linksInternal, &linksExternal,
		&p.WordCount, &p.ReadTimeMinutes, &p.FetchDurationMs,
		&p.OGImage, &p.FaviconURL, &p.SiteName, &p.Language, &p.FetchedAt,
		&p.ErrorCode, &p.ErrorMessage,
	); err != nil {
		return nil, err
	}
	_ = json.Unmarshal(linksInternal, &p.LinksInternal)
	_ = json.Unmarshal(linksExternal, &p.LinksExternal)
	p.Renderer = model.Renderer(renderer)
	return &p, nil
}

// DeletePagesOlderThan removes page rows whose fetched_at predates
// cutoff, returning the number of rows removed.
func (s *Store) DeletePagesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM pages WHERE fetched_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired pages: %w", err)
	}
	return res.RowsAffected()
}

// --- jobs --------------------------------------------------------------

// CreateJob inserts a new job in the queued state.
func (s *Store) CreateJob(ctx context.Context, job *model.Job) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO jobs (
			id, owner_credential_id, type, status, input_params,
			idempotency_key, pages_discovered, pages_total, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		job.ID, job.OwnerCredentialID, string(job.Type), string(job.Status),
		job.InputParams, job.IdempotencyKey, job.PagesDiscovered, job.PagesTotal, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetJob fetches a job by ID.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, owner_credential_id, type, status, input_params, idempotency_key,
		       error_code, error_message, pages_discovered, pages_total,
		       created_at, started_at, completed_at
		FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// GetJobByIdempotencyKey returns the job previously created under key,
// scoped to the owning credential, or ErrNotFound.
func (s *Store) GetJobByIdempotencyKey(ctx context.Context, credentialID uuid.UUID, key string) (*model.Job, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, owner_credential_id, type, status, input_params, idempotency_key,
		       error_code, error_message, pages_discovered, pages_total,
		       created_at, started_at, completed_at
		FROM jobs WHERE owner_credential_id = $1 AND idempotency_key = $2`, credentialID, key)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job by idempotency key: %w", err)
	}
	return job, nil
}

func scanJob(row *sql.Row) (*model.Job, error) {
	var j model.Job
	var jobType, status string
	if err := row.Scan(
		&j.ID, &j.OwnerCredentialID, &jobType, &status, &j.InputParams, &j.IdempotencyKey,
		&j.ErrorCode, &j.ErrorMessage, &j.PagesDiscovered, &j.PagesTotal,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt,
	); err != nil {
		return nil, err
	}
	j.Type = model.JobType(jobType)
	j.Status = model.JobStatus(status)
	return &j, nil
}

// ClaimQueuedJobs atomically marks up to limit queued jobs as running
// and returns them, using SELECT ... FOR UPDATE SKIP LOCKED so multiple
// worker processes never claim the same job.
func (s *Store) ClaimQueuedJobs(ctx context.Context, limit int) ([]*model.Job, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM jobs
		WHERE status = 'queued'
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("select queued jobs: %w", err)
	}

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = 'running', started_at = now() WHERE id = $1`, id); err != nil {
			return nil, fmt.Errorf("mark job running: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}

	jobs := make([]*model.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// CompleteJob marks a job completed successfully.
func (s *Store) CompleteJob(ctx context.Context, id uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE jobs SET status = 'completed', completed_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// FailJob marks a job failed with the given error taxonomy code/message.
func (s *Store) FailJob(ctx context.Context, id uuid.UUID, code, message string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE jobs SET status = 'failed', error_code = $2, error_message = $3, completed_at = now()
		WHERE id = $1`, id, code, message)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// CancelJob marks a queued or running job cancelled.
func (s *Store) CancelJob(ctx context.Context, id uuid.UUID) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE jobs SET status = 'cancelled', completed_at = now()
		WHERE id = $1 AND status IN ('queued', 'running')`, id)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateJobProgress updates the discovered/total page counters used to
// report crawl/map progress while a job runs.
func (s *Store) UpdateJobProgress(ctx context.Context, id uuid.UUID, discovered, total int) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE jobs SET pages_discovered = $2, pages_total = $3 WHERE id = $1`, id, discovered, total)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// FailStaleRunningJobs promotes jobs still `running` more than timeout
// after started_at to `failed`, the liveness-recovery strategy spec's
// job_timeout contract requires so a crashed worker can't leave a job
// running indefinitely. Progress counters are not consulted.
func (s *Store) FailStaleRunningJobs(ctx context.Context, timeout time.Duration) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE jobs SET status = 'failed', error_code = $1, error_message = $2, completed_at = now()
		WHERE status = 'running' AND started_at < now() - $3::interval`,
		string(apierr.CodeJobTimeout), "job exceeded timeout without reaching a terminal state", fmt.Sprintf("%d seconds", int(timeout.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("fail stale running jobs: %w", err)
	}
	return res.RowsAffected()
}

// DeleteJobsOlderThanByType removes completed/failed/cancelled jobs of
// jobType (and their job_pages/extractions rows, via FK cascade) past
// cutoff, so each job type can carry its own retention window.
func (s *Store) DeleteJobsOlderThanByType(ctx context.Context, jobType string, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE type = $1 AND status IN ('completed', 'failed', 'cancelled') AND completed_at < $2`,
		jobType, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired jobs: %w", err)
	}
	return res.RowsAffected()
}

// --- job_pages -----------------------------------------------------------

// AddJobPage records that pageID was visited at depth within jobID's
// crawl, upserting on (job_id, page_id) so retries don't duplicate rows.
func (s *Store) AddJobPage(ctx context.Context, jp *model.JobPage) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO job_pages (job_id, page_id, depth)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id, page_id) DO UPDATE SET depth = LEAST(job_pages.depth, EXCLUDED.depth)`,
		jp.JobID, jp.PageID, jp.Depth)
	if err != nil {
		return fmt.Errorf("add job page: %w", err)
	}
	return nil
}

// ListJobPages returns all pages visited under jobID, ordered by depth
// then page ID (the URL hash).
func (s *Store) ListJobPages(ctx context.Context, jobID uuid.UUID) ([]model.JobPage, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT job_id, page_id, depth FROM job_pages
		WHERE job_id = $1 ORDER BY depth ASC, page_id ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job pages: %w", err)
	}
	defer rows.Close()

	var out []model.JobPage
	for rows.Next() {
		var jp model.JobPage
		if err := rows.Scan(&jp.JobID, &jp.PageID, &jp.Depth); err != nil {
			return nil, err
		}
		out = append(out, jp)
	}
	return out, rows.Err()
}

// --- extractions -----------------------------------------------------------

// CreateExtraction persists a structured-extraction result for a job,
// optionally scoped to a single page (nil PageID means job-level).
func (s *Store) CreateExtraction(ctx context.Context, e *model.Extraction) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO extractions (job_id, page_id, data, prompt, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		e.JobID, e.PageID, e.Data, e.Prompt, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("create extraction: %w", err)
	}
	return nil
}

// ListExtractions returns every extraction recorded under jobID.
func (s *Store) ListExtractions(ctx context.Context, jobID uuid.UUID) ([]model.Extraction, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT job_id, page_id, data, prompt, created_at FROM extractions
		WHERE job_id = $1 ORDER BY created_at ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list extractions: %w", err)
	}
	defer rows.Close()

	var out []model.Extraction
	for rows.Next() {
		var e model.Extraction
		if err := rows.Scan(&e.JobID, &e.PageID, &e.Data, &e.Prompt, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- credentials -----------------------------------------------------------

// GetCredentialByKeyHash looks up an active credential by its hashed
// API key.
func (s *Store) GetCredentialByKeyHash(ctx context.Context, keyHash string) (*model.Credential, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, key_hash, name, scopes, rate_limit_per_min, is_active, last_used_at, created_at
		FROM credentials WHERE key_hash = $1 AND is_active = true`, keyHash)

	var c model.Credential
	var scopes []byte
	if err := row.Scan(
		&c.ID, &c.KeyHash, &c.Name, &scopes, &c.RateLimitPerMin,
		&c.IsActive, &c.LastUsedAt, &c.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	_ = json.Unmarshal(scopes, &c.Scopes)
	return &c, nil
}

// TouchCredentialLastUsed stamps last_used_at to now for id.
func (s *Store) TouchCredentialLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE credentials SET last_used_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch credential: %w", err)
	}
	return nil
}

// EnsureCredential upserts a statically-configured API key (see
// config.APIKeyConfig) by its key hash, so restarting the API with the
// same config.yaml entries never creates duplicate credential rows.
func (s *Store) EnsureCredential(ctx context.Context, keyHash, name string, scopes []string, rateLimitPerMin int) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO credentials (id, key_hash, name, scopes, rate_limit_per_min, is_active)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, true)
		ON CONFLICT (key_hash) DO UPDATE SET
			name = EXCLUDED.name,
			scopes = EXCLUDED.scopes,
			rate_limit_per_min = EXCLUDED.rate_limit_per_min,
			is_active = true`,
		keyHash, name, mustMarshalStrings(scopes), rateLimitPerMin)
	if err != nil {
		return fmt.Errorf("ensure credential: %w", err)
	}
	return nil
}

// MarshalParams is a small helper for callers building InputParams
// JSON blobs for CreateJob (kept here so job construction and its
// idempotency-key hashing, which also needs canonical JSON, share one
// encoding path).
func MarshalParams(v any) ([]byte, error) {
	return json.Marshal(v)
}

// mustMarshalStrings JSON-encodes a string slice for storage in a jsonb
// column. nil/empty slices marshal to "[]" rather than "null" so scans
// back into a []string never need a nil check.
func mustMarshalStrings(v []string) []byte {
	if v == nil {
		v = []string{}
	}
	raw, _ := json.Marshal(v)
	return raw
}
