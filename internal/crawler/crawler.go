package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"distill/internal/apierr"
	"distill/internal/model"
	"distill/internal/render"
	"distill/internal/urlutil"
)

// JobStore is the narrow slice of internal/store.Store the crawler
// needs to record discovered pages and progress, grounded on the same
// consumer-defined-interface pattern internal/jobs uses for testing
// against a fake rather than a real Postgres-backed store.
type JobStore interface {
	AddJobPage(ctx context.Context, jp *model.JobPage) error
	UpdateJobProgress(ctx context.Context, id uuid.UUID, discovered, total int) error
	UpsertPage(ctx context.Context, page *model.Page) error
}

// Params is one BFS map job's request. Run clamps out-of-range values
// into the spec's bounds (max_depth 0-5, max_pages 1-1000, concurrency
// 1-10) rather than rejecting them.
type Params struct {
	JobID           uuid.UUID
	RootURL         string
	MaxDepth        int
	MaxPages        int
	IncludePatterns []string
	ExcludePatterns []string
	Concurrency     int
	RespectRobots   bool
}

// Crawler runs bounded BFS map jobs, sharing the single-URL fetch
// pipeline (FetchPage) with the synchronous scrape path.
type Crawler struct {
	deps   Deps
	store  JobStore
	logger *slog.Logger
}

// New builds a Crawler. logger may be nil, in which case slog.Default
// is used for best-effort error logging (job-page/progress writes
// that fail do not abort the crawl, matching the cleanup sweeper's
// "errors are swallowed and logged" convention).
func New(deps Deps, store JobStore, logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{deps: deps, store: store, logger: logger}
}

type crawlJob struct {
	url   string
	depth int
}

type crawlResult struct {
	job   crawlJob
	page  *model.Page
	links []string
	err   error
}

// Run executes a bounded BFS crawl from p.RootURL, up to p.Concurrency
// workers fetching concurrently over a FIFO job queue (discovery order
// is depth-first by BFS level, link-appearance order within a level).
// A page's JobPage edge and the job's progress counters are written
// immediately after each page is fetched, so a client polling job
// status observes monotonically increasing pages_discovered. Only the
// root URL's own validation/fetch failure fails the job; a failed
// non-root page is skipped and does not propagate.
func (c *Crawler) Run(ctx context.Context, p Params) error {
	include, err := compilePatterns(p.IncludePatterns)
	if err != nil {
		return apierr.Wrap(apierr.CodeValidation, "invalid include pattern", err)
	}
	exclude, err := compilePatterns(p.ExcludePatterns)
	if err != nil {
		return apierr.Wrap(apierr.CodeValidation, "invalid exclude pattern", err)
	}

	concurrency := clamp(p.Concurrency, 1, 10)
	maxPages := clamp(p.MaxPages, 1, 1000)
	maxDepth := clamp(p.MaxDepth, 0, 5)

	rootNormalized, err := urlutil.Normalize(p.RootURL, nil)
	if err != nil {
		return apierr.Wrap(apierr.CodeInvalidURL, "invalid root url", err)
	}
	if host, err := urlutil.Host(rootNormalized); err != nil || host == "" {
		return apierr.New(apierr.CodeInvalidURL, "root url has no host")
	}

	// Sized to maxPages, the hard ceiling on jobs ever dispatched, so the
	// single results-processing loop below can never block trying to
	// enqueue a newly discovered link while workers are themselves
	// blocked trying to hand back a result.
	jobs := make(chan crawlJob, maxPages)
	results := make(chan crawlResult, maxPages)

	var visited sync.Map
	var pending sync.WaitGroup
	var discovered int64

	visited.Store(rootNormalized, true)
	atomic.AddInt64(&discovered, 1)

	eg, egCtx := errgroup.WithContext(ctx)

	for i := 0; i < concurrency; i++ {
		eg.Go(func() error {
			for {
				select {
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					results <- c.processJob(egCtx, p, job)
				case <-egCtx.Done():
					for {
						select {
						case job, ok := <-jobs:
							if !ok {
								return nil
							}
							results <- crawlResult{job: job, err: egCtx.Err()}
						default:
							return nil
						}
					}
				}
			}
		})
	}

	pending.Add(1)
	jobs <- crawlJob{url: rootNormalized, depth: 0}

	eg.Go(func() error {
		pending.Wait()
		close(results)
		return nil
	})

	var firstErr error
	for res := range results {
		if res.err != nil {
			if res.job.depth == 0 && firstErr == nil {
				firstErr = res.err
				pending.Done()
				continue
			}
			// Non-root fetch failures don't fail the job; they are
			// recorded as an error Page so a client inspecting the job's
			// pages can see what was attempted and why it failed, and
			// still count toward pages_discovered once the row lands.
			errPage := errorPage(res.job.url, res.err)
			if err := c.store.UpsertPage(ctx, errPage); err != nil {
				c.logger.Error("record error page failed", "job_id", p.JobID, "url", res.job.url, "error", err)
				pending.Done()
				continue
			}
			res.page = errPage
		}

		if res.page != nil {
			jp := &model.JobPage{JobID: p.JobID, PageID: res.page.URLHash, Depth: res.job.depth}
			if err := c.store.AddJobPage(ctx, jp); err != nil {
				c.logger.Error("record job page failed", "job_id", p.JobID, "url_hash", res.page.URLHash, "error", err)
			}
			if err := c.store.UpdateJobProgress(ctx, p.JobID, int(atomic.LoadInt64(&discovered)), maxPages); err != nil {
				c.logger.Error("update job progress failed", "job_id", p.JobID, "error", err)
			}
		}

		if res.job.depth < maxDepth && ctx.Err() == nil {
			for _, link := range res.links {
				if atomic.LoadInt64(&discovered) >= int64(maxPages) {
					break
				}
				normalized, err := urlutil.Normalize(link, nil)
				if err != nil {
					continue
				}
				if !urlutil.SameHost(normalized, rootNormalized) {
					continue
				}
				if !matchesPatterns(normalized, include, exclude) {
					continue
				}
				if _, loaded := visited.LoadOrStore(normalized, true); loaded {
					continue
				}
				if atomic.AddInt64(&discovered, 1) > int64(maxPages) {
					continue
				}
				pending.Add(1)
				jobs <- crawlJob{url: normalized, depth: res.job.depth + 1}
			}
		}

		pending.Done()
	}

	close(jobs)

	if err := eg.Wait(); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

// processJob fetches one URL through the shared pipeline in "auto"
// render mode, per the spec's crawl step 3.
func (c *Crawler) processJob(ctx context.Context, p Params, job crawlJob) crawlResult {
	deps := c.deps
	deps.RespectRobots = p.RespectRobots

	page, err := FetchPage(ctx, deps, job.url, render.ModeAuto)
	if err != nil {
		return crawlResult{job: job, err: err}
	}

	links := append(append([]string{}, page.LinksInternal...), page.LinksExternal...)
	return crawlResult{job: job, page: page, links: links}
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// matchesPatterns applies the spec's include/exclude semantics: any
// exclude match disqualifies a URL; when include patterns are given,
// the URL must match at least one.
func matchesPatterns(rawURL string, include, exclude []*regexp.Regexp) bool {
	for _, re := range exclude {
		if re.MatchString(rawURL) {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, re := range include {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// errorPage builds the Page row recorded for a non-root URL whose fetch
// failed, so the crawl can keep going while still surfacing why that
// one page has no content.
func errorPage(rawURL string, fetchErr error) *model.Page {
	normalized, err := urlutil.Normalize(rawURL, nil)
	if err != nil {
		normalized = rawURL
	}
	code := string(apierr.CodeFetchError)
	message := fetchErr.Error()
	if ae, ok := apierr.As(fetchErr); ok {
		code = string(ae.Code)
		message = ae.Message
	}
	return &model.Page{
		URLHash:      urlutil.Hash(normalized),
		URL:          normalized,
		ErrorCode:    code,
		ErrorMessage: message,
		FetchedAt:    time.Now().UTC(),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
