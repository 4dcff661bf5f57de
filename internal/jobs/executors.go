package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"distill/internal/apierr"
	"distill/internal/crawler"
	"distill/internal/llm"
	"distill/internal/metrics"
	"distill/internal/model"
	"distill/internal/render"
	"distill/internal/search"
)

// ExecutorStore is the slice of internal/store.Store the job executors
// need: terminal-state transitions plus the crawler's own narrow
// JobStore (AddJobPage/UpdateJobProgress) and extraction persistence.
// It is broader than JobStore (used by Submit and the Runner's poll
// loop) because an executor, unlike the poll loop, must report
// progress and write results while a job is running, not just claim
// and hand off.
type ExecutorStore interface {
	crawler.JobStore
	CompleteJob(ctx context.Context, id uuid.UUID) error
	FailJob(ctx context.Context, id uuid.UUID, code, message string) error
	CreateExtraction(ctx context.Context, e *model.Extraction) error
}

func errCode(err error) string {
	if apiErr, ok := apierr.As(err); ok {
		return string(apiErr.Code)
	}
	return string(apierr.CodeInternal)
}

// MapExecutor runs JobTypeMap jobs by decoding the job's input_params
// into crawler.Params and delegating to a crawler.Crawler built from
// shared fetch/cache/robots/throttle dependencies.
type MapExecutor struct {
	Deps   crawler.Deps
	Store  ExecutorStore
	Logger *slog.Logger
}

func (e *MapExecutor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Execute decodes job.InputParams, runs the crawl, and marks the job
// completed or failed. A crawl that fails only because individual
// non-root pages errored out still completes successfully, per the
// crawler's own root-vs-non-root propagation rule.
func (e *MapExecutor) Execute(ctx context.Context, job *model.Job) {
	var params MapParams
	if err := json.Unmarshal(job.InputParams, &params); err != nil {
		e.fail(ctx, job, apierr.Wrap(apierr.CodeValidation, "invalid map job params", err))
		return
	}

	c := crawler.New(e.Deps, e.Store, e.logger())
	err := c.Run(ctx, crawler.Params{
		JobID:           job.ID,
		RootURL:         params.URL,
		MaxDepth:        params.MaxDepth,
		MaxPages:        params.MaxPages,
		IncludePatterns: params.IncludePatterns,
		ExcludePatterns: params.ExcludePatterns,
		Concurrency:     params.Concurrency,
		RespectRobots:   params.RespectRobots,
	})
	if err != nil {
		e.fail(ctx, job, err)
		return
	}

	if cerr := e.Store.CompleteJob(ctx, job.ID); cerr != nil {
		e.logger().Error("complete map job failed", "job_id", job.ID, "error", cerr)
		return
	}
	metrics.RecordJobCompleted(string(model.JobTypeMap))
}

func (e *MapExecutor) fail(ctx context.Context, job *model.Job, err error) {
	e.logger().Error("map job failed", "job_id", job.ID, "error", err)
	if ferr := e.Store.FailJob(ctx, job.ID, errCode(err), err.Error()); ferr != nil {
		e.logger().Error("mark map job failed failed", "job_id", job.ID, "error", ferr)
	}
	metrics.RecordJobFailed(string(model.JobTypeMap))
}

// AgentExtractExecutor runs JobTypeAgentExtract jobs: fetch each
// requested URL through the shared pipeline, then ask an LLM to pull
// the requested fields out of the resulting markdown. One page's
// extraction failure is recorded and skipped; the job only fails
// outright if every page fails or the LLM client cannot be built.
type AgentExtractExecutor struct {
	Deps         crawler.Deps
	Store        ExecutorStore
	ClientSource func(provider, model string) (llm.Client, llm.Provider, string, error)
	Logger       *slog.Logger
}

func (e *AgentExtractExecutor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *AgentExtractExecutor) Execute(ctx context.Context, job *model.Job) {
	var params AgentExtractParams
	if err := json.Unmarshal(job.InputParams, &params); err != nil {
		e.fail(ctx, job, apierr.Wrap(apierr.CodeValidation, "invalid agent_extract job params", err))
		return
	}
	if len(params.URLs) == 0 {
		e.fail(ctx, job, apierr.New(apierr.CodeValidation, "agent_extract requires at least one url"))
		return
	}

	client, provider, modelName, err := e.ClientSource(params.Provider, params.Model)
	if err != nil {
		e.fail(ctx, job, apierr.Wrap(apierr.CodeValidation, "no llm client available", err))
		return
	}

	fields := make([]llm.FieldSpec, 0, len(params.Schema))
	for _, f := range params.Schema {
		fields = append(fields, llm.FieldSpec{Name: f.Name, Description: f.Description, Type: f.Type})
	}

	deps := e.Deps
	deps.RespectRobots = params.RespectRobots

	var succeeded, failed int
	for i, rawURL := range params.URLs {
		page, ferr := crawler.FetchPage(ctx, deps, rawURL, render.ModeAuto)
		if ferr != nil {
			failed++
			metrics.RecordExtractFailureCode(string(provider), errCode(ferr), 1)
			if jerr := e.Store.UpdateJobProgress(ctx, job.ID, i+1, len(params.URLs)); jerr != nil {
				e.logger().Error("update agent_extract progress failed", "job_id", job.ID, "error", jerr)
			}
			continue
		}

		result, lerr := client.ExtractFields(ctx, llm.ExtractRequest{
			URL:      page.URL,
			Markdown: page.Markdown,
			Fields:   fields,
			Prompt:   params.Prompt,
			Provider: provider,
			Model:    modelName,
		})
		metrics.RecordLLMExtract(string(provider), modelName, lerr == nil)
		if lerr != nil {
			failed++
			metrics.RecordExtractFailureCode(string(provider), string(apierr.CodeExtractionFailed), 1)
			if jerr := e.Store.UpdateJobProgress(ctx, job.ID, i+1, len(params.URLs)); jerr != nil {
				e.logger().Error("update agent_extract progress failed", "job_id", job.ID, "error", jerr)
			}
			continue
		}

		data, merr := json.Marshal(result.Fields)
		if merr != nil {
			failed++
			continue
		}
		pageID := page.URLHash
		extraction := &model.Extraction{
			JobID:     job.ID,
			PageID:    &pageID,
			Data:      data,
			Prompt:    params.Prompt,
			CreatedAt: time.Now().UTC(),
		}
		if werr := e.Store.CreateExtraction(ctx, extraction); werr != nil {
			e.logger().Error("persist extraction failed", "job_id", job.ID, "url", rawURL, "error", werr)
			failed++
			continue
		}
		succeeded++

		if jerr := e.Store.UpdateJobProgress(ctx, job.ID, i+1, len(params.URLs)); jerr != nil {
			e.logger().Error("update agent_extract progress failed", "job_id", job.ID, "error", jerr)
		}
	}

	metrics.RecordExtractJob(string(provider), modelName, completionStatus(succeeded, failed))
	metrics.RecordExtractResults(string(provider), succeeded, failed)

	if succeeded == 0 && failed > 0 {
		e.fail(ctx, job, apierr.New(apierr.CodeExtractionFailed, "all pages failed extraction"))
		return
	}
	if cerr := e.Store.CompleteJob(ctx, job.ID); cerr != nil {
		e.logger().Error("complete agent_extract job failed", "job_id", job.ID, "error", cerr)
		return
	}
	metrics.RecordJobCompleted(string(model.JobTypeAgentExtract))
}

func completionStatus(succeeded, failed int) string {
	switch {
	case failed == 0:
		return "completed"
	case succeeded == 0:
		return "failed"
	default:
		return "partial"
	}
}

func (e *AgentExtractExecutor) fail(ctx context.Context, job *model.Job, err error) {
	e.logger().Error("agent_extract job failed", "job_id", job.ID, "error", err)
	if ferr := e.Store.FailJob(ctx, job.ID, errCode(err), err.Error()); ferr != nil {
		e.logger().Error("mark agent_extract job failed failed", "job_id", job.ID, "error", ferr)
	}
	metrics.RecordJobFailed(string(model.JobTypeAgentExtract))
}

// SearchScrapeExecutor runs JobTypeSearchScrape jobs: a web search via
// the configured search.Provider, optionally followed by scraping the
// top N web results through the shared fetch pipeline so result pages
// carry markdown content instead of just a title/description snippet.
type SearchScrapeExecutor struct {
	Deps   crawler.Deps
	Store  ExecutorStore
	Search search.Provider
	Logger *slog.Logger
}

func (e *SearchScrapeExecutor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *SearchScrapeExecutor) Execute(ctx context.Context, job *model.Job) {
	var params SearchScrapeParams
	if err := json.Unmarshal(job.InputParams, &params); err != nil {
		e.fail(ctx, job, apierr.Wrap(apierr.CodeValidation, "invalid search_scrape job params", err))
		return
	}
	if e.Search == nil {
		e.fail(ctx, job, apierr.New(apierr.CodeValidation, "search provider not configured"))
		return
	}

	results, err := e.Search.Search(ctx, &search.Request{
		Query:   params.Query,
		Sources: params.Sources,
		Limit:   params.Limit,
	})
	if err != nil {
		e.fail(ctx, job, apierr.Wrap(apierr.CodeFetchError, "search failed", err))
		return
	}
	var scraped map[string]*model.Page
	if params.ScrapeResults && params.ScrapeTopN > 0 {
		topN := params.ScrapeTopN
		if topN > len(results.Web) {
			topN = len(results.Web)
		}

		scraped = make(map[string]*model.Page, topN)
		for i := 0; i < topN; i++ {
			page, ferr := crawler.FetchPage(ctx, e.Deps, results.Web[i].URL, render.ModeAuto)
			if ferr != nil {
				e.logger().Error("scrape search result failed", "job_id", job.ID, "url", results.Web[i].URL, "error", ferr)
				continue
			}
			scraped[results.Web[i].URL] = page
			if jerr := e.Store.UpdateJobProgress(ctx, job.ID, i+1, topN); jerr != nil {
				e.logger().Error("update search_scrape progress failed", "job_id", job.ID, "error", jerr)
			}
		}
	}
	metrics.RecordSearch("searxng", params.ScrapeResults, len(results.Web), len(scraped))

	if werr := e.writeResults(ctx, job, results, scraped); werr != nil {
		e.fail(ctx, job, werr)
		return
	}
	e.complete(ctx, job)
}

// writeResults persists the search (and any scraped markdown) as a
// single extraction row scoped to the job, since a search result set
// is not naturally keyed to one page the way agent_extract's per-URL
// extractions are.
func (e *SearchScrapeExecutor) writeResults(ctx context.Context, job *model.Job, results *search.Results, scraped map[string]*model.Page) error {
	type webResult struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		Markdown    string `json:"markdown,omitempty"`
	}
	web := make([]webResult, 0, len(results.Web))
	for _, r := range results.Web {
		wr := webResult{Title: r.Title, Description: r.Description, URL: r.URL}
		if page, ok := scraped[r.URL]; ok {
			wr.Markdown = page.Markdown
		}
		web = append(web, wr)
	}
	data, err := json.Marshal(map[string]any{"web": web})
	if err != nil {
		return apierr.Wrap(apierr.CodeInternal, "marshal search results", err)
	}
	return e.Store.CreateExtraction(ctx, &model.Extraction{
		JobID:     job.ID,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	})
}

func (e *SearchScrapeExecutor) complete(ctx context.Context, job *model.Job) {
	if cerr := e.Store.CompleteJob(ctx, job.ID); cerr != nil {
		e.logger().Error("complete search_scrape job failed", "job_id", job.ID, "error", cerr)
		return
	}
	metrics.RecordJobCompleted(string(model.JobTypeSearchScrape))
}

func (e *SearchScrapeExecutor) fail(ctx context.Context, job *model.Job, err error) {
	e.logger().Error("search_scrape job failed", "job_id", job.ID, "error", err)
	if ferr := e.Store.FailJob(ctx, job.ID, errCode(err), err.Error()); ferr != nil {
		e.logger().Error("mark search_scrape job failed failed", "job_id", job.ID, "error", ferr)
	}
	metrics.RecordJobFailed(string(model.JobTypeSearchScrape))
}
