package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"distill/internal/apierr"
	"distill/internal/cache"
	"distill/internal/config"
	"distill/internal/crawler"
	"distill/internal/formats"
	"distill/internal/jobs"
	"distill/internal/llm"
	"distill/internal/model"
	"distill/internal/render"
	"distill/internal/scrapeutil"
	"distill/internal/search"
	"distill/internal/store"
)

// handlers holds the collaborators every route handler needs. It is
// deliberately not *Server itself, so route functions don't reach
// through an unrelated app/logger-setup surface to get at them.
type handlers struct {
	cfg             *config.Config
	store           *store.Store
	crawlerDeps     crawler.Deps
	llmClientSource func(provider, model string) (llm.Client, llm.Provider, string, error)
	search          search.Provider
	logger          *slog.Logger
}

func credentialFrom(c *fiber.Ctx) *model.Credential {
	cred, _ := c.Locals("credential").(*model.Credential)
	return cred
}

// scrape handles POST /api/v1/scrape: fetch and extract a single URL
// synchronously, optionally running an LLM pass for a prompt/schema or
// summary, per the requested formats.
func (h *handlers) scrape(c *fiber.Ctx) error {
	var req scrapeRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apierr.Wrap(apierr.CodeValidation, "invalid request body", err))
	}
	if req.URL == "" {
		return writeError(c, apierr.New(apierr.CodeValidation, "url is required"))
	}

	mode := render.ModeAuto
	if req.RenderMode != "" {
		mode = render.Mode(req.RenderMode)
	}

	deps := h.crawlerDeps
	if req.RespectRobots != nil {
		deps.RespectRobots = *req.RespectRobots
	}

	cacheOpts := cache.Options{ForceRefresh: req.ForceRefresh}
	if req.CacheTTLSeconds != nil {
		cacheOpts.HasTTL = true
		cacheOpts.TTL = time.Duration(*req.CacheTTLSeconds) * time.Second
	}

	page, cached, layer, err := crawler.FetchPageWithOptions(c.Context(), deps, req.URL, mode, cacheOpts)
	if err != nil {
		return writeError(c, err)
	}
	if page.ErrorCode != "" {
		return writeError(c, apierr.New(apierr.Code(page.ErrorCode), page.ErrorMessage))
	}

	resp := scrapeResponse{
		URL:             page.URL,
		CanonicalURL:    page.CanonicalURL,
		StatusCode:      page.StatusCode,
		Title:           page.Title,
		Description:     page.Description,
		Markdown:        page.Markdown,
		RawHTML:         page.RawHTML,
		Renderer:        string(page.Renderer),
		LinksInternal:   page.LinksInternal,
		LinksExternal:   page.LinksExternal,
		WordCount:       page.WordCount,
		ReadTimeMinutes: page.ReadTimeMinutes,
		FetchDurationMs: page.FetchDurationMs,
		Cached:          cached,
		CacheLayer:      string(layer),
	}

	wantFields := len(req.Schema) > 0 || req.Prompt != "" ||
		formats.HasFormat(req.Formats, "json") || formats.HasFormat(req.Formats, "summary")
	if wantFields {
		client, provider, modelName, lerr := h.llmClientSource(req.Provider, req.Model)
		if lerr != nil {
			return writeError(c, apierr.Wrap(apierr.CodeValidation, "no llm client available", lerr))
		}
		fields := make([]llm.FieldSpec, 0, len(req.Schema))
		for _, f := range req.Schema {
			fields = append(fields, llm.FieldSpec{Name: f.Name, Description: f.Description, Type: f.Type})
		}
		result, eerr := client.ExtractFields(c.Context(), llm.ExtractRequest{
			URL: page.URL, Markdown: page.Markdown, Fields: fields,
			Prompt: req.Prompt, Provider: provider, Model: modelName,
		})
		if eerr != nil {
			return writeError(c, apierr.Wrap(apierr.CodeExtractionFailed, "llm extraction failed", eerr))
		}
		resp.JSON = result.Fields
		resp.Summary = scrapeutil.ToString(result.Fields["summary"])
	}

	return c.JSON(resp)
}

// submitJob is the shared idempotent-submission path for the three
// async job types: look up an existing job by idempotency key first so
// the X-Idempotency-Hit header can be set accurately, then submit.
func (h *handlers) submitJob(c *fiber.Ctx, jobType model.JobType, params any) (*model.Job, error) {
	cred := credentialFrom(c)
	key, err := jobs.IdempotencyKey(cred.ID, jobType, params)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeValidation, "invalid job params", err)
	}

	if existing, gerr := h.store.GetJobByIdempotencyKey(c.Context(), cred.ID, key); gerr == nil {
		c.Set("X-Idempotency-Hit", "true")
		return existing, nil
	} else if !errors.Is(gerr, store.ErrNotFound) {
		return nil, apierr.Wrap(apierr.CodeInternal, "idempotency lookup failed", gerr)
	}

	return jobs.Submit(c.Context(), h.store, cred.ID, jobType, params)
}

// acceptedResponse answers 202 for a newly queued job and 200 when
// submitJob matched an existing job by idempotency key.
func (h *handlers) acceptedResponse(c *fiber.Ctx, job *model.Job) error {
	status := fiber.StatusAccepted
	if c.GetRespHeader("X-Idempotency-Hit") == "true" {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(jobAcceptedResponse{
		JobID:  job.ID.String(),
		Status: string(job.Status),
	})
}

// submitMap handles POST /api/v1/map.
func (h *handlers) submitMap(c *fiber.Ctx) error {
	var req mapRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apierr.Wrap(apierr.CodeValidation, "invalid request body", err))
	}
	if req.URL == "" {
		return writeError(c, apierr.New(apierr.CodeValidation, "url is required"))
	}
	if verr := crawler.ValidateTarget(c.Context(), h.crawlerDeps, req.URL); verr != nil {
		return writeError(c, verr)
	}

	params := jobs.MapParams{
		URL: req.URL, MaxDepth: req.MaxDepth, MaxPages: req.MaxPages,
		IncludePatterns: req.IncludePatterns, ExcludePatterns: req.ExcludePatterns,
		Concurrency: req.Concurrency,
	}
	if req.RespectRobots != nil {
		params.RespectRobots = *req.RespectRobots
	} else {
		params.RespectRobots = h.cfg.Robots.Respect
	}
	if params.MaxDepth <= 0 {
		params.MaxDepth = h.cfg.Crawler.MaxDepthDefault
	}
	if params.MaxPages <= 0 {
		params.MaxPages = h.cfg.Crawler.MaxPagesDefault
	}
	if params.Concurrency <= 0 {
		params.Concurrency = h.cfg.Crawler.MaxConcurrency
	}

	job, err := h.submitJob(c, model.JobTypeMap, params)
	if err != nil {
		return writeError(c, err)
	}
	return h.acceptedResponse(c, job)
}

// submitAgentExtract handles POST /api/v1/agent/extract.
func (h *handlers) submitAgentExtract(c *fiber.Ctx) error {
	var req agentExtractRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apierr.Wrap(apierr.CodeValidation, "invalid request body", err))
	}
	if len(req.URLs) == 0 {
		return writeError(c, apierr.New(apierr.CodeValidation, "urls is required"))
	}
	for _, u := range req.URLs {
		if verr := crawler.ValidateTarget(c.Context(), h.crawlerDeps, u); verr != nil {
			return writeError(c, verr)
		}
	}

	schema := make([]jobs.FieldParam, 0, len(req.Schema))
	for _, f := range req.Schema {
		schema = append(schema, jobs.FieldParam{Name: f.Name, Description: f.Description, Type: f.Type})
	}
	params := jobs.AgentExtractParams{
		URLs: req.URLs, Prompt: req.Prompt, Schema: schema,
		Provider: req.Provider, Model: req.Model,
	}
	if req.RespectRobots != nil {
		params.RespectRobots = *req.RespectRobots
	} else {
		params.RespectRobots = h.cfg.Robots.Respect
	}

	job, err := h.submitJob(c, model.JobTypeAgentExtract, params)
	if err != nil {
		return writeError(c, err)
	}
	return h.acceptedResponse(c, job)
}

// submitSearch handles POST /api/v1/search.
func (h *handlers) submitSearch(c *fiber.Ctx) error {
	if !h.cfg.Search.Enabled {
		return writeError(c, apierr.New(apierr.CodeValidation, "search is not enabled"))
	}
	var req searchRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apierr.Wrap(apierr.CodeValidation, "invalid request body", err))
	}
	if req.Query == "" {
		return writeError(c, apierr.New(apierr.CodeValidation, "query is required"))
	}

	params := jobs.SearchScrapeParams{
		Query: req.Query, Sources: req.Sources, Limit: req.Limit,
		ScrapeResults: req.ScrapeResults, ScrapeTopN: req.ScrapeTopN,
		RespectRobots: h.cfg.Robots.Respect,
	}
	if params.Limit <= 0 {
		params.Limit = h.cfg.Search.MaxResults
	}

	job, err := h.submitJob(c, model.JobTypeSearchScrape, params)
	if err != nil {
		return writeError(c, err)
	}
	return h.acceptedResponse(c, job)
}

// jobStatus handles GET /api/v1/jobs/{job_id} and /api/v1/map/{job_id}.
func (h *handlers) jobStatus(c *fiber.Ctx) error {
	job, err := h.loadJob(c, paramName(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toJobStatus(job))
}

// jobResultsByParam returns a handler for GET .../{param}/results, where
// param is the route's job-id path parameter name ("jobID" or "taskID").
func (h *handlers) jobResultsByParam(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		job, err := h.loadJob(c, c.Params(param))
		if err != nil {
			return writeError(c, err)
		}
		if job.Status != model.JobStatusCompleted && job.Status != model.JobStatusFailed && job.Status != model.JobStatusCancelled {
			return writeError(c, apierr.New(apierr.CodeJobNotReady, "job has not reached a terminal state"))
		}

		resp := jobResultsResponse{jobStatusResponse: toJobStatus(job)}

		pages, perr := h.store.ListJobPages(c.Context(), job.ID)
		if perr != nil {
			return writeError(c, apierr.Wrap(apierr.CodeInternal, "list job pages failed", perr))
		}
		for _, jp := range pages {
			page, gerr := h.store.GetPage(c.Context(), jp.PageID)
			if gerr != nil {
				continue
			}
			resp.Pages = append(resp.Pages, jobPageResult{
				URL: page.URL, Depth: jp.Depth, Title: page.Title, WordCount: page.WordCount,
			})
		}

		extractions, eerr := h.store.ListExtractions(c.Context(), job.ID)
		if eerr != nil {
			return writeError(c, apierr.Wrap(apierr.CodeInternal, "list extractions failed", eerr))
		}
		for _, ex := range extractions {
			var data any
			if err := json.Unmarshal(ex.Data, &data); err == nil {
				resp.Extractions = append(resp.Extractions, data)
			}
		}

		return c.JSON(resp)
	}
}

// paramName picks whichever job-id path parameter the matched route
// defines, since jobStatus is shared by both /jobs/{id} and /map/{id}.
func paramName(c *fiber.Ctx) string {
	if v := c.Params("jobID"); v != "" {
		return v
	}
	return c.Params("taskID")
}

func (h *handlers) loadJob(c *fiber.Ctx, rawID string) (*model.Job, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, apierr.New(apierr.CodeValidation, "invalid job id")
	}
	job, err := h.store.GetJob(c.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apierr.New(apierr.CodeJobNotFound, "job not found")
		}
		return nil, apierr.Wrap(apierr.CodeInternal, "load job failed", err)
	}
	cred := credentialFrom(c)
	if cred != nil && job.OwnerCredentialID != cred.ID {
		return nil, apierr.New(apierr.CodeJobNotFound, "job not found")
	}
	return job, nil
}

func toJobStatus(job *model.Job) jobStatusResponse {
	resp := jobStatusResponse{
		JobID:           job.ID.String(),
		Type:            string(job.Type),
		Status:          string(job.Status),
		PagesDiscovered: job.PagesDiscovered,
		PagesTotal:      job.PagesTotal,
		ErrorCode:       job.ErrorCode,
		ErrorMessage:    job.ErrorMessage,
		CreatedAt:       job.CreatedAt.Format(timeLayout),
	}
	if job.StartedAt != nil {
		resp.StartedAt = job.StartedAt.Format(timeLayout)
	}
	if job.CompletedAt != nil {
		resp.CompletedAt = job.CompletedAt.Format(timeLayout)
	}
	return resp
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"
