package httpapi

// errorEnvelope is the response body for every non-2xx response, per
// the API's error contract: {error:{code,message,request_id,details}}.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	Details   map[string]any `json:"details,omitempty"`
}

// scrapeRequest is the POST /api/v1/scrape request body: fetch and
// extract a single URL synchronously.
type scrapeRequest struct {
	URL             string       `json:"url"`
	Formats         []any        `json:"formats,omitempty"`
	RenderMode      string       `json:"renderMode,omitempty"`
	RespectRobots   *bool        `json:"respectRobots,omitempty"`
	Prompt          string       `json:"prompt,omitempty"`
	Schema          []fieldParam `json:"schema,omitempty"`
	Provider        string       `json:"provider,omitempty"`
	Model           string       `json:"model,omitempty"`
	TimeoutMs       int          `json:"timeoutMs,omitempty"`
	CacheTTLSeconds *int         `json:"cacheTtlSeconds,omitempty"`
	ForceRefresh    bool         `json:"forceRefresh,omitempty"`
}

type fieldParam struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
}

// scrapeResponse mirrors a Page plus any requested LLM-derived formats.
type scrapeResponse struct {
	URL             string         `json:"url"`
	CanonicalURL    string         `json:"canonicalUrl,omitempty"`
	StatusCode      int            `json:"statusCode"`
	Title           string         `json:"title,omitempty"`
	Description     string         `json:"description,omitempty"`
	Markdown        string         `json:"markdown,omitempty"`
	RawHTML         string         `json:"rawHtml,omitempty"`
	Renderer        string         `json:"renderer"`
	LinksInternal   []string       `json:"linksInternal,omitempty"`
	LinksExternal   []string       `json:"linksExternal,omitempty"`
	Images          []string       `json:"images,omitempty"`
	WordCount       int            `json:"wordCount"`
	ReadTimeMinutes float64        `json:"readTimeMinutes"`
	FetchDurationMs int64          `json:"fetchDurationMs"`
	Cached          bool           `json:"cached"`
	CacheLayer      string         `json:"cacheLayer"`
	Summary         string         `json:"summary,omitempty"`
	JSON            map[string]any `json:"json,omitempty"`
}

// mapRequest is the POST /api/v1/map request body: submits a bounded
// BFS crawl job and returns its job_id for polling.
type mapRequest struct {
	URL             string   `json:"url"`
	MaxDepth        int      `json:"maxDepth"`
	MaxPages        int      `json:"maxPages"`
	IncludePatterns []string `json:"includePatterns,omitempty"`
	ExcludePatterns []string `json:"excludePatterns,omitempty"`
	Concurrency     int      `json:"concurrency"`
	RespectRobots   *bool    `json:"respectRobots,omitempty"`
}

// agentExtractRequest is the POST /api/v1/agent/extract request body.
type agentExtractRequest struct {
	URLs          []string     `json:"urls"`
	Prompt        string       `json:"prompt,omitempty"`
	Schema        []fieldParam `json:"schema,omitempty"`
	Provider      string       `json:"provider,omitempty"`
	Model         string       `json:"model,omitempty"`
	RespectRobots *bool        `json:"respectRobots,omitempty"`
}

// searchRequest is the POST /api/v1/search request body.
type searchRequest struct {
	Query         string   `json:"query"`
	Sources       []string `json:"sources,omitempty"`
	Limit         int      `json:"limit,omitempty"`
	ScrapeResults bool     `json:"scrapeResults,omitempty"`
	ScrapeTopN    int      `json:"scrapeTopN,omitempty"`
}

// jobAcceptedResponse is returned by every job-submitting endpoint,
// whether newly queued or an idempotent resubmission (in which case
// the X-Idempotency-Hit response header is also set).
type jobAcceptedResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// jobStatusResponse is the body for GET /api/v1/jobs/{job_id} and
// GET /api/v1/map/{job_id}.
type jobStatusResponse struct {
	JobID           string `json:"jobId"`
	Type            string `json:"type"`
	Status          string `json:"status"`
	PagesDiscovered int    `json:"pagesDiscovered"`
	PagesTotal      int    `json:"pagesTotal"`
	ErrorCode       string `json:"errorCode,omitempty"`
	ErrorMessage    string `json:"errorMessage,omitempty"`
	CreatedAt       string `json:"createdAt"`
	StartedAt       string `json:"startedAt,omitempty"`
	CompletedAt     string `json:"completedAt,omitempty"`
}

// jobResultsResponse is the body for GET /api/v1/jobs/{job_id}/results
// and GET /api/v1/search/results/{task_id}: the job's status plus every extraction/page row it produced.
type jobResultsResponse struct {
	jobStatusResponse
	Pages       []jobPageResult `json:"pages,omitempty"`
	Extractions []any           `json:"extractions,omitempty"`
}

type jobPageResult struct {
	URL       string `json:"url"`
	Depth     int    `json:"depth"`
	Title     string `json:"title,omitempty"`
	WordCount int    `json:"wordCount"`
}
