package jobs

// MapParams is the input_params payload for a JobTypeMap job, decoded
// straight into crawler.Params by MapExecutor. Field names match the
// /api/v1/map request body so httpapi can pass the decoded body
// through to Submit unchanged.
type MapParams struct {
	URL             string   `json:"url"`
	MaxDepth        int      `json:"maxDepth"`
	MaxPages        int      `json:"maxPages"`
	IncludePatterns []string `json:"includePatterns,omitempty"`
	ExcludePatterns []string `json:"excludePatterns,omitempty"`
	Concurrency     int      `json:"concurrency"`
	RespectRobots   bool     `json:"respectRobots"`
}

// AgentExtractParams is the input_params payload for a JobTypeAgentExtract
// job: one structured-extraction request applied across one or more URLs.
type AgentExtractParams struct {
	URLs          []string     `json:"urls"`
	Prompt        string       `json:"prompt,omitempty"`
	Schema        []FieldParam `json:"schema,omitempty"`
	Provider      string       `json:"provider,omitempty"`
	Model         string       `json:"model,omitempty"`
	RespectRobots bool         `json:"respectRobots"`
}

// FieldParam describes one field of a requested extraction schema.
type FieldParam struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
}

// SearchScrapeParams is the input_params payload for a JobTypeSearchScrape
// job: a web search, optionally followed by scraping the top N results.
type SearchScrapeParams struct {
	Query         string   `json:"query"`
	Sources       []string `json:"sources,omitempty"`
	Limit         int      `json:"limit"`
	ScrapeResults bool     `json:"scrapeResults"`
	ScrapeTopN    int      `json:"scrapeTopN"`
	RespectRobots bool     `json:"respectRobots"`
}
