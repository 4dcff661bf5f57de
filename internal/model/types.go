// Package model defines the persistent record types shared by the
// store, cache, jobs, crawler, and httpapi packages.
package model

import (
	"time"

	"github.com/google/uuid"
)

// JobType enumerates the asynchronous operations the worker can run.
type JobType string

const (
	JobTypeMap          JobType = "map"
	JobTypeAgentExtract JobType = "agent_extract"
	JobTypeSearchScrape JobType = "search_scrape"
)

// JobStatus is the lifecycle state of a Job. Transitions are one-way:
// queued -> running -> {completed, failed, cancelled}.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Renderer identifies which fetch path produced a Page.
type Renderer string

const (
	RendererHTTP    Renderer = "http"
	RendererBrowser Renderer = "browser"
	RendererPDF     Renderer = "pdf"
)

// Page is the durable, content-addressed record of a single fetched and
// extracted URL. Rows are upserted by url_hash; a second fetch of an
// unchanged page updates fetched_at without bumping content_hash.
type Page struct {
	URLHash         string    `json:"urlHash"`
	URL             string    `json:"url"`
	CanonicalURL    string    `json:"canonicalUrl,omitempty"`
	ContentHash     string    `json:"contentHash,omitempty"`
	StatusCode      int       `json:"statusCode"`
	Title           string    `json:"title,omitempty"`
	Description     string    `json:"description,omitempty"`
	Markdown        string    `json:"markdown,omitempty"`
	RawHTML         string    `json:"rawHtml,omitempty"`
	Renderer        Renderer  `json:"renderer"`
	LinksInternal   []string  `json:"linksInternal,omitempty"`
	LinksExternal   []string  `json:"linksExternal,omitempty"`
	WordCount       int       `json:"wordCount"`
	ReadTimeMinutes float64   `json:"readTimeMinutes"`
	FetchDurationMs int64     `json:"fetchDurationMs"`
	OGImage         string    `json:"ogImage,omitempty"`
	FaviconURL      string    `json:"faviconUrl,omitempty"`
	SiteName        string    `json:"siteName,omitempty"`
	Language        string    `json:"language,omitempty"`
	FetchedAt       time.Time `json:"fetchedAt"`
	ErrorCode       string    `json:"errorCode,omitempty"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
}

// Job is an async unit of work owned by a credential.
type Job struct {
	ID                uuid.UUID  `json:"id"`
	OwnerCredentialID uuid.UUID  `json:"ownerCredentialId"`
	Type              JobType    `json:"type"`
	Status            JobStatus  `json:"status"`
	InputParams       []byte     `json:"inputParams"`
	IdempotencyKey    string     `json:"idempotencyKey"`
	ErrorCode         string     `json:"errorCode,omitempty"`
	ErrorMessage      string     `json:"errorMessage,omitempty"`
	PagesDiscovered   int        `json:"pagesDiscovered"`
	PagesTotal        int        `json:"pagesTotal"`
	CreatedAt         time.Time  `json:"createdAt"`
	StartedAt         *time.Time `json:"startedAt,omitempty"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
}

// JobPage links a Job to a Page it discovered or fetched, at a given
// BFS depth (0 for the seed URL).
type JobPage struct {
	JobID  uuid.UUID `json:"jobId"`
	PageID string    `json:"pageId"`
	Depth  int       `json:"depth"`
}

// Extraction holds the structured-data output of an agent_extract job,
// optionally scoped to a single page within a multi-page job.
type Extraction struct {
	JobID     uuid.UUID `json:"jobId"`
	PageID    *string   `json:"pageId,omitempty"`
	Data      []byte    `json:"data"`
	Prompt    string    `json:"prompt,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Credential is an API caller identity. Keys are stored hashed; callers
// authenticate with the raw key, which is hashed and compared on lookup.
type Credential struct {
	ID              uuid.UUID  `json:"id"`
	KeyHash         string     `json:"-"`
	Name            string     `json:"name"`
	Scopes          []string   `json:"scopes"`
	RateLimitPerMin int        `json:"rateLimitPerMin"`
	IsActive        bool       `json:"isActive"`
	LastUsedAt      *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// HasScope reports whether the credential is authorized for the given
// scope (e.g. "scrape", "crawl", "admin").
func (c Credential) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope || s == "*" {
			return true
		}
	}
	return false
}
