// Package crawler implements the bounded BFS site-mapping job. It also
// exposes the single-URL fetch -> render-decide -> extract -> cache
// pipeline (FetchPage) so the synchronous scrape endpoint and the
// crawler itself exercise identical fetch semantics, matching the
// spec's requirement that a single fetch escalation path serves both.
package crawler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"distill/internal/apierr"
	"distill/internal/browser"
	"distill/internal/cache"
	"distill/internal/extract"
	"distill/internal/fetch"
	"distill/internal/metrics"
	"distill/internal/model"
	"distill/internal/ratelimit"
	"distill/internal/render"
	"distill/internal/robots"
	"distill/internal/urlutil"
)

// Deps bundles the collaborators a single-URL fetch needs: plain HTTP
// fetch with retry, browser escalation, the two-tier cache, the robots
// oracle, and the per-host throttle. Both the crawler and (later) the
// synchronous /scrape handler construct one Deps from the same Engine
// wiring and call FetchPage.
type Deps struct {
	Fetcher        *fetch.Fetcher
	BrowserFetcher *browser.Fetcher
	Cache          *cache.Cache
	Robots         *robots.Oracle
	Throttle       *ratelimit.DomainThrottle
	RespectRobots  bool
	// Resolver, when set, lets callers outside the fetch path (job
	// submission handlers) run the same SSRF check against a
	// user-supplied target before it is ever queued.
	Resolver urlutil.Resolver
}

// ValidateTarget normalizes rawURL and runs the SSRF guard against it,
// for use at job-submission time before a user-supplied URL is queued
// for a background worker to fetch later.
func ValidateTarget(ctx context.Context, d Deps, rawURL string) error {
	normalized, err := urlutil.Normalize(rawURL, nil)
	if err != nil {
		return apierr.Wrap(apierr.CodeInvalidURL, "invalid url", err)
	}
	if d.Resolver == nil {
		return nil
	}
	return urlutil.ValidateSSRF(ctx, normalized, d.Resolver)
}

// pdfMagic is the leading byte sequence of every PDF file, used as a
// fallback when a server mislabels the Content-Type header.
var pdfMagic = []byte("%PDF-")

// FetchPage resolves rawURL to a Page, via the cache when possible and
// via a real fetch (HTTP, escalating to the browser fetcher per mode)
// on a miss. Robots and the per-host throttle are only consulted on
// the real-fetch path, since a cache hit needs neither. It uses the
// cache's default TTL and never bypasses it; callers that need a
// per-request override (the synchronous /scrape endpoint) should use
// FetchPageWithOptions instead.
func FetchPage(ctx context.Context, d Deps, rawURL string, mode render.Mode) (*model.Page, error) {
	page, _, _, err := FetchPageWithOptions(ctx, d, rawURL, mode, cache.Options{})
	return page, err
}

// FetchPageWithOptions is FetchPage plus the spec's per-request cache
// controls: a TTL override (cache_ttl_seconds, 0 disables cache reads)
// and force_refresh (bypass both tiers unconditionally). It reports
// which tier, if any, satisfied the request.
func FetchPageWithOptions(ctx context.Context, d Deps, rawURL string, mode render.Mode, opts cache.Options) (*model.Page, bool, cache.Layer, error) {
	normalized, err := urlutil.Normalize(rawURL, nil)
	if err != nil {
		return nil, false, cache.LayerNone, apierr.Wrap(apierr.CodeInvalidURL, "invalid url", err)
	}
	urlHash := urlutil.Hash(normalized)

	fetchFn := func(ctx context.Context) (*model.Page, error) {
		return fetchAndExtract(ctx, d, normalized, urlHash, mode)
	}

	if d.Cache != nil {
		return d.Cache.GetOrFetch(ctx, urlHash, fetchFn, opts)
	}
	page, err := fetchFn(ctx)
	return page, false, cache.LayerNone, err
}

func fetchAndExtract(ctx context.Context, d Deps, normalized, urlHash string, mode render.Mode) (*model.Page, error) {
	host, err := urlutil.Host(normalized)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInvalidURL, "invalid host", err)
	}

	if d.RespectRobots && d.Robots != nil {
		allowed, _ := d.Robots.Allowed(ctx, normalized)
		if !allowed {
			metrics.RecordRobotsBlocked()
			return nil, apierr.New(apierr.CodeRobotsBlocked, "disallowed by robots.txt")
		}
	}

	if d.Throttle != nil {
		release, err := d.Throttle.Acquire(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("acquire domain throttle: %w", err)
		}
		defer release()
	}

	start := time.Now()
	httpResult, err := d.Fetcher.Get(ctx, normalized)
	if err != nil {
		if ae, ok := apierr.As(err); ok {
			return nil, ae
		}
		return nil, apierr.Wrap(apierr.CodeFetchError, "http fetch failed", err)
	}

	if isPDF(httpResult.Header.Get("Content-Type"), httpResult.Body) {
		pdfResult, err := extract.RunPDF(httpResult.Body)
		if err != nil {
			return nil, apierr.Wrap(apierr.CodeExtractionFailed, "pdf extraction failed", err)
		}
		metrics.RecordFetch(string(model.RendererPDF), httpResult.StatusCode, time.Since(start).Milliseconds())
		return &model.Page{
			URLHash:         urlHash,
			URL:             normalized,
			CanonicalURL:    normalized,
			ContentHash:     contentHash(httpResult.Body),
			StatusCode:      httpResult.StatusCode,
			Markdown:        pdfResult.Markdown,
			Renderer:        model.RendererPDF,
			WordCount:       pdfResult.WordCount,
			ReadTimeMinutes: extract.ReadTimeMinutes(pdfResult.WordCount),
			FetchDurationMs: time.Since(start).Milliseconds(),
			FetchedAt:       time.Now().UTC(),
		}, nil
	}

	result, err := extract.Run(string(httpResult.Body), httpResult.FinalURL)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeExtractionFailed, "extraction failed", err)
	}

	renderer := model.RendererHTTP
	finalURL := httpResult.FinalURL
	statusCode := httpResult.StatusCode
	rawBytes := httpResult.Body

	if d.BrowserFetcher != nil && render.Decide(mode, host, result.WordCount, string(httpResult.Body)) {
		browserResult, berr := d.BrowserFetcher.Get(ctx, normalized, false)
		if berr == nil {
			if reRun, rerr := extract.Run(browserResult.HTML, browserResult.FinalURL); rerr == nil {
				result = reRun
				renderer = model.RendererBrowser
				finalURL = browserResult.FinalURL
				rawBytes = []byte(browserResult.HTML)
			}
		}
	}

	metrics.RecordFetch(string(renderer), statusCode, time.Since(start).Milliseconds())

	page := &model.Page{
		URLHash:         urlHash,
		URL:             normalized,
		CanonicalURL:    finalURL,
		ContentHash:     contentHash(rawBytes),
		StatusCode:      statusCode,
		Renderer:        renderer,
		FetchDurationMs: time.Since(start).Milliseconds(),
		FetchedAt:       time.Now().UTC(),
	}
	extract.ToPageFields(page, result)
	return page, nil
}

// contentHash is the spec's content_hash = SHA256(raw_bytes), computed
// over whichever response bytes ultimately produced the page (the
// plain HTTP body, or the rendered DOM when the browser escalated).
func contentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// isPDF reports whether a fetched body is a PDF document, trusting the
// Content-Type header first and falling back to the file's magic
// number for servers that mislabel it as e.g. octet-stream.
func isPDF(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "application/pdf") {
		return true
	}
	return bytes.HasPrefix(bytes.TrimSpace(body), pdfMagic)
}
