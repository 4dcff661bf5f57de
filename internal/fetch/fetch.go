// Package fetch performs plain HTTP GET fetches with exponential
// backoff retry, following redirects and recording the final URL and
// status. Grounded on codepr-webcrawler's fetcher (rehttp transport)
// and the teacher's scraper.HTTPScraper request construction.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/rehttp"

	"distill/internal/urlutil"
)

// Result is a single fetch outcome, successful or not.
type Result struct {
	FinalURL   string
	StatusCode int
	Body       []byte
	Header     http.Header
	Duration   time.Duration
}

// Fetcher issues retried GET requests.
type Fetcher struct {
	client    *http.Client
	userAgent string
	resolver  urlutil.Resolver
	maxBody   int64
}

// Config controls retry/backoff and request shaping.
type Config struct {
	UserAgent      string
	TimeoutMs      int
	MaxRetries     int
	BackoffBaseMs  int
	BackoffCapMs   int
	MaxBodyBytes   int64
	Resolver       urlutil.Resolver
}

// New builds a Fetcher whose transport retries idempotent GETs on
// temporary network errors and on 429, 502, 503 and 504 responses,
// with jittered exponential backoff
// bounded by BackoffCapMs, matching codepr-webcrawler's rehttp.RetryAll
// + rehttp.ExpJitterDelay composition.
func New(cfg Config) *Fetcher {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	base := time.Duration(cfg.BackoffBaseMs) * time.Millisecond
	if base <= 0 {
		base = 2 * time.Second
	}
	cap := time.Duration(cfg.BackoffCapMs) * time.Millisecond
	if cap <= 0 {
		cap = 30 * time.Second
	}
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 20 << 20
	}

	transport := rehttp.NewTransport(
		&http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
		rehttp.RetryAll(
			rehttp.RetryMaxRetries(maxRetries),
			rehttp.RetryAny(
				rehttp.RetryTemporaryErr(),
				rehttp.RetryStatuses(http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout),
			),
		),
		rehttp.ExpJitterDelay(base, cap),
	)

	return &Fetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
		userAgent: cfg.UserAgent,
		resolver:  cfg.Resolver,
		maxBody:   maxBody,
	}
}

// Get fetches rawURL, validating every redirect hop against the SSRF
// guard before the client follows it (http.Client.CheckRedirect runs
// before the request is sent, so this closes the redirect-to-internal
// bypass).
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Result, error) {
	if f.resolver != nil {
		if err := urlutil.ValidateSSRF(ctx, rawURL, f.resolver); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	f.applyHeaders(req)

	start := time.Now()
	resp, err := f.doWithRedirectGuard(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Result{
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       body,
		Header:     resp.Header,
		Duration:   elapsed,
	}, nil
}

func (f *Fetcher) doWithRedirectGuard(ctx context.Context, req *http.Request) (*http.Response, error) {
	client := f.client
	if f.resolver != nil {
		guarded := *client
		guarded.CheckRedirect = func(r *http.Request, via []*http.Request) error {
			if err := client.CheckRedirect(r, via); err != nil {
				return err
			}
			return urlutil.ValidateSSRF(ctx, r.URL.String(), f.resolver)
		}
		client = &guarded
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	return resp, nil
}

func (f *Fetcher) applyHeaders(req *http.Request) {
	ua := f.userAgent
	if ua == "" {
		ua = "Mozilla/5.0 (compatible; distill-bot/1.0; +https://example.invalid/bot)"
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/pdf;q=0.8,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
}
