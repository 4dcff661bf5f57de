package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockedResourceTypes are the subresource categories dropped before
// navigation to keep render cost down, matching the original fetcher's
// page.route resource-type filter (extended with stylesheets, which
// the spec additionally names).
var blockedResourceTypes = map[proto.NetworkResourceType]bool{
	proto.NetworkResourceTypeImage:      true,
	proto.NetworkResourceTypeFont:       true,
	proto.NetworkResourceTypeMedia:      true,
	proto.NetworkResourceTypeStylesheet: true,
}

// hijackHeavyResources installs a request router on page that aborts
// image/font/media/css requests before they hit the network and lets
// everything else through untouched.
func hijackHeavyResources(page *rod.Page) *rod.HijackRouter {
	router := page.HijackRequests()
	router.MustAdd("*", func(ctx *rod.Hijack) {
		if blockedResourceTypes[ctx.Request.Type()] {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

// Result is a rendered page: the DOM HTML after JS execution settled,
// plus an optional full-page screenshot when requested.
type Result struct {
	FinalURL   string
	HTML       string
	Screenshot []byte
	Duration   time.Duration
}

// Fetcher renders URLs through the browser pool, blocking heavy
// resource types to keep render latency down, matching the teacher's
// javascript-rendering escalation path.
type Fetcher struct {
	pool    *Pool
	timeout time.Duration
	settle  time.Duration
}

// New builds a browser Fetcher bound to pool. timeout bounds the whole
// page load; settle is an additional quiet period after
// domcontentloaded, giving late XHR-driven content a chance to render
// (the spec's "roughly 2s settle wait" heuristic).
func New(pool *Pool, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Fetcher{pool: pool, timeout: timeout, settle: 2 * time.Second}
}

// Get renders rawURL and returns its final HTML. When screenshot is
// true it also captures a full-page screenshot in the same page
// lifecycle, avoiding a second browser round trip.
func (f *Fetcher) Get(ctx context.Context, rawURL string, screenshot bool) (*Result, error) {
	b, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire browser: %w", err)
	}
	defer f.pool.Release(b)

	pageCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()

	browser := b.Context(pageCtx)
	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer func() { _ = page.Close() }()

	router := hijackHeavyResources(page)
	defer func() { _ = router.Stop() }()

	waitDOMContentLoaded := page.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := page.Navigate(rawURL); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	waitDOMContentLoaded()
	// Settle wait: give late XHR/SPA-framework rendering a chance to
	// finish painting before we snapshot the DOM.
	select {
	case <-time.After(f.settle):
	case <-pageCtx.Done():
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("read html: %w", err)
	}

	info, err := page.Info()
	finalURL := rawURL
	if err == nil && info != nil {
		finalURL = info.URL
	}

	res := &Result{FinalURL: finalURL, HTML: html, Duration: time.Since(start)}

	if screenshot {
		data, err := page.Screenshot(true, nil)
		if err == nil {
			res.Screenshot = data
		}
	}

	return res, nil
}
