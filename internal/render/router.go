// Package render decides whether a page needs a full browser render or
// can be served from the plain HTTP fetch, and records the escalation
// outcome as a metric. Grounded on the teacher's use_playwright request
// flag (internal/http/handlers_scrape.go) and scrapeutil word-count
// helpers, generalized into the spec's auto/always/never policy.
package render

import (
	"strings"

	"golang.org/x/net/html"

	"distill/internal/metrics"
)

// Mode is the caller's render preference for a request.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeAlways Mode = "always"
	ModeNever  Mode = "never"
)

// spaMarkers are root-element attributes/ids that strongly suggest a
// client-side-rendered app shell with no meaningful server HTML.
var spaMarkers = []string{
	`id="root"`, `id="app"`, `id="__next"`, `ng-version`, `data-reactroot`,
	`window.__NEXT_DATA__`, `window.__NUXT__`, `__remix_manifest`,
}

// alwaysBrowserHosts lists hosts known to return near-empty HTML
// without JS execution; routed straight to the browser fetcher to
// avoid wasting an HTTP round trip that will just get escalated.
var alwaysBrowserHosts = map[string]struct{}{}

// minWordsBeforeEscalate is the auto-mode threshold: an HTTP fetch
// returning fewer extracted words than this is assumed to be an
// unrendered SPA shell and gets escalated to the browser fetcher.
const minWordsBeforeEscalate = 150

// Decide returns true if the page should be (re-)fetched through the
// browser, given the caller's Mode, the plain-HTTP fetch's extracted
// word count, and the raw HTML (scanned for SPA markers).
func Decide(mode Mode, host string, httpWordCount int, rawHTML string) bool {
	switch mode {
	case ModeAlways:
		return true
	case ModeNever:
		return false
	}

	if _, ok := alwaysBrowserHosts[host]; ok {
		metrics.RecordRenderEscalation("always_host")
		return true
	}

	if httpWordCount < minWordsBeforeEscalate {
		metrics.RecordRenderEscalation("low_word_count")
		return true
	}

	if looksLikeSPAShell(rawHTML) {
		metrics.RecordRenderEscalation("spa_marker")
		return true
	}

	return false
}

func looksLikeSPAShell(rawHTML string) bool {
	lower := strings.ToLower(rawHTML)
	for _, marker := range spaMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	// A body with a single near-empty div and a <script> bundle is the
	// classic unrendered SPA signature; approximate it by checking for
	// very few text nodes under <body>.
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))
	inBody := false
	textLen := 0
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		tok := tokenizer.Token()
		if tt == html.StartTagToken && tok.Data == "body" {
			inBody = true
		}
		if tt == html.TextToken && inBody {
			textLen += len(strings.TrimSpace(tok.Data))
		}
	}
	return inBody && textLen < 40
}
