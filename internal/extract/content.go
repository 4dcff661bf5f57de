// Package extract turns raw HTML into the Page's markdown, metadata,
// link, and image sets. Grounded on the teacher's scraper.HTTPScraper
// (goquery selection, html-to-markdown conversion, metadata/link/image
// harvesting), generalized into an explicit clean -> select ->
// linearize -> post-process pipeline with table extraction and
// boilerplate suppression the teacher's single-pass version lacked.
package extract

import (
	"math"
	"net/url"
	"regexp"
	"strings"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"distill/internal/model"
)

// boilerplateSelectors are removed from the DOM before conversion:
// navigation chrome, ads, and interactive widgets that never belong in
// extracted article text.
var boilerplateSelectors = []string{
	"nav", "header", "footer", "aside",
	"script", "style", "noscript", "svg", "iframe", "form",
	"[role=navigation]", "[role=banner]", "[role=contentinfo]",
	".advertisement", ".ads", ".cookie-banner", ".cookie-consent",
	".breadcrumb", ".breadcrumbs", ".social-share", ".newsletter-signup",
	"#comments", ".comments",
}

var (
	multiBlankLines = regexp.MustCompile(`\n{3,}`)
	trailingSpaces  = regexp.MustCompile(`[ \t]+\n`)
	symbolOnlyLine  = regexp.MustCompile(`^[^a-zA-Z0-9]*$`)
	breadcrumbLine  = regexp.MustCompile(`^[^>]{1,40}(\s*>\s*[^>]{1,40}){1,}$`)
	headingLine     = regexp.MustCompile(`^#{1,6}\s`)
	cookieConsentRe = regexp.MustCompile(`(?i)(accept|allow|manage)\s+(all\s+)?cookies|cookie\s+(consent|policy|preferences)|we use cookies`)
)

// shortLinePatternLimit is the max length a line may have for the
// cookie-consent/breadcrumb boilerplate patterns to apply; longer lines
// are assumed to be genuine prose that merely contains a ">" or the
// word "cookie" in passing.
const shortLinePatternLimit = 100

// Result is the output of Run: everything the Page row needs plus the
// up-to-3 extracted tables as standalone Markdown blocks.
type Result struct {
	Title       string
	Description string
	Markdown    string
	Tables      []string
	Links       Links
	Images      []string
	WordCount   int
	Meta        PageMeta
}

// Links partitions a page's anchors by whether they point at the same
// host (post "www." stripping) as the page itself.
type Links struct {
	Internal []string
	External []string
}

// PageMeta holds the non-content metadata fields the Page row stores.
type PageMeta struct {
	CanonicalURL string
	OGImage      string
	FaviconURL   string
	SiteName     string
	Language     string
}

// Run cleans rawHTML, converts the remaining content to Markdown, and
// derives metadata/links/tables/word count relative to pageURL.
func Run(rawHTML, pageURL string) (*Result, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}

	meta := extractMeta(doc, base)
	tables := extractTables(doc)
	links := extractLinks(doc, base)
	images := extractImages(doc, base)

	for _, sel := range boilerplateSelectors {
		doc.Find(sel).Remove()
	}
	suppressRepeatedLines(doc.Selection)

	body := doc.Find("body")
	cleanHTML, err := body.Html()
	if err != nil || strings.TrimSpace(cleanHTML) == "" {
		cleanHTML = rawHTML
	}

	converter := htmlmd.NewConverter(base.Hostname(), true, nil)
	markdown, convErr := converter.ConvertString(cleanHTML)
	if convErr != nil || strings.TrimSpace(markdown) == "" {
		markdown = body.Text()
	}
	markdown = postProcess(markdown)

	title := doc.Find("meta[property='og:title']").AttrOr("content", "")
	title = strings.TrimSpace(title)
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); title == "" && h1 != "" {
		title = h1
	}
	description := doc.Find("meta[name=description]").AttrOr("content", "")

	words := len(strings.Fields(markdown))

	return &Result{
		Title:       title,
		Description: description,
		Markdown:    markdown,
		Tables:      tables,
		Links:       links,
		Images:      images,
		WordCount:   words,
		Meta:        meta,
	}, nil
}

// postProcess drops line-level boilerplate the DOM-level cleanup
// misses (symbol-only dividers, short cookie-consent notices, short
// breadcrumb trails), gives heading lines blank-line separation, then
// collapses runs of blank lines and trims trailing whitespace left
// over from the HTML -> Markdown conversion, matching the kind of
// cleanup a human editor would do before publishing.
func postProcess(markdown string) string {
	markdown = trailingSpaces.ReplaceAllString(markdown, "\n")
	markdown = dropBoilerplateLines(markdown)
	markdown = ensureHeadingSpacing(markdown)
	markdown = multiBlankLines.ReplaceAllString(markdown, "\n\n")
	return strings.TrimSpace(markdown)
}

// dropBoilerplateLines removes lines that are nothing but punctuation
// dividers, or that - when short enough to plausibly be UI chrome
// rather than prose - match a cookie-consent notice or a breadcrumb
// trail like "Home > Products > Widget".
func dropBoilerplateLines(markdown string) string {
	lines := strings.Split(markdown, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			if symbolOnlyLine.MatchString(trimmed) {
				continue
			}
			if len(trimmed) < shortLinePatternLimit && (cookieConsentRe.MatchString(trimmed) || breadcrumbLine.MatchString(trimmed)) {
				continue
			}
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// ensureHeadingSpacing inserts a blank line before and after every
// Markdown heading line that doesn't already have one, so headings
// never run directly against adjacent body text.
func ensureHeadingSpacing(markdown string) string {
	lines := strings.Split(markdown, "\n")
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		isHeading := headingLine.MatchString(line)
		if isHeading && len(out) > 0 && strings.TrimSpace(out[len(out)-1]) != "" {
			out = append(out, "")
		}
		out = append(out, line)
		if isHeading && i+1 < len(lines) && strings.TrimSpace(lines[i+1]) != "" {
			out = append(out, "")
		}
	}
	return strings.Join(out, "\n")
}

// suppressRepeatedLines removes every p/li/div/span element whose
// trimmed text (at most 120 chars, including descendants' text) is
// shared by 3 or more such elements anywhere in the document (e.g. a
// repeated "Subscribe to our newsletter" CTA), a cheap readability-style
// boilerplate heuristic that doesn't require a full readability port.
// The repeats need not be adjacent or siblings.
func suppressRepeatedLines(doc *goquery.Selection) {
	seen := make(map[string]int)
	doc.Find("p, li, div, span").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text == "" || len(text) > 120 {
			return
		}
		seen[text]++
	})
	doc.Find("p, li, div, span").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" && seen[text] >= 3 {
			sel.Remove()
		}
	})
}

func extractMeta(doc *goquery.Document, base *url.URL) PageMeta {
	canonical := doc.Find("link[rel=canonical]").AttrOr("href", "")
	canonicalURL := base.String()
	if canonical != "" {
		if cu, err := url.Parse(canonical); err == nil {
			if !cu.IsAbs() {
				cu = base.ResolveReference(cu)
			}
			canonicalURL = cu.String()
		}
	}

	favicon := doc.Find("link[rel=icon]").AttrOr("href", "")
	if favicon == "" {
		favicon = doc.Find("link[rel='shortcut icon']").AttrOr("href", "")
	}
	if favicon != "" {
		if fu, err := url.Parse(favicon); err == nil {
			if !fu.IsAbs() {
				fu = base.ResolveReference(fu)
			}
			favicon = fu.String()
		}
	}

	return PageMeta{
		CanonicalURL: canonicalURL,
		OGImage:      doc.Find("meta[property='og:image']").AttrOr("content", ""),
		FaviconURL:   favicon,
		SiteName:     doc.Find("meta[property='og:site_name']").AttrOr("content", ""),
		Language:     doc.Find("html").First().AttrOr("lang", ""),
	}
}

// extractTables converts up to the first 3 <table> elements into
// Markdown pipe tables, matching the spec's cap on table extraction.
func extractTables(doc *goquery.Document) []string {
	var tables []string
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		if len(tables) >= 3 {
			return false
		}
		md := tableToMarkdown(table)
		if md != "" {
			tables = append(tables, md)
		}
		return true
	})
	return tables
}

func tableToMarkdown(table *goquery.Selection) string {
	var rows [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	})
	if len(rows) == 0 {
		return ""
	}

	var b strings.Builder
	for i, row := range rows {
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
		if i == 0 {
			sep := make([]string, len(row))
			for j := range sep {
				sep[j] = "---"
			}
			b.WriteString("| " + strings.Join(sep, " | ") + " |\n")
		}
	}
	return b.String()
}

// extractLinks harvests anchors, resolves them against base, and
// partitions them into internal/external sets by host (www.-agnostic).
func extractLinks(doc *goquery.Document, base *url.URL) Links {
	baseHost := strings.TrimPrefix(strings.ToLower(base.Hostname()), "www.")
	seen := make(map[string]struct{})
	var links Links

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		linkURL, err := url.Parse(href)
		if err != nil {
			return
		}
		if !linkURL.IsAbs() {
			linkURL = base.ResolveReference(linkURL)
		}
		if linkURL.Scheme != "http" && linkURL.Scheme != "https" {
			return
		}
		linkURL.Fragment = ""
		final := linkURL.String()
		if _, dup := seen[final]; dup {
			return
		}
		seen[final] = struct{}{}

		host := strings.TrimPrefix(strings.ToLower(linkURL.Hostname()), "www.")
		if host == baseHost {
			links.Internal = append(links.Internal, final)
		} else {
			links.External = append(links.External, final)
		}
	})

	return links
}

// extractImages harvests absolute http(s) image URLs from <img src> and
// the first candidate of <source srcset>, deduplicated in document
// order, for the "images" output format.
func extractImages(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]struct{})
	var images []string

	resolve := func(src string) string {
		src = strings.TrimSpace(src)
		if src == "" {
			return ""
		}
		imgURL, err := url.Parse(src)
		if err != nil {
			return ""
		}
		if !imgURL.IsAbs() {
			imgURL = base.ResolveReference(imgURL)
		}
		if imgURL.Scheme != "http" && imgURL.Scheme != "https" {
			return ""
		}
		imgURL.Fragment = ""
		return imgURL.String()
	}

	add := func(resolved string) {
		if resolved == "" {
			return
		}
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		images = append(images, resolved)
	}

	doc.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
		add(resolve(sel.AttrOr("src", "")))
	})

	doc.Find("source[srcset]").Each(func(_ int, sel *goquery.Selection) {
		srcset := strings.TrimSpace(sel.AttrOr("srcset", ""))
		if srcset == "" {
			return
		}
		parts := strings.Split(srcset, ",")
		first := strings.Fields(strings.TrimSpace(parts[0]))
		if len(first) == 0 {
			return
		}
		add(resolve(first[0]))
	})

	return images
}

// ReadTimeMinutes applies the common 200-words-per-minute heuristic,
// rounded to the nearest whole minute (word_count=2 -> 0, not 0.01).
func ReadTimeMinutes(wordCount int) float64 {
	if wordCount <= 0 {
		return 0
	}
	return math.Round(float64(wordCount) / 200.0)
}

// ToPageFields fills in the extraction-derived fields of a Page,
// leaving identity/status/timing fields for the caller.
func ToPageFields(p *model.Page, r *Result) {
	p.Title = r.Title
	p.Description = r.Description
	p.Markdown = r.Markdown
	p.LinksInternal = r.Links.Internal
	p.LinksExternal = r.Links.External
	p.WordCount = r.WordCount
	p.ReadTimeMinutes = ReadTimeMinutes(r.WordCount)
	p.CanonicalURL = r.Meta.CanonicalURL
	p.OGImage = r.Meta.OGImage
	p.FaviconURL = r.Meta.FaviconURL
	p.SiteName = r.Meta.SiteName
	p.Language = r.Meta.Language
}
