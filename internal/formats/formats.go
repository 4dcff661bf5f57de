package formats

import (
	"fmt"
	"strings"

	"distill/internal/scrapeutil"
)

// Format is a logical output format a caller can request for a scrape,
// either a bare string or a {type: string} descriptor.
type Format string

const (
	FormatMarkdown   Format = "markdown"
	FormatHTML       Format = "html"
	FormatRawHTML    Format = "rawHtml"
	FormatLinks      Format = "links"
	FormatImages     Format = "images"
	FormatSummary    Format = "summary"
	FormatJSON       Format = "json"
	FormatBranding   Format = "branding"
	FormatScreenshot Format = "screenshot"
)

// HasFormat reports whether the given formats array contains the
// specified format name. It is a thin wrapper around
// scrapeutil.WantsFormat so callers do not need to depend on helpers.
func HasFormat(formats []any, name string) bool {
	return scrapeutil.WantsFormat(formats, name)
}

// normalizeFormatName converts a format descriptor (either a string or
// {type: string}) into a lowercased name.
func normalizeFormatName(f any) string {
	switch v := f.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case map[string]any:
		if t, ok := v["type"].(string); ok {
			return strings.ToLower(strings.TrimSpace(t))
		}
	}
	return ""
}

// ValidateFormatsForEndpoint validates a formats array for a specific
// endpoint. Currently only /api/v1/search applies restrictions; other
// endpoints accept the full set of formats and this function returns
// nil for them.
//
// The returned error message is intended to be user-facing and is
// wired directly into HTTP error responses.
func ValidateFormatsForEndpoint(endpoint string, formats []any) error {
	if len(formats) == 0 {
		return nil
	}

	switch endpoint {
	case "search":
		// The search endpoint's optional scrapeOptions only support a
		// limited subset of formats, to keep payloads small and
		// behavior predictable.
		allowed := map[string]struct{}{
			"markdown": {},
			"html":     {},
			"rawhtml":  {},
		}

		for _, f := range formats {
			name := normalizeFormatName(f)
			if name == "" {
				return fmt.Errorf("unsupported format for /api/v1/search; allowed formats are: markdown, html, rawHtml")
			}
			if _, ok := allowed[name]; !ok {
				return fmt.Errorf("unsupported format %q for /api/v1/search; allowed formats are: markdown, html, rawHtml", name)
			}
		}
	}

	return nil
}
