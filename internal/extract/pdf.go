package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFResult is the reduced output for PDF documents: there is no HTML
// DOM to clean/select, so only a linearized text body and word count
// apply. No library in the retrieval pack covers PDF parsing, so this
// wires a real, widely-used ecosystem PDF text extractor instead of
// hand-rolling a parser (see DESIGN.md).
type PDFResult struct {
	Markdown  string
	WordCount int
}

// RunPDF extracts the plain-text content of a PDF byte stream and
// wraps it as a minimal Markdown document (one paragraph per page).
func RunPDF(body []byte) (*PDFResult, error) {
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(strings.TrimSpace(text))
		b.WriteString("\n\n")
	}

	markdown := postProcess(b.String())
	return &PDFResult{
		Markdown:  markdown,
		WordCount: len(strings.Fields(markdown)),
	}, nil
}
