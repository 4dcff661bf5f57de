package extract

import (
	"strings"
	"testing"
)

const sampleHTML = `
<html lang="en">
<head>
  <title>Example Article</title>
  <meta name="description" content="A test page">
  <meta property="og:image" content="/img/cover.png">
  <link rel="canonical" href="https://example.com/article">
</head>
<body>
  <nav>Home | About | Contact</nav>
  <header>Site Header</header>
  <article>
    <h1>Example Article</h1>
    <p>This is the first paragraph of real article content with enough words to count.</p>
    <p>A second paragraph continues the article with more substantive text.</p>
    <a href="/relative/link">Relative link</a>
    <a href="https://other.com/page">External link</a>
    <table>
      <tr><th>Name</th><th>Value</th></tr>
      <tr><td>A</td><td>1</td></tr>
    </table>
  </article>
  <footer>Copyright 2024</footer>
</body>
</html>
`

func TestRunExtractsTitleAndMetadata(t *testing.T) {
	res, err := Run(sampleHTML, "https://example.com/article")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Title != "Example Article" {
		t.Errorf("title = %q, want Example Article", res.Title)
	}
	if res.Description != "A test page" {
		t.Errorf("description = %q", res.Description)
	}
	if res.Meta.CanonicalURL != "https://example.com/article" {
		t.Errorf("canonical = %q", res.Meta.CanonicalURL)
	}
	if res.Meta.OGImage != "/img/cover.png" {
		t.Errorf("ogImage = %q", res.Meta.OGImage)
	}
}

func TestRunPartitionsLinks(t *testing.T) {
	res, err := Run(sampleHTML, "https://example.com/article")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Links.Internal) != 1 || res.Links.Internal[0] != "https://example.com/relative/link" {
		t.Errorf("internal links = %v", res.Links.Internal)
	}
	if len(res.Links.External) != 1 || res.Links.External[0] != "https://other.com/page" {
		t.Errorf("external links = %v", res.Links.External)
	}
}

func TestRunExtractsTable(t *testing.T) {
	res, err := Run(sampleHTML, "https://example.com/article")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(res.Tables))
	}
}

const imageHTML = `
<html>
<body>
  <img src="/img/photo.jpg">
  <img src="https://cdn.example.com/banner.png">
  <img src="data:image/png;base64,abc123">
  <picture>
    <source srcset="/img/hero-2x.webp 2x, /img/hero-1x.webp 1x">
  </picture>
  <img src="/img/photo.jpg">
</body>
</html>
`

func TestRunExtractsImages(t *testing.T) {
	res, err := Run(imageHTML, "https://example.com/article")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"https://example.com/img/photo.jpg",
		"https://cdn.example.com/banner.png",
		"https://example.com/img/hero-2x.webp",
	}
	if len(res.Images) != len(want) {
		t.Fatalf("images = %v, want %v", res.Images, want)
	}
	for i, w := range want {
		if res.Images[i] != w {
			t.Errorf("images[%d] = %q, want %q", i, res.Images[i], w)
		}
	}
}

func TestRunPrefersOGTitleOverTitleTag(t *testing.T) {
	html := `
<html>
<head>
  <title>Page Title</title>
  <meta property="og:title" content="Social Title">
</head>
<body><h1>Heading</h1></body>
</html>`
	res, err := Run(html, "https://example.com/article")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Title != "Social Title" {
		t.Errorf("title = %q, want og:title to win", res.Title)
	}
}

func TestRunFallsBackToTitleThenH1(t *testing.T) {
	res, err := Run(sampleHTML, "https://example.com/article")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Title != "Example Article" {
		t.Errorf("title = %q, want fallback to <title>", res.Title)
	}

	h1Only := `<html><body><h1>Only Heading</h1></body></html>`
	res, err = Run(h1Only, "https://example.com/article")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Title != "Only Heading" {
		t.Errorf("title = %q, want fallback to <h1>", res.Title)
	}
}

func TestReadTimeMinutesRounds(t *testing.T) {
	cases := []struct {
		words int
		want  float64
	}{
		{0, 0},
		{2, 0},
		{100, 1},
		{101, 1},
		{350, 2},
	}
	for _, c := range cases {
		if got := ReadTimeMinutes(c.words); got != c.want {
			t.Errorf("ReadTimeMinutes(%d) = %v, want %v", c.words, got, c.want)
		}
	}
}

func TestPostProcessDropsBoilerplateLines(t *testing.T) {
	in := "# Title\nReal content line.\n---\nAccept all cookies\nHome > Products > Widget\nAnother real line that stays."
	out := postProcess(in)
	for _, dropped := range []string{"---", "Accept all cookies", "Home > Products > Widget"} {
		if strings.Contains(out, dropped) {
			t.Errorf("expected %q to be dropped, got: %q", dropped, out)
		}
	}
	for _, kept := range []string{"Real content line.", "Another real line that stays."} {
		if !strings.Contains(out, kept) {
			t.Errorf("expected %q to survive, got: %q", kept, out)
		}
	}
}

func TestPostProcessSeparatesHeadings(t *testing.T) {
	in := "Intro text.\n# Section\nBody right after heading."
	out := postProcess(in)
	if !strings.Contains(out, "Intro text.\n\n# Section\n\nBody right after heading.") {
		t.Errorf("expected blank-line separation around heading, got: %q", out)
	}
}

func TestRunStripsBoilerplate(t *testing.T) {
	res, err := Run(sampleHTML, "https://example.com/article")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, stripped := range []string{"Home | About | Contact", "Site Header", "Copyright 2024"} {
		if strings.Contains(res.Markdown, stripped) {
			t.Errorf("expected %q to be stripped, got markdown: %q", stripped, res.Markdown)
		}
	}
	for _, kept := range []string{"first paragraph", "second paragraph"} {
		if !strings.Contains(res.Markdown, kept) {
			t.Errorf("expected %q to survive, got markdown: %q", kept, res.Markdown)
		}
	}
}
