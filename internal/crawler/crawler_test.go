package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"

	"distill/internal/fetch"
	"distill/internal/model"
)

type fakeJobStore struct {
	mu         sync.Mutex
	pages      []*model.JobPage
	progress   []int
	storedPage []*model.Page
}

func (f *fakeJobStore) AddJobPage(_ context.Context, jp *model.JobPage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *jp
	f.pages = append(f.pages, &cp)
	return nil
}

func (f *fakeJobStore) UpsertPage(_ context.Context, page *model.Page) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *page
	f.storedPage = append(f.storedPage, &cp)
	return nil
}

func (f *fakeJobStore) UpdateJobProgress(_ context.Context, _ uuid.UUID, discovered, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, discovered)
	return nil
}

func (f *fakeJobStore) pageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pages)
}

// newLinkedSite serves a small site: root links to /a and /b, /a links
// to /c (depth 2), /b and /c are leaves. All links stay on-host so the
// crawler's host confinement never trims the graph below what the test
// expects.
func newLinkedSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	page := func(title string, links ...string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			body := "<html><head><title>" + title + "</title></head><body>"
			for _, l := range links {
				body += fmt.Sprintf(`<a href="%s">link</a>`, l)
			}
			body += "</body></html>"
			w.Write([]byte(body))
		}
	}
	var srv *httptest.Server
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		page("root", srv.URL+"/a", srv.URL+"/b")(w, r)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		page("a", srv.URL+"/c")(w, r)
	})
	mux.HandleFunc("/b", page("b"))
	mux.HandleFunc("/c", page("c"))
	srv = httptest.NewServer(mux)
	return srv
}

func TestRunCrawlsWithinDepthAndPageBounds(t *testing.T) {
	srv := newLinkedSite(t)
	defer srv.Close()

	deps := Deps{Fetcher: fetch.New(fetch.Config{UserAgent: "test-agent"})}
	store := &fakeJobStore{}
	c := New(deps, store, nil)

	err := c.Run(context.Background(), Params{
		JobID:       uuid.New(),
		RootURL:     srv.URL + "/",
		MaxDepth:    2,
		MaxPages:    10,
		Concurrency: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := store.pageCount(); got != 4 {
		t.Fatalf("expected 4 pages (root, a, b, c), got %d", got)
	}
}

func TestRunStopsAtMaxDepth(t *testing.T) {
	srv := newLinkedSite(t)
	defer srv.Close()

	deps := Deps{Fetcher: fetch.New(fetch.Config{UserAgent: "test-agent"})}
	store := &fakeJobStore{}
	c := New(deps, store, nil)

	err := c.Run(context.Background(), Params{
		JobID:       uuid.New(),
		RootURL:     srv.URL + "/",
		MaxDepth:    1,
		MaxPages:    10,
		Concurrency: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// depth 0 (root) + depth 1 (a, b); c sits at depth 2 and is never queued.
	if got := store.pageCount(); got != 3 {
		t.Fatalf("expected 3 pages within max_depth=1, got %d", got)
	}
}

func TestRunStopsAtMaxPages(t *testing.T) {
	srv := newLinkedSite(t)
	defer srv.Close()

	deps := Deps{Fetcher: fetch.New(fetch.Config{UserAgent: "test-agent"})}
	store := &fakeJobStore{}
	c := New(deps, store, nil)

	err := c.Run(context.Background(), Params{
		JobID:       uuid.New(),
		RootURL:     srv.URL + "/",
		MaxDepth:    5,
		MaxPages:    2,
		Concurrency: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := store.pageCount(); got != 2 {
		t.Fatalf("expected exactly 2 pages with max_pages=2, got %d", got)
	}
}

func TestRunRootFetchFailureFailsJob(t *testing.T) {
	deps := Deps{Fetcher: fetch.New(fetch.Config{UserAgent: "test-agent"})}
	store := &fakeJobStore{}
	c := New(deps, store, nil)

	err := c.Run(context.Background(), Params{
		JobID:       uuid.New(),
		RootURL:     "http://127.0.0.1:1/unreachable",
		MaxDepth:    1,
		MaxPages:    10,
		Concurrency: 1,
	})
	if err == nil {
		t.Fatal("expected error when root url is unreachable")
	}
	if store.pageCount() != 0 {
		t.Fatalf("expected no pages recorded, got %d", store.pageCount())
	}
}

func TestMatchesPatterns(t *testing.T) {
	include, err := compilePatterns([]string{`/blog/.*`})
	if err != nil {
		t.Fatalf("compile include: %v", err)
	}
	exclude, err := compilePatterns([]string{`/blog/drafts/.*`})
	if err != nil {
		t.Fatalf("compile exclude: %v", err)
	}

	cases := []struct {
		url  string
		want bool
	}{
		{"https://example.com/blog/post-1", true},
		{"https://example.com/blog/drafts/post-2", false},
		{"https://example.com/about", false},
	}
	for _, tc := range cases {
		if got := matchesPatterns(tc.url, include, exclude); got != tc.want {
			t.Errorf("matchesPatterns(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}
