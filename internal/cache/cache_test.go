package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"distill/internal/model"
)

type memStore struct {
	mu    sync.Mutex
	pages map[string]*model.Page
}

func newMemStore() *memStore {
	return &memStore{pages: make(map[string]*model.Page)}
}

func (m *memStore) GetPage(_ context.Context, urlHash string) (*model.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pages[urlHash], nil
}

func (m *memStore) UpsertPage(_ context.Context, page *model.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *page
	m.pages[page.URLHash] = &cp
	return nil
}

func TestGetOrFetchMissThenDurableHit(t *testing.T) {
	store := newMemStore()
	c := New(nil, store, time.Minute, time.Hour)

	var calls int32
	fetch := func(_ context.Context) (*model.Page, error) {
		atomic.AddInt32(&calls, 1)
		return &model.Page{URLHash: "h1", URL: "https://example.com", FetchedAt: time.Now()}, nil
	}

	page, cached, layer, err := c.GetOrFetch(context.Background(), "h1", fetch, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.URLHash != "h1" {
		t.Fatalf("unexpected page: %+v", page)
	}
	if cached || layer != LayerNone {
		t.Fatalf("expected a miss on first call, got cached=%v layer=%s", cached, layer)
	}
	if calls != 1 {
		t.Fatalf("expected 1 fetch, got %d", calls)
	}

	// Durable tier now has the row (hot tier is nil since redis client is nil),
	// so a second call should read through without invoking fetch again.
	page2, cached2, layer2, err := c.GetOrFetch(context.Background(), "h1", fetch, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page2.URLHash != "h1" {
		t.Fatalf("unexpected page: %+v", page2)
	}
	if !cached2 || layer2 != LayerDB {
		t.Fatalf("expected a durable hit, got cached=%v layer=%s", cached2, layer2)
	}
	if calls != 1 {
		t.Fatalf("expected durable hit to avoid refetch, got %d calls", calls)
	}
}

func TestGetOrFetchForceRefreshBypassesBothTiers(t *testing.T) {
	store := newMemStore()
	c := New(nil, store, time.Minute, time.Hour)

	var calls int32
	fetch := func(_ context.Context) (*model.Page, error) {
		atomic.AddInt32(&calls, 1)
		return &model.Page{URLHash: "h4", URL: "https://example.com/4", FetchedAt: time.Now()}, nil
	}

	if _, _, _, err := c.GetOrFetch(context.Background(), "h4", fetch, Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 fetch, got %d", calls)
	}

	if _, cached, _, err := c.GetOrFetch(context.Background(), "h4", fetch, Options{ForceRefresh: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	} else if cached {
		t.Fatal("expected force_refresh to bypass the cache")
	}
	if calls != 2 {
		t.Fatalf("expected force_refresh to trigger a second fetch, got %d calls", calls)
	}
}

func TestGetOrFetchHashHitReusesExtractedFields(t *testing.T) {
	store := newMemStore()
	store.pages["h5"] = &model.Page{
		URLHash: "h5", URL: "https://example.com/5", ContentHash: "samehash",
		Markdown: "# Stored", Title: "Stored title", FetchedAt: time.Now(),
	}
	c := New(nil, store, time.Minute, time.Hour)

	fetch := func(_ context.Context) (*model.Page, error) {
		return &model.Page{
			URLHash: "h5", URL: "https://example.com/5", ContentHash: "samehash",
			Markdown: "# Freshly re-extracted but should be discarded", Title: "New title",
			StatusCode: 200, FetchedAt: time.Now(),
		}, nil
	}

	page, _, _, err := c.GetOrFetch(context.Background(), "h5", fetch, Options{ForceRefresh: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Markdown != "# Stored" || page.Title != "Stored title" {
		t.Fatalf("expected hash-matching fetch to reuse stored extracted fields, got %+v", page)
	}
	if page.StatusCode != 200 {
		t.Fatalf("expected fetch-specific fields to come from the new fetch, got status %d", page.StatusCode)
	}
}

func TestGetOrFetchCoalescesConcurrentCallers(t *testing.T) {
	store := newMemStore()
	c := New(nil, store, time.Minute, time.Hour)

	var calls int32
	release := make(chan struct{})
	fetch := func(_ context.Context) (*model.Page, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &model.Page{URLHash: "h2", URL: "https://example.com/2", FetchedAt: time.Now()}, nil
	}

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, _, _, err := c.GetOrFetch(context.Background(), "h2", fetch, Options{})
			errs[i] = err
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected singleflight to coalesce to 1 fetch, got %d", calls)
	}
}

func TestGetOrFetchStaleDurableRowIsRefetched(t *testing.T) {
	store := newMemStore()
	store.pages["h3"] = &model.Page{URLHash: "h3", URL: "https://example.com/3", FetchedAt: time.Now().Add(-2 * time.Hour)}
	c := New(nil, store, time.Minute, time.Hour)

	var calls int32
	fetch := func(_ context.Context) (*model.Page, error) {
		atomic.AddInt32(&calls, 1)
		return &model.Page{URLHash: "h3", URL: "https://example.com/3", FetchedAt: time.Now()}, nil
	}

	if _, _, _, err := c.GetOrFetch(context.Background(), "h3", fetch, Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected stale durable row to trigger refetch, got %d calls", calls)
	}
}
