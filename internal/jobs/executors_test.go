package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"

	"distill/internal/crawler"
	"distill/internal/fetch"
	"distill/internal/llm"
	"distill/internal/model"
)

// executorFakeStore extends the package's fakeStore (defined in
// submit_test.go) with the progress/page/extraction methods
// ExecutorStore needs but JobStore does not.
type executorFakeStore struct {
	*fakeStore
	mu          sync.Mutex
	jobPages    []*model.JobPage
	storedPages []*model.Page
	progress    map[uuid.UUID][2]int
	extractions []*model.Extraction
}

func newExecutorFakeStore() *executorFakeStore {
	return &executorFakeStore{fakeStore: newFakeStore(), progress: make(map[uuid.UUID][2]int)}
}

func (f *executorFakeStore) AddJobPage(_ context.Context, jp *model.JobPage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *jp
	f.jobPages = append(f.jobPages, &cp)
	return nil
}

func (f *executorFakeStore) UpsertPage(_ context.Context, page *model.Page) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *page
	f.storedPages = append(f.storedPages, &cp)
	return nil
}

func (f *executorFakeStore) UpdateJobProgress(_ context.Context, id uuid.UUID, discovered, total int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress[id] = [2]int{discovered, total}
	return nil
}

func (f *executorFakeStore) CreateExtraction(_ context.Context, e *model.Extraction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	f.extractions = append(f.extractions, &cp)
	return nil
}

func TestMapExecutorCompletesJobOnSuccessfulCrawl(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>root</title></head><body>no links here</body></html>`))
	}))
	defer srv.Close()

	st := newExecutorFakeStore()
	exec := &MapExecutor{Deps: crawler.Deps{Fetcher: fetch.New(fetch.Config{UserAgent: "test-agent"})}, Store: st}

	params, _ := json.Marshal(MapParams{URL: srv.URL + "/", MaxDepth: 1, MaxPages: 5, Concurrency: 1})
	job := &model.Job{ID: uuid.New(), Type: model.JobTypeMap, InputParams: params}
	st.jobs[job.ID] = job

	exec.Execute(context.Background(), job)

	if got := st.jobs[job.ID]; got.Status != model.JobStatusCompleted {
		t.Fatalf("expected job completed, got %v", got.Status)
	}
	if len(st.jobPages) != 1 {
		t.Fatalf("expected 1 job page recorded, got %d", len(st.jobPages))
	}
}

func TestMapExecutorFailsJobOnInvalidRootURL(t *testing.T) {
	st := newExecutorFakeStore()
	exec := &MapExecutor{Deps: crawler.Deps{Fetcher: fetch.New(fetch.Config{UserAgent: "test-agent"})}, Store: st}

	params, _ := json.Marshal(MapParams{URL: "not-a-url", MaxDepth: 1, MaxPages: 5, Concurrency: 1})
	job := &model.Job{ID: uuid.New(), Type: model.JobTypeMap, InputParams: params}
	st.jobs[job.ID] = job

	exec.Execute(context.Background(), job)

	if _, failed := st.failures[job.ID]; !failed {
		t.Fatal("expected job to be marked failed for an invalid root url")
	}
}

type fakeLLMClient struct {
	fields map[string]any
	err    error
}

func (c *fakeLLMClient) ExtractFields(_ context.Context, _ llm.ExtractRequest) (llm.ExtractResult, error) {
	if c.err != nil {
		return llm.ExtractResult{}, c.err
	}
	return llm.ExtractResult{Fields: c.fields}, nil
}

func TestAgentExtractExecutorWritesExtractionPerPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>doc</title></head><body><p>some article content words here</p></body></html>`))
	}))
	defer srv.Close()

	st := newExecutorFakeStore()
	client := &fakeLLMClient{fields: map[string]any{"price": "9.99"}}
	exec := &AgentExtractExecutor{
		Deps:  crawler.Deps{Fetcher: fetch.New(fetch.Config{UserAgent: "test-agent"})},
		Store: st,
		ClientSource: func(provider, model string) (llm.Client, llm.Provider, string, error) {
			return client, llm.ProviderOpenAI, "gpt-4o-mini", nil
		},
	}

	params, _ := json.Marshal(AgentExtractParams{
		URLs:   []string{srv.URL + "/"},
		Schema: []FieldParam{{Name: "price", Type: "string"}},
	})
	job := &model.Job{ID: uuid.New(), Type: model.JobTypeAgentExtract, InputParams: params}
	st.jobs[job.ID] = job

	exec.Execute(context.Background(), job)

	if job := st.jobs[job.ID]; job.Status != model.JobStatusCompleted {
		t.Fatalf("expected job completed, got %v", job.Status)
	}
	if len(st.extractions) != 1 {
		t.Fatalf("expected 1 extraction, got %d", len(st.extractions))
	}
}

func TestAgentExtractExecutorFailsJobWhenEveryPageFails(t *testing.T) {
	st := newExecutorFakeStore()
	client := &fakeLLMClient{err: context.DeadlineExceeded}
	exec := &AgentExtractExecutor{
		Deps:  crawler.Deps{Fetcher: fetch.New(fetch.Config{UserAgent: "test-agent"})},
		Store: st,
		ClientSource: func(provider, model string) (llm.Client, llm.Provider, string, error) {
			return client, llm.ProviderOpenAI, "gpt-4o-mini", nil
		},
	}

	params, _ := json.Marshal(AgentExtractParams{URLs: []string{"http://127.0.0.1:1/unreachable"}})
	job := &model.Job{ID: uuid.New(), Type: model.JobTypeAgentExtract, InputParams: params}
	st.jobs[job.ID] = job

	exec.Execute(context.Background(), job)

	if _, failed := st.failures[job.ID]; !failed {
		t.Fatal("expected job to be marked failed when every page fails")
	}
}
