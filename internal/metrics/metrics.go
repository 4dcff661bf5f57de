package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics for HTTP requests.
// This is intentionally minimal and in-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)
	llmExtracts    = make(map[llmKey]int64)

	retentionJobsDeleted  = make(map[string]int64)
	retentionPagesDeleted int64

	searchRequestsTotal       = make(map[searchKey]int64)
	searchResultsTotal        = make(map[string]int64)
	searchScrapedResultsTotal = make(map[string]int64)

	extractJobsTotal         = make(map[extractJobKey]int64)
	extractResultsTotal      = make(map[extractResultKey]int64)
	extractFailureCodesTotal = make(map[extractFailureCodeKey]int64)

	renderEscalationsTotal     = make(map[string]int64)
	cacheHotHitsTotal          int64
	cacheDurableHitsTotal      int64
	cacheMissesTotal           int64
	hashHitsTotal              int64
	singleflightCoalescedTotal int64
	rateLimitedTotal           int64
	domainBusyTotal            int64
	jobsCompletedTotal         = make(map[string]int64)
	jobsFailedTotal            = make(map[string]int64)

	fetchTotal         = make(map[fetchKey]int64)
	fetchDurationsMs   = make(map[string][]int64)
	robotsBlockedTotal int64
	ssrfBlockedTotal   int64
	jobsTotal          = make(map[jobKey]int64)
	activeJobs         = make(map[string]int64)
)

// fetchDurationWindow caps the number of recent per-renderer fetch
// durations kept for the p50/p95/p99 export, approximating the spec's
// 5-minute rolling window without a full decaying histogram.
const fetchDurationWindow = 500

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type llmKey struct {
	Provider string
	Model    string
	Success  string
}

type searchKey struct {
	Provider string
	Scrape   string
}

type extractJobKey struct {
	Provider string
	Model    string
	Status   string
}

type extractResultKey struct {
	Provider string
	Outcome  string
}

type extractFailureCodeKey struct {
	Provider string
	Code     string
}

type fetchKey struct {
	Renderer   string
	StatusCode int
}

type jobKey struct {
	Type   string
	Status string
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordLLMExtract increments LLM extract counters.
func RecordLLMExtract(provider, model string, success bool) {
	mu.Lock()
	defer mu.Unlock()

	s := "false"
	if success {
		s = "true"
	}
	key := llmKey{Provider: provider, Model: model, Success: s}
	llmExtracts[key]++
}

// RecordRetentionJobs increments the counter of jobs deleted by TTL for
// a given job type.
func RecordRetentionJobs(jobType string, deleted int64) {
	if deleted <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	retentionJobsDeleted[jobType] += deleted
}

// RecordRetentionPages increments the counter of documents deleted
// by TTL cleanup.
func RecordRetentionPages(deleted int64) {
	if deleted <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	retentionPagesDeleted += deleted
}

// RecordSearch records basic metrics for search requests, including
// whether scraping was requested and how many results/documents were
// returned.
func RecordSearch(provider string, withScrape bool, results int, scraped int) {
	mu.Lock()
	defer mu.Unlock()

	scrapeFlag := "false"
	if withScrape {
		scrapeFlag = "true"
	}

	key := searchKey{Provider: provider, Scrape: scrapeFlag}
	searchRequestsTotal[key]++

	if results > 0 {
		searchResultsTotal[provider] += int64(results)
	}
	if scraped > 0 {
		searchScrapedResultsTotal[provider] += int64(scraped)
	}
}

// RecordExtractJob increments counters for extract jobs keyed by
// provider, model, and status (e.g., completed/failed).
func RecordExtractJob(provider, model, status string) {
	mu.Lock()
	defer mu.Unlock()

	key := extractJobKey{Provider: provider, Model: model, Status: status}
	extractJobsTotal[key]++
}

// RecordExtractResults increments counters for extracted results by
// provider and outcome (success or failed).
func RecordExtractResults(provider string, success, failed int) {
	if success <= 0 && failed <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()

	if success > 0 {
		key := extractResultKey{Provider: provider, Outcome: "success"}
		extractResultsTotal[key] += int64(success)
	}
	if failed > 0 {
		key := extractResultKey{Provider: provider, Outcome: "failed"}
		extractResultsTotal[key] += int64(failed)
	}
}

// RecordExtractFailureCode increments counters for extract failures by
// provider and error code.
func RecordExtractFailureCode(provider, code string, count int) {
	if count <= 0 || code == "" {
		return
	}
	mu.Lock()
	defer mu.Unlock()

	key := extractFailureCodeKey{Provider: provider, Code: code}
	extractFailureCodesTotal[key] += int64(count)
}

// RecordRenderEscalation increments the counter of plain-HTTP fetches
// that were escalated to the browser fetcher, keyed by reason
// (low_word_count, spa_marker, always_host).
func RecordRenderEscalation(reason string) {
	mu.Lock()
	defer mu.Unlock()
	renderEscalationsTotal[reason]++
}

// RecordCacheHotHit increments the hot-tier (Redis) cache hit counter.
func RecordCacheHotHit() {
	mu.Lock()
	defer mu.Unlock()
	cacheHotHitsTotal++
}

// RecordCacheDurableHit increments the durable-tier (Page store) cache
// hit counter, recorded when the hot tier missed but the durable store
// had a fresh-enough row.
func RecordCacheDurableHit() {
	mu.Lock()
	defer mu.Unlock()
	cacheDurableHitsTotal++
}

// RecordCacheMiss increments the counter of requests that required a
// real fetch because neither cache tier had a fresh entry.
func RecordCacheMiss() {
	mu.Lock()
	defer mu.Unlock()
	cacheMissesTotal++
}

// RecordHashHit increments the counter of fetches whose content hash
// matched the previously stored page, so the extracted fields were
// reused instead of re-derived from the freshly fetched bytes.
func RecordHashHit() {
	mu.Lock()
	defer mu.Unlock()
	hashHitsTotal++
}

// RecordSingleflightCoalesced increments the counter of requests that
// were served by a fetch already in flight for the same url_hash
// instead of starting a duplicate fetch.
func RecordSingleflightCoalesced() {
	mu.Lock()
	defer mu.Unlock()
	singleflightCoalescedTotal++
}

// RecordRateLimited increments the counter of requests rejected by the
// per-credential sliding-window rate limiter.
func RecordRateLimited() {
	mu.Lock()
	defer mu.Unlock()
	rateLimitedTotal++
}

// RecordDomainBusy increments the counter of fetches rejected because
// a host's concurrency semaphore was saturated.
func RecordDomainBusy() {
	mu.Lock()
	defer mu.Unlock()
	domainBusyTotal++
}

// RecordJobCompleted increments the completed-jobs counter for a job type.
func RecordJobCompleted(jobType string) {
	mu.Lock()
	defer mu.Unlock()
	jobsCompletedTotal[jobType]++
	jobsTotal[jobKey{Type: jobType, Status: "completed"}]++
}

// RecordJobFailed increments the failed-jobs counter for a job type.
func RecordJobFailed(jobType string) {
	mu.Lock()
	defer mu.Unlock()
	jobsFailedTotal[jobType]++
	jobsTotal[jobKey{Type: jobType, Status: "failed"}]++
}

// RecordJobQueued increments jobs_total{type,status=queued}. jobs.Submit
// calls it only after creating a new job; a submission that matches an
// existing idempotency key is not counted.
func RecordJobQueued(jobType string) {
	mu.Lock()
	defer mu.Unlock()
	jobsTotal[jobKey{Type: jobType, Status: "queued"}]++
}

// RecordJobRunning increments jobs_total{type,status=running} and the
// active_jobs{type} gauge when the runner claims a job off the queue.
func RecordJobRunning(jobType string) {
	mu.Lock()
	defer mu.Unlock()
	jobsTotal[jobKey{Type: jobType, Status: "running"}]++
	activeJobs[jobType]++
}

// RecordJobFinished decrements the active_jobs{type} gauge once a
// running job reaches any terminal state (completed/failed/cancelled).
func RecordJobFinished(jobType string) {
	mu.Lock()
	defer mu.Unlock()
	if activeJobs[jobType] > 0 {
		activeJobs[jobType]--
	}
}

// RecordFetch increments fetch_total{renderer,status_code} and feeds
// the fetch-duration distribution used to export p50/p95/p99.
func RecordFetch(renderer string, statusCode int, durationMs int64) {
	mu.Lock()
	defer mu.Unlock()
	fetchTotal[fetchKey{Renderer: renderer, StatusCode: statusCode}]++

	samples := append(fetchDurationsMs[renderer], durationMs)
	if len(samples) > fetchDurationWindow {
		samples = samples[len(samples)-fetchDurationWindow:]
	}
	fetchDurationsMs[renderer] = samples
}

// RecordRobotsBlocked increments robots_blocked_total, emitted whenever
// a fetch is denied by robots.txt.
func RecordRobotsBlocked() {
	mu.Lock()
	defer mu.Unlock()
	robotsBlockedTotal++
}

// RecordSSRFBlocked increments ssrf_blocked_total, emitted whenever the
// SSRF guard rejects a target URL (scheme, literal IP, or DNS
// resolution to a blocked range).
func RecordSSRFBlocked() {
	mu.Lock()
	defer mu.Unlock()
	ssrfBlockedTotal++
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP distill_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE distill_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		v := requestsTotal[k]
		fmt.Fprintf(&b, "distill_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, v)
	}

	b.WriteString("# HELP distill_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE distill_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP distill_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE distill_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		sum := latencyMsSum[k]
		cnt := latencyMsCount[k]
		fmt.Fprintf(&b, "distill_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, sum)
		fmt.Fprintf(&b, "distill_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, cnt)
	}

	// LLM extract metrics
	b.WriteString("# HELP distill_llm_extract_requests_total Total LLM extract requests\n")
	b.WriteString("# TYPE distill_llm_extract_requests_total counter\n")

	var llmKeys []llmKey
	for k := range llmExtracts {
		llmKeys = append(llmKeys, k)
	}
	sort.Slice(llmKeys, func(i, j int) bool {
		if llmKeys[i].Provider != llmKeys[j].Provider {
			return llmKeys[i].Provider < llmKeys[j].Provider
		}
		if llmKeys[i].Model != llmKeys[j].Model {
			return llmKeys[i].Model < llmKeys[j].Model
		}
		return llmKeys[i].Success < llmKeys[j].Success
	})

	for _, k := range llmKeys {
		v := llmExtracts[k]
		fmt.Fprintf(&b, "distill_llm_extract_requests_total{provider=\"%s\",model=\"%s\",success=\"%s\"} %d\n",
			k.Provider, k.Model, k.Success, v)
	}

	// Search metrics
	b.WriteString("# HELP distill_search_requests_total Total search requests by provider and scrape mode\n")
	b.WriteString("# TYPE distill_search_requests_total counter\n")

	var searchKeys []searchKey
	for k := range searchRequestsTotal {
		searchKeys = append(searchKeys, k)
	}
	sort.Slice(searchKeys, func(i, j int) bool {
		if searchKeys[i].Provider != searchKeys[j].Provider {
			return searchKeys[i].Provider < searchKeys[j].Provider
		}
		return searchKeys[i].Scrape < searchKeys[j].Scrape
	})

	for _, k := range searchKeys {
		v := searchRequestsTotal[k]
		fmt.Fprintf(&b, "distill_search_requests_total{provider=\"%s\",scrape=\"%s\"} %d\n",
			k.Provider, k.Scrape, v)
	}

	b.WriteString("# HELP distill_search_results_total Total search results returned by provider\n")
	b.WriteString("# TYPE distill_search_results_total counter\n")

	var searchProviders []string
	for p := range searchResultsTotal {
		searchProviders = append(searchProviders, p)
	}
	sort.Strings(searchProviders)
	for _, p := range searchProviders {
		v := searchResultsTotal[p]
		fmt.Fprintf(&b, "distill_search_results_total{provider=\"%s\"} %d\n", p, v)
	}

	b.WriteString("# HELP distill_search_scraped_results_total Total search results with scraped documents\n")
	b.WriteString("# TYPE distill_search_scraped_results_total counter\n")

	var scrapedProviders []string
	for p := range searchScrapedResultsTotal {
		scrapedProviders = append(scrapedProviders, p)
	}
	sort.Strings(scrapedProviders)
	for _, p := range scrapedProviders {
		v := searchScrapedResultsTotal[p]
		fmt.Fprintf(&b, "distill_search_scraped_results_total{provider=\"%s\"} %d\n", p, v)
	}

	// Extract metrics
	b.WriteString("# HELP distill_extract_jobs_total Total extract jobs by provider, model, and status\n")
	b.WriteString("# TYPE distill_extract_jobs_total counter\n")

	var extractJobKeys []extractJobKey
	for k := range extractJobsTotal {
		extractJobKeys = append(extractJobKeys, k)
	}
	sort.Slice(extractJobKeys, func(i, j int) bool {
		if extractJobKeys[i].Provider != extractJobKeys[j].Provider {
			return extractJobKeys[i].Provider < extractJobKeys[j].Provider
		}
		if extractJobKeys[i].Model != extractJobKeys[j].Model {
			return extractJobKeys[i].Model < extractJobKeys[j].Model
		}
		return extractJobKeys[i].Status < extractJobKeys[j].Status
	})

	for _, k := range extractJobKeys {
		v := extractJobsTotal[k]
		fmt.Fprintf(&b, "distill_extract_jobs_total{provider=\"%s\",model=\"%s\",status=\"%s\"} %d\n",
			k.Provider, k.Model, k.Status, v)
	}

	b.WriteString("# HELP distill_extract_results_total Total extract results by provider and outcome\n")
	b.WriteString("# TYPE distill_extract_results_total counter\n")

	var extractResultKeys []extractResultKey
	for k := range extractResultsTotal {
		extractResultKeys = append(extractResultKeys, k)
	}
	sort.Slice(extractResultKeys, func(i, j int) bool {
		if extractResultKeys[i].Provider != extractResultKeys[j].Provider {
			return extractResultKeys[i].Provider < extractResultKeys[j].Provider
		}
		return extractResultKeys[i].Outcome < extractResultKeys[j].Outcome
	})

	for _, k := range extractResultKeys {
		v := extractResultsTotal[k]
		fmt.Fprintf(&b, "distill_extract_results_total{provider=\"%s\",outcome=\"%s\"} %d\n",
			k.Provider, k.Outcome, v)
	}

	b.WriteString("# HELP distill_extract_failures_by_code_total Total extract failures by provider and error code\n")
	b.WriteString("# TYPE distill_extract_failures_by_code_total counter\n")

	var extractFailureCodeKeys []extractFailureCodeKey
	for k := range extractFailureCodesTotal {
		extractFailureCodeKeys = append(extractFailureCodeKeys, k)
	}
	sort.Slice(extractFailureCodeKeys, func(i, j int) bool {
		if extractFailureCodeKeys[i].Provider != extractFailureCodeKeys[j].Provider {
			return extractFailureCodeKeys[i].Provider < extractFailureCodeKeys[j].Provider
		}
		return extractFailureCodeKeys[i].Code < extractFailureCodeKeys[j].Code
	})

	for _, k := range extractFailureCodeKeys {
		v := extractFailureCodesTotal[k]
		fmt.Fprintf(&b, "distill_extract_failures_by_code_total{provider=\"%s\",code=\"%s\"} %d\n",
			k.Provider, k.Code, v)
	}

	// Retention metrics
	b.WriteString("# HELP distill_retention_jobs_deleted_total Total jobs deleted by TTL\n")
	b.WriteString("# TYPE distill_retention_jobs_deleted_total counter\n")

	// Sort job types for stable output
	var jobTypes []string
	for t := range retentionJobsDeleted {
		jobTypes = append(jobTypes, t)
	}
	sort.Strings(jobTypes)
	for _, t := range jobTypes {
		v := retentionJobsDeleted[t]
		fmt.Fprintf(&b, "distill_retention_jobs_deleted_total{job_type=\"%s\"} %d\n", t, v)
	}

	b.WriteString("# HELP distill_retention_pages_deleted_total Total pages deleted by TTL\n")
	b.WriteString("# TYPE distill_retention_pages_deleted_total counter\n")
	fmt.Fprintf(&b, "distill_retention_pages_deleted_total %d\n", retentionPagesDeleted)

	b.WriteString("# HELP distill_playwright_fallback_total Total plain-HTTP fetches escalated to the browser renderer\n")
	b.WriteString("# TYPE distill_playwright_fallback_total counter\n")
	var reasons []string
	for r := range renderEscalationsTotal {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(&b, "distill_playwright_fallback_total{reason=\"%s\"} %d\n", r, renderEscalationsTotal[r])
	}

	b.WriteString("# HELP distill_cache_hot_hits_total Hot-tier cache hits\n")
	b.WriteString("# TYPE distill_cache_hot_hits_total counter\n")
	fmt.Fprintf(&b, "distill_cache_hot_hits_total %d\n", cacheHotHitsTotal)

	b.WriteString("# HELP distill_cache_durable_hits_total Durable-tier cache hits\n")
	b.WriteString("# TYPE distill_cache_durable_hits_total counter\n")
	fmt.Fprintf(&b, "distill_cache_durable_hits_total %d\n", cacheDurableHitsTotal)

	b.WriteString("# HELP distill_cache_hits_total Cache hits by tier (redis or db)\n")
	b.WriteString("# TYPE distill_cache_hits_total counter\n")
	fmt.Fprintf(&b, "distill_cache_hits_total{layer=\"redis\"} %d\n", cacheHotHitsTotal)
	fmt.Fprintf(&b, "distill_cache_hits_total{layer=\"db\"} %d\n", cacheDurableHitsTotal)

	b.WriteString("# HELP distill_cache_misses_total Cache misses requiring a real fetch\n")
	b.WriteString("# TYPE distill_cache_misses_total counter\n")
	fmt.Fprintf(&b, "distill_cache_misses_total %d\n", cacheMissesTotal)

	b.WriteString("# HELP distill_hash_hits_total Fetches whose content hash matched the stored page\n")
	b.WriteString("# TYPE distill_hash_hits_total counter\n")
	fmt.Fprintf(&b, "distill_hash_hits_total %d\n", hashHitsTotal)

	b.WriteString("# HELP distill_singleflight_coalesced_total Requests served by an in-flight fetch\n")
	b.WriteString("# TYPE distill_singleflight_coalesced_total counter\n")
	fmt.Fprintf(&b, "distill_singleflight_coalesced_total %d\n", singleflightCoalescedTotal)

	b.WriteString("# HELP distill_rate_limit_total Requests rejected by the per-credential rate limiter\n")
	b.WriteString("# TYPE distill_rate_limit_total counter\n")
	fmt.Fprintf(&b, "distill_rate_limit_total %d\n", rateLimitedTotal)

	b.WriteString("# HELP distill_domain_busy_total Fetches rejected by the per-host concurrency throttle\n")
	b.WriteString("# TYPE distill_domain_busy_total counter\n")
	fmt.Fprintf(&b, "distill_domain_busy_total %d\n", domainBusyTotal)

	b.WriteString("# HELP distill_robots_blocked_total Fetches denied by robots.txt\n")
	b.WriteString("# TYPE distill_robots_blocked_total counter\n")
	fmt.Fprintf(&b, "distill_robots_blocked_total %d\n", robotsBlockedTotal)

	b.WriteString("# HELP distill_ssrf_blocked_total Targets rejected by the SSRF guard\n")
	b.WriteString("# TYPE distill_ssrf_blocked_total counter\n")
	fmt.Fprintf(&b, "distill_ssrf_blocked_total %d\n", ssrfBlockedTotal)

	b.WriteString("# HELP distill_fetch_total Fetches by renderer and status code\n")
	b.WriteString("# TYPE distill_fetch_total counter\n")
	var fetchKeys []fetchKey
	for k := range fetchTotal {
		fetchKeys = append(fetchKeys, k)
	}
	sort.Slice(fetchKeys, func(i, j int) bool {
		if fetchKeys[i].Renderer != fetchKeys[j].Renderer {
			return fetchKeys[i].Renderer < fetchKeys[j].Renderer
		}
		return fetchKeys[i].StatusCode < fetchKeys[j].StatusCode
	})
	for _, k := range fetchKeys {
		fmt.Fprintf(&b, "distill_fetch_total{renderer=\"%s\",status_code=\"%d\"} %d\n",
			k.Renderer, k.StatusCode, fetchTotal[k])
	}

	b.WriteString("# HELP distill_fetch_duration_ms Fetch duration percentiles over the most recent samples, by renderer\n")
	b.WriteString("# TYPE distill_fetch_duration_ms summary\n")
	var renderers []string
	for r := range fetchDurationsMs {
		renderers = append(renderers, r)
	}
	sort.Strings(renderers)
	for _, r := range renderers {
		p50, p95, p99 := percentiles(fetchDurationsMs[r])
		fmt.Fprintf(&b, "distill_fetch_duration_ms{renderer=\"%s\",quantile=\"0.5\"} %d\n", r, p50)
		fmt.Fprintf(&b, "distill_fetch_duration_ms{renderer=\"%s\",quantile=\"0.95\"} %d\n", r, p95)
		fmt.Fprintf(&b, "distill_fetch_duration_ms{renderer=\"%s\",quantile=\"0.99\"} %d\n", r, p99)
	}

	b.WriteString("# HELP distill_jobs_completed_total Completed jobs by type\n")
	b.WriteString("# TYPE distill_jobs_completed_total counter\n")
	var completedTypes []string
	for t := range jobsCompletedTotal {
		completedTypes = append(completedTypes, t)
	}
	sort.Strings(completedTypes)
	for _, t := range completedTypes {
		fmt.Fprintf(&b, "distill_jobs_completed_total{job_type=\"%s\"} %d\n", t, jobsCompletedTotal[t])
	}

	b.WriteString("# HELP distill_jobs_failed_total Failed jobs by type\n")
	b.WriteString("# TYPE distill_jobs_failed_total counter\n")
	var failedTypes []string
	for t := range jobsFailedTotal {
		failedTypes = append(failedTypes, t)
	}
	sort.Strings(failedTypes)
	for _, t := range failedTypes {
		fmt.Fprintf(&b, "distill_jobs_failed_total{job_type=\"%s\"} %d\n", t, jobsFailedTotal[t])
	}

	b.WriteString("# HELP distill_jobs_total Jobs by type and lifecycle status\n")
	b.WriteString("# TYPE distill_jobs_total counter\n")
	var jobKeys []jobKey
	for k := range jobsTotal {
		jobKeys = append(jobKeys, k)
	}
	sort.Slice(jobKeys, func(i, j int) bool {
		if jobKeys[i].Type != jobKeys[j].Type {
			return jobKeys[i].Type < jobKeys[j].Type
		}
		return jobKeys[i].Status < jobKeys[j].Status
	})
	for _, k := range jobKeys {
		fmt.Fprintf(&b, "distill_jobs_total{type=\"%s\",status=\"%s\"} %d\n", k.Type, k.Status, jobsTotal[k])
	}

	b.WriteString("# HELP distill_active_jobs Jobs currently running, by type\n")
	b.WriteString("# TYPE distill_active_jobs gauge\n")
	var activeTypes []string
	for t := range activeJobs {
		activeTypes = append(activeTypes, t)
	}
	sort.Strings(activeTypes)
	for _, t := range activeTypes {
		fmt.Fprintf(&b, "distill_active_jobs{type=\"%s\"} %d\n", t, activeJobs[t])
	}

	return b.String()
}

// percentiles returns the p50/p95/p99 of samples from a sorted copy,
// taking for quantile q the element at index floor(q*(n-1)); samples
// is the renderer's most recent fetch durations,
// already bounded to fetchDurationWindow.
func percentiles(samples []int64) (p50, p95, p99 int64) {
	if len(samples) == 0 {
		return 0, 0, 0
	}
	sorted := append([]int64(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	rank := func(q float64) int64 {
		idx := int(q * float64(len(sorted)-1))
		return sorted[idx]
	}
	return rank(0.50), rank(0.95), rank(0.99)
}
