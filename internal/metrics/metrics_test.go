package metrics

import (
	"strings"
	"testing"
)

func TestRecordRequestAndExport(t *testing.T) {
	// Record a single request and ensure it appears in the export.
	RecordRequest("GET", "/v1/scrape", 200, 42)

	out := Export()
	if !strings.Contains(out, "distill_http_requests_total{method=\"GET\",path=\"/v1/scrape\",status=\"200\"}") {
		t.Fatalf("expected HTTP request metric for GET /v1/scrape in export, got:\n%s", out)
	}
	if !strings.Contains(out, "distill_http_request_duration_ms_sum") || !strings.Contains(out, "distill_http_request_duration_ms_count") {
		t.Fatalf("expected latency metrics headers in export, got:\n%s", out)
	}
}

func TestRecordSearchMetrics(t *testing.T) {
	RecordSearch("searxng", false, 3, 0)
	RecordSearch("searxng", true, 2, 1)

	out := Export()
	if !strings.Contains(out, "distill_search_requests_total{provider=\"searxng\",scrape=\"false\"}") {
		t.Fatalf("expected search_requests_total without scrape, got:\n%s", out)
	}
	if !strings.Contains(out, "distill_search_requests_total{provider=\"searxng\",scrape=\"true\"}") {
		t.Fatalf("expected search_requests_total with scrape, got:\n%s", out)
	}
	if !strings.Contains(out, "distill_search_results_total{provider=\"searxng\"}") {
		t.Fatalf("expected search_results_total for searxng, got:\n%s", out)
	}
	if !strings.Contains(out, "distill_search_scraped_results_total{provider=\"searxng\"}") {
		t.Fatalf("expected search_scraped_results_total for searxng, got:\n%s", out)
	}
}

func TestRecordExtractMetrics(t *testing.T) {
	RecordExtractJob("openai", "gpt-test", "completed")
	RecordExtractResults("openai", 2, 1)
	RecordExtractFailureCode("openai", "EXTRACT_FAILED", 1)

	out := Export()
	if !strings.Contains(out, "distill_extract_jobs_total{provider=\"openai\",model=\"gpt-test\",status=\"completed\"}") {
		t.Fatalf("expected extract_jobs_total for openai/gpt-test, got:\n%s", out)
	}
	if !strings.Contains(out, "distill_extract_results_total{provider=\"openai\",outcome=\"success\"}") {
		t.Fatalf("expected extract_results_total success for openai, got:\n%s", out)
	}
	if !strings.Contains(out, "distill_extract_results_total{provider=\"openai\",outcome=\"failed\"}") {
		t.Fatalf("expected extract_results_total failed for openai, got:\n%s", out)
	}
	if !strings.Contains(out, "distill_extract_failures_by_code_total{provider=\"openai\",code=\"EXTRACT_FAILED\"}") {
		t.Fatalf("expected extract_failures_by_code_total for openai/EXTRACT_FAILED, got:\n%s", out)
	}
}

func TestRecordFetchAndGuardMetrics(t *testing.T) {
	RecordFetch("http", 200, 120)
	RecordFetch("http", 200, 80)
	RecordRobotsBlocked()
	RecordSSRFBlocked()

	out := Export()
	if !strings.Contains(out, "distill_fetch_total{renderer=\"http\",status_code=\"200\"} 2") {
		t.Fatalf("expected fetch_total for http/200, got:\n%s", out)
	}
	if !strings.Contains(out, "distill_fetch_duration_ms{renderer=\"http\",quantile=\"0.5\"}") {
		t.Fatalf("expected fetch duration percentile for http, got:\n%s", out)
	}
	if !strings.Contains(out, "distill_robots_blocked_total 1") {
		t.Fatalf("expected robots_blocked_total, got:\n%s", out)
	}
	if !strings.Contains(out, "distill_ssrf_blocked_total 1") {
		t.Fatalf("expected ssrf_blocked_total, got:\n%s", out)
	}
}

func TestJobLifecycleMetrics(t *testing.T) {
	RecordJobQueued("map")
	RecordJobRunning("map")
	RecordJobCompleted("map")
	RecordJobFinished("map")

	out := Export()
	if !strings.Contains(out, `distill_jobs_total{type="map",status="queued"}`) {
		t.Fatalf("expected jobs_total queued for map, got:\n%s", out)
	}
	if !strings.Contains(out, `distill_jobs_total{type="map",status="running"}`) {
		t.Fatalf("expected jobs_total running for map, got:\n%s", out)
	}
	if !strings.Contains(out, `distill_jobs_total{type="map",status="completed"}`) {
		t.Fatalf("expected jobs_total completed for map, got:\n%s", out)
	}
	if !strings.Contains(out, `distill_active_jobs{type="map"} 0`) {
		t.Fatalf("expected active_jobs gauge back at 0 for map, got:\n%s", out)
	}
}
