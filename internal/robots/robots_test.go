package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestAllowedRespectsDisallow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	}))
	defer srv.Close()

	o := New(srv.Client(), "distill-bot")
	allowed, err := o.Allowed(context.Background(), srv.URL+"/private/page")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatal("expected /private to be disallowed")
	}

	allowed, err = o.Allowed(context.Background(), srv.URL+"/public")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatal("expected /public to be allowed")
	}
}

func TestAllowedFailsOpenOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	o := New(srv.Client(), "distill-bot")
	allowed, err := o.Allowed(context.Background(), srv.URL+"/anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatal("expected missing robots.txt to fail open")
	}
}

func TestAllowedFetchesHostOnlyOnce(t *testing.T) {
	var fetches int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&fetches, 1)
		w.Write([]byte("User-agent: *\nDisallow:\n"))
	}))
	defer srv.Close()

	o := New(srv.Client(), "distill-bot")
	for i := 0; i < 5; i++ {
		if _, err := o.Allowed(context.Background(), srv.URL+"/page"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := atomic.LoadInt64(&fetches); got != 1 {
		t.Fatalf("expected exactly 1 robots.txt fetch, got %d", got)
	}
}
