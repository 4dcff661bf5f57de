package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetReturnsBodyAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "test-agent"})
	res, err := f.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StatusCode != 200 {
		t.Fatalf("expected status 200, got %d", res.StatusCode)
	}
	if string(res.Body) != "hello" {
		t.Fatalf("unexpected body: %q", res.Body)
	}
}

func TestGetRetriesOn503(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "test-agent", BackoffBaseMs: 1, BackoffCapMs: 5})
	res, err := f.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts < 2 {
		t.Fatalf("expected at least 2 attempts, got %d", attempts)
	}
	if res.StatusCode != 200 {
		t.Fatalf("expected eventual 200, got %d", res.StatusCode)
	}
}
