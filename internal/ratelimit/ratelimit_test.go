package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLimiterAllowsWithoutRedis(t *testing.T) {
	l := New(nil, time.Minute, 5)
	for i := 0; i < 100; i++ {
		ok, err := l.Allow(context.Background(), "cred-1", 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Fatalf("expected nil-redis limiter to always allow")
		}
	}
}

func TestDomainThrottleBoundsConcurrency(t *testing.T) {
	th := NewDomainThrottle(2, 0)

	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := th.Acquire(context.Background(), "example.com")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if maxActive > 2 {
		t.Fatalf("expected max 2 concurrent, observed %d", maxActive)
	}
}

func TestDomainThrottleEnforcesPoliteness(t *testing.T) {
	th := NewDomainThrottle(5, 50*time.Millisecond)

	start := time.Now()
	release1, err := th.Acquire(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release1()

	release2, err := th.Acquire(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release2()
	elapsed := time.Since(start)

	if elapsed < 50*time.Millisecond {
		t.Fatalf("expected politeness delay of at least 50ms, got %v", elapsed)
	}
}

func TestDomainThrottleIndependentHosts(t *testing.T) {
	th := NewDomainThrottle(1, 0)

	release1, err := th.Acquire(context.Background(), "a.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release1()

	done := make(chan struct{})
	go func() {
		release2, err := th.Acquire(context.Background(), "b.com")
		if err != nil {
			t.Errorf("unexpected error: %v", err)
			return
		}
		release2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquiring a different host blocked on the first host's slot")
	}
}
