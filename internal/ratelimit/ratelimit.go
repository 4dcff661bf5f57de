// Package ratelimit implements the credential-facing sliding-window
// request limiter and the per-host domain throttle (concurrency cap +
// politeness delay). Grounded on the teacher's redis.Client wiring for
// the sliding-window counters and generalized with golang.org/x/time/rate
// for the politeness delay, the same library the rest of the retrieval
// pack uses for outbound pacing.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"distill/internal/metrics"
)

// Limiter enforces a per-credential sliding-window request budget using
// a Redis sorted set keyed by credential ID: each call trims entries
// older than the window and counts the rest, and only an admitted call
// records "now" as a member.
type Limiter struct {
	redis  *redis.Client
	window time.Duration
	limit  int
}

// New builds a Limiter. limit is the max requests allowed in window
// (spec default: each credential's RateLimitPerMin over a 60s window).
func New(client *redis.Client, window time.Duration, limit int) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{redis: client, window: window, limit: limit}
}

// Allow reports whether credentialID may issue another request right
// now, given its own per-minute budget. A nil Redis client (e.g. in
// tests) always allows, so callers don't need to special-case it.
func (l *Limiter) Allow(ctx context.Context, credentialID string, limit int) (bool, error) {
	if l.redis == nil {
		return true, nil
	}
	if limit <= 0 {
		limit = l.limit
	}
	if limit <= 0 {
		return true, nil
	}

	key := "ratelimit:" + credentialID
	now := time.Now()
	windowStart := now.Add(-l.window)

	pipe := l.redis.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", windowStart.UnixNano()))
	count := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("ratelimit pipeline: %w", err)
	}

	if int(count.Val()) >= limit {
		metrics.RecordRateLimited()
		return false, nil
	}

	if err := l.redis.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()}).Err(); err != nil {
		return false, fmt.Errorf("ratelimit record: %w", err)
	}
	return true, nil
}

// DomainThrottle bounds per-host fetch concurrency and enforces a
// minimum delay between requests to the same host (politeness),
// independent of and in addition to robots.txt crawl-delay directives.
type DomainThrottle struct {
	maxConcurrent int
	minDelay      time.Duration

	mu       sync.Mutex
	sems     map[string]chan struct{}
	limiters map[string]*hostLimiter
}

// hostLimiter wraps a golang.org/x/time/rate.Limiter configured to
// allow one request per minDelay, giving the politeness wait the same
// token-bucket semantics the rest of the retrieval pack uses for
// outbound pacing instead of a hand-rolled timestamp check.
type hostLimiter struct {
	limiter *rate.Limiter
}

// NewDomainThrottle builds a throttle. maxConcurrent bounds simultaneous
// in-flight requests per host; minDelay is the minimum spacing between
// requests starting against the same host.
func NewDomainThrottle(maxConcurrent int, minDelay time.Duration) *DomainThrottle {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &DomainThrottle{
		maxConcurrent: maxConcurrent,
		minDelay:      minDelay,
		sems:          make(map[string]chan struct{}),
		limiters:      make(map[string]*hostLimiter),
	}
}

// Acquire blocks until a concurrency slot for host is free and the
// politeness delay since the last request to host has elapsed, or ctx
// is cancelled. The returned release func must be called to free the
// slot once the request completes.
func (d *DomainThrottle) Acquire(ctx context.Context, host string) (release func(), err error) {
	sem := d.semFor(host)

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		metrics.RecordDomainBusy()
		return nil, ctx.Err()
	default:
		metrics.RecordDomainBusy()
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := d.waitPoliteness(ctx, host); err != nil {
		<-sem
		return nil, err
	}

	return func() { <-sem }, nil
}

func (d *DomainThrottle) semFor(host string) chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	sem, ok := d.sems[host]
	if !ok {
		sem = make(chan struct{}, d.maxConcurrent)
		d.sems[host] = sem
	}
	return sem
}

func (d *DomainThrottle) limiterFor(host string) *hostLimiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	hl, ok := d.limiters[host]
	if !ok {
		hl = &hostLimiter{limiter: rate.NewLimiter(rate.Every(d.minDelay), 1)}
		d.limiters[host] = hl
	}
	return hl
}

// waitPoliteness blocks until the minimum delay since the last request
// to host has elapsed, via the host's rate.Limiter token bucket.
func (d *DomainThrottle) waitPoliteness(ctx context.Context, host string) error {
	if d.minDelay <= 0 {
		return nil
	}
	return d.limiterFor(host).limiter.Wait(ctx)
}
