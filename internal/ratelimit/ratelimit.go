// Package ratelimit spaces out requests to the same host so feed polling
// stays polite even when several configured feeds share a publisher.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/critiquewire/critiquewire/internal/model"
)

// HostRateLimiter enforces a minimum delay between requests to the same host.
type HostRateLimiter struct {
	mu       sync.Mutex
	lastCall map[string]time.Time // key: host
	minDelay time.Duration
}

// NewHostRateLimiter creates a rate limiter that enforces minDelay between
// consecutive requests to the same host.
func NewHostRateLimiter(minDelay time.Duration) *HostRateLimiter {
	return &HostRateLimiter{
		lastCall: make(map[string]time.Time),
		minDelay: minDelay,
	}
}

// Wait blocks until enough time has passed since the last request to host.
// Returns an error if the context is cancelled while waiting.
func (r *HostRateLimiter) Wait(ctx context.Context, host string) error {
	r.mu.Lock()
	last, ok := r.lastCall[host]
	now := time.Now()

	if !ok {
		// First request for this host — no wait needed.
		r.lastCall[host] = now
		r.mu.Unlock()
		return nil
	}

	elapsed := now.Sub(last)
	if elapsed >= r.minDelay {
		r.lastCall[host] = now
		r.mu.Unlock()
		return nil
	}

	// Need to wait for the remainder.
	remaining := r.minDelay - elapsed
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter wait for %s: %w", host, ctx.Err())
	case <-time.After(remaining):
	}

	// Record the actual time after waiting.
	r.mu.Lock()
	r.lastCall[host] = time.Now()
	r.mu.Unlock()

	return nil
}

// Ensure RateLimitedFetcher implements model.FeedFetcher.
var _ model.FeedFetcher = (*RateLimitedFetcher)(nil)

// RateLimitedFetcher is a decorator that enforces host-level rate limiting
// before delegating to the wrapped FeedFetcher.
type RateLimitedFetcher struct {
	inner   model.FeedFetcher
	limiter *HostRateLimiter
	host    string
}

// NewRateLimitedFetcher wraps a FeedFetcher with host-level rate limiting.
// All fetchers targeting the same host should share the same limiter instance.
func NewRateLimitedFetcher(inner model.FeedFetcher, limiter *HostRateLimiter, host string) *RateLimitedFetcher {
	return &RateLimitedFetcher{
		inner:   inner,
		limiter: limiter,
		host:    host,
	}
}

// FetchEntries waits for the rate limiter to allow a request, then delegates
// to the wrapped fetcher.
func (f *RateLimitedFetcher) FetchEntries(ctx context.Context) ([]model.FeedEntry, error) {
	if err := f.limiter.Wait(ctx, f.host); err != nil {
		return nil, err
	}
	return f.inner.FetchEntries(ctx)
}

// HostOf extracts the lowercased host from a feed endpoint for limiter keying.
// Falls back to the whole endpoint string when it cannot be parsed.
func HostOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return strings.ToLower(u.Host)
}
