// Package ratelimit spaces out requests to each host with a token bucket.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/article-epub/internal/crawler"
	"github.com/JakeFAU/article-epub/internal/metrics"
)

// Config holds rate limiter configuration. A non-positive RPS disables limiting.
type Config struct {
	RPS   float64
	Burst int
}

// Fetcher wraps another crawler.Fetcher and waits for a token for the target
// host before every request.
type Fetcher struct {
	next crawler.Fetcher

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// New wraps next.
func New(next crawler.Fetcher, cfg Config) *Fetcher {
	limit := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Fetcher{
		next:     next,
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Fetch implements crawler.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if err := f.wait(ctx, rawURL); err != nil {
		return "", err
	}
	return f.next.Fetch(ctx, rawURL)
}

func (f *Fetcher) wait(ctx context.Context, rawURL string) error {
	host := metrics.SanitizeSite(rawURL)
	f.mu.Lock()
	limiter, ok := f.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(f.limit, f.burst)
		f.limiters[host] = limiter
	}
	f.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}
