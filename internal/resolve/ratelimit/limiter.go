package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/citelinker/resolver/internal/core/config"
	"github.com/citelinker/resolver/internal/metrics"
)

// Poll bounds for the blocking wait loop.
const (
	minPoll = 100 * time.Millisecond
	maxPoll = 5 * time.Second
)

// Limiter throttles outbound requests per destination host using token
// buckets. Buckets are created lazily on first use; hosts listed in the
// config get their own rates, everything else shares the default.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	defaults  config.HostLimit
	overrides map[string]config.HostLimit
	now       func() time.Time
}

// New creates a limiter from rate-limit configuration.
func New(cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		defaults: config.HostLimit{
			RefillPerSecond: cfg.RefillPerSecond,
			MaxTokens:       cfg.MaxTokens,
		},
		overrides: cfg.Hosts,
		now:       time.Now,
	}
}

// WaitForToken blocks until one token is available for the host, then
// consumes it. The wait polls at a bounded granularity so pauses stay
// responsive to context cancellation.
func (l *Limiter) WaitForToken(ctx context.Context, host string) error {
	start := l.now()
	for {
		l.mu.Lock()
		b := l.bucketFor(host)
		b.refill(l.now())
		ok := b.tryConsume()
		wait := b.waitTime()
		l.mu.Unlock()

		if ok {
			metrics.RateLimitWait.WithLabelValues(host).Observe(l.now().Sub(start).Seconds())
			return nil
		}

		if wait < minPoll {
			wait = minPoll
		}
		if wait > maxPoll {
			wait = maxPoll
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Tokens returns the current token count for a host. Test hook.
func (l *Limiter) Tokens(host string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.bucketFor(host)
	b.refill(l.now())
	return b.tokens
}

// bucketFor returns the bucket for a host, creating it on first use.
// Caller holds l.mu.
func (l *Limiter) bucketFor(host string) *bucket {
	if b, ok := l.buckets[host]; ok {
		return b
	}
	limit := l.defaults
	if override, ok := l.overrides[host]; ok {
		limit = override
	}
	b := &bucket{
		tokens:     limit.MaxTokens,
		maxTokens:  limit.MaxTokens,
		refillRate: limit.RefillPerSecond,
		lastRefill: l.now(),
	}
	l.buckets[host] = b
	return b
}
