package ratelimit

import "time"

// bucket is per-destination token state. Guarded by the limiter's mutex.
type bucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// refill adds tokens for the elapsed interval, capped at maxTokens.
func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now
}

// tryConsume takes one token if available.
func (b *bucket) tryConsume() bool {
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// waitTime returns how long until one full token accrues.
func (b *bucket) waitTime() time.Duration {
	if b.tokens >= 1 {
		return 0
	}
	deficit := 1 - b.tokens
	return time.Duration(deficit / b.refillRate * float64(time.Second))
}
