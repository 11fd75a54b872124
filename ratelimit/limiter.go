// Package ratelimit provides per-webhook token bucket rate limiting for
// the delivery engine.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter tracks one token bucket per webhook. Burst equals the rate.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens   float64
	rate     float64 // tokens per second
	lastFill time.Time
}

// New creates an empty limiter.
func New() *Limiter {
	return &Limiter{buckets: make(map[string]*bucket)}
}

// Allow reports whether a delivery to the given webhook may proceed now.
// perSecond <= 0 means unlimited.
func (l *Limiter) Allow(webhookID string, perSecond int) bool {
	if perSecond <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[webhookID]
	if !ok {
		b = &bucket{tokens: float64(perSecond), rate: float64(perSecond), lastFill: time.Now()}
		l.buckets[webhookID] = b
	}

	b.refill()
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Forget drops the bucket state for a webhook (e.g. on deactivation).
func (l *Limiter) Forget(webhookID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, webhookID)
}

func (b *bucket) refill() {
	now := time.Now()
	b.tokens += now.Sub(b.lastFill).Seconds() * b.rate
	if b.tokens > b.rate {
		b.tokens = b.rate
	}
	b.lastFill = now
}
