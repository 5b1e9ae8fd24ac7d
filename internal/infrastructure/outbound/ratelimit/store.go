// Package ratelimit keeps per-resource token buckets.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sophialabs/mimic/internal/infrastructure/ports"
)

var _ ports.RateLimiter = (*TokenBucketStore)(nil)

type bucket struct {
	limiter  *rate.Limiter
	rate     float64
	burst    int
	lastUsed time.Time
}

// TokenBucketStore holds one token bucket per key. Keys are built by the
// caller, usually "<resource id>:<resolved key>".
type TokenBucketStore struct {
	clock ports.Clock
	ttl   time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket

	stopOnce sync.Once
	stop     chan struct{}
}

// NewTokenBucketStore creates a store evicting buckets idle for longer than ttl.
// A background goroutine runs until Stop is called.
func NewTokenBucketStore(clock ports.Clock, ttl time.Duration) *TokenBucketStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	s := &TokenBucketStore{
		clock:   clock,
		ttl:     ttl,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	go s.evictLoop()
	return s
}

// Stop terminates the background eviction goroutine. Safe to call twice.
func (s *TokenBucketStore) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *TokenBucketStore) evictLoop() {
	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Evict()
		case <-s.stop:
			return
		}
	}
}

// Allow takes one token from the bucket for key.
func (s *TokenBucketStore) Allow(_ context.Context, key string, r float64, burst int) bool {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	switch {
	case !ok:
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(r), burst), rate: r, burst: burst}
		s.buckets[key] = b
	case b.rate != r || b.burst != burst:
		// Limits changed by a reload.
		b.limiter.SetLimitAt(now, rate.Limit(r))
		b.limiter.SetBurstAt(now, burst)
		b.rate, b.burst = r, burst
	}

	b.lastUsed = now
	return b.limiter.AllowN(now, 1)
}

// Evict removes buckets idle for longer than the TTL.
func (s *TokenBucketStore) Evict() {
	cutoff := s.clock.Now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, b := range s.buckets {
		if b.lastUsed.Before(cutoff) {
			delete(s.buckets, key)
		}
	}
}

// Reset drops every bucket.
func (s *TokenBucketStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.buckets)
}

// Len returns the number of live buckets.
func (s *TokenBucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}
