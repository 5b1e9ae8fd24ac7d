package ratelimit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sophialabs/mimic/internal/infrastructure/outbound/ratelimit"
	"github.com/sophialabs/mimic/internal/testutil"
)

func newStore(clk *testutil.FixedClock) *ratelimit.TokenBucketStore {
	return ratelimit.NewTokenBucketStore(clk, time.Minute)
}

func TestTokenBucketStore_Burst(t *testing.T) {
	clk := &testutil.FixedClock{T: time.Unix(1000, 0)}
	store := newStore(clk)
	defer store.Stop()
	ctx := context.Background()

	for i := range 3 {
		if !store.Allow(ctx, "res:a", 1, 3) {
			t.Errorf("request %d should be allowed within burst", i+1)
		}
	}
	if store.Allow(ctx, "res:a", 1, 3) {
		t.Error("request over burst should be denied")
	}
}

func TestTokenBucketStore_Refill(t *testing.T) {
	clk := &testutil.FixedClock{T: time.Unix(1000, 0)}
	store := newStore(clk)
	defer store.Stop()
	ctx := context.Background()

	store.Allow(ctx, "res:a", 2, 1)
	if store.Allow(ctx, "res:a", 2, 1) {
		t.Fatal("second request should be denied")
	}

	clk.T = clk.T.Add(500 * time.Millisecond)
	if !store.Allow(ctx, "res:a", 2, 1) {
		t.Error("expected a token after refill")
	}
}

func TestTokenBucketStore_PerKeyIsolation(t *testing.T) {
	clk := &testutil.FixedClock{T: time.Unix(1000, 0)}
	store := newStore(clk)
	defer store.Stop()
	ctx := context.Background()

	store.Allow(ctx, "res:key1", 1, 1)
	if !store.Allow(ctx, "res:key2", 1, 1) {
		t.Error("key2 should be allowed (separate from key1)")
	}
	if store.Len() != 2 {
		t.Errorf("expected 2 buckets, got %d", store.Len())
	}
}

func TestTokenBucketStore_Evict(t *testing.T) {
	clk := &testutil.FixedClock{T: time.Unix(1000, 0)}
	store := newStore(clk)
	defer store.Stop()
	ctx := context.Background()

	store.Allow(ctx, "old", 1, 1)
	clk.T = clk.T.Add(30 * time.Second)
	store.Allow(ctx, "fresh", 1, 1)
	clk.T = clk.T.Add(45 * time.Second)
	store.Evict()

	if store.Len() != 1 {
		t.Errorf("expected 1 bucket after eviction, got %d", store.Len())
	}
}

func TestTokenBucketStore_UpdatedLimits(t *testing.T) {
	clk := &testutil.FixedClock{T: time.Unix(1000, 0)}
	store := newStore(clk)
	defer store.Stop()
	ctx := context.Background()

	store.Allow(ctx, "reload", 1, 1)
	if store.Allow(ctx, "reload", 1, 1) {
		t.Fatal("expected denial at burst 1")
	}

	// Raised limits apply to the same bucket from now on.
	clk.T = clk.T.Add(200 * time.Millisecond)
	store.Allow(ctx, "reload", 10, 5)
	clk.T = clk.T.Add(100 * time.Millisecond)
	if !store.Allow(ctx, "reload", 10, 5) {
		t.Error("expected token after rate increase")
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 bucket after limit update, got %d", store.Len())
	}
}

func TestTokenBucketStore_Reset(t *testing.T) {
	clk := &testutil.FixedClock{T: time.Unix(1000, 0)}
	store := newStore(clk)
	defer store.Stop()
	defer store.Stop()

	store.Allow(context.Background(), "a", 1, 1)
	store.Reset()
	if store.Len() != 0 {
		t.Errorf("expected 0 after reset, got %d", store.Len())
	}
}

func TestTokenBucketStore_Concurrent(t *testing.T) {
	clk := &testutil.FixedClock{T: time.Unix(1000, 0)}
	store := newStore(clk)
	defer store.Stop()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.Allow(ctx, "concurrent", 1, 20) {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 20 {
		t.Errorf("expected exactly 20 allowed, got %d", allowed)
	}
}
