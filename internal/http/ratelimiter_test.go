package httpapi

import (
	"testing"
	"time"
)

func TestTokenBucketLimiter(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewTokenBucketLimiter(1, 2, func() time.Time { return now })

	if !limiter.Allow() || !limiter.Allow() {
		t.Fatal("expected the burst to be allowed")
	}
	if limiter.Allow() {
		t.Fatal("expected third call to be denied")
	}

	now = now.Add(500 * time.Millisecond)
	if limiter.Allow() {
		t.Fatal("expected call before refill to still be denied")
	}

	now = now.Add(600 * time.Millisecond)
	if !limiter.Allow() {
		t.Fatal("expected limiter to permit call after a token refills")
	}
	if limiter.Allow() {
		t.Fatal("expected only one token to have refilled")
	}
}

func TestTokenBucketLimiterDisabled(t *testing.T) {
	limiter := NewTokenBucketLimiter(0, 0, nil)
	for i := 0; i < 10; i++ {
		if !limiter.Allow() {
			t.Fatal("limiter with zero configuration should allow")
		}
	}
	var nilLimiter *TokenBucketLimiter
	if !nilLimiter.Allow() {
		t.Fatal("nil limiter should allow")
	}
}
