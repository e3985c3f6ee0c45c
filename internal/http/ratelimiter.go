package httpapi

import (
	"time"

	"golang.org/x/time/rate"
)

// TokenBucketLimiter gates admin mutations with a refilling token bucket.
type TokenBucketLimiter struct {
	limiter *rate.Limiter
	now     func() time.Time
}

// NewTokenBucketLimiter allows perSecond events with bursts of up to burst.
// A non-positive rate or burst disables limiting.
func NewTokenBucketLimiter(perSecond float64, burst int, timeSource func() time.Time) *TokenBucketLimiter {
	if perSecond <= 0 || burst <= 0 {
		return &TokenBucketLimiter{}
	}
	if timeSource == nil {
		timeSource = time.Now
	}
	return &TokenBucketLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		now:     timeSource,
	}
}

// Allow reports whether the caller may proceed under the current rate limits.
func (l *TokenBucketLimiter) Allow() bool {
	if l == nil || l.limiter == nil {
		return true
	}
	return l.limiter.AllowN(l.now(), 1)
}
