package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// maxBuckets bounds the number of tracked clients.
	maxBuckets = 100_000

	bucketMaxAge       = 10 * time.Minute
	bucketCleanupEvery = 5 * time.Minute
)

// bucket is a token bucket. Tokens are fractional so low rates refill smoothly.
type bucket struct {
	tokens   float64
	lastFill time.Time
}

// RateLimiter is a per-client token bucket limiter. Authenticated requests are
// keyed by principal, anonymous ones by client IP.
type RateLimiter struct {
	rate  float64
	burst float64
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewRateLimiter creates a RateLimiter allowing ratePerSec sustained requests
// and bursts of burst. Its cleanup goroutine stops with ctx.
func NewRateLimiter(ctx context.Context, ratePerSec, burst int) *RateLimiter {
	rl := &RateLimiter{
		rate:    float64(ratePerSec),
		burst:   float64(burst),
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
	go rl.cleanupLoop(ctx)

	return rl
}

func (rl *RateLimiter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(bucketCleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := rl.now()
			rl.mu.Lock()
			for k, b := range rl.buckets {
				if now.Sub(b.lastFill) > bucketMaxAge {
					delete(rl.buckets, k)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// allow takes one token from key's bucket. The second result is the wait
// until a token is available when the request is refused.
func (rl *RateLimiter) allow(key string) (bool, time.Duration, bool) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		if len(rl.buckets) >= maxBuckets {
			return false, 0, true
		}
		b = &bucket{tokens: rl.burst, lastFill: now}
		rl.buckets[key] = b
	}

	b.tokens = min(rl.burst, b.tokens+now.Sub(b.lastFill).Seconds()*rl.rate)
	b.lastFill = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0, false
	}

	if rl.rate <= 0 {
		return false, bucketMaxAge, false
	}

	wait := time.Duration((1 - b.tokens) / rl.rate * float64(time.Second))
	return false, wait, false
}

// Handler returns middleware enforcing the limit.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if p := Principal(c); p != "" {
			key = "principal:" + p
		}

		allowed, wait, full := rl.allow(key)
		switch {
		case full:
			respondError(c, http.StatusTooManyRequests, "rate_limited", "too many clients")
		case !allowed:
			c.Header("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			respondError(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
		default:
			c.Next()
		}
	}
}
