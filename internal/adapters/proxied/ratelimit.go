package proxied

import (
	"context"
	"sync"
	"time"
)

// tokenBucket is a continuously-refilling rate limiter, grounded on
// 0xtitan6-polymarket-mm's internal/exchange.TokenBucket: Polymarket-style
// venues publish per-category limits as "N requests per 10-second window"
// rather than a flat per-second cap, so the bucket's capacity models the
// 10s burst allowance and its rate models the smooth per-second refill.
type tokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64
	lastTime time.Time
}

func newTokenBucket(capacity, ratePerSecond float64) *tokenBucket {
	return &tokenBucket{tokens: capacity, capacity: capacity, rate: ratePerSecond, lastTime: time.Now()}
}

func (tb *tokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.lastTime).Seconds()
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}

		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// rateLimiter groups the Proxied venue's per-endpoint-category buckets.
type rateLimiter struct {
	Order *tokenBucket // POST order placement
	Book  *tokenBucket // GET book reads / market discovery
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		Order: newTokenBucket(50, 10),
		Book:  newTokenBucket(150, 15),
	}
}
