package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter hands out tokens per key. The socket handler keys it by
// connection id to bound inbound events; RateLimit keys it by account or
// remote address for plain HTTP. A key holds at most rate+burst tokens and
// regains rate tokens per window.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	rate   int
	burst  int
	window time.Duration
	now    func() time.Time

	sweepEvery time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

// RateLimitConfig zero values fall back to 100 per minute, burst 20,
// swept every five minutes.
type RateLimitConfig struct {
	Rate    int
	Window  time.Duration
	Burst   int
	Cleanup time.Duration
	Now     func() time.Time
}

type bucket struct {
	tokens   int
	refilled time.Time
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.Rate == 0 {
		c.Rate = 100
	}
	if c.Window == 0 {
		c.Window = time.Minute
	}
	if c.Burst == 0 {
		c.Burst = 20
	}
	if c.Cleanup == 0 {
		c.Cleanup = 5 * time.Minute
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// NewRateLimiter starts the background sweep; call Stop to end it.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	cfg = cfg.withDefaults()
	rl := &RateLimiter{
		buckets:    make(map[string]*bucket),
		rate:       cfg.Rate,
		burst:      cfg.Burst,
		window:     cfg.Window,
		now:        cfg.Now,
		sweepEvery: cfg.Cleanup,
		stop:       make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Limit is the per-window rate advertised in X-RateLimit-Limit.
func (rl *RateLimiter) Limit() int {
	return rl.rate
}

func (rl *RateLimiter) capacity() int {
	return rl.rate + rl.burst
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

// sweep drops buckets untouched for two windows.
func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	stale := rl.now().Add(-2 * rl.window)
	for key, b := range rl.buckets {
		if b.refilled.Before(stale) {
			delete(rl.buckets, key)
		}
	}
}

// Forget drops the bucket for key; the socket handler calls it on disconnect.
func (rl *RateLimiter) Forget(key string) {
	rl.mu.Lock()
	delete(rl.buckets, key)
	rl.mu.Unlock()
}

// refill credits whole tokens earned since the last refill. The refill mark
// advances only by the time those tokens cost, so a fraction of a token
// carries over to the next call. A full bucket drops the carry.
func (rl *RateLimiter) refill(b *bucket, now time.Time) {
	elapsed := now.Sub(b.refilled)
	if elapsed >= rl.window {
		b.tokens = rl.capacity()
		b.refilled = now
		return
	}
	earned := int(float64(rl.rate) * float64(elapsed) / float64(rl.window))
	if earned == 0 {
		return
	}
	if b.tokens+earned >= rl.capacity() {
		b.tokens = rl.capacity()
		b.refilled = now
		return
	}
	b.tokens += earned
	b.refilled = b.refilled.Add(time.Duration(earned) * rl.window / time.Duration(rl.rate))
}

// Allow takes one token for key and reports what is left and when the
// bucket is next fully restored.
func (rl *RateLimiter) Allow(key string) (allowed bool, remaining int, resetTime time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.capacity(), refilled: now}
		rl.buckets[key] = b
	} else {
		rl.refill(b, now)
	}

	resetTime = b.refilled.Add(rl.window)
	if b.tokens <= 0 {
		return false, 0, resetTime
	}
	b.tokens--
	return true, b.tokens, resetTime
}

// RetryAfter is the Retry-After value for resetTime, never below one second.
func (rl *RateLimiter) RetryAfter(resetTime time.Time) int {
	return max(int(resetTime.Sub(rl.now()).Seconds()), 1)
}

// RateLimit limits plain HTTP requests by account, or by remote address for
// guests.
func RateLimit(limiter *RateLimiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := GetAccountID(r.Context())
			if key == "" {
				key = r.RemoteAddr
			}

			allowed, remaining, reset := limiter.Allow(key)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if !allowed {
				h.Set("Retry-After", strconv.Itoa(limiter.RetryAfter(reset)))
				writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeError writes the failure half of the acknowledgement envelope, so
// socket and HTTP clients parse the same shape.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"code":    code,
		"error":   message,
	})
}
