package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter counts requests per key in fixed windows. Expired windows are
// swept from Take at most once per period, so the limiter owns no goroutine.
type RateLimiter struct {
	mu        sync.Mutex
	windows   map[string]*window
	limit     int
	period    time.Duration
	now       func() time.Time
	nextSweep time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	return NewRateLimiterWithNow(limit, period, time.Now)
}

func NewRateLimiterWithNow(limit int, period time.Duration, now func() time.Time) *RateLimiter {
	return &RateLimiter{
		windows:   make(map[string]*window),
		limit:     limit,
		period:    period,
		now:       now,
		nextSweep: now().Add(period),
	}
}

// sweep drops expired windows. Callers hold rl.mu.
func (rl *RateLimiter) sweep(now time.Time) {
	for key, w := range rl.windows {
		if now.After(w.resetAt) {
			delete(rl.windows, key)
		}
	}
	rl.nextSweep = now.Add(rl.period)
}

// Take consumes one request for key and reports whether it is allowed, how
// many requests remain in the window and when the window resets.
func (rl *RateLimiter) Take(key string) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if !now.Before(rl.nextSweep) {
		rl.sweep(now)
	}
	w, ok := rl.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(rl.period)}
		rl.windows[key] = w
	}
	if w.count >= rl.limit {
		return false, 0, w.resetAt
	}
	w.count++
	return true, rl.limit - w.count, w.resetAt
}

func (rl *RateLimiter) Allow(key string) bool {
	ok, _, _ := rl.Take(key)
	return ok
}

// RateLimitMiddleware limits requests per client IP and reports the budget
// in X-RateLimit-* headers.
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, remaining, resetAt := rl.Take(c.ClientIP())
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			retry := int(resetAt.Sub(rl.now()).Seconds() + 0.999)
			c.Header("Retry-After", strconv.Itoa(max(retry, 1)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}
