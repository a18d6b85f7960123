package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// LimitResult is the outcome of a single rate-limit check.
type LimitResult struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
}

type limitEntry struct {
	count     int
	resetTime time.Time
}

// RateLimiter counts requests per caller key over a fixed window. Counters
// are guarded by a mutex so concurrent requests cannot lose updates.
type RateLimiter struct {
	mu          sync.Mutex
	entries     map[string]*limitEntry
	maxRequests int
	window      time.Duration
}

func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		entries:     make(map[string]*limitEntry),
		maxRequests: maxRequests,
		window:      window,
	}
}

// Check increments the counter for key and reports whether the request is
// within the limit, how many requests remain, and when the window resets.
func (rl *RateLimiter) Check(key string) LimitResult {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, exists := rl.entries[key]
	if !exists || now.After(entry.resetTime) {
		entry = &limitEntry{count: 0, resetTime: now.Add(rl.window)}
		rl.entries[key] = entry
	}

	if entry.count >= rl.maxRequests {
		return LimitResult{Allowed: false, Remaining: 0, ResetTime: entry.resetTime}
	}

	entry.count++
	return LimitResult{
		Allowed:   true,
		Remaining: rl.maxRequests - entry.count,
		ResetTime: entry.resetTime,
	}
}

// Handler applies the limiter per caller IP and endpoint class. A denied
// request gets a 429 with the retry delay so clients can back off
// deterministically.
func (rl *RateLimiter) Handler(class string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res := rl.Check(c.IP() + ":" + class)

		c.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetTime.Unix(), 10))

		if !res.Allowed {
			retryAfter := int(time.Until(res.ResetTime).Seconds()) + 1
			c.Set("Retry-After", strconv.Itoa(retryAfter))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success":     false,
				"message":     "Rate limit exceeded. Try again in " + strconv.Itoa(retryAfter) + " seconds",
				"retry_after": retryAfter,
			})
		}

		return c.Next()
	}
}
