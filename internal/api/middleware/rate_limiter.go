package middleware

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/eventsnap/facefinder/internal/domain"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	// Max requests per window
	Max int
	// Window duration
	Window time.Duration
	// Key generator function - defaults to the client IP
	KeyGenerator func(c *fiber.Ctx) string
}

// DefaultRateLimiterConfig limits session creation per client IP. Each
// session runs the full detection pipeline, so the ceiling is low.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Max:    30,
		Window: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}
}

// clientLimiter tracks rate limiting state for one key
type clientLimiter struct {
	count      int
	windowEnd  time.Time
	lastAccess time.Time
}

// RateLimiter implements fixed-window rate limiting per client
type RateLimiter struct {
	config   RateLimiterConfig
	limiters map[string]*clientLimiter
	mu       sync.RWMutex
	done     chan struct{}
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Max == 0 {
		config.Max = 30
	}
	if config.Window == 0 {
		config.Window = time.Minute
	}
	if config.KeyGenerator == nil {
		config.KeyGenerator = DefaultRateLimiterConfig().KeyGenerator
	}

	rl := &RateLimiter{
		config:   config,
		limiters: make(map[string]*clientLimiter),
		done:     make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Stop gracefully shuts down the rate limiter cleanup goroutine
func (rl *RateLimiter) Stop() {
	close(rl.done)
}

// Handler returns the Fiber middleware handler
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := rl.config.KeyGenerator(c)
		if key == "" {
			return c.Next()
		}

		now := time.Now()

		rl.mu.Lock()
		limiter, exists := rl.limiters[key]

		if !exists || now.After(limiter.windowEnd) {
			newLimiter := &clientLimiter{
				count:      1,
				windowEnd:  now.Add(rl.config.Window),
				lastAccess: now,
			}
			rl.limiters[key] = newLimiter
			rl.mu.Unlock()

			c.Set("X-RateLimit-Limit", intToString(rl.config.Max))
			c.Set("X-RateLimit-Remaining", intToString(rl.config.Max-1))
			c.Set("X-RateLimit-Reset", newLimiter.windowEnd.Format(time.RFC3339))

			return c.Next()
		}

		limiter.count++
		limiter.lastAccess = now
		count := limiter.count
		remaining := rl.config.Max - count
		windowEnd := limiter.windowEnd
		rl.mu.Unlock()

		c.Set("X-RateLimit-Limit", intToString(rl.config.Max))
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Remaining", intToString(remaining))
		c.Set("X-RateLimit-Reset", windowEnd.Format(time.RFC3339))

		if count > rl.config.Max {
			c.Set("Retry-After", intToString(int(time.Until(windowEnd).Seconds())))
			return domain.ErrRateLimitExceeded
		}

		return c.Next()
	}
}

// cleanup removes stale entries
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key, limiter := range rl.limiters {
				// Remove entries that haven't been accessed in 2 windows
				if now.Sub(limiter.lastAccess) > 2*rl.config.Window {
					delete(rl.limiters, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// intToString converts int to string without fmt
func intToString(n int) string {
	if n == 0 {
		return "0"
	}

	negative := n < 0
	if negative {
		n = -n
	}

	digits := make([]byte, 0, 10)
	for n > 0 {
		digits = append(digits, byte('0'+n%10))
		n /= 10
	}

	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}

	if negative {
		return "-" + string(digits)
	}
	return string(digits)
}
