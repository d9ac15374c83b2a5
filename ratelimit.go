package accounts

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// RateLimiterConfig holds the per-client limits for the public auth routes.
type RateLimiterConfig struct {
	LoginRate       rate.Limit
	LoginBurst      int
	SignupRate      rate.Limit
	SignupBurst     int
	CleanupInterval time.Duration
}

// DefaultRateLimiterConfig allows 30 login attempts and 5 signups per minute
// per client before backing off.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		LoginRate:       rate.Limit(30.0 / 60.0),
		LoginBurst:      30,
		SignupRate:      rate.Limit(5.0 / 60.0),
		SignupBurst:     5,
		CleanupInterval: 5 * time.Minute,
	}
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter tracks token buckets per client IP for the unauthenticated
// surface: login and signup get independent budgets.
type RateLimiter struct {
	config RateLimiterConfig
	logger Logger

	loginMu       sync.Mutex
	loginLimiters map[string]*clientLimiter

	signupMu       sync.Mutex
	signupLimiters map[string]*clientLimiter

	stopCh chan struct{}
}

// NewRateLimiter starts the background cleanup of idle client entries.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:         config,
		logger:         defLogger{},
		loginLimiters:  make(map[string]*clientLimiter),
		signupLimiters: make(map[string]*clientLimiter),
		stopCh:         make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

func (rl *RateLimiter) WithLogger(logger Logger) *RateLimiter {
	if logger != nil {
		rl.logger = logger
	}
	return rl
}

// Stop terminates the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// LoginMiddleware limits login attempts per client IP.
func (rl *RateLimiter) LoginMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		limiter := getOrCreate(&rl.loginMu, rl.loginLimiters, c.IP(), rl.config.LoginRate, rl.config.LoginBurst)
		if !limiter.Allow() {
			rl.logger.Warn("rate limit exceeded", "ip", c.IP(), "limit_type", "login")
			return tooManyRequests(c, rl.config.LoginRate)
		}
		return c.Next()
	}
}

// SignupMiddleware limits registrations per client IP.
func (rl *RateLimiter) SignupMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		limiter := getOrCreate(&rl.signupMu, rl.signupLimiters, c.IP(), rl.config.SignupRate, rl.config.SignupBurst)
		if !limiter.Allow() {
			rl.logger.Warn("rate limit exceeded", "ip", c.IP(), "limit_type", "signup")
			return tooManyRequests(c, rl.config.SignupRate)
		}
		return c.Next()
	}
}

// LoginLimiterCount reports the live login entries, for tests and metrics.
func (rl *RateLimiter) LoginLimiterCount() int {
	rl.loginMu.Lock()
	defer rl.loginMu.Unlock()
	return len(rl.loginLimiters)
}

// SignupLimiterCount reports the live signup entries, for tests and metrics.
func (rl *RateLimiter) SignupLimiterCount() int {
	rl.signupMu.Lock()
	defer rl.signupMu.Unlock()
	return len(rl.signupLimiters)
}

func getOrCreate(mu *sync.Mutex, limiters map[string]*clientLimiter, key string, limit rate.Limit, burst int) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	if cl, ok := limiters[key]; ok {
		cl.lastAccess = time.Now()
		return cl.limiter
	}

	limiter := rate.NewLimiter(limit, burst)
	limiters[key] = &clientLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup drops entries idle for longer than twice the cleanup interval.
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()

	rl.loginMu.Lock()
	for key, cl := range rl.loginLimiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(rl.loginLimiters, key)
		}
	}
	rl.loginMu.Unlock()

	rl.signupMu.Lock()
	for key, cl := range rl.signupLimiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(rl.signupLimiters, key)
		}
	}
	rl.signupMu.Unlock()
}

// tooManyRequests writes a 429 with a Retry-After estimating one refill.
func tooManyRequests(c *fiber.Ctx, limit rate.Limit) error {
	retryAfterSec := int(math.Ceil(1.0 / float64(limit)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfterSec))
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"code":    "RATE_LIMIT_EXCEEDED",
		"message": "Too many requests. Please try again later.",
	})
}
