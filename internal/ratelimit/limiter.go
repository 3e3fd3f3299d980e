package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"
)

const keyPrefix = "ratelimit:"

// Config holds rate limiter configuration
type Config struct {
	IPLimitPerMin    int           // public API requests per IP per minute
	ScoreLimitPerMin int           // scoring requests per IP per minute
	LoginAttempts    int           // failed admin logins before lockout
	LoginWindow      time.Duration // lockout window
	BurstMultiplier  int           // burst capacity multiplier for IP limits
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() Config {
	return Config{
		IPLimitPerMin:    120,
		ScoreLimitPerMin: 30,
		LoginAttempts:    5,
		LoginWindow:      15 * time.Minute,
		BurstMultiplier:  2,
	}
}

// Rate is a limit of Limit events per Period. Burst defaults to Limit.
type Rate struct {
	Limit  int
	Burst  int
	Period time.Duration
}

// PerMinute returns a per-minute rate.
func PerMinute(n int) Rate {
	return Rate{Limit: n, Period: time.Minute}
}

func (r Rate) burst() int {
	if r.Burst > 0 {
		return r.Burst
	}
	return r.Limit
}

// Result represents the result of a rate limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Metrics receives limiter counters.
type Metrics interface {
	RecordRateLimitBlock(endpoint string)
	IncrementRedisError()
}

type fallbackEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter provides distributed rate limiting with Redis and in-memory fallback
type RateLimiter struct {
	redisLimiter *redis_rate.Limiter
	redisClient  *RedisClient
	config       Config
	metrics      Metrics
	now          func() time.Time

	fallbackLimiters map[string]*fallbackEntry
	fallbackMutex    sync.Mutex
}

// NewRateLimiter creates a rate limiter. A disabled or nil Redis client
// selects in-memory limiting only.
func NewRateLimiter(redisClient *RedisClient, config Config, metrics Metrics) *RateLimiter {
	rl := &RateLimiter{
		redisClient:      redisClient,
		config:           config,
		metrics:          metrics,
		now:              time.Now,
		fallbackLimiters: make(map[string]*fallbackEntry),
	}

	if redisClient.IsEnabled() {
		rl.redisLimiter = redis_rate.NewLimiter(redisClient.GetClient())
		slog.Info("Redis rate limiter initialized")
	} else {
		slog.Warn("Redis unavailable, using in-memory rate limiting only")
	}
	return rl
}

// Config returns the configured limits.
func (rl *RateLimiter) Config() Config {
	return rl.config
}

// IPKey namespaces an IP-scoped limit.
func IPKey(scope, ip string) string {
	return keyPrefix + scope + ":" + ip
}

// AllowIP checks the general per-minute limit of an IP address.
func (rl *RateLimiter) AllowIP(ctx context.Context, ip string) (*Result, error) {
	r := PerMinute(rl.config.IPLimitPerMin)
	r.Burst = rl.config.IPLimitPerMin * max(rl.config.BurstMultiplier, 1)
	return rl.Allow(ctx, IPKey("ip", ip), r)
}

// Allow consumes one event for key.
func (rl *RateLimiter) Allow(ctx context.Context, key string, r Rate) (*Result, error) {
	return rl.AllowN(ctx, key, r, 1)
}

// Peek reports the state of key without consuming anything.
func (rl *RateLimiter) Peek(ctx context.Context, key string, r Rate) (*Result, error) {
	res, err := rl.AllowN(ctx, key, r, 0)
	if err != nil {
		return nil, err
	}
	res.Allowed = res.Remaining > 0
	return res, nil
}

// AllowN consumes n events for key, using Redis when available and the
// in-memory token bucket otherwise.
func (rl *RateLimiter) AllowN(ctx context.Context, key string, r Rate, n int) (*Result, error) {
	if r.Limit <= 0 || r.Period <= 0 {
		return nil, fmt.Errorf("invalid rate %d per %s", r.Limit, r.Period)
	}

	if rl.redisLimiter != nil && rl.redisClient.IsEnabled() {
		result, err := rl.allowRedis(ctx, key, r, n)
		if err == nil {
			return result, nil
		}
		slog.Warn("Redis rate limit check failed, using fallback", "key", key, "error", err)
		if rl.metrics != nil {
			rl.metrics.IncrementRedisError()
		}
	}
	return rl.allowFallback(key, r, n), nil
}

func (rl *RateLimiter) allowRedis(ctx context.Context, key string, r Rate, n int) (*Result, error) {
	limit := redis_rate.Limit{Rate: r.Limit, Burst: r.burst(), Period: r.Period}
	res, err := rl.redisLimiter.AllowN(ctx, key, limit, n)
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}

	allowed := n == 0 || res.Allowed > 0
	result := &Result{
		Allowed:   allowed,
		Limit:     r.Limit,
		Remaining: res.Remaining,
		ResetAt:   rl.now().Add(res.ResetAfter),
	}
	if !allowed {
		result.RetryAfter = res.RetryAfter
	}
	return result, nil
}

func (rl *RateLimiter) allowFallback(key string, r Rate, n int) *Result {
	now := rl.now()

	rl.fallbackMutex.Lock()
	entry, ok := rl.fallbackLimiters[key]
	if !ok {
		every := rate.Every(r.Period / time.Duration(r.Limit))
		entry = &fallbackEntry{limiter: rate.NewLimiter(every, r.burst())}
		rl.fallbackLimiters[key] = entry
	}
	entry.lastSeen = now
	rl.fallbackMutex.Unlock()

	lim := entry.limiter
	allowed := lim.AllowN(now, n)
	result := &Result{
		Allowed:   allowed,
		Limit:     r.Limit,
		Remaining: max(int(lim.TokensAt(now)), 0),
	}

	missing := float64(r.burst()) - lim.TokensAt(now)
	result.ResetAt = now.Add(time.Duration(missing / float64(lim.Limit()) * float64(time.Second)))

	if !allowed {
		res := lim.ReserveN(now, n)
		if res.OK() {
			result.RetryAfter = res.DelayFrom(now)
			res.CancelAt(now)
		} else {
			result.RetryAfter = r.Period
		}
	}
	return result
}

// Reset clears the state of key.
func (rl *RateLimiter) Reset(ctx context.Context, key string) error {
	rl.fallbackMutex.Lock()
	delete(rl.fallbackLimiters, key)
	rl.fallbackMutex.Unlock()

	if rl.redisLimiter != nil && rl.redisClient.IsEnabled() {
		if err := rl.redisLimiter.Reset(ctx, key); err != nil {
			return fmt.Errorf("failed to reset rate limit %s: %w", key, err)
		}
	}
	return nil
}

// Sweep drops in-memory limiters unused for longer than idle.
func (rl *RateLimiter) Sweep(idle time.Duration) int {
	cutoff := rl.now().Add(-idle)

	rl.fallbackMutex.Lock()
	defer rl.fallbackMutex.Unlock()
	removed := 0
	for key, entry := range rl.fallbackLimiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.fallbackLimiters, key)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("Swept idle fallback rate limiters", "count", removed)
	}
	return removed
}

// GetStats returns rate limiter statistics
func (rl *RateLimiter) GetStats() map[string]any {
	rl.fallbackMutex.Lock()
	fallbackCount := len(rl.fallbackLimiters)
	rl.fallbackMutex.Unlock()

	stats := map[string]any{
		"redis_enabled":     rl.redisClient.IsEnabled(),
		"fallback_limiters": fallbackCount,
		"config": map[string]any{
			"ip_limit_per_min":    rl.config.IPLimitPerMin,
			"score_limit_per_min": rl.config.ScoreLimitPerMin,
			"login_attempts":      rl.config.LoginAttempts,
			"login_window":        rl.config.LoginWindow.String(),
		},
	}
	if rl.redisClient.IsEnabled() {
		stats["redis_pool"] = rl.redisClient.GetPoolStats()
	}
	return stats
}
