package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// redis_rate stores every key under this prefix.
const redisRatePrefix = "rate:"

// InvalidateIP removes every limit tracked for an IP address, including a
// login lockout.
func (rl *RateLimiter) InvalidateIP(ctx context.Context, ip string) (int, error) {
	suffix := ":" + ip

	rl.fallbackMutex.Lock()
	removed := 0
	for key := range rl.fallbackLimiters {
		if strings.HasPrefix(key, keyPrefix) && strings.HasSuffix(key, suffix) {
			delete(rl.fallbackLimiters, key)
			removed++
		}
	}
	rl.fallbackMutex.Unlock()

	if rl.redisClient.IsEnabled() {
		n, err := rl.deleteByPattern(ctx, redisRatePrefix+keyPrefix+"*"+suffix)
		if err != nil {
			return removed, err
		}
		removed += n
	}

	slog.Info("Invalidated IP rate limits", "ip", ip, "count", removed)
	return removed, nil
}

// InvalidateAll removes all rate limit keys (emergency use only)
func (rl *RateLimiter) InvalidateAll(ctx context.Context) (int, error) {
	rl.fallbackMutex.Lock()
	removed := len(rl.fallbackLimiters)
	rl.fallbackLimiters = make(map[string]*fallbackEntry)
	rl.fallbackMutex.Unlock()

	if rl.redisClient.IsEnabled() {
		n, err := rl.deleteByPattern(ctx, redisRatePrefix+keyPrefix+"*")
		if err != nil {
			return removed, err
		}
		removed += n
	}

	slog.Warn("Invalidated all rate limits", "count", removed)
	return removed, nil
}

// deleteByPattern deletes all Redis keys matching a pattern
func (rl *RateLimiter) deleteByPattern(ctx context.Context, pattern string) (int, error) {
	client := rl.redisClient.GetClient()

	var cursor uint64
	deleted := 0
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to scan keys: %w", err)
		}
		if len(keys) > 0 {
			n, err := client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("failed to delete keys: %w", err)
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}
