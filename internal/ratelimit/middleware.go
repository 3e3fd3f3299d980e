package ratelimit

import (
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/blind-match/internal/errors"
)

func setHeaders(c *gin.Context, prefix string, result *Result) {
	c.Header(prefix+"-Limit", strconv.Itoa(result.Limit))
	c.Header(prefix+"-Remaining", strconv.Itoa(result.Remaining))
	c.Header(prefix+"-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func (rl *RateLimiter) reject(c *gin.Context, endpoint string, result *Result) {
	if rl.metrics != nil {
		rl.metrics.RecordRateLimitBlock(endpoint)
	}
	c.Header("Retry-After", strconv.Itoa(max(int(result.RetryAfter.Seconds()), 1)))
	_ = c.Error(errors.NewRateLimitError(result.RetryAfter))
	c.Abort()
}

// IPRateLimitMiddleware applies the general per-IP limit.
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		result, err := rl.AllowIP(c.Request.Context(), ip)
		if err != nil {
			// Never block on limiter failure.
			slog.Error("Rate limit check failed", "ip", ip, "error", err)
			c.Next()
			return
		}

		setHeaders(c, "X-RateLimit", result)
		if !result.Allowed {
			rl.reject(c, "ip", result)
			return
		}
		c.Next()
	}
}

// EndpointRateLimitMiddleware applies a per-IP per-minute limit to one
// endpoint group.
func (rl *RateLimiter) EndpointRateLimitMiddleware(endpoint string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		result, err := rl.Allow(c.Request.Context(), IPKey("endpoint:"+endpoint, ip), PerMinute(limit))
		if err != nil {
			slog.Error("Endpoint rate limit check failed", "endpoint", endpoint, "ip", ip, "error", err)
			c.Next()
			return
		}

		setHeaders(c, "X-RateLimit-Endpoint", result)
		if !result.Allowed {
			rl.reject(c, endpoint, result)
			return
		}
		c.Next()
	}
}
