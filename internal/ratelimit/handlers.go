package ratelimit

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/blind-match/internal/errors"
)

// HandleRateLimitStatus returns the limits that apply to the caller.
func (rl *RateLimiter) HandleRateLimitStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ip": c.ClientIP(),
			"limits": gin.H{
				"ip_per_minute":    rl.config.IPLimitPerMin,
				"score_per_minute": rl.config.ScoreLimitPerMin,
			},
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

// HandleAdminRateLimits returns limiter statistics (admin only)
func (rl *RateLimiter) HandleAdminRateLimits() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"limiter_stats": rl.GetStats(),
			"timestamp":     time.Now().Format(time.RFC3339),
		})
	}
}

// HandleAdminInvalidateIP clears every limit of an IP, lifting a login
// lockout (admin only)
func (rl *RateLimiter) HandleAdminInvalidateIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.Param("ip")
		if ip == "" {
			_ = c.Error(errors.NewValidationError("ip is required", nil))
			return
		}

		removed, err := rl.InvalidateIP(c.Request.Context(), ip)
		if err != nil {
			_ = c.Error(errors.NewInternalError("failed to invalidate IP rate limits", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":   "IP rate limits invalidated",
			"ip":        ip,
			"removed":   removed,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}
