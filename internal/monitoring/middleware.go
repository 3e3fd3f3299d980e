package monitoring

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	slowRequest     = 5 * time.Second
	maxScoringBody  = 64 << 10
	scoringEndpoint = "/api/compatibility"
)

// MonitoringMiddleware creates Gin middleware for request monitoring
func MonitoringMiddleware(metrics *Metrics, logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.IncrementRequest()

		ip := c.ClientIP()
		method := c.Request.Method
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		metrics.RecordResponseTime(duration)
		metrics.RecordRequestByStatus(statusCode)
		if statusCode >= 400 {
			metrics.IncrementError()
		}

		logger.RequestLogger(method, path, ip, statusCode, duration)
		for _, err := range c.Errors {
			logger.APIErrorLogger(err.Err, method, path, ip, statusCode)
		}

		if duration > slowRequest {
			logger.SystemLogger("slow_request", fmt.Sprintf("%s %s took %s", method, path, duration))
		}
	}
}

var suspiciousAgents = []string{
	"sqlmap", "nmap", "masscan", "zmap", "dirbuster", "gobuster", "nikto", "acunetix",
}

var injectionPatterns = []string{
	"union select", "union all", "drop table", "delete from", "';--", "/*", "*/",
}

// SecurityMonitoringMiddleware logs requests that look like probing.
func SecurityMonitoringMiddleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userAgent := c.GetHeader("User-Agent")
		details := make(map[string]any)

		if containsAny(c.Request.URL.RawQuery, injectionPatterns) {
			details["type"] = "potential_sql_injection"
			details["query"] = c.Request.URL.RawQuery
		}
		if strings.HasPrefix(c.Request.URL.Path, scoringEndpoint) && c.Request.ContentLength > maxScoringBody {
			details["type"] = "large_request_body"
			details["size_bytes"] = c.Request.ContentLength
		}
		if containsAny(userAgent, suspiciousAgents) {
			details["type"] = "suspicious_user_agent"
		}

		if len(details) > 0 {
			logger.SecurityLogger("suspicious_activity_detected", c.ClientIP(), userAgent, details)
		}

		c.Next()
	}
}

func containsAny(s string, patterns []string) bool {
	s = strings.ToLower(s)
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
