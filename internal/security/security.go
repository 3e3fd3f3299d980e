package security

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/unicode/norm"

	"github.com/ZanzyTHEbar/blind-match/internal/errors"
)

// SecurityConfig holds security configuration
type SecurityConfig struct {
	MaxInputLength int           `json:"max_input_length"`
	MaxBodyBytes   int64         `json:"max_body_bytes"`
	AllowedOrigins []string      `json:"allowed_origins"`
	TrustedProxies []string      `json:"trusted_proxies"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// DefaultSecurityConfig returns secure defaults
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxInputLength: 500,
		MaxBodyBytes:   1 << 20,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		TrustedProxies: []string{"127.0.0.1", "::1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
		RequestTimeout: 60 * time.Second,
	}
}

var (
	scriptPattern  = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	htmlTagPattern = regexp.MustCompile(`<[^>]+>`)
	spacePattern   = regexp.MustCompile(`\s+`)
)

// SecurityMiddleware validates and bounds incoming requests.
type SecurityMiddleware struct {
	config SecurityConfig
}

// NewSecurityMiddleware creates a new security middleware instance
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	return &SecurityMiddleware{config: config}
}

// Config returns the active configuration.
func (sm *SecurityMiddleware) Config() SecurityConfig {
	return sm.config
}

// ValidateInput rejects free text that is too long or not valid UTF-8.
// Arabic text is expected and allowed.
func (sm *SecurityMiddleware) ValidateInput(input string) error {
	if utf8.RuneCountInString(input) > sm.config.MaxInputLength {
		return fmt.Errorf("input exceeds maximum length of %d characters", sm.config.MaxInputLength)
	}
	if strings.Contains(input, "\x00") {
		return fmt.Errorf("input contains invalid characters")
	}
	if !utf8.ValidString(input) {
		return fmt.Errorf("input contains invalid UTF-8 encoding")
	}
	lower := strings.ToLower(input)
	if strings.Contains(lower, "<script") || strings.Contains(lower, "javascript:") {
		return fmt.Errorf("input contains suspicious patterns")
	}
	return nil
}

// SanitizeInput strips markup and collapses whitespace.
func (sm *SecurityMiddleware) SanitizeInput(input string) string {
	// Names typed on different keyboards arrive in mixed normalization forms.
	input = norm.NFC.String(input)
	input = scriptPattern.ReplaceAllString(input, "")
	input = htmlTagPattern.ReplaceAllString(input, "")
	input = spacePattern.ReplaceAllString(input, " ")
	return strings.TrimSpace(input)
}

// CleanText sanitizes then validates a free-text field.
func (sm *SecurityMiddleware) CleanText(field, input string) (string, error) {
	cleaned := sm.SanitizeInput(input)
	if err := sm.ValidateInput(cleaned); err != nil {
		return "", errors.NewValidationError(err.Error(), map[string]any{"field": field})
	}
	return cleaned, nil
}

// ValidateContentType rejects request bodies that are not JSON.
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	if c.Request.ContentLength == 0 || c.Request.Method == http.MethodGet {
		c.Next()
		return
	}
	contentType := strings.ToLower(c.GetHeader("Content-Type"))
	if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
		_ = c.Error(errors.NewValidationError("unsupported content type", map[string]any{"content_type": contentType}))
		c.Abort()
		return
	}
	c.Next()
}

// LimitBody caps request body size.
func (sm *SecurityMiddleware) LimitBody(c *gin.Context) {
	if sm.config.MaxBodyBytes > 0 && c.Request.Body != nil {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, sm.config.MaxBodyBytes)
	}
	c.Next()
}

// RequestTimeout bounds the request context. Scoring with AI enabled waits
// on the model, so the deadline also bounds upstream calls.
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))
	c.Next()
}
