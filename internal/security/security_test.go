package security

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ZanzyTHEbar/blind-match/internal/errors"
	"github.com/ZanzyTHEbar/blind-match/internal/monitoring"
	"github.com/ZanzyTHEbar/blind-match/internal/ratelimit"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestAuth(t *testing.T) (*AdminAuth, *ratelimit.RateLimiter, *monitoring.Metrics) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	limiter := ratelimit.NewRateLimiter(nil, ratelimit.DefaultConfig(), nil)
	metrics := monitoring.NewMetrics()
	auth, err := NewAdminAuth(AuthConfig{PasswordHash: string(hash), JWTSecret: testSecret}, limiter, metrics,
		monitoring.NewLoggerTo(io.Discard, slog.LevelError))
	require.NoError(t, err)
	return auth, limiter, metrics
}

func TestValidateInput(t *testing.T) {
	sm := NewSecurityMiddleware(DefaultSecurityConfig())

	tests := []struct {
		name     string
		input    string
		errorMsg string
	}{
		{"arabic text", "أحب المشي على البحر", ""},
		{"punctuation", "coffee -- or tea?", ""},
		{"too long", strings.Repeat("ب", 501), "maximum length"},
		{"null bytes", "test\x00input", "invalid characters"},
		{"invalid utf8", "test\xff\xfeinput", "invalid UTF-8"},
		{"script", "<script>alert(1)</script>", "suspicious"},
		{"javascript url", "JavaScript:alert(1)", "suspicious"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sm.ValidateInput(tt.input)
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	sm := NewSecurityMiddleware(DefaultSecurityConfig())

	tests := []struct {
		input, expected string
	}{
		{"  سارة  ", "سارة"},
		{"<script>alert('x')</script>Hello", "Hello"},
		{"<b>bold</b>   and\n\nplain", "bold and plain"},
		{"Rene\u0301e", "Ren\u00e9e"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, sm.SanitizeInput(tt.input))
	}

	cleaned, err := sm.CleanText("name", " <i>Nora</i> ")
	require.NoError(t, err)
	assert.Equal(t, "Nora", cleaned)

	_, err = sm.CleanText("name", "javascript:void(0)")
	require.Error(t, err)
	assert.Equal(t, errors.CategoryValidation, errors.ToAppError(err).Category)
}

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeadersMiddleware())
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/swagger/index.html", func(c *gin.Context) { c.String(http.StatusOK, "docs") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, apiCSP, w.Header().Get("Content-Security-Policy"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	assert.Equal(t, docsCSP, w.Header().Get("Content-Security-Policy"))
}

func TestValidateContentType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sm := NewSecurityMiddleware(DefaultSecurityConfig())

	r := gin.New()
	r.Use(errors.ErrorHandler(), sm.ValidateContentType)
	r.POST("/api/compatibility", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		contentType string
		expected    int
	}{
		{"application/json", http.StatusOK},
		{"application/json; charset=utf-8", http.StatusOK},
		{"text/plain", http.StatusBadRequest},
		{"", http.StatusOK},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/compatibility", bytes.NewBufferString(`{"event_id":1}`))
		if tt.contentType != "" {
			req.Header.Set("Content-Type", tt.contentType)
		}
		r.ServeHTTP(w, req)
		assert.Equal(t, tt.expected, w.Code, tt.contentType)
	}
}

func TestRequestTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	config := DefaultSecurityConfig()
	config.RequestTimeout = 5 * time.Millisecond
	sm := NewSecurityMiddleware(config)

	r := gin.New()
	r.Use(sm.RequestTimeout)
	r.GET("/slow", func(c *gin.Context) {
		select {
		case <-c.Request.Context().Done():
			c.Status(http.StatusGatewayTimeout)
		case <-time.After(time.Second):
			c.Status(http.StatusOK)
		}
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestNewAdminAuth_Config(t *testing.T) {
	limiter := ratelimit.NewRateLimiter(nil, ratelimit.DefaultConfig(), nil)
	logger := monitoring.NewLoggerTo(io.Discard, slog.LevelError)

	tests := []struct {
		name string
		cfg  AuthConfig
	}{
		{"short secret", AuthConfig{Password: "pw", JWTSecret: "short"}},
		{"no password", AuthConfig{JWTSecret: testSecret}},
		{"bad hash", AuthConfig{PasswordHash: "plain", JWTSecret: testSecret}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAdminAuth(tt.cfg, limiter, nil, logger)
			require.Error(t, err)
			assert.Equal(t, errors.CategoryConfiguration, errors.ToAppError(err).Category)
		})
	}
}

func TestAdminAuth_LoginAndParse(t *testing.T) {
	auth, _, _ := newTestAuth(t)

	token, expires, err := auth.Login(context.Background(), "198.51.100.1", "s3cret-pass")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(12*time.Hour), expires, time.Minute)

	claims, err := auth.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)

	_, err = auth.ParseToken(token + "x")
	assert.Error(t, err)
}

func TestAdminAuth_RejectsForeignTokens(t *testing.T) {
	auth, _, _ := newTestAuth(t)
	claims := Claims{
		Role: adminSubject,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   adminSubject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.ParseToken(none)
	assert.Error(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = auth.ParseToken(hs512)
	assert.Error(t, err)

	other, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("another-secret-of-enough-length"))
	require.NoError(t, err)
	_, err = auth.ParseToken(other)
	assert.Error(t, err)

	auth.now = func() time.Time { return time.Now().Add(-13 * time.Hour) }
	expired, _, err := auth.IssueToken()
	require.NoError(t, err)
	auth.now = time.Now
	_, err = auth.ParseToken(expired)
	assert.Error(t, err)
}

func TestAdminAuth_Lockout(t *testing.T) {
	auth, limiter, metrics := newTestAuth(t)
	ctx := context.Background()
	ip := "203.0.113.7"

	for i := 0; i < 5; i++ {
		_, _, err := auth.Login(ctx, ip, "wrong")
		require.Error(t, err)
		assert.Equal(t, errors.CategoryUnauthorized, errors.ToAppError(err).Category, "attempt %d", i+1)
	}

	_, _, err := auth.Login(ctx, ip, "s3cret-pass")
	require.Error(t, err)
	assert.Equal(t, errors.CategoryRateLimit, errors.ToAppError(err).Category)
	assert.Equal(t, int64(5), metrics.AdminLoginFails)

	_, _, err = auth.Login(ctx, "203.0.113.8", "s3cret-pass")
	require.NoError(t, err)

	removed, err := limiter.InvalidateIP(ctx, ip)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, _, err = auth.Login(ctx, ip, "s3cret-pass")
	require.NoError(t, err)
}

func TestAdminAuth_SuccessClearsFailures(t *testing.T) {
	auth, limiter, _ := newTestAuth(t)
	ctx := context.Background()
	ip := "203.0.113.9"

	for i := 0; i < 3; i++ {
		_, _, _ = auth.Login(ctx, ip, "wrong")
	}
	_, _, err := auth.Login(ctx, ip, "s3cret-pass")
	require.NoError(t, err)

	state, err := limiter.Peek(ctx, ratelimit.IPKey("login", ip), auth.lockout)
	require.NoError(t, err)
	assert.Equal(t, 5, state.Remaining)
}

func TestRequireAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth, _, _ := newTestAuth(t)
	token, _, err := auth.IssueToken()
	require.NoError(t, err)

	r := gin.New()
	r.Use(errors.ErrorHandler())
	r.GET("/api/admin/sessions", auth.RequireAdmin(), func(c *gin.Context) {
		subject, ok := AdminSubject(c)
		require.True(t, ok)
		c.String(http.StatusOK, subject)
	})

	tests := []struct {
		name     string
		header   string
		expected int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage", "Bearer not-a-token", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/admin/sessions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.expected, w.Code)
			if tt.expected == http.StatusOK {
				assert.Equal(t, "admin", w.Body.String())
			}
		})
	}
}
