package security

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/ZanzyTHEbar/blind-match/internal/errors"
	"github.com/ZanzyTHEbar/blind-match/internal/monitoring"
	"github.com/ZanzyTHEbar/blind-match/internal/ratelimit"
)

const (
	adminSubject = "admin"
	adminKey     = "admin_subject"
	tokenIssuer  = "blind-match"
)

var errInvalidCredentials = stderrors.New("invalid credentials")

// AuthConfig configures admin authentication. PasswordHash is a bcrypt hash;
// a plain Password is hashed at startup when no hash is given.
type AuthConfig struct {
	Password      string
	PasswordHash  string
	JWTSecret     string
	TokenTTL      time.Duration
	LoginAttempts int
	LoginWindow   time.Duration
}

// Claims are the admin session token claims.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthMetrics receives failed login counts.
type AuthMetrics interface {
	IncrementAdminLoginFail()
}

// AdminAuth issues and verifies admin session tokens. Failed logins are
// counted per IP and lock the IP out once the attempts are used up.
type AdminAuth struct {
	hash    []byte
	secret  []byte
	ttl     time.Duration
	limiter *ratelimit.RateLimiter
	lockout ratelimit.Rate
	metrics AuthMetrics
	logger  *monitoring.Logger
	now     func() time.Time
}

// NewAdminAuth validates the configuration and creates the authenticator.
func NewAdminAuth(cfg AuthConfig, limiter *ratelimit.RateLimiter, metrics AuthMetrics, logger *monitoring.Logger) (*AdminAuth, error) {
	if len(cfg.JWTSecret) < 16 {
		return nil, errors.NewConfigurationError("admin JWT secret must be at least 16 bytes", nil)
	}

	hash := []byte(cfg.PasswordHash)
	switch {
	case len(hash) > 0:
		if _, err := bcrypt.Cost(hash); err != nil {
			return nil, errors.NewConfigurationError("admin password hash is not a bcrypt hash", err)
		}
	case cfg.Password != "":
		h, err := HashPassword(cfg.Password)
		if err != nil {
			return nil, errors.NewConfigurationError("failed to hash admin password", err)
		}
		hash = h
	default:
		return nil, errors.NewConfigurationError("admin password is not configured", nil)
	}

	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 12 * time.Hour
	}
	if cfg.LoginAttempts <= 0 {
		cfg.LoginAttempts = 5
	}
	if cfg.LoginWindow <= 0 {
		cfg.LoginWindow = 15 * time.Minute
	}

	return &AdminAuth{
		hash:    hash,
		secret:  []byte(cfg.JWTSecret),
		ttl:     cfg.TokenTTL,
		limiter: limiter,
		lockout: ratelimit.Rate{Limit: cfg.LoginAttempts, Period: cfg.LoginWindow},
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// HashPassword returns the bcrypt hash of a password.
func HashPassword(password string) ([]byte, error) {
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("password is empty")
	}
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// Login checks the admin password for a client IP and returns a signed token.
func (a *AdminAuth) Login(ctx context.Context, ip, password string) (string, time.Time, error) {
	key := ratelimit.IPKey("login", ip)

	state, err := a.limiter.Peek(ctx, key, a.lockout)
	if err != nil {
		return "", time.Time{}, errors.NewInternalError("login lockout check failed", err)
	}
	if !state.Allowed {
		a.logger.SecurityLogger("admin_login_locked", ip, "", map[string]any{"retry_after": state.ResetAt.Sub(a.now()).String()})
		return "", time.Time{}, errors.NewRateLimitError(max(state.ResetAt.Sub(a.now()), time.Second))
	}

	if bcrypt.CompareHashAndPassword(a.hash, []byte(password)) != nil {
		if _, err := a.limiter.Allow(ctx, key, a.lockout); err != nil {
			a.logger.SecurityLogger("admin_login_count_failed", ip, "", map[string]any{"error": err.Error()})
		}
		if a.metrics != nil {
			a.metrics.IncrementAdminLoginFail()
		}
		a.logger.SecurityLogger("admin_login_failed", ip, "", nil)
		return "", time.Time{}, errors.NewUnauthorizedError(errInvalidCredentials.Error())
	}

	if err := a.limiter.Reset(ctx, key); err != nil {
		a.logger.SecurityLogger("admin_login_reset_failed", ip, "", map[string]any{"error": err.Error()})
	}

	token, expires, err := a.IssueToken()
	if err != nil {
		return "", time.Time{}, errors.NewInternalError("failed to sign admin token", err)
	}
	a.logger.SecurityLogger("admin_login", ip, "", nil)
	return token, expires, nil
}

// IssueToken signs a new admin session token.
func (a *AdminAuth) IssueToken() (string, time.Time, error) {
	now := a.now()
	expires := now.Add(a.ttl)
	claims := Claims{
		Role: adminSubject,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   adminSubject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ParseToken verifies a session token.
func (a *AdminAuth) ParseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, err
	}
	if !tok.Valid || claims.Role != adminSubject {
		return nil, fmt.Errorf("invalid admin token")
	}
	return claims, nil
}

// RequireAdmin rejects requests without a valid bearer token.
func (a *AdminAuth) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			_ = c.Error(errors.NewUnauthorizedError("missing bearer token"))
			c.Abort()
			return
		}

		claims, err := a.ParseToken(strings.TrimSpace(raw))
		if err != nil {
			a.logger.SecurityLogger("admin_token_rejected", c.ClientIP(), c.GetHeader("User-Agent"), map[string]any{"error": err.Error()})
			_ = c.Error(errors.NewUnauthorizedError("invalid or expired token"))
			c.Abort()
			return
		}

		c.Set(adminKey, claims.Subject)
		c.Next()
	}
}

// AdminSubject returns the authenticated admin of a request.
func AdminSubject(c *gin.Context) (string, bool) {
	v, ok := c.Get(adminKey)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
