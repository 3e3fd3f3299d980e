package resilience

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/blind-match/internal/errors"
)

// RetryConfig holds configuration for retry behavior
type RetryConfig struct {
	MaxAttempts     int              `json:"max_attempts"`
	InitialDelay    time.Duration    `json:"initial_delay"`
	MaxDelay        time.Duration    `json:"max_delay"`
	BackoffFactor   float64          `json:"backoff_factor"`
	JitterEnabled   bool             `json:"jitter_enabled"`
	RetryableErrors func(error) bool `json:"-"`
}

// DefaultRetryConfig returns sensible defaults for retry behavior
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        30 * time.Second,
		BackoffFactor:   2.0,
		JitterEnabled:   true,
		RetryableErrors: IsRetryable,
	}
}

// IsRetryable reports whether err is worth another attempt: transient
// application errors and retryable upstream HTTP statuses.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *HTTPError
	if stderrors.As(err, &httpErr) {
		return IsRetryableHTTPStatus(httpErr.StatusCode)
	}
	var cbErr *CircuitBreakerError
	if stderrors.As(err, &cbErr) {
		return false
	}
	return errors.IsRetryableError(err)
}

// RetryableFunc represents a function that can be retried
type RetryableFunc func() error

// RetryWithConfig executes a function with retry logic using custom configuration
func RetryWithConfig(ctx context.Context, config RetryConfig, fn RetryableFunc) error {
	if config.RetryableErrors == nil {
		config.RetryableErrors = IsRetryable
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !config.RetryableErrors(err) || attempt == config.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(calculateDelay(config, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// Retry executes a function with retry logic using default configuration
func Retry(ctx context.Context, fn RetryableFunc) error {
	return RetryWithConfig(ctx, DefaultRetryConfig(), fn)
}

// calculateDelay computes the delay for the next retry attempt
func calculateDelay(config RetryConfig, attempt int) time.Duration {
	// initial_delay * backoff_factor^attempt
	delay := time.Duration(float64(config.InitialDelay) * math.Pow(config.BackoffFactor, float64(attempt)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if config.JitterEnabled && delay >= 10 {
		delay += time.Duration(rand.Int63n(int64(delay / 10)))
	}

	return delay
}

// IsRetryableHTTPStatus checks if an HTTP status code should trigger a retry
func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429:
		return true
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// HTTPError represents an upstream response with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, status string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Status:     status,
		Message:    "upstream returned " + status,
	}
}

// RetryPolicy defines different retry strategies
type RetryPolicy struct {
	Name   string
	Config RetryConfig
}

var (
	// FastRetryPolicy for quick-retry scenarios
	FastRetryPolicy = RetryPolicy{
		Name: "fast",
		Config: RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  50 * time.Millisecond,
			MaxDelay:      1 * time.Second,
			BackoffFactor: 2.0,
			JitterEnabled: true,
		},
	}

	// StandardRetryPolicy for general use cases
	StandardRetryPolicy = RetryPolicy{
		Name: "standard",
		Config: RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  100 * time.Millisecond,
			MaxDelay:      10 * time.Second,
			BackoffFactor: 2.0,
			JitterEnabled: true,
		},
	}

	// SlowRetryPolicy for model endpoints that need longer delays
	SlowRetryPolicy = RetryPolicy{
		Name: "slow",
		Config: RetryConfig{
			MaxAttempts:   4,
			InitialDelay:  500 * time.Millisecond,
			MaxDelay:      8 * time.Second,
			BackoffFactor: 1.5,
			JitterEnabled: true,
		},
	}
)

// RetryManager maps service names to retry policies.
type RetryManager struct {
	mu       sync.RWMutex
	policies map[string]RetryPolicy
}

// NewRetryManager creates a new retry manager
func NewRetryManager() *RetryManager {
	return &RetryManager{
		policies: make(map[string]RetryPolicy),
	}
}

// RegisterPolicy registers a retry policy for a service
func (rm *RetryManager) RegisterPolicy(serviceName string, policy RetryPolicy) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.policies[serviceName] = policy
}

// GetPolicy returns the retry policy for a service, or standard policy if not found
func (rm *RetryManager) GetPolicy(serviceName string) RetryPolicy {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	if policy, exists := rm.policies[serviceName]; exists {
		return policy
	}
	return StandardRetryPolicy
}

// Execute runs fn under the service's policy.
func (rm *RetryManager) Execute(ctx context.Context, serviceName string, fn RetryableFunc) error {
	return RetryWithConfig(ctx, rm.GetPolicy(serviceName).Config, fn)
}
