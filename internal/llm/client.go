package llm

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/blind-match/internal/errors"
	"github.com/ZanzyTHEbar/blind-match/internal/monitoring"
	"github.com/ZanzyTHEbar/blind-match/internal/resilience"
)

// ServiceName identifies the model endpoint in metrics, retry policies and
// degradation tracking.
const ServiceName = "llm"

var (
	// ErrDisabled is returned when no API key is configured.
	ErrDisabled = stderrors.New("llm client disabled")
	// ErrUnavailable is returned while the degradation manager has the
	// endpoint in emergency state.
	ErrUnavailable = stderrors.New("llm temporarily unavailable")
)

// Client defaults.
const (
	DefaultModel         = "gpt-4o-mini"
	DefaultTimeout       = 20 * time.Second
	DefaultMaxConcurrent = 8
)

// Config holds the chat-completions endpoint settings.
type Config struct {
	BaseURL       string        `json:"base_url"`
	APIKey        string        `json:"-"`
	Model         string        `json:"model"`
	Temperature   float64       `json:"temperature"`
	Timeout       time.Duration `json:"timeout"`
	MaxConcurrent int           `json:"max_concurrent"`
}

// Metrics is the subset of monitoring.Metrics the client reports to.
type Metrics interface {
	RecordExternalAPIRequest(apiName string, success bool)
	IncrementCircuitOpen()
}

// Client talks to an OpenAI-compatible chat completions API.
type Client struct {
	cfg         Config
	endpoint    string
	pool        *resilience.ConnectionPool
	retry       *resilience.RetryManager
	degradation *resilience.DegradationManager
	metrics     Metrics
	logger      *monitoring.Logger
}

// NewClient creates a client with its own breaker, bounded pool and retry policy.
func NewClient(cfg Config, metrics Metrics, logger *monitoring.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if logger == nil {
		logger = monitoring.NewLogger("info")
	}

	c := &Client{
		cfg:      cfg,
		endpoint: normalizeEndpoint(cfg.BaseURL),
		metrics:  metrics,
		logger:   logger,
	}

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
		OnOpen: func() {
			if c.metrics != nil {
				c.metrics.IncrementCircuitOpen()
			}
			c.logger.SystemLogger("circuit_open", "llm circuit breaker opened")
		},
	})
	c.pool = resilience.NewConnectionPool(cfg.MaxConcurrent, cfg.MaxConcurrent, 90*time.Second, cfg.Timeout, cb)

	c.retry = resilience.NewRetryManager()
	c.retry.RegisterPolicy(ServiceName, resilience.SlowRetryPolicy)

	c.degradation = resilience.NewDegradationManager(resilience.DefaultDegradationConfig())
	c.degradation.RegisterService(ServiceName)

	return c
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return strings.TrimSpace(c.cfg.APIKey) != ""
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends one system+user exchange and returns the first choice's text.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}
	if !c.degradation.IsServiceAvailable(ServiceName) {
		return "", ErrUnavailable
	}

	payload, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", errors.NewInternalError("failed to encode llm request", err)
	}

	headers := map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + c.cfg.APIKey,
	}

	var content string
	start := time.Now()
	status := 0
	err = c.retry.Execute(ctx, ServiceName, func() error {
		resp, err := c.pool.DoRequest(ctx, http.MethodPost, c.endpoint, headers, payload)
		if err != nil {
			var httpErr *resilience.HTTPError
			if stderrors.As(err, &httpErr) {
				status = httpErr.StatusCode
			}
			return err
		}
		defer resp.Body.Close()
		status = resp.StatusCode

		if resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("llm status %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(body)),
				resilience.NewHTTPError(resp.StatusCode, resp.Status))
		}

		var cc chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&cc); err != nil {
			return fmt.Errorf("decode llm response: %w", err)
		}
		if len(cc.Choices) == 0 {
			return stderrors.New("llm returned no choices")
		}
		content = cc.Choices[0].Message.Content
		return nil
	})

	success := err == nil
	c.logger.ExternalAPILogger(ServiceName, http.MethodPost, c.endpoint, status, time.Since(start), success)
	if c.metrics != nil {
		c.metrics.RecordExternalAPIRequest(ServiceName, success)
	}
	if err != nil {
		c.degradation.RecordError(ServiceName, err)
		return "", errors.NewExternalAPIError(ServiceName, err)
	}
	c.degradation.RecordRequest(ServiceName, true)

	return content, nil
}

// Health returns the degradation state and pool statistics.
func (c *Client) Health() map[string]any {
	return map[string]any{
		"enabled":  c.Enabled(),
		"model":    c.cfg.Model,
		"services": c.degradation.GetAllServiceHealth(),
		"pool":     c.pool.GetStats(),
	}
}

// Reset closes the breaker and clears degradation state, so an operator can
// bring the endpoint back before the recovery window elapses.
func (c *Client) Reset() {
	c.pool.CircuitBreaker().Reset()
	c.degradation.ResetService(ServiceName)
	c.logger.SystemLogger("llm_reset", "circuit breaker and degradation state cleared")
}

// Close releases pooled connections.
func (c *Client) Close() error {
	return c.pool.Close()
}

func normalizeEndpoint(base string) string {
	endpoint := strings.TrimRight(strings.TrimSpace(base), "/")
	if endpoint == "" {
		endpoint = "https://api.openai.com"
	}
	switch {
	case strings.HasSuffix(endpoint, "/chat/completions"):
		return endpoint
	case strings.HasSuffix(endpoint, "/v1"):
		return endpoint + "/chat/completions"
	default:
		return endpoint + "/v1/chat/completions"
	}
}
