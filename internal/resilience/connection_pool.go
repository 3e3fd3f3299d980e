package resilience

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// ConnectionPool is a shared HTTP client bounded to maxActive in-flight
// requests, with every request passing through a circuit breaker.
type ConnectionPool struct {
	maxIdle     int
	maxActive   int
	idleTimeout time.Duration

	circuitBreaker *CircuitBreaker
	client         *http.Client
	transport      *http.Transport
	slots          chan struct{}

	active   int64
	requests int64
	rejected int64
}

// NewConnectionPool creates a new connection pool with circuit breaker
func NewConnectionPool(maxIdle, maxActive int, idleTimeout, requestTimeout time.Duration, cb *CircuitBreaker) *ConnectionPool {
	if maxActive < 1 {
		maxActive = 1
	}
	if cb == nil {
		cb = NewCircuitBreaker(CircuitBreakerConfig{})
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          maxIdle,
		MaxConnsPerHost:       maxActive,
		MaxIdleConnsPerHost:   max(1, maxIdle/2),
		IdleConnTimeout:       idleTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: requestTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &ConnectionPool{
		maxIdle:        maxIdle,
		maxActive:      maxActive,
		idleTimeout:    idleTimeout,
		circuitBreaker: cb,
		transport:      transport,
		client:         &http.Client{Transport: transport, Timeout: requestTimeout},
		slots:          make(chan struct{}, maxActive),
	}
}

// CircuitBreaker returns the breaker guarding this pool.
func (cp *ConnectionPool) CircuitBreaker() *CircuitBreaker {
	return cp.circuitBreaker
}

func (cp *ConnectionPool) acquire(ctx context.Context) error {
	select {
	case cp.slots <- struct{}{}:
		atomic.AddInt64(&cp.active, 1)
		return nil
	case <-ctx.Done():
		atomic.AddInt64(&cp.rejected, 1)
		return fmt.Errorf("connection pool exhausted: %d active requests: %w", cp.maxActive, ctx.Err())
	}
}

func (cp *ConnectionPool) release() {
	atomic.AddInt64(&cp.active, -1)
	<-cp.slots
}

// DoRequest executes an HTTP request through the breaker. Responses with a
// retryable status (408, 429, 5xx) count as breaker failures and are
// returned as *HTTPError with the body drained. Other non-2xx responses are
// returned to the caller untouched.
func (cp *ConnectionPool) DoRequest(ctx context.Context, method, url string, headers map[string]string, body []byte) (*http.Response, error) {
	if err := cp.acquire(ctx); err != nil {
		return nil, err
	}
	defer cp.release()

	atomic.AddInt64(&cp.requests, 1)

	var resp *http.Response
	err := cp.circuitBreaker.Call(func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return err
		}
		for key, value := range headers {
			req.Header.Set(key, value)
		}

		start := time.Now()
		r, err := cp.client.Do(req)
		duration := time.Since(start)
		if err != nil {
			slog.Warn("Request failed", "url", url, "error", err, "duration_ms", duration.Milliseconds())
			return err
		}

		slog.Debug("Request completed", "url", url, "status", r.StatusCode, "duration_ms", duration.Milliseconds())

		if IsRetryableHTTPStatus(r.StatusCode) {
			_, _ = io.Copy(io.Discard, r.Body)
			_ = r.Body.Close()
			return NewHTTPError(r.StatusCode, r.Status)
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]any {
	return map[string]any{
		"active_requests":       atomic.LoadInt64(&cp.active),
		"total_requests":        atomic.LoadInt64(&cp.requests),
		"rejected_requests":     atomic.LoadInt64(&cp.rejected),
		"max_idle":              cp.maxIdle,
		"max_active":            cp.maxActive,
		"idle_timeout_ms":       cp.idleTimeout.Milliseconds(),
		"circuit_breaker_state": cp.circuitBreaker.State().String(),
	}
}

// Close releases idle connections.
func (cp *ConnectionPool) Close() error {
	cp.transport.CloseIdleConnections()
	slog.Info("Connection pool closed")
	return nil
}
