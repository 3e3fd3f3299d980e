package resilience

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/blind-match/internal/errors"
)

func fastConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:   attempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
	}
}

func TestRetryWithConfig(t *testing.T) {
	tests := []struct {
		name          string
		errs          []error
		expectedCalls int
		expectErr     bool
	}{
		{"success first try", []error{nil}, 1, false},
		{"retry transient then succeed", []error{errors.NewNetworkError("reset", nil), nil}, 2, false},
		{"non retryable stops", []error{errors.NewValidationError("bad", nil), nil}, 1, true},
		{"retryable status", []error{NewHTTPError(503, "503 Service Unavailable"), nil}, 2, false},
		{"client status stops", []error{NewHTTPError(400, "400 Bad Request"), nil}, 1, true},
		{"gives up after max attempts", []error{
			errors.NewTimeoutError("slow", nil),
			errors.NewTimeoutError("slow", nil),
			errors.NewTimeoutError("slow", nil),
		}, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := RetryWithConfig(context.Background(), fastConfig(3), func() error {
				err := tt.errs[calls]
				calls++
				return err
			})

			assert.Equal(t, tt.expectedCalls, calls)
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetryWithConfig_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryWithConfig(ctx, fastConfig(3), func() error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestCalculateDelay(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}

	assert.Equal(t, 100*time.Millisecond, calculateDelay(cfg, 0))
	assert.Equal(t, 400*time.Millisecond, calculateDelay(cfg, 2))
	assert.Equal(t, time.Second, calculateDelay(cfg, 10))

	cfg.JitterEnabled = true
	d := calculateDelay(cfg, 0)
	assert.GreaterOrEqual(t, d, 100*time.Millisecond)
	assert.Less(t, d, 110*time.Millisecond)
}

func TestRetryManager_Policies(t *testing.T) {
	rm := NewRetryManager()
	assert.Equal(t, "standard", rm.GetPolicy("llm").Name)

	policy := FastRetryPolicy
	policy.Config.InitialDelay = time.Millisecond
	rm.RegisterPolicy("llm", policy)
	assert.Equal(t, "fast", rm.GetPolicy("llm").Name)

	calls := 0
	err := rm.Execute(context.Background(), "llm", func() error {
		calls++
		if calls < 3 {
			return errors.NewNetworkError("flaky", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	opened := 0
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
		SuccessThreshold: 1,
		OnOpen:           func() { opened++ },
	})
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }

	boom := stderrors.New("boom")
	assert.ErrorIs(t, cb.Call(func() error { return boom }), boom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Call(func() error { return boom }), boom)
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, 1, opened)

	called := false
	err := cb.Call(func() error { called = true; return nil })
	var cbErr *CircuitBreakerError
	require.ErrorAs(t, err, &cbErr)
	assert.False(t, called)
	assert.False(t, IsRetryable(err))

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Second})
	now := time.Now()
	cb.now = func() time.Time { return now }

	_ = cb.Call(func() error { return stderrors.New("x") })
	require.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Second)
	_ = cb.Call(func() error { return stderrors.New("still down") })
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerRegistry(t *testing.T) {
	r := NewCircuitBreakerRegistry()
	a := r.GetOrCreate("llm", CircuitBreakerConfig{FailureThreshold: 1})
	assert.Same(t, a, r.GetOrCreate("llm", CircuitBreakerConfig{}))

	_ = a.Call(func() error { return stderrors.New("x") })
	stats := r.GetStats()["llm"].(map[string]any)
	assert.Equal(t, "open", stats["state"])

	r.ResetAll()
	assert.Equal(t, StateClosed, a.State())
}

func TestConnectionPool_DoRequest(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		body, _ := io.ReadAll(r.Body)
		switch r.URL.Path {
		case "/echo":
			assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
			_, _ = w.Write(body)
		case "/down":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute})
	pool := NewConnectionPool(4, 2, time.Minute, 5*time.Second, cb)
	defer pool.Close()

	resp, err := pool.DoRequest(context.Background(), http.MethodPost, server.URL+"/echo",
		map[string]string{"Authorization": "Bearer k"}, []byte("ping"))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ping", string(body))

	resp, err = pool.DoRequest(context.Background(), http.MethodGet, server.URL+"/bad", nil, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	for i := 0; i < 2; i++ {
		_, err = pool.DoRequest(context.Background(), http.MethodGet, server.URL+"/down", nil, nil)
		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	}
	assert.Equal(t, StateOpen, cb.State())

	before := atomic.LoadInt32(&hits)
	_, err = pool.DoRequest(context.Background(), http.MethodGet, server.URL+"/echo", nil, nil)
	assert.Error(t, err)
	assert.Equal(t, before, atomic.LoadInt32(&hits))

	stats := pool.GetStats()
	assert.EqualValues(t, 5, stats["total_requests"])
	assert.Equal(t, "open", stats["circuit_breaker_state"])
}

func TestConnectionPool_ExhaustedRespectsContext(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	pool := NewConnectionPool(1, 1, time.Minute, 5*time.Second, nil)

	started := make(chan struct{})
	go func() {
		close(started)
		resp, err := pool.DoRequest(context.Background(), http.MethodGet, server.URL, nil, nil)
		if err == nil {
			resp.Body.Close()
		}
	}()
	<-started
	require.Eventually(t, func() bool {
		return pool.GetStats()["active_requests"].(int64) == 1
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := pool.DoRequest(ctx, http.MethodGet, server.URL, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection pool exhausted")
}

func TestDegradationManager_Levels(t *testing.T) {
	cfg := DefaultDegradationConfig()
	cfg.MinRequests = 4
	dm := NewDegradationManager(cfg)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	dm.now = func() time.Time { return now }

	dm.RegisterService("llm")
	assert.True(t, dm.IsServiceAvailable("llm"))
	assert.False(t, dm.IsServiceAvailable("unknown"))

	for i := 0; i < 3; i++ {
		dm.RecordError("llm", stderrors.New("down"))
	}
	health, ok := dm.GetServiceHealth("llm")
	require.True(t, ok)
	assert.Equal(t, LevelNormal, health.Level, "below min requests")

	dm.RecordRequest("llm", false)
	health, _ = dm.GetServiceHealth("llm")
	assert.Equal(t, LevelEmergency, health.Level)
	assert.Equal(t, "emergency", health.LevelName)
	assert.False(t, dm.IsServiceAvailable("llm"))

	now = now.Add(cfg.RecoveryTimeWindow + time.Second)
	assert.True(t, dm.IsServiceAvailable("llm"))

	dm.RecordRequest("llm", true)
	health, _ = dm.GetServiceHealth("llm")
	assert.EqualValues(t, 1, health.TotalRequests)
	assert.Equal(t, LevelNormal, health.Level)

	dm.ResetService("llm")
	assert.Len(t, dm.GetAllServiceHealth(), 1)
}
