package llm

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/blind-match/internal/analysis"
	"github.com/ZanzyTHEbar/blind-match/internal/errors"
	"github.com/ZanzyTHEbar/blind-match/internal/monitoring"
	"github.com/ZanzyTHEbar/blind-match/internal/resilience"
)

type recordingMetrics struct {
	success, failure, opens int
}

func (m *recordingMetrics) RecordExternalAPIRequest(_ string, success bool) {
	if success {
		m.success++
	} else {
		m.failure++
	}
}

func (m *recordingMetrics) IncrementCircuitOpen() { m.opens++ }

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
	})
	return string(b)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *recordingMetrics) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	metrics := &recordingMetrics{}
	client := NewClient(Config{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "test-model",
		Timeout: 2 * time.Second,
	}, metrics, monitoring.NewLoggerTo(io.Discard, slog.LevelError))
	t.Cleanup(func() { _ = client.Close() })
	return client, metrics
}

func TestClient_Complete(t *testing.T) {
	client, metrics := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "hello", req.Messages[1].Content)

		_, _ = io.WriteString(w, completionBody("hi there"))
	})

	reply, err := client.Complete(context.Background(), "be brief", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", reply)
	assert.Equal(t, 1, metrics.success)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, completionBody("ok"))
	})

	reply, err := client.Complete(context.Background(), "", "x")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	client, metrics := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"bad key"}`)
	})

	_, err := client.Complete(context.Background(), "", "x")
	require.Error(t, err)
	assert.Equal(t, errors.CategoryExternalAPI, errors.ToAppError(err).Category)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Equal(t, 1, metrics.failure)
}

func TestClient_Disabled(t *testing.T) {
	client := NewClient(Config{}, nil, nil)
	assert.False(t, client.Enabled())

	_, err := client.Complete(context.Background(), "", "x")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestClient_ResetRestoresAvailability(t *testing.T) {
	var healthy atomic.Bool
	client, metrics := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, completionBody("back"))
	})

	for range 12 {
		_, _ = client.Complete(context.Background(), "", "x")
	}
	_, err := client.Complete(context.Background(), "", "x")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 10, metrics.failure)

	healthy.Store(true)
	_, err = client.Complete(context.Background(), "", "x")
	require.ErrorIs(t, err, ErrUnavailable, "degradation state outlives upstream recovery")

	client.Reset()

	reply, err := client.Complete(context.Background(), "", "x")
	require.NoError(t, err)
	assert.Equal(t, "back", reply)

	services, ok := client.Health()["services"].(map[string]*resilience.ServiceHealth)
	require.True(t, ok)
	require.Contains(t, services, ServiceName)
	assert.Equal(t, resilience.LevelNormal, services[ServiceName].Level)
	assert.EqualValues(t, 1, services[ServiceName].TotalRequests)
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := map[string]string{
		"":                                      "https://api.openai.com/v1/chat/completions",
		"https://llm.local":                     "https://llm.local/v1/chat/completions",
		"https://llm.local/v1/":                 "https://llm.local/v1/chat/completions",
		"https://llm.local/v1/chat/completions": "https://llm.local/v1/chat/completions",
	}
	for in, expected := range tests {
		assert.Equal(t, expected, normalizeEndpoint(in), in)
	}
}

func TestParseVibePoints(t *testing.T) {
	tests := []struct {
		reply    string
		expected float64
		wantErr  bool
	}{
		{"17", 17, false},
		{"Score: 12.5 / 20", 12.5, false},
		{"14,5", 14.5, false},
		{"35", 20, false},
		{"-4", 0, false},
		{"no idea", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			got, err := ParseVibePoints(tt.reply, 20)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

type fakeCompleter struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeCompleter) Complete(_ context.Context, _, prompt string) (string, error) {
	f.prompt = prompt
	return f.reply, f.err
}

func TestVibeScorer(t *testing.T) {
	a := analysis.Traits{Number: 1, VibeAnswers: []string{"I love hiking"}}
	b := analysis.Traits{Number: 2}

	fc := &fakeCompleter{reply: "16"}
	points, err := NewVibeScorer(fc).ScoreVibe(context.Background(), a, b)
	require.NoError(t, err)
	assert.Equal(t, 16.0, points)
	assert.Contains(t, fc.prompt, "I love hiking")
	assert.Contains(t, fc.prompt, "(no answers)")

	_, err = NewVibeScorer(&fakeCompleter{err: stderrors.New("down")}).ScoreVibe(context.Background(), a, b)
	assert.Error(t, err)

	_, err = NewVibeScorer(fc).ScoreVibe(context.Background(), analysis.Traits{Number: 1}, b)
	assert.ErrorIs(t, err, ErrNoVibeAnswers)
}

func TestVibeScorer_FallbackThroughScorer(t *testing.T) {
	a := analysis.Traits{Number: 1, VibeAnswers: []string{"x"}}
	b := analysis.Traits{Number: 2, VibeAnswers: []string{"y"}}

	scorer := analysis.NewScorer(analysis.DefaultPolicy(), NewVibeScorer(&fakeCompleter{err: stderrors.New("down")}), nil)
	raw := scorer.Raw(context.Background(), a, b, true)
	assert.Equal(t, analysis.VibeFromFallback, raw.VibeSource)
	assert.Equal(t, 1.0, raw.Vibe)

	scorer = analysis.NewScorer(analysis.DefaultPolicy(), NewVibeScorer(&fakeCompleter{reply: "10"}), nil)
	raw = scorer.Raw(context.Background(), a, b, true)
	assert.Equal(t, analysis.VibeFromLLM, raw.VibeSource)
	assert.InDelta(t, 0.5, raw.Vibe, 1e-9)
}
