package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/ZanzyTHEbar/blind-match/internal/database"
	"github.com/ZanzyTHEbar/blind-match/internal/errors"
	"github.com/ZanzyTHEbar/blind-match/internal/matching"
)

var (
	humorSubtypes = []string{"dry", "playful", "witty", "sarcastic"}
	curiosity     = []string{"A", "B", "C"}
)

// seedEvent saves size participants, alternating genders, directly through
// the participant service so the HTTP limiters stay out of the way.
func seedEvent(t *testing.T, s *testServer, eventID, size int) {
	t.Helper()
	ctx := context.Background()
	for n := 1; n <= size; n++ {
		gender, pref := "male", "female"
		if n%2 == 0 {
			gender, pref = "female", "male"
		}
		data, err := json.Marshal(survey(gender, pref, map[string]any{
			"humor_subtype":   humorSubtypes[n%len(humorSubtypes)],
			"curiosity_style": curiosity[n%len(curiosity)],
			"social_battery":  1 + n%5,
			"age":             24 + n%10,
		}))
		require.NoError(t, err)

		_, err = s.app.participants.Save(ctx, &database.Participant{
			AssignedNumber: n,
			Name:           fmt.Sprintf("Guest %d", n),
			Gender:         gender,
			EventID:        eventID,
			SurveyData:     datatypes.JSON(data),
		})
		require.NoError(t, err)
	}
}

func TestMatchRun_Performance(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping performance test in short mode")
	}

	s := newTestServer(t)
	const size = 24
	seedEvent(t, s, 1, size)

	req := matching.Request{EventID: 1, Round: 1}

	start := time.Now()
	cold, err := s.app.runner.Run(context.Background(), req)
	require.NoError(t, err)
	coldDuration := time.Since(start)

	// Opposite genders with mutual preferences: every cross pair is eligible.
	expectedPairs := (size / 2) * (size / 2)
	assert.Len(t, cold.Results, expectedPairs)
	assert.Equal(t, 0.0, cold.Session.CacheHitRate)

	start = time.Now()
	warm, err := s.app.runner.Run(context.Background(), req)
	require.NoError(t, err)
	warmDuration := time.Since(start)

	assert.Len(t, warm.Results, expectedPairs)
	assert.Equal(t, 1.0, warm.Session.CacheHitRate)
	for i := range cold.Results {
		assert.Equal(t, cold.Results[i].Score, warm.Results[i].Score)
	}

	t.Logf("Matrix run timing:")
	t.Logf("  Pairs: %d", expectedPairs)
	t.Logf("  Cold: %v", coldDuration)
	t.Logf("  Warm: %v", warmDuration)

	assert.Less(t, coldDuration, 10*time.Second, "Cold run should finish within 10 seconds")
}

func TestMatchRun_ConcurrentRunsSupersede(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping concurrency test in short mode")
	}

	s := newTestServer(t)
	seedEvent(t, s, 1, 16)

	const runs = 6
	var wg sync.WaitGroup
	errs := make(chan error, runs)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.app.runner.Run(context.Background(), matching.Request{EventID: 1, Round: 1})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var completed, cancelled int
	for err := range errs {
		if err == nil {
			completed++
			continue
		}
		var appErr *errors.AppError
		require.True(t, stderrors.As(err, &appErr), "unexpected error: %v", err)
		assert.Equal(t, errors.CategoryCancelled, appErr.Category)
		assert.Equal(t, http.StatusConflict, appErr.HTTPStatus)
		cancelled++
	}

	t.Logf("Concurrent runs: %d completed, %d superseded", completed, cancelled)
	assert.GreaterOrEqual(t, completed, 1, "The latest run must complete")
	assert.Equal(t, runs, completed+cancelled)
	assert.False(t, s.app.runner.Running(1))

	sessions, err := s.app.repo.ListSessions(context.Background(), 1, 50)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(sessions), 1)
	assert.LessOrEqual(t, len(sessions), completed, "Superseded runs record no session")
}

func TestEndpoint_ResponseTimeDistribution(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping response time distribution test in short mode")
	}

	s := newTestServer(t)
	seedEvent(t, s, 1, 2)

	// Stay inside the per-minute endpoint budget.
	numRequests := s.app.cfg.RateLimit.ScorePerMinute
	durations := make([]time.Duration, numRequests)

	for i := 0; i < numRequests; i++ {
		start := time.Now()
		w := s.do(t, http.MethodPost, "/api/compatibility", CompatibilityRequest{EventID: 1, A: 1, B: 2})
		durations[i] = time.Since(start)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	percentiles := calculatePercentiles(durations, 0.5, 0.95, 0.99)

	t.Logf("Response time distribution:")
	t.Logf("  Requests: %d", numRequests)
	t.Logf("  Min: %v", durations[0])
	t.Logf("  Max: %v", durations[len(durations)-1])
	t.Logf("  P50: %v", percentiles[0])
	t.Logf("  P95: %v", percentiles[1])
	t.Logf("  P99: %v", percentiles[2])

	assert.True(t, percentiles[1] < 1*time.Second, "95th percentile should be under 1 second")
	assert.Greater(t, s.app.metrics.CacheHits, int64(0))
}

func TestHealthEndpoint_ConcurrentRequests(t *testing.T) {
	s := newTestServer(t)

	const numRequests = 20
	var wg sync.WaitGroup
	codes := make(chan int, numRequests)
	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/health?probe=1", nil)
			req.Header.Set("User-Agent", "kube-probe/1.29")
			s.r.ServeHTTP(w, req)
			codes <- w.Code
		}()
	}
	wg.Wait()
	close(codes)

	for code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}
	assert.GreaterOrEqual(t, s.app.metrics.RequestCount, int64(numRequests))
}

func calculatePercentiles(sorted []time.Duration, percentiles ...float64) []time.Duration {
	results := make([]time.Duration, len(percentiles))
	if len(sorted) == 0 {
		return results
	}
	for i, p := range percentiles {
		index := int(float64(len(sorted)-1) * p)
		results[i] = sorted[index]
	}
	return results
}
