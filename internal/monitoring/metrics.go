package monitoring

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const responseSamples = 1000

// Metrics holds application metrics
type Metrics struct {
	RequestCount int64
	ErrorCount   int64
	CacheHits    int64
	CacheMisses  int64
	StartTime    time.Time

	PairsScored      int64
	PairsVetoed      int64
	MatchRuns        int64
	MatchRunFailures int64
	AdminLoginFails  int64

	ResponseTimes      []time.Duration
	ResponseTimesMutex sync.RWMutex

	RequestCountByStatus map[int]int64
	StatusMutex          sync.RWMutex

	CircuitBreakerOpens int64

	ExternalAPIRequests   map[string]int64
	ExternalAPIErrorCount map[string]int64
	ExternalAPIMutex      sync.RWMutex

	QuestionSetsBySource map[string]int64
	QuestionMutex        sync.RWMutex

	RateLimitBlocks      int64
	RateLimitRedisErrors int64
	RateLimitEndpoints   map[string]int64
	RateLimitMutex       sync.RWMutex

	GCCount   int64
	HeapAlloc int64
	HeapSys   int64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime:             time.Now(),
		ResponseTimes:         make([]time.Duration, 0, responseSamples),
		RequestCountByStatus:  make(map[int]int64),
		ExternalAPIRequests:   make(map[string]int64),
		ExternalAPIErrorCount: make(map[string]int64),
		QuestionSetsBySource:  make(map[string]int64),
		RateLimitEndpoints:    make(map[string]int64),
	}
}

func (m *Metrics) IncrementRequest()        { atomic.AddInt64(&m.RequestCount, 1) }
func (m *Metrics) IncrementError()          { atomic.AddInt64(&m.ErrorCount, 1) }
func (m *Metrics) IncrementCacheHit()       { atomic.AddInt64(&m.CacheHits, 1) }
func (m *Metrics) IncrementCacheMiss()      { atomic.AddInt64(&m.CacheMisses, 1) }
func (m *Metrics) IncrementAdminLoginFail() { atomic.AddInt64(&m.AdminLoginFails, 1) }
func (m *Metrics) IncrementCircuitOpen()    { atomic.AddInt64(&m.CircuitBreakerOpens, 1) }
func (m *Metrics) IncrementRedisError()     { atomic.AddInt64(&m.RateLimitRedisErrors, 1) }

// RecordPairScored counts a finished pair evaluation.
func (m *Metrics) RecordPairScored(vetoed bool) {
	atomic.AddInt64(&m.PairsScored, 1)
	if vetoed {
		atomic.AddInt64(&m.PairsVetoed, 1)
	}
}

// RecordMatchRun counts a matching run.
func (m *Metrics) RecordMatchRun(success bool) {
	atomic.AddInt64(&m.MatchRuns, 1)
	if !success {
		atomic.AddInt64(&m.MatchRunFailures, 1)
	}
}

// RecordQuestionSet counts a generated question set by its source.
func (m *Metrics) RecordQuestionSet(source string) {
	m.QuestionMutex.Lock()
	defer m.QuestionMutex.Unlock()
	m.QuestionSetsBySource[source]++
}

// RecordResponseTime keeps the most recent samples for percentiles.
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	m.ResponseTimesMutex.Lock()
	defer m.ResponseTimesMutex.Unlock()
	m.ResponseTimes = append(m.ResponseTimes, duration)
	if len(m.ResponseTimes) > responseSamples {
		m.ResponseTimes = m.ResponseTimes[1:]
	}
}

// RecordRequestByStatus records request count by HTTP status code
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.StatusMutex.Lock()
	defer m.StatusMutex.Unlock()
	m.RequestCountByStatus[statusCode]++
}

// RecordExternalAPIRequest records an external API request
func (m *Metrics) RecordExternalAPIRequest(apiName string, success bool) {
	m.ExternalAPIMutex.Lock()
	defer m.ExternalAPIMutex.Unlock()

	m.ExternalAPIRequests[apiName]++
	if !success {
		m.ExternalAPIErrorCount[apiName]++
	}
}

// RecordRateLimitBlock records a rejected request for an endpoint.
func (m *Metrics) RecordRateLimitBlock(endpoint string) {
	atomic.AddInt64(&m.RateLimitBlocks, 1)
	m.RateLimitMutex.Lock()
	defer m.RateLimitMutex.Unlock()
	m.RateLimitEndpoints[endpoint]++
}

// SampleRuntime records Go garbage collector and heap figures.
func (m *Metrics) SampleRuntime() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	atomic.StoreInt64(&m.GCCount, int64(ms.NumGC))
	atomic.StoreInt64(&m.HeapAlloc, int64(ms.HeapAlloc))
	atomic.StoreInt64(&m.HeapSys, int64(ms.HeapSys))
}

// GetPercentileResponseTime calculates percentile response time
func (m *Metrics) GetPercentileResponseTime(percentile float64) time.Duration {
	m.ResponseTimesMutex.RLock()
	times := make([]time.Duration, len(m.ResponseTimes))
	copy(times, m.ResponseTimes)
	m.ResponseTimesMutex.RUnlock()

	if len(times) == 0 {
		return 0
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	index := int(float64(len(times)-1) * percentile / 100.0)
	return times[min(index, len(times)-1)]
}

// CacheHitRate returns the percentage of cache lookups that hit.
func (m *Metrics) CacheHitRate() float64 {
	hits := atomic.LoadInt64(&m.CacheHits)
	total := hits + atomic.LoadInt64(&m.CacheMisses)
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

func copyCounts[K comparable](mu *sync.RWMutex, src map[K]int64) map[K]int64 {
	mu.RLock()
	defer mu.RUnlock()
	out := make(map[K]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// GetExternalAPIStats returns external API statistics
func (m *Metrics) GetExternalAPIStats() map[string]any {
	m.ExternalAPIMutex.RLock()
	defer m.ExternalAPIMutex.RUnlock()

	stats := make(map[string]any)
	for api, requests := range m.ExternalAPIRequests {
		failures := m.ExternalAPIErrorCount[api]
		errorRate := float64(0)
		if requests > 0 {
			errorRate = float64(failures) / float64(requests) * 100
		}
		stats[api] = map[string]any{
			"requests":   requests,
			"errors":     failures,
			"error_rate": errorRate,
		}
	}
	return stats
}

// GetStats returns current metrics statistics
func (m *Metrics) GetStats() map[string]any {
	requests := atomic.LoadInt64(&m.RequestCount)
	failures := atomic.LoadInt64(&m.ErrorCount)

	errorRate := float64(0)
	if requests > 0 {
		errorRate = float64(failures) / float64(requests) * 100
	}

	heapAlloc := atomic.LoadInt64(&m.HeapAlloc)
	heapSys := atomic.LoadInt64(&m.HeapSys)
	heapUsage := float64(0)
	if heapSys > 0 {
		heapUsage = float64(heapAlloc) / float64(heapSys) * 100
	}

	return map[string]any{
		"uptime_seconds":     time.Since(m.StartTime).Seconds(),
		"start_time":         m.StartTime.Format(time.RFC3339),
		"total_requests":     requests,
		"error_count":        failures,
		"error_rate_percent": errorRate,

		"cache_hits":             atomic.LoadInt64(&m.CacheHits),
		"cache_misses":           atomic.LoadInt64(&m.CacheMisses),
		"cache_hit_rate_percent": m.CacheHitRate(),

		"pairs_scored":       atomic.LoadInt64(&m.PairsScored),
		"pairs_vetoed":       atomic.LoadInt64(&m.PairsVetoed),
		"match_runs":         atomic.LoadInt64(&m.MatchRuns),
		"match_run_failures": atomic.LoadInt64(&m.MatchRunFailures),
		"question_sets":      copyCounts(&m.QuestionMutex, m.QuestionSetsBySource),
		"admin_login_fails":  atomic.LoadInt64(&m.AdminLoginFails),

		"p50_response_time_ms":     float64(m.GetPercentileResponseTime(50)) / 1e6,
		"p95_response_time_ms":     float64(m.GetPercentileResponseTime(95)) / 1e6,
		"p99_response_time_ms":     float64(m.GetPercentileResponseTime(99)) / 1e6,
		"status_code_distribution": copyCounts(&m.StatusMutex, m.RequestCountByStatus),
		"external_api_stats":       m.GetExternalAPIStats(),
		"circuit_breaker_opens":    atomic.LoadInt64(&m.CircuitBreakerOpens),

		"rate_limit_blocks":       atomic.LoadInt64(&m.RateLimitBlocks),
		"rate_limit_redis_errors": atomic.LoadInt64(&m.RateLimitRedisErrors),
		"rate_limit_endpoints":    copyCounts(&m.RateLimitMutex, m.RateLimitEndpoints),

		"go_gc_count":           atomic.LoadInt64(&m.GCCount),
		"go_heap_alloc_bytes":   heapAlloc,
		"go_heap_sys_bytes":     heapSys,
		"go_heap_usage_percent": heapUsage,
	}
}
