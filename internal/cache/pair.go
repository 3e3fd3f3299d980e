package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ZanzyTHEbar/blind-match/internal/analysis"
	"github.com/ZanzyTHEbar/blind-match/internal/monitoring"
)

const keyPrefix = "pair"

// DefaultComputeTimeout bounds a shared computation once it no longer
// follows the cancellation of the caller that started it.
const DefaultComputeTimeout = 2 * time.Minute

// Key identifies a cached pair evaluation. Participants are stored in
// canonical order and each carries the version of its survey answers, so an
// edited survey never hits a stale entry.
type Key struct {
	EventID  int
	A, B     int
	AI       bool
	VersionA int64
	VersionB int64
}

// NewKey builds a canonical key from an unordered pair.
func NewKey(eventID, a, b int, ai bool, versionA, versionB int64) Key {
	if b < a {
		a, b = b, a
		versionA, versionB = versionB, versionA
	}
	return Key{EventID: eventID, A: a, B: b, AI: ai, VersionA: versionA, VersionB: versionB}
}

func (k Key) String() string {
	mode := "noai"
	if k.AI {
		mode = "ai"
	}
	return fmt.Sprintf("%s:%d:%d:%d:%s:%d:%d", keyPrefix, k.EventID, k.A, k.B, mode, k.VersionA, k.VersionB)
}

// Involves reports whether the key belongs to participant n of an event.
func (k Key) Involves(eventID, n int) bool {
	return k.EventID == eventID && (k.A == n || k.B == n)
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 7 || parts[0] != keyPrefix {
		return Key{}, fmt.Errorf("malformed cache key %q", s)
	}
	var ints [5]int64
	for i, idx := range []int{1, 2, 3, 5, 6} {
		n, err := strconv.ParseInt(parts[idx], 10, 64)
		if err != nil {
			return Key{}, fmt.Errorf("malformed cache key %q: %w", s, err)
		}
		ints[i] = n
	}
	if parts[4] != "ai" && parts[4] != "noai" {
		return Key{}, fmt.Errorf("malformed cache key %q: unknown mode %q", s, parts[4])
	}
	return Key{
		EventID:  int(ints[0]),
		A:        int(ints[1]),
		B:        int(ints[2]),
		AI:       parts[4] == "ai",
		VersionA: ints[3],
		VersionB: ints[4],
	}, nil
}

// Backend is a shared cache tier behind the in-process cache.
type Backend interface {
	Name() string
	Load(ctx context.Context, key Key) (analysis.RawScores, bool, error)
	Store(ctx context.Context, key Key, raw analysis.RawScores) error
	InvalidateParticipant(ctx context.Context, eventID, number int) (int, error)
}

// Metrics receives cache hit and miss counts.
type Metrics interface {
	IncrementCacheHit()
	IncrementCacheMiss()
}

// ComputeFunc produces the raw scores for a key on a miss.
type ComputeFunc func(ctx context.Context) (analysis.RawScores, error)

// PairCache caches raw pair scores in memory and in any configured backends.
// Concurrent misses on the same key inside a process share one computation.
// The shared computation is detached from every caller's cancellation; each
// caller stops waiting when its own context ends.
type PairCache struct {
	memory         *Cache
	backends       []Backend
	metrics        Metrics
	logger         *monitoring.Logger
	group          singleflight.Group
	computeTimeout time.Duration
}

// NewPairCache creates a pair cache over the memory tier and backends.
// Backends are consulted in order. A nil logger discards cache warnings.
func NewPairCache(memory *Cache, metrics Metrics, logger *monitoring.Logger, backends ...Backend) *PairCache {
	if logger == nil {
		logger = monitoring.NewLoggerTo(io.Discard, slog.LevelError)
	}
	return &PairCache{
		memory:         memory,
		backends:       backends,
		metrics:        metrics,
		logger:         logger,
		computeTimeout: DefaultComputeTimeout,
	}
}

// Get looks a key up in every tier without computing.
func (p *PairCache) Get(ctx context.Context, key Key) (analysis.RawScores, bool) {
	k := key.String()
	if data, ok := p.memory.Get(k); ok {
		var raw analysis.RawScores
		if err := json.Unmarshal(data, &raw); err == nil {
			return raw, true
		}
		p.memory.Delete(k)
	}

	for _, b := range p.backends {
		raw, ok, err := b.Load(ctx, key)
		if err != nil {
			p.logger.Warn("Cache backend read failed", "backend", b.Name(), "key", k, "error", err)
			continue
		}
		if ok {
			p.setMemory(k, raw)
			return raw, true
		}
	}
	return analysis.RawScores{}, false
}

// GetOrCompute returns the cached raw scores for key, computing and storing
// them on a miss. The boolean reports a cache hit. Store failures are logged
// and never fail the call.
func (p *PairCache) GetOrCompute(ctx context.Context, key Key, compute ComputeFunc) (analysis.RawScores, bool, error) {
	if raw, ok := p.Get(ctx, key); ok {
		p.hit()
		return raw, true, nil
	}
	p.miss()

	ch := p.group.DoChan(key.String(), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.computeTimeout)
		defer cancel()

		if raw, ok := p.Get(fctx, key); ok {
			return raw, nil
		}
		raw, err := compute(fctx)
		if err != nil {
			return nil, err
		}
		p.Put(fctx, key, raw)
		return raw, nil
	})

	select {
	case <-ctx.Done():
		return analysis.RawScores{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return analysis.RawScores{}, false, res.Err
		}
		return res.Val.(analysis.RawScores), false, nil
	}
}

// Put writes raw scores to every tier.
func (p *PairCache) Put(ctx context.Context, key Key, raw analysis.RawScores) {
	p.setMemory(key.String(), raw)
	for _, b := range p.backends {
		if err := b.Store(ctx, key, raw); err != nil {
			p.logger.Warn("Cache backend write failed", "backend", b.Name(), "key", key.String(), "error", err)
		}
	}
}

// InvalidateParticipant drops every entry of a participant in an event from
// all tiers and returns the number of entries removed.
func (p *PairCache) InvalidateParticipant(ctx context.Context, eventID, number int) int {
	removed := p.memory.DeleteMatching(func(k string) bool {
		key, err := ParseKey(k)
		return err == nil && key.Involves(eventID, number)
	})
	for _, b := range p.backends {
		n, err := b.InvalidateParticipant(ctx, eventID, number)
		if err != nil {
			p.logger.Warn("Cache backend invalidation failed",
				"backend", b.Name(),
				"event_id", eventID,
				"participant", number,
				"error", err)
			continue
		}
		removed += n
	}
	p.logger.Info("Pair cache invalidated", "event_id", eventID, "participant", number, "removed", removed)
	return removed
}

// Sweep drops expired in-process entries.
func (p *PairCache) Sweep() int {
	return p.memory.Sweep()
}

// Stats returns cache statistics for the memory tier and backends.
func (p *PairCache) Stats() map[string]any {
	names := make([]string, 0, len(p.backends))
	for _, b := range p.backends {
		names = append(names, b.Name())
	}
	stats := p.memory.Stats()
	stats["backends"] = names
	return stats
}

func (p *PairCache) setMemory(k string, raw analysis.RawScores) {
	data, err := json.Marshal(raw)
	if err != nil {
		p.logger.Error("Failed to marshal raw scores for cache", "key", k, "error", err)
		return
	}
	p.memory.Set(k, data)
}

func (p *PairCache) hit() {
	if p.metrics != nil {
		p.metrics.IncrementCacheHit()
	}
}

func (p *PairCache) miss() {
	if p.metrics != nil {
		p.metrics.IncrementCacheMiss()
	}
}
