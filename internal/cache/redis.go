package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/blind-match/internal/analysis"
	"github.com/redis/go-redis/v9"
)

// RedisBackend shares pair scores between server instances. Each participant
// has an index set of its keys so invalidation does not need SCAN.
type RedisBackend struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisBackend creates a Redis cache tier.
func NewRedisBackend(client *redis.Client, ttl time.Duration) *RedisBackend {
	return &RedisBackend{client: client, ttl: ttl, prefix: "blindmatch:"}
}

func (r *RedisBackend) Name() string { return "redis" }

func (r *RedisBackend) entryKey(key Key) string {
	return r.prefix + key.String()
}

func (r *RedisBackend) indexKey(eventID, number int) string {
	return fmt.Sprintf("%sidx:%d:%d", r.prefix, eventID, number)
}

func (r *RedisBackend) Load(ctx context.Context, key Key) (analysis.RawScores, bool, error) {
	data, err := r.client.Get(ctx, r.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return analysis.RawScores{}, false, nil
	}
	if err != nil {
		return analysis.RawScores{}, false, err
	}

	var raw analysis.RawScores
	if err := json.Unmarshal(data, &raw); err != nil {
		return analysis.RawScores{}, false, fmt.Errorf("decode cached scores: %w", err)
	}
	return raw, true, nil
}

func (r *RedisBackend) Store(ctx context.Context, key Key, raw analysis.RawScores) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}

	k := r.entryKey(key)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, k, data, r.ttl)
		for _, n := range []int{key.A, key.B} {
			idx := r.indexKey(key.EventID, n)
			pipe.SAdd(ctx, idx, k)
			pipe.Expire(ctx, idx, r.ttl)
		}
		return nil
	})
	return err
}

func (r *RedisBackend) InvalidateParticipant(ctx context.Context, eventID, number int) (int, error) {
	idx := r.indexKey(eventID, number)
	keys, err := r.client.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	removed, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, err
	}
	if err := r.client.Del(ctx, idx).Err(); err != nil {
		return int(removed), err
	}
	return int(removed), nil
}
