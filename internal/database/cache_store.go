package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/blind-match/internal/analysis"
	"github.com/ZanzyTHEbar/blind-match/internal/cache"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CacheStore persists pair scores so they survive restarts.
type CacheStore struct {
	db  *DB
	ttl time.Duration
}

// NewCacheStore creates the persisted pair-cache tier.
func NewCacheStore(db *DB, ttl time.Duration) *CacheStore {
	return &CacheStore{db: db, ttl: ttl}
}

func (s *CacheStore) Name() string { return "database" }

func (s *CacheStore) Load(ctx context.Context, key cache.Key) (analysis.RawScores, bool, error) {
	var entry CompatibilityCacheEntry
	err := s.db.WithContext(ctx).
		Where("cache_key = ? AND expires_at > ?", key.String(), time.Now()).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return analysis.RawScores{}, false, nil
	}
	if err != nil {
		return analysis.RawScores{}, false, err
	}

	var raw analysis.RawScores
	if err := json.Unmarshal(entry.RawScores, &raw); err != nil {
		return analysis.RawScores{}, false, fmt.Errorf("decode cached scores: %w", err)
	}
	return raw, true, nil
}

func (s *CacheStore) Store(ctx context.Context, key cache.Key, raw analysis.RawScores) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	now := time.Now()
	entry := CompatibilityCacheEntry{
		CacheKey:     key.String(),
		EventID:      key.EventID,
		ParticipantA: key.A,
		ParticipantB: key.B,
		AI:           key.AI,
		VersionA:     key.VersionA,
		VersionB:     key.VersionB,
		RawScores:    data,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"raw_scores", "created_at", "expires_at"}),
	}).Create(&entry).Error
}

func (s *CacheStore) InvalidateParticipant(ctx context.Context, eventID, number int) (int, error) {
	res := s.db.WithContext(ctx).
		Where("event_id = ? AND (participant_a = ? OR participant_b = ?)", eventID, number, number).
		Delete(&CompatibilityCacheEntry{})
	return int(res.RowsAffected), res.Error
}

// PurgeExpired deletes entries past their expiry.
func (s *CacheStore) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", time.Now()).Delete(&CompatibilityCacheEntry{})
	return res.RowsAffected, res.Error
}
