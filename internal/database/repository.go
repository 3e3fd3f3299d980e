package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func canonical(a, b int) (int, int) {
	if b < a {
		return b, a
	}
	return a, b
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// UpsertParticipant inserts or updates a participant by assigned number. The
// survey version only moves when the answers actually change; the returned
// flag reports that.
func (r *Repository) UpsertParticipant(ctx context.Context, p *Participant) (bool, error) {
	if p.AssignedNumber <= 0 {
		return false, fmt.Errorf("assigned number must be positive, got %d", p.AssignedNumber)
	}

	now := time.Now()
	var existing Participant
	err := r.db.WithContext(ctx).Where("assigned_number = ?", p.AssignedNumber).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if p.HasSurvey() {
			p.SurveyUpdatedAt = now
		}
		if p.SecureToken == "" {
			p.SecureToken = uuid.NewString()
		}
		if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
			return false, fmt.Errorf("failed to create participant: %w", err)
		}
		return p.HasSurvey(), nil
	case err != nil:
		return false, fmt.Errorf("failed to query participant: %w", err)
	}

	p.ID = existing.ID
	p.CreatedAt = existing.CreatedAt
	if p.SecureToken == "" {
		p.SecureToken = existing.SecureToken
	}
	changed := !sameJSON(existing.SurveyData, p.SurveyData)
	if changed {
		p.SurveyUpdatedAt = now
	} else {
		p.SurveyUpdatedAt = existing.SurveyUpdatedAt
	}
	if err := r.db.WithContext(ctx).Save(p).Error; err != nil {
		return false, fmt.Errorf("failed to update participant: %w", err)
	}
	return changed, nil
}

func sameJSON(a, b []byte) bool {
	var va, vb any
	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return string(a) == string(b)
	}
	return reflect.DeepEqual(va, vb)
}

// GetParticipant returns a participant by assigned number.
func (r *Repository) GetParticipant(ctx context.Context, number int) (*Participant, error) {
	var p Participant
	if err := r.db.WithContext(ctx).Where("assigned_number = ?", number).First(&p).Error; err != nil {
		return nil, notFound(err, "participant %d", number)
	}
	return &p, nil
}

// GetParticipantByToken resolves a participant from their secure token.
func (r *Repository) GetParticipantByToken(ctx context.Context, token string) (*Participant, error) {
	var p Participant
	if err := r.db.WithContext(ctx).Where("secure_token = ?", token).First(&p).Error; err != nil {
		return nil, notFound(err, "participant token")
	}
	return &p, nil
}

// GetParticipantByPhoneHash finds the participant registered with a phone
// digest.
func (r *Repository) GetParticipantByPhoneHash(ctx context.Context, hash string) (*Participant, error) {
	var p Participant
	if err := r.db.WithContext(ctx).Where("phone_hash = ?", hash).First(&p).Error; err != nil {
		return nil, notFound(err, "participant phone")
	}
	return &p, nil
}

// ListEventParticipants returns participants of an event plus everyone who
// signed up for the next one, ordered by assigned number.
func (r *Repository) ListEventParticipants(ctx context.Context, eventID int) ([]Participant, error) {
	var out []Participant
	err := r.db.WithContext(ctx).
		Where("event_id = ? OR signup_for_next_event = ?", eventID, true).
		Order("assigned_number").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	return out, nil
}

// CreateLock pins a pair for a round. Any lock of either participant in the
// same event round is superseded.
func (r *Repository) CreateLock(ctx context.Context, lock *LockedMatch) error {
	lock.Participant1Number, lock.Participant2Number = canonical(lock.Participant1Number, lock.Participant2Number)
	if lock.Participant1Number == lock.Participant2Number {
		return fmt.Errorf("cannot lock participant %d with itself", lock.Participant1Number)
	}
	members := []int{lock.Participant1Number, lock.Participant2Number}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("event_id = ? AND round = ? AND (participant1_number IN ? OR participant2_number IN ?)",
			lock.EventID, lock.Round, members, members).
			Delete(&LockedMatch{}).Error
		if err != nil {
			return fmt.Errorf("failed to supersede locks: %w", err)
		}
		if err := tx.Create(lock).Error; err != nil {
			return fmt.Errorf("failed to create lock: %w", err)
		}
		return nil
	})
}

// DeleteLock removes a lock by id.
func (r *Repository) DeleteLock(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&LockedMatch{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete lock: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("lock %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListLocks returns the locks of an event round.
func (r *Repository) ListLocks(ctx context.Context, eventID, round int) ([]LockedMatch, error) {
	var out []LockedMatch
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND round = ?", eventID, round).
		Order("participant1_number").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list locks: %w", err)
	}
	return out, nil
}

// PreviousPartners returns, per participant, everyone they were locked with
// in other events. Match results are the scored matrix rather than an
// assignment, so they never count as history.
func (r *Repository) PreviousPartners(ctx context.Context, eventID int) (map[int][]int, error) {
	var locks []LockedMatch
	err := r.db.WithContext(ctx).
		Where("event_id <> ?", eventID).
		Order("participant1_number, participant2_number").
		Find(&locks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load match history: %w", err)
	}
	out := make(map[int][]int)
	seen := make(map[[2]int]bool, len(locks))
	for _, l := range locks {
		a, b := canonical(l.Participant1Number, l.Participant2Number)
		if seen[[2]int{a, b}] {
			continue
		}
		seen[[2]int{a, b}] = true
		out[a] = append(out[a], b)
		out[b] = append(out[b], a)
	}
	return out, nil
}

// ExcludePair forbids a pair in every future run.
func (r *Repository) ExcludePair(ctx context.Context, a, b int, reason string) error {
	a, b = canonical(a, b)
	if a == b {
		return fmt.Errorf("cannot exclude participant %d from itself", a)
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "participant1_number"}, {Name: "participant2_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"reason"}),
	}).Create(&ExcludedPair{Participant1Number: a, Participant2Number: b, Reason: reason}).Error
	if err != nil {
		return fmt.Errorf("failed to exclude pair: %w", err)
	}
	return nil
}

// RemoveExcludedPair lifts a pair exclusion.
func (r *Repository) RemoveExcludedPair(ctx context.Context, a, b int) error {
	a, b = canonical(a, b)
	err := r.db.WithContext(ctx).
		Where("participant1_number = ? AND participant2_number = ?", a, b).
		Delete(&ExcludedPair{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove excluded pair: %w", err)
	}
	return nil
}

// ListExcludedPairs returns every excluded pair.
func (r *Repository) ListExcludedPairs(ctx context.Context) ([]ExcludedPair, error) {
	var out []ExcludedPair
	if err := r.db.WithContext(ctx).Order("participant1_number, participant2_number").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list excluded pairs: %w", err)
	}
	return out, nil
}

// ExcludeParticipant removes a participant from matching. banned makes the
// exclusion survive ClearTemporaryExclusions.
func (r *Repository) ExcludeParticipant(ctx context.Context, number int, reason string, banned bool) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "participant_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"reason", "banned"}),
	}).Create(&ExcludedParticipant{ParticipantNumber: number, Reason: reason, Banned: banned}).Error
	if err != nil {
		return fmt.Errorf("failed to exclude participant: %w", err)
	}
	return nil
}

// RemoveExcludedParticipant lifts a participant exclusion, banned or not.
func (r *Repository) RemoveExcludedParticipant(ctx context.Context, number int) error {
	err := r.db.WithContext(ctx).Where("participant_number = ?", number).Delete(&ExcludedParticipant{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove excluded participant: %w", err)
	}
	return nil
}

// ListExcludedParticipants returns every excluded participant.
func (r *Repository) ListExcludedParticipants(ctx context.Context) ([]ExcludedParticipant, error) {
	var out []ExcludedParticipant
	if err := r.db.WithContext(ctx).Order("participant_number").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list excluded participants: %w", err)
	}
	return out, nil
}

// ClearTemporaryExclusions removes every participant exclusion that is not a ban.
func (r *Repository) ClearTemporaryExclusions(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("banned = ?", false).Delete(&ExcludedParticipant{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clear exclusions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// SaveMatchResults upserts scored pairs; a recomputed pair replaces its row.
func (r *Repository) SaveMatchResults(ctx context.Context, results []MatchResult) error {
	if len(results) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "event_id"}, {Name: "round"}, {Name: "participant_a"}, {Name: "participant_b"}, {Name: "mode"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"model", "ai", "score", "sub_scores", "flags", "reason", "session_id", "created_at",
		}),
	}).CreateInBatches(results, 200).Error
	if err != nil {
		return fmt.Errorf("failed to save match results: %w", err)
	}
	return nil
}

// ListMatchResults returns the scored pairs of an event round, best first.
func (r *Repository) ListMatchResults(ctx context.Context, eventID, round int) ([]MatchResult, error) {
	var out []MatchResult
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND round = ?", eventID, round).
		Order("score DESC, participant_a, participant_b").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list match results: %w", err)
	}
	return out, nil
}

// CreateSession records a matching run.
func (r *Repository) CreateSession(ctx context.Context, s *MatchSession) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("failed to record match session: %w", err)
	}
	return nil
}

// ListSessions returns the most recent runs of an event.
func (r *Repository) ListSessions(ctx context.Context, eventID, limit int) ([]MatchSession, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []MatchSession
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return out, nil
}

// AdvanceEvent moves everyone signed up for the next event into toEvent.
// The signup flag stays set only for auto-signup participants.
func (r *Repository) AdvanceEvent(ctx context.Context, toEvent int) (int64, error) {
	var moved int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Participant{}).
			Where("signup_for_next_event = ? AND event_id <> ?", true, toEvent).
			Updates(map[string]any{"event_id": toEvent})
		if res.Error != nil {
			return res.Error
		}
		moved = res.RowsAffected
		return tx.Model(&Participant{}).
			Where("event_id = ? AND auto_signup_next_event = ?", toEvent, false).
			Update("signup_for_next_event", false).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to advance event: %w", err)
	}
	return moved, nil
}
