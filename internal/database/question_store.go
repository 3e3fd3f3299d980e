package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ZanzyTHEbar/blind-match/internal/questions"
)

// QuestionStore persists conversation question sets. It implements
// questions.Store.
type QuestionStore struct {
	db *DB
}

// NewQuestionStore creates a question store.
func NewQuestionStore(db *DB) *QuestionStore {
	return &QuestionStore{db: db}
}

func (s *QuestionStore) LoadQuestions(ctx context.Context, key questions.Key) (questions.Set, bool, error) {
	var row AIQuestionSet
	err := s.db.WithContext(ctx).
		Where("match_id = ? AND round = ? AND participant_a = ? AND participant_b = ?",
			key.MatchID, key.Round, key.A, key.B).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return questions.Set{}, false, nil
	}
	if err != nil {
		return questions.Set{}, false, fmt.Errorf("failed to load questions: %w", err)
	}

	var qs []string
	if err := json.Unmarshal(row.Questions, &qs); err != nil {
		return questions.Set{}, false, fmt.Errorf("corrupt question set %d: %w", row.ID, err)
	}
	return questions.Set{
		Key:       key,
		Questions: qs,
		Source:    questions.Source(row.Source),
		CreatedAt: row.CreatedAt,
	}, true, nil
}

func (s *QuestionStore) SaveQuestions(ctx context.Context, set questions.Set) error {
	payload, err := json.Marshal(set.Questions)
	if err != nil {
		return err
	}
	row := AIQuestionSet{
		MatchID:      set.Key.MatchID,
		Round:        set.Key.Round,
		ParticipantA: set.Key.A,
		ParticipantB: set.Key.B,
		Questions:    payload,
		Source:       string(set.Source),
		CreatedAt:    set.CreatedAt,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "match_id"}, {Name: "round"}, {Name: "participant_a"}, {Name: "participant_b"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"questions", "source", "created_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save questions: %w", err)
	}
	return nil
}
