package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/blind-match/internal/analysis"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Participant is a registered event attendee and their survey answers.
type Participant struct {
	ID                  uint           `json:"-" gorm:"primaryKey"`
	AssignedNumber      int            `json:"assigned_number" gorm:"uniqueIndex;not null"`
	Name                string         `json:"name"`
	Gender              string         `json:"gender"`
	Age                 int            `json:"age"`
	Nationality         string         `json:"nationality"`
	PhoneNumber         string         `json:"phone_number"`
	PhoneHash           string         `json:"-" gorm:"index"`
	SecureToken         string         `json:"-" gorm:"uniqueIndex"`
	SurveyData          datatypes.JSON `json:"survey_data"`
	EventID             int            `json:"event_id" gorm:"index"`
	SignupForNextEvent  bool           `json:"signup_for_next_event"`
	AutoSignupNextEvent bool           `json:"auto_signup_next_event"`
	Paid                bool           `json:"paid"`
	PaidDone            bool           `json:"paid_done"`
	SurveyUpdatedAt     time.Time      `json:"survey_updated_at"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// HasSurvey reports whether any survey answers were stored.
func (p *Participant) HasSurvey() bool {
	s := string(p.SurveyData)
	return s != "" && s != "null" && s != "{}"
}

// Survey decodes the stored survey answers.
func (p *Participant) Survey() (map[string]any, error) {
	if !p.HasSurvey() {
		return nil, nil
	}
	var survey map[string]any
	if err := json.Unmarshal(p.SurveyData, &survey); err != nil {
		return nil, fmt.Errorf("participant %d: invalid survey data: %w", p.AssignedNumber, err)
	}
	return survey, nil
}

// Traits extracts the scoring traits. A participant without answers yields
// analysis.ErrMissingSurveyData.
func (p *Participant) Traits() (analysis.Traits, error) {
	survey, err := p.Survey()
	if err != nil {
		return analysis.Traits{}, err
	}
	t, err := analysis.ExtractTraits(p.AssignedNumber, survey)
	if err != nil {
		return analysis.Traits{}, err
	}
	if t.Gender == "" {
		t.Gender = p.Gender
	}
	if t.Age == 0 {
		t.Age = p.Age
	}
	if t.Nationality == "" {
		t.Nationality = p.Nationality
	}
	return t, nil
}

// SurveyVersion identifies the current survey answers for cache keys.
func (p *Participant) SurveyVersion() int64 {
	return p.SurveyUpdatedAt.UnixMilli()
}

// MatchResult is a scored pair of an event round. Recomputing a pair
// replaces its row.
type MatchResult struct {
	ID           string         `json:"id" gorm:"primaryKey"`
	EventID      int            `json:"event_id" gorm:"uniqueIndex:idx_match_pair"`
	Round        int            `json:"round" gorm:"uniqueIndex:idx_match_pair"`
	ParticipantA int            `json:"participant_a" gorm:"uniqueIndex:idx_match_pair;index"`
	ParticipantB int            `json:"participant_b" gorm:"uniqueIndex:idx_match_pair;index"`
	Mode         string         `json:"mode" gorm:"uniqueIndex:idx_match_pair"`
	Model        string         `json:"model"`
	AI           bool           `json:"ai"`
	Score        int            `json:"compatibility_score"`
	SubScores    datatypes.JSON `json:"sub_scores"`
	Flags        datatypes.JSON `json:"flags"`
	Reason       string         `json:"reason"`
	SessionID    string         `json:"session_id" gorm:"index"`
	CreatedAt    time.Time      `json:"created_at"`
}

// NewMatchResult converts a scored pair into its stored form.
func NewMatchResult(res analysis.PairResult, round int, sessionID string) (MatchResult, error) {
	sub, err := json.Marshal(res.SubScores)
	if err != nil {
		return MatchResult{}, err
	}
	flags, err := json.Marshal(res.Flags)
	if err != nil {
		return MatchResult{}, err
	}
	return MatchResult{
		ID:           uuid.New().String(),
		EventID:      res.EventID,
		Round:        round,
		ParticipantA: res.ParticipantA,
		ParticipantB: res.ParticipantB,
		Mode:         string(res.Mode),
		Model:        string(res.Model),
		AI:           res.AI,
		Score:        res.Score,
		SubScores:    sub,
		Flags:        flags,
		Reason:       res.Reason,
		SessionID:    sessionID,
		CreatedAt:    time.Now(),
	}, nil
}

// LockedMatch pins a pair for a round.
type LockedMatch struct {
	ID                         uint      `json:"id" gorm:"primaryKey"`
	EventID                    int       `json:"event_id" gorm:"index"`
	Round                      int       `json:"round" gorm:"index"`
	Participant1Number         int       `json:"participant1_number"`
	Participant2Number         int       `json:"participant2_number"`
	OriginalCompatibilityScore int       `json:"original_compatibility_score"`
	CreatedAt                  time.Time `json:"created_at"`
}

// ExcludedPair forbids two participants from being matched. Stored canonically.
type ExcludedPair struct {
	ID                 uint      `json:"id" gorm:"primaryKey"`
	Participant1Number int       `json:"participant1_number" gorm:"uniqueIndex:idx_excluded_pair"`
	Participant2Number int       `json:"participant2_number" gorm:"uniqueIndex:idx_excluded_pair"`
	Reason             string    `json:"reason"`
	CreatedAt          time.Time `json:"created_at"`
}

// ExcludedParticipant removes a participant from matching. Banned entries
// survive clearing temporary exclusions.
type ExcludedParticipant struct {
	ID                uint      `json:"id" gorm:"primaryKey"`
	ParticipantNumber int       `json:"participant_number" gorm:"uniqueIndex"`
	Reason            string    `json:"reason"`
	Banned            bool      `json:"banned"`
	CreatedAt         time.Time `json:"created_at"`
}

const (
	MatchTypeIndividual = "individual"
	MatchTypeGroup      = "group"

	GenerationAI     = "ai"
	GenerationNoAI   = "no-ai"
	GenerationCached = "cached"
)

// MatchSession records one matching run.
type MatchSession struct {
	ID             string    `json:"id" gorm:"primaryKey"`
	EventID        int       `json:"event_id" gorm:"index"`
	Round          int       `json:"round"`
	MatchType      string    `json:"match_type"`
	GenerationType string    `json:"generation_type"`
	Participants   int       `json:"participants"`
	PairsScored    int       `json:"pairs_scored"`
	AICalls        int       `json:"ai_calls"`
	CacheHitRate   float64   `json:"cache_hit_rate"`
	DurationMS     int64     `json:"duration_ms"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// AIQuestionSet caches the conversation questions generated for a match.
type AIQuestionSet struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	MatchID      string         `json:"match_id" gorm:"uniqueIndex:idx_question_set"`
	Round        int            `json:"round" gorm:"uniqueIndex:idx_question_set"`
	ParticipantA int            `json:"participant_a" gorm:"uniqueIndex:idx_question_set"`
	ParticipantB int            `json:"participant_b" gorm:"uniqueIndex:idx_question_set"`
	Questions    datatypes.JSON `json:"questions"`
	Source       string         `json:"source"`
	CreatedAt    time.Time      `json:"created_at"`
}

// CompatibilityCacheEntry is the persisted tier of the pair cache.
type CompatibilityCacheEntry struct {
	ID           uint   `gorm:"primaryKey"`
	CacheKey     string `gorm:"uniqueIndex;not null"`
	EventID      int    `gorm:"index:idx_cache_participant"`
	ParticipantA int    `gorm:"index:idx_cache_participant"`
	ParticipantB int    `gorm:"index"`
	AI           bool
	VersionA     int64
	VersionB     int64
	RawScores    datatypes.JSON
	CreatedAt    time.Time
	ExpiresAt    time.Time `gorm:"index"`
}
