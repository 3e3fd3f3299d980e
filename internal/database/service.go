package database

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/ZanzyTHEbar/blind-match/internal/analysis"
	"github.com/ZanzyTHEbar/blind-match/internal/errors"
	"github.com/ZanzyTHEbar/blind-match/internal/privacy"
)

// Invalidator drops cached pair scores of a participant.
type Invalidator interface {
	InvalidateParticipant(ctx context.Context, eventID, number int) int
}

// ParticipantService provides business logic for participant management
type ParticipantService struct {
	repo        *Repository
	privacy     *privacy.PrivacyService
	invalidator Invalidator
}

// NewParticipantService creates a new participant service. invalidator may be nil.
func NewParticipantService(repo *Repository, priv *privacy.PrivacyService, invalidator Invalidator) *ParticipantService {
	return &ParticipantService{repo: repo, privacy: priv, invalidator: invalidator}
}

// SaveResult reports what an upsert changed.
type SaveResult struct {
	Participant        *Participant `json:"participant"`
	SurveyChanged      bool         `json:"survey_changed"`
	InvalidatedEntries int          `json:"invalidated_entries"`
}

// Save registers or updates a participant. A changed survey drops every
// cached score involving the participant.
func (s *ParticipantService) Save(ctx context.Context, p *Participant) (*SaveResult, error) {
	if p.AssignedNumber <= 0 {
		return nil, errors.NewValidationError("assigned_number must be positive",
			map[string]any{"assigned_number": p.AssignedNumber})
	}
	if p.PhoneNumber != "" {
		normalized := privacy.NormalizePhone(p.PhoneNumber)
		if normalized == "" {
			return nil, errors.NewValidationError("phone_number is not a phone number", nil)
		}
		p.PhoneNumber = normalized
		p.PhoneHash = s.privacy.HashPhone(normalized)

		owner, err := s.repo.GetParticipantByPhoneHash(ctx, p.PhoneHash)
		switch {
		case err == nil && owner.AssignedNumber != p.AssignedNumber:
			return nil, errors.NewValidationError("phone_number is registered to another participant",
				map[string]any{"assigned_number": owner.AssignedNumber})
		case err != nil && !stderrors.Is(err, ErrNotFound):
			return nil, errors.NewInternalError("participant lookup failed", err)
		}
	}
	if p.SecureToken == "" {
		existing, err := s.repo.GetParticipant(ctx, p.AssignedNumber)
		switch {
		case err == nil:
			p.SecureToken = existing.SecureToken
		case stderrors.Is(err, ErrNotFound):
			token, err := s.privacy.NewSecureToken()
			if err != nil {
				return nil, errors.NewInternalError("token generation failed", err)
			}
			p.SecureToken = token
		default:
			return nil, errors.NewInternalError("participant lookup failed", err)
		}
	}

	changed, err := s.repo.UpsertParticipant(ctx, p)
	if err != nil {
		return nil, errors.NewInternalError("participant save failed", err)
	}

	result := &SaveResult{Participant: p, SurveyChanged: changed}
	if changed && s.invalidator != nil {
		result.InvalidatedEntries = s.invalidator.InvalidateParticipant(ctx, p.EventID, p.AssignedNumber)
	}

	slog.Info("Participant saved",
		"assigned_number", p.AssignedNumber,
		"event_id", p.EventID,
		"phone", privacy.MaskPhone(p.PhoneNumber),
		"survey_changed", changed,
		"invalidated", result.InvalidatedEntries)

	return result, nil
}

// Get returns a participant or a not-found error.
func (s *ParticipantService) Get(ctx context.Context, number int) (*Participant, error) {
	p, err := s.repo.GetParticipant(ctx, number)
	if err != nil {
		return nil, toAppError(err, "participant", number)
	}
	return p, nil
}

// GetByToken resolves a self-service link.
func (s *ParticipantService) GetByToken(ctx context.Context, token string) (*Participant, error) {
	p, err := s.repo.GetParticipantByToken(ctx, token)
	if err != nil {
		return nil, toAppError(err, "participant", privacy.MaskToken(token))
	}
	return p, nil
}

// Traits loads a participant and extracts scoring traits. Missing answers
// surface as a missing-data error.
func (s *ParticipantService) Traits(ctx context.Context, number int) (analysis.Traits, *Participant, error) {
	p, err := s.Get(ctx, number)
	if err != nil {
		return analysis.Traits{}, nil, err
	}
	t, err := p.Traits()
	if err != nil {
		if stderrors.Is(err, analysis.ErrMissingSurveyData) {
			return analysis.Traits{}, p, errors.NewMissingDataError(number, err)
		}
		return analysis.Traits{}, p, errors.NewValidationError(err.Error(), map[string]any{"assigned_number": number})
	}
	return t, p, nil
}

// AdvanceEvent moves next-event signups into eventID.
func (s *ParticipantService) AdvanceEvent(ctx context.Context, eventID int) (int64, error) {
	if eventID <= 0 {
		return 0, errors.NewValidationError("event_id must be positive", nil)
	}
	moved, err := s.repo.AdvanceEvent(ctx, eventID)
	if err != nil {
		return 0, errors.NewInternalError("advance event failed", err)
	}
	slog.Info("Event advanced", "event_id", eventID, "moved", moved)
	return moved, nil
}

func toAppError(err error, entity string, id any) error {
	if stderrors.Is(err, ErrNotFound) {
		return errors.NewNotFoundError(entity, id)
	}
	return errors.NewInternalError(fmt.Sprintf("%s lookup failed", entity), err)
}
