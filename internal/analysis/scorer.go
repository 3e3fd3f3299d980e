package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
)

// VibeScorer rates the free-text answers of two participants. Implementations
// return points on the 0..PairWeights.Vibe scale.
type VibeScorer interface {
	ScoreVibe(ctx context.Context, a, b Traits) (float64, error)
}

// Scorer computes pairwise compatibility.
type Scorer struct {
	policy Policy
	vibe   VibeScorer
	logger *slog.Logger
}

// NewScorer creates a scorer. A nil vibe scorer makes AI mode fall back to
// full vibe credit; a nil logger discards output.
func NewScorer(policy Policy, vibe VibeScorer, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scorer{policy: policy, vibe: vibe, logger: logger}
}

// Policy returns the gate policy in use.
func (s *Scorer) Policy() Policy {
	return s.policy
}

// Canonical orders a pair by assigned number.
func Canonical(a, b Traits) (Traits, Traits) {
	if b.Number < a.Number {
		return b, a
	}
	return a, b
}

// ValidatePair rejects malformed pairs before any scoring work.
func ValidatePair(a, b int) error {
	if a <= 0 || b <= 0 {
		return fmt.Errorf("assigned numbers must be positive, got %d and %d", a, b)
	}
	if a == b {
		return fmt.Errorf("cannot score participant %d against itself", a)
	}
	return nil
}

// Raw computes the cacheable fractions for a pair. In AI mode the vibe
// collaborator is consulted; any failure yields full credit.
func (s *Scorer) Raw(ctx context.Context, a, b Traits, ai bool) RawScores {
	a, b = Canonical(a, b)
	raw := ComputeRaw(a, b, s.policy)
	raw.Vibe, raw.VibeSource = 1, VibeNoAI
	if !ai {
		return raw
	}

	raw.VibeSource = VibeFromFallback
	if s.vibe == nil {
		return raw
	}
	points, err := s.vibe.ScoreVibe(ctx, a, b)
	if err != nil {
		s.logger.Warn("Vibe scoring failed, using full credit",
			"participant_a", a.Number,
			"participant_b", b.Number,
			"error", err)
		return raw
	}
	raw.Vibe = clip(points/PairWeights.Vibe, 0, 1)
	raw.VibeSource = VibeFromLLM
	return raw
}

// Finalize weighs cached fractions under the requested options and runs the
// gate pipeline. It is pure: identical inputs give identical results.
func (s *Scorer) Finalize(eventID int, a, b Traits, raw RawScores, opts Options) PairResult {
	a, b = Canonical(a, b)
	if !opts.AI {
		raw.Vibe, raw.VibeSource = 1, VibeNoAI
	}

	sub := Weigh(raw, opts)
	sum := sub.Total()
	gated, flags, reasons := applyGates(sum, a, b, raw, s.policy)

	return PairResult{
		EventID:                 eventID,
		ParticipantA:            a.Number,
		ParticipantB:            b.Number,
		Mode:                    opts.Mode,
		Model:                   opts.Model,
		AI:                      opts.AI,
		Score:                   int(math.Round(clip(gated, 0, 100))),
		WeightedSum:             round2(sum),
		SubScores:               sub,
		Raw:                     raw,
		Flags:                   flags,
		Reason:                  strings.Join(reasons, "; "),
		IntentSelf:              a.IntentGoal,
		IntentOther:             b.IntentGoal,
		OpenIntentMismatchSelf:  a.OpenIntentMismatch,
		OpenIntentMismatchOther: b.OpenIntentMismatch,
	}
}

// Score validates the request and scores a pair without any cache.
func (s *Scorer) Score(ctx context.Context, eventID int, a, b Traits, opts Options) (PairResult, error) {
	if err := opts.Validate(); err != nil {
		return PairResult{}, err
	}
	if err := ValidatePair(a.Number, b.Number); err != nil {
		return PairResult{}, err
	}
	raw := s.Raw(ctx, a, b, opts.AI)
	return s.Finalize(eventID, a, b, raw, opts), nil
}
