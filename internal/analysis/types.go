package analysis

import "fmt"

// Mode selects the polarity of the similarity sub-scores.
type Mode string

const (
	ModeStandard  Mode = "standard"
	ModeOpposites Mode = "opposites"
)

// Model selects the weight table used to combine sub-scores.
type Model string

const (
	ModelPair   Model = "pair"
	ModelLegacy Model = "legacy"
)

// BonusTier is the humor/early-openness multiplier tier.
type BonusTier string

const (
	BonusNone    BonusTier = "none"
	BonusPartial BonusTier = "partial"
	BonusFull    BonusTier = "full"
)

// VibeSource records where the vibe fraction came from.
type VibeSource string

const (
	VibeFromLLM      VibeSource = "llm"
	VibeNoAI         VibeSource = "no_ai"
	VibeFromFallback VibeSource = "fallback"
)

// Options controls a single scoring run.
type Options struct {
	Mode  Mode  `json:"mode"`
	Model Model `json:"model"`
	AI    bool  `json:"ai"`
}

// DefaultOptions returns standard mode, pair model, no AI.
func DefaultOptions() Options {
	return Options{Mode: ModeStandard, Model: ModelPair}
}

// Validate rejects unknown modes and models. Empty values take defaults.
func (o *Options) Validate() error {
	switch o.Mode {
	case "":
		o.Mode = ModeStandard
	case ModeStandard, ModeOpposites:
	default:
		return fmt.Errorf("invalid mode %q", o.Mode)
	}
	switch o.Model {
	case "":
		o.Model = ModelPair
	case ModelPair, ModelLegacy:
	default:
		return fmt.Errorf("invalid model %q", o.Model)
	}
	return nil
}

// RawScores are per-factor fit fractions in [0,1], before weighting and
// before any mode inversion. This is the cacheable part of a pair score.
type RawScores struct {
	Synergy       float64    `json:"synergy"`
	Lifestyle     float64    `json:"lifestyle"`
	HumorOpen     float64    `json:"humor_open"`
	Communication float64    `json:"communication"`
	Intent        float64    `json:"intent"`
	Vibe          float64    `json:"vibe"`
	VibeSource    VibeSource `json:"vibe_source"`
}

// SubScores are weighted points per factor.
type SubScores struct {
	Synergy       float64 `json:"synergy"`
	Lifestyle     float64 `json:"lifestyle"`
	HumorOpen     float64 `json:"humor_open"`
	Communication float64 `json:"communication"`
	Intent        float64 `json:"intent"`
	Vibe          float64 `json:"vibe"`
}

// Total sums all weighted points.
func (s SubScores) Total() float64 {
	return s.Synergy + s.Lifestyle + s.HumorOpen + s.Communication + s.Intent + s.Vibe
}

// Flags describe which gates and modifiers fired for a pair.
type Flags struct {
	AttachmentPenaltyApplied    bool      `json:"attachment_penalty_applied"`
	OpennessZeroPenaltyApplied  bool      `json:"openness_zero_penalty_applied"`
	IntentBoostApplied          bool      `json:"intent_boost_applied"`
	HumorEarlyOpennessBonus     BonusTier `json:"humor_early_openness_bonus"`
	DeadAirVetoApplied          bool      `json:"dead_air_veto_applied"`
	HumorClashVetoApplied       bool      `json:"humor_clash_veto_applied"`
	CapApplied                  *int      `json:"cap_applied"`
	AgeToleranceApplied         bool      `json:"age_tolerance_applied"`
	AgeOutsidePreferenceApplied bool      `json:"age_outside_preference"`
}

// PairResult is the scored, canonical pair.
type PairResult struct {
	EventID      int       `json:"event_id"`
	ParticipantA int       `json:"participant_a"`
	ParticipantB int       `json:"participant_b"`
	Mode         Mode      `json:"mode"`
	Model        Model     `json:"model"`
	AI           bool      `json:"ai"`
	Score        int       `json:"compatibility_score"`
	WeightedSum  float64   `json:"weighted_sum"`
	SubScores    SubScores `json:"sub_scores"`
	Raw          RawScores `json:"raw"`
	Flags        Flags     `json:"flags"`
	Reason       string    `json:"reason"`

	// Presentation inputs. Intent mismatch colouring is decided by the caller.
	IntentSelf              string `json:"intent_self"`
	IntentOther             string `json:"intent_other"`
	OpenIntentMismatchSelf  bool   `json:"open_intent_goal_mismatch_self"`
	OpenIntentMismatchOther bool   `json:"open_intent_goal_mismatch_other"`
}
