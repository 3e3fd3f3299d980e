package analysis

import (
	"fmt"
	"math"
)

const (
	AttachmentPenalty   = 5.0
	OpennessZeroPenalty = 5.0
	IntentBoost         = 1.1
	FullBonus           = 1.15
	PartialBonus        = 1.05
	DeadAirCap          = 40
	HumorClashCap       = 50
	AgeToleranceYears   = 1
)

const (
	reasonAttachment   = "attachment anxious/avoidant -5"
	reasonOpennessZero = "openness 0x0 -5"
	reasonIntentBoost  = "intent boost x1.1"
	reasonBonusFull    = "humor+openness bonus x1.15 (full)"
	reasonBonusPartial = "humor/openness bonus x1.05 (partial)"
	reasonDeadAir      = "dead-air veto cap 40"
	reasonHumorClash   = "humor clash veto cap 50"
	reasonAgeTolerance = "age ±1y"
	reasonAgeOutside   = "age outside preference"
)

// applyGates runs the modifier pipeline over the weighted sum in fixed order:
// attachment penalty, openness 0x0 penalty, intent boost, humor/openness bonus,
// dead-air veto, humor-clash veto, age tolerance.
func applyGates(sum float64, a, b Traits, raw RawScores, p Policy) (float64, Flags, []string) {
	score := sum
	flags := Flags{HumorEarlyOpennessBonus: BonusNone}
	var reasons []string

	if attachmentClash(a, b) {
		score -= AttachmentPenalty
		flags.AttachmentPenaltyApplied = true
		reasons = append(reasons, reasonAttachment)
	}

	if a.EarlyOpenness == 0 && b.EarlyOpenness == 0 {
		score -= OpennessZeroPenalty
		flags.OpennessZeroPenaltyApplied = true
		reasons = append(reasons, reasonOpennessZero)
	}

	if p.intentCompatible(a.IntentGoal, b.IntentGoal) {
		score *= IntentBoost
		flags.IntentBoostApplied = true
		reasons = append(reasons, reasonIntentBoost)
	}

	switch bonusTier(a, b) {
	case BonusFull:
		score *= FullBonus
		flags.HumorEarlyOpennessBonus = BonusFull
		reasons = append(reasons, reasonBonusFull)
	case BonusPartial:
		score *= PartialBonus
		flags.HumorEarlyOpennessBonus = BonusPartial
		reasons = append(reasons, reasonBonusPartial)
	}

	lowestCap := 0
	if deadAir(a, b, raw, p) {
		score = math.Min(score, DeadAirCap)
		flags.DeadAirVetoApplied = true
		lowestCap = DeadAirCap
		reasons = append(reasons, reasonDeadAir)
	}

	if p.humorClash(a, b) {
		score = math.Min(score, HumorClashCap)
		flags.HumorClashVetoApplied = true
		if lowestCap == 0 || HumorClashCap < lowestCap {
			lowestCap = HumorClashCap
		}
		reasons = append(reasons, reasonHumorClash)
	}
	if lowestCap > 0 {
		flags.CapApplied = &lowestCap
	}

	switch gap := AgePreferenceGap(a, b); {
	case gap == 0:
	case gap <= AgeToleranceYears:
		flags.AgeToleranceApplied = true
		reasons = append(reasons, reasonAgeTolerance)
	default:
		flags.AgeOutsidePreferenceApplied = true
		reasons = append(reasons, fmt.Sprintf("%s by %dy", reasonAgeOutside, gap))
	}

	return score, flags, reasons
}

func attachmentClash(a, b Traits) bool {
	return (a.AttachmentStyle == "anxious" && b.AttachmentStyle == "avoidant") ||
		(a.AttachmentStyle == "avoidant" && b.AttachmentStyle == "anxious")
}

// bonusTier is full when humor subtype and early openness both match exactly,
// partial when exactly one matches.
func bonusTier(a, b Traits) BonusTier {
	humor := a.HumorSubtype != "" && a.HumorSubtype == b.HumorSubtype
	openness := a.EarlyOpenness != Unknown && a.EarlyOpenness == b.EarlyOpenness
	switch {
	case humor && openness:
		return BonusFull
	case humor || openness:
		return BonusPartial
	default:
		return BonusNone
	}
}

func deadAir(a, b Traits, raw RawScores, p Policy) bool {
	return p.isLowCuriosity(a.CuriosityStyle) &&
		p.isLowCuriosity(b.CuriosityStyle) &&
		raw.Communication <= p.DeadAir.MaxCommunicationFit
}

// AgePreferenceGap returns how many years the pair falls outside either
// participant's stated age preference. Zero means both preferences hold or
// the data needed to check them is missing.
func AgePreferenceGap(a, b Traits) int {
	return max(outsideRange(a, b.Age), outsideRange(b, a.Age))
}

func outsideRange(t Traits, age int) int {
	if age <= 0 {
		return 0
	}
	if t.AgeMin > 0 && age < t.AgeMin {
		return t.AgeMin - age
	}
	if t.AgeMax > 0 && age > t.AgeMax {
		return age - t.AgeMax
	}
	return 0
}
