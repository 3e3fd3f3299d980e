package analysis

import "math"

// neutral is the fit credited to a factor when either side did not answer it.
const neutral = 0.5

// component shares inside a factor
const (
	synergyRole      = 12.0
	synergyDepth     = 8.0
	synergyBattery   = 8.0
	synergyCuriosity = 7.0
	synergyTotal     = synergyRole + synergyDepth + synergyBattery + synergyCuriosity

	humorBanter   = 10.0
	humorOpenness = 5.0
	humorTotal    = humorBanter + humorOpenness

	commStyle   = 6.0
	commSilence = 4.0
	commTotal   = commStyle + commSilence

	intentGoal   = 2.0
	intentValues = 3.0
	intentTotal  = intentGoal + intentValues
)

// ComputeRaw evaluates every similarity factor except vibe. The result is
// independent of argument order.
func ComputeRaw(a, b Traits, p Policy) RawScores {
	return RawScores{
		Synergy:       SynergyFit(a, b),
		Lifestyle:     LifestyleFit(a, b),
		HumorOpen:     HumorOpennessFit(a, b),
		Communication: CommunicationFit(a, b),
		Intent:        IntentValuesFit(a, b, p),
	}
}

// SynergyFit scores interaction style: role, depth, social battery, curiosity.
func SynergyFit(a, b Traits) float64 {
	fit := roleFit(a.ConversationalRole, b.ConversationalRole)*synergyRole +
		depthFit(a.ConversationDepth, b.ConversationDepth)*synergyDepth +
		distanceFit(a.SocialBattery, b.SocialBattery, 4)*synergyBattery +
		curiosityFit(a.CuriosityStyle, b.CuriosityStyle)*synergyCuriosity
	return fit / synergyTotal
}

// LifestyleFit averages per-question agreement on the lifestyle block.
func LifestyleFit(a, b Traits) float64 {
	total := 0.0
	for i := range a.Lifestyle {
		total += letterDistanceFit(a.Lifestyle[i], b.Lifestyle[i])
	}
	return total / LifestyleQuestions
}

// HumorOpennessFit scores banter style agreement and early-openness closeness.
func HumorOpennessFit(a, b Traits) float64 {
	banter := neutral
	if a.HumorStyle != "" && b.HumorStyle != "" {
		banter = 0.4
		if a.HumorStyle == b.HumorStyle {
			banter = 1
		}
	}
	openness := neutral
	if a.EarlyOpenness != Unknown && b.EarlyOpenness != Unknown {
		openness = [...]float64{1, 0.7, 0.3, 0}[absInt(a.EarlyOpenness-b.EarlyOpenness)]
	}
	return (banter*humorBanter + openness*humorOpenness) / humorTotal
}

// CommunicationFit scores communication style and comfort with silence.
func CommunicationFit(a, b Traits) float64 {
	style := neutral
	if a.CommunicationStyle != "" && b.CommunicationStyle != "" {
		style = 0.35
		if a.CommunicationStyle == b.CommunicationStyle {
			style = 1
		}
	}
	silence := neutral
	la, oka := silenceLevel(a.SilenceComfort)
	lb, okb := silenceLevel(b.SilenceComfort)
	if oka && okb {
		silence = [...]float64{1, 0.5, 0}[absInt(la-lb)]
	}
	return (style*commStyle + silence*commSilence) / commTotal
}

// IntentValuesFit scores intent/goal alignment and shared core values.
func IntentValuesFit(a, b Traits, p Policy) float64 {
	goal := neutral
	if a.IntentGoal != "" && b.IntentGoal != "" {
		switch {
		case a.IntentGoal == b.IntentGoal:
			goal = 1
		case p.intentCompatible(a.IntentGoal, b.IntentGoal):
			goal = 0.5
		default:
			goal = 0
		}
	}
	values := 0.0
	for i := range a.Values {
		switch {
		case a.Values[i] == "" || b.Values[i] == "":
			values += neutral
		case a.Values[i] == b.Values[i]:
			values++
		}
	}
	values /= ValueQuestions
	return (goal*intentGoal + values*intentValues) / intentTotal
}

// Weigh turns raw fractions into points under a mode and model. Opposites
// mode inverts lifestyle, humor/openness and a measured vibe; synergy,
// communication and intent/values keep rewarding similarity. The no-AI and
// fallback vibe constants are not measurements and are never inverted.
func Weigh(raw RawScores, opts Options) SubScores {
	w := WeightsFor(opts.Model)
	lifestyle, humor, vibe := raw.Lifestyle, raw.HumorOpen, raw.Vibe
	if opts.Mode == ModeOpposites {
		lifestyle = 1 - lifestyle
		humor = 1 - humor
		if raw.VibeSource == VibeFromLLM {
			vibe = 1 - vibe
		}
	}
	return SubScores{
		Synergy:       round2(clamp01(raw.Synergy) * w.Synergy),
		Lifestyle:     round2(clamp01(lifestyle) * w.Lifestyle),
		HumorOpen:     round2(clamp01(humor) * w.HumorOpen),
		Communication: round2(clamp01(raw.Communication) * w.Communication),
		Intent:        round2(clamp01(raw.Intent) * w.Intent),
		Vibe:          round2(clamp01(vibe) * w.Vibe),
	}
}

func roleFit(a, b string) float64 {
	ra, rb := normalizeRole(a), normalizeRole(b)
	if ra == "" || rb == "" {
		return neutral
	}
	if ra > rb {
		ra, rb = rb, ra
	}
	switch ra + "/" + rb {
	case "leader/listener":
		return 1
	case "balanced/balanced":
		return 0.85
	case "balanced/leader", "balanced/listener":
		return 0.75
	case "leader/leader":
		return 0.4
	case "listener/listener":
		return 0.3
	}
	return neutral
}

func normalizeRole(r string) string {
	switch r {
	case "leader", "initiator", "talker", "energizer":
		return "leader"
	case "listener", "responder", "observer":
		return "listener"
	case "balanced", "mixed", "both":
		return "balanced"
	}
	return ""
}

func depthFit(a, b string) float64 {
	if a == "" || b == "" {
		return neutral
	}
	switch {
	case a == b:
		return 1
	case a == "mixed" || b == "mixed":
		return 0.6
	default:
		return 0.1
	}
}

var curiosityLevels = map[string]int{
	"explorer": 2, "curious": 2, "asker": 2,
	"balanced": 1, "moderate": 1,
	"reserved": 0, "observer": 0, "low": 0,
}

func curiosityFit(a, b string) float64 {
	la, oka := curiosityLevels[a]
	lb, okb := curiosityLevels[b]
	if !oka || !okb {
		return neutral
	}
	if la < lb {
		la, lb = lb, la
	}
	switch {
	case la == 2 && lb == 2:
		return 1
	case la == 2 && lb == 1:
		return 0.85
	case la == 1 && lb == 1:
		return 0.7
	case la == 2 && lb == 0:
		return 0.55
	case la == 1 && lb == 0:
		return 0.4
	default:
		return 0.1
	}
}

func silenceLevel(s string) (int, bool) {
	switch s {
	case "comfortable":
		return 2, true
	case "neutral":
		return 1, true
	case "uncomfortable":
		return 0, true
	}
	return 0, false
}

// distanceFit maps |a-b| on an ordinal scale of the given span to [0,1].
func distanceFit(a, b, span int) float64 {
	if a == Unknown || b == Unknown {
		return neutral
	}
	return 1 - float64(absInt(a-b))/float64(span)
}

// letterDistanceFit treats answer letters as an ordinal scale.
func letterDistanceFit(a, b string) float64 {
	if a == "" || b == "" {
		return neutral
	}
	if a == b {
		return 1
	}
	if len(a) == 1 && len(b) == 1 && absInt(int(a[0])-int(b[0])) == 1 {
		return 0.5
	}
	return 0
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func clamp01(x float64) float64 {
	return clip(x, 0, 1)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
