package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// Weights are the maximum points per factor. Each table sums to 100.
type Weights struct {
	Synergy       float64 `json:"synergy"`
	Lifestyle     float64 `json:"lifestyle"`
	HumorOpen     float64 `json:"humor_open"`
	Communication float64 `json:"communication"`
	Intent        float64 `json:"intent"`
	Vibe          float64 `json:"vibe"`
}

var (
	PairWeights = Weights{
		Synergy:       35,
		Lifestyle:     15,
		HumorOpen:     15,
		Communication: 10,
		Intent:        5,
		Vibe:          20,
	}
	// legacy scoring had no communication factor and weighted lifestyle heavier
	LegacyWeights = Weights{
		Synergy:       35,
		Lifestyle:     25,
		HumorOpen:     15,
		Communication: 0,
		Intent:        5,
		Vibe:          20,
	}
)

// WeightsFor returns the weight table of a model.
func WeightsFor(m Model) Weights {
	if m == ModelLegacy {
		return LegacyWeights
	}
	return PairWeights
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Synergy + w.Lifestyle + w.HumorOpen + w.Communication + w.Intent + w.Vibe
}

// Validate checks weights are non-negative and sum to 100.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"synergy": w.Synergy, "lifestyle": w.Lifestyle, "humor_open": w.HumorOpen,
		"communication": w.Communication, "intent": w.Intent, "vibe": w.Vibe,
	} {
		if v < 0 {
			return fmt.Errorf("weight %s is negative: %v", name, v)
		}
	}
	if math.Abs(w.Sum()-100) > 1e-9 {
		return fmt.Errorf("weights sum to %v, want 100", w.Sum())
	}
	return nil
}

// DeadAirPolicy defines "minimal conversational engagement" for both participants.
type DeadAirPolicy struct {
	LowCuriosityStyles  []string `json:"low_curiosity_styles"`
	MaxCommunicationFit float64  `json:"max_communication_fit"`
}

// HumorClashPolicy lists humor combinations that are actively incompatible.
type HumorClashPolicy struct {
	StylePairs   [][2]string `json:"style_pairs"`
	SubtypePairs [][2]string `json:"subtype_pairs"`
}

// Policy holds the configurable gate thresholds.
type Policy struct {
	DeadAir    DeadAirPolicy    `json:"dead_air"`
	HumorClash HumorClashPolicy `json:"humor_clash"`
	// IntentCompatible lists distinct intent letters that still count as aligned.
	IntentCompatible [][2]string `json:"intent_compatible"`
}

// DefaultPolicy returns the gate thresholds used when no policy file exists.
func DefaultPolicy() Policy {
	return Policy{
		DeadAir: DeadAirPolicy{
			LowCuriosityStyles:  []string{"reserved", "observer"},
			MaxCommunicationFit: 0.4,
		},
		HumorClash: HumorClashPolicy{
			StylePairs:   [][2]string{{"C", "D"}},
			SubtypePairs: [][2]string{{"dark", "wholesome"}, {"sarcastic", "sensitive"}},
		},
		IntentCompatible: [][2]string{{"A", "B"}},
	}
}

// Validate checks thresholds are in range.
func (p Policy) Validate() error {
	if p.DeadAir.MaxCommunicationFit < 0 || p.DeadAir.MaxCommunicationFit > 1 {
		return fmt.Errorf("dead_air.max_communication_fit must be in [0,1], got %v", p.DeadAir.MaxCommunicationFit)
	}
	for _, pair := range p.HumorClash.StylePairs {
		if pair[0] == "" || pair[1] == "" {
			return fmt.Errorf("humor_clash.style_pairs contains an empty style")
		}
	}
	for _, pair := range p.HumorClash.SubtypePairs {
		if pair[0] == "" || pair[1] == "" {
			return fmt.Errorf("humor_clash.subtype_pairs contains an empty subtype")
		}
	}
	return nil
}

func (p Policy) isLowCuriosity(style string) bool {
	for _, s := range p.DeadAir.LowCuriosityStyles {
		if strings.EqualFold(s, style) {
			return true
		}
	}
	return false
}

func (p Policy) humorClash(a, b Traits) bool {
	return containsPair(p.HumorClash.StylePairs, a.HumorStyle, b.HumorStyle) ||
		containsPair(p.HumorClash.SubtypePairs, a.HumorSubtype, b.HumorSubtype)
}

func (p Policy) intentCompatible(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b || containsPair(p.IntentCompatible, a, b)
}

// containsPair matches an unordered pair, case-insensitively.
func containsPair(pairs [][2]string, a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	for _, p := range pairs {
		if (strings.EqualFold(p[0], a) && strings.EqualFold(p[1], b)) ||
			(strings.EqualFold(p[0], b) && strings.EqualFold(p[1], a)) {
			return true
		}
	}
	return false
}

// PolicyStore loads and saves gate policies by name from a data directory.
type PolicyStore struct {
	dataDir string
}

// NewPolicyStore creates a new policy store
func NewPolicyStore(dataDir string) *PolicyStore {
	return &PolicyStore{dataDir: dataDir}
}

// Path returns the file backing a named policy.
func (s *PolicyStore) Path(name string) string {
	if name == "" {
		name = "default"
	}
	return filepath.Join(s.dataDir, fmt.Sprintf("policy_%s.json", name))
}

// Load reads a named policy, falling back to DefaultPolicy when the file is absent.
func (s *PolicyStore) Load(name string) (Policy, error) {
	file, err := os.Open(s.Path(name))
	if os.IsNotExist(err) {
		return DefaultPolicy(), nil
	}
	if err != nil {
		return Policy{}, fmt.Errorf("failed to open policy file: %w", err)
	}
	defer file.Close()

	policy := DefaultPolicy()
	if err := json.NewDecoder(file).Decode(&policy); err != nil {
		return Policy{}, fmt.Errorf("failed to decode policy: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return Policy{}, fmt.Errorf("invalid policy %q: %w", name, err)
	}
	return policy, nil
}

// Save writes a named policy.
func (s *PolicyStore) Save(name string, policy Policy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create policy directory: %w", err)
	}

	file, err := os.Create(s.Path(name))
	if err != nil {
		return fmt.Errorf("failed to create policy file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(policy); err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}
	return nil
}
