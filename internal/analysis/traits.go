package analysis

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrMissingSurveyData is returned when a participant has no survey answers.
var ErrMissingSurveyData = errors.New("survey responses not found")

// Unknown marks an ordinal trait that was not answered.
const Unknown = -1

// Traits is the normalized per-participant record consumed by every sub-scorer.
// String traits are lower-case words or upper-case answer letters; "" means unknown.
type Traits struct {
	Number int `json:"assigned_number"`

	Gender          string `json:"gender"`
	PreferredGender string `json:"preferred_gender"`
	Age             int    `json:"age"`
	AgeMin          int    `json:"age_min"`
	AgeMax          int    `json:"age_max"`
	Nationality     string `json:"nationality"`

	ConversationalRole string `json:"conversational_role"`
	ConversationDepth  string `json:"conversation_depth"`
	SocialBattery      int    `json:"social_battery"`
	HumorSubtype       string `json:"humor_subtype"`
	CuriosityStyle     string `json:"curiosity_style"`
	SilenceComfort     string `json:"silence_comfort"`
	HumorStyle         string `json:"humor_style"`
	EarlyOpenness      int    `json:"early_openness_comfort"`

	AttachmentAnxious  int    `json:"attachment_anxious"`
	AttachmentAvoidant int    `json:"attachment_avoidant"`
	AttachmentStyle    string `json:"attachment_style"`

	IntentGoal         string `json:"intent_goal"`
	OpenIntentMismatch bool   `json:"open_intent_goal_mismatch"`

	Lifestyle          [LifestyleQuestions]string `json:"lifestyle"`
	Values             [ValueQuestions]string     `json:"core_values"`
	CommunicationStyle string                     `json:"communication_style"`

	VibeAnswers []string `json:"vibe_answers"`
}

const (
	LifestyleQuestions = 5
	ValueQuestions     = 5
	vibeQuestions      = 6
)

// field aliases, resolved once against a normalized key index
var (
	keysGender          = []string{"gender", "sex"}
	keysPreferredGender = []string{"actual_gender_preference", "gender_preference", "preferred_gender"}
	keysAge             = []string{"age"}
	keysAgeMin          = []string{"preferred_age_min", "age_preference_min", "min_age"}
	keysAgeMax          = []string{"preferred_age_max", "age_preference_max", "max_age"}
	keysNationality     = []string{"nationality", "country"}
	keysRole            = []string{"conversational_role", "role"}
	keysDepth           = []string{"conversation_depth_pref", "conversation_depth", "depth_preference"}
	keysBattery         = []string{"social_battery"}
	keysHumorSubtype    = []string{"humor_subtype"}
	keysCuriosity       = []string{"curiosity_style"}
	keysSilence         = []string{"silence_comfort"}
	keysHumorStyle      = []string{"humor_banter_style", "humor_style"}
	keysOpenness        = []string{"early_openness_comfort", "openness_comfort"}
	keysAnxious         = []string{"attachment_anxious", "anxious_score"}
	keysAvoidant        = []string{"attachment_avoidant", "avoidant_score"}
	keysAttachment      = []string{"attachment_style"}
	keysIntent          = []string{"intent_goal", "goal", "relationship_goal"}
	keysOpenMismatch    = []string{"open_intent_goal_mismatch", "open_to_intent_mismatch"}
	keysCommunication   = []string{"communication_style"}
)

// ExtractTraits normalizes raw survey data. Survey data may carry answers at
// the top level or nested under "answers"; nested answers win.
func ExtractTraits(number int, survey map[string]any) (Traits, error) {
	idx := indexSurvey(survey)
	if len(idx) == 0 {
		return Traits{}, fmt.Errorf("participant %d: %w", number, ErrMissingSurveyData)
	}

	t := Traits{
		Number:             number,
		Gender:             normalizeGender(idx.word(keysGender...)),
		PreferredGender:    normalizeGender(idx.word(keysPreferredGender...)),
		Age:                idx.number(keysAge...),
		AgeMin:             idx.number(keysAgeMin...),
		AgeMax:             idx.number(keysAgeMax...),
		Nationality:        idx.word(keysNationality...),
		ConversationalRole: idx.word(keysRole...),
		ConversationDepth:  idx.word(keysDepth...),
		SocialBattery:      idx.scale(1, 5, keysBattery...),
		HumorSubtype:       idx.word(keysHumorSubtype...),
		CuriosityStyle:     idx.word(keysCuriosity...),
		SilenceComfort:     idx.word(keysSilence...),
		HumorStyle:         idx.letter(keysHumorStyle...),
		EarlyOpenness:      idx.scale(0, 3, keysOpenness...),
		AttachmentAnxious:  idx.scale(1, 5, keysAnxious...),
		AttachmentAvoidant: idx.scale(1, 5, keysAvoidant...),
		IntentGoal:         idx.letter(keysIntent...),
		OpenIntentMismatch: idx.flag(keysOpenMismatch...),
		CommunicationStyle: idx.letter(keysCommunication...),
	}
	if t.Age < 0 {
		t.Age = 0
	}
	if t.AgeMin < 0 {
		t.AgeMin = 0
	}
	if t.AgeMax < 0 {
		t.AgeMax = 0
	}

	for i := range t.Lifestyle {
		t.Lifestyle[i] = idx.letter(numbered("lifestyle", i+1))
	}
	for i := range t.Values {
		t.Values[i] = idx.letter(numbered("core_values", i+1))
	}
	for i := 1; i <= vibeQuestions; i++ {
		if v := idx.text(numbered("vibe", i)); v != "" {
			t.VibeAnswers = append(t.VibeAnswers, v)
		}
	}

	t.AttachmentStyle = idx.word(keysAttachment...)
	if t.AttachmentStyle == "" {
		t.AttachmentStyle = deriveAttachmentStyle(t.AttachmentAnxious, t.AttachmentAvoidant)
	}

	return t, nil
}

// deriveAttachmentStyle maps the two 1-5 axes to a style. Either axis unknown
// leaves the style unknown.
func deriveAttachmentStyle(anxious, avoidant int) string {
	if anxious == Unknown || avoidant == Unknown {
		return ""
	}
	switch {
	case anxious >= 4 && avoidant >= 4:
		return "fearful"
	case anxious >= 4:
		return "anxious"
	case avoidant >= 4:
		return "avoidant"
	default:
		return "secure"
	}
}

func numbered(prefix string, n int) string {
	return fmt.Sprintf("%s_%d", prefix, n)
}

func normalizeGender(s string) string {
	switch s {
	case "m", "male", "man", "ذكر":
		return "male"
	case "f", "female", "woman", "أنثى", "انثى":
		return "female"
	case "both", "either", "no_preference", "لا يهم":
		return "any"
	}
	return s
}

// surveyIndex maps normalized keys (lower-case, no separators) to raw values.
type surveyIndex map[string]any

func indexSurvey(survey map[string]any) surveyIndex {
	if survey == nil {
		return nil
	}
	idx := surveyIndex{}
	for k, v := range survey {
		if k == "answers" {
			continue
		}
		idx[normalizeKey(k)] = v
	}
	if answers, ok := survey["answers"].(map[string]any); ok {
		for k, v := range answers {
			idx[normalizeKey(k)] = v
		}
	}
	// metadata alone is not a survey
	for k := range idx {
		if isMetadataKey(k) {
			delete(idx, k)
		}
	}
	return idx
}

func isMetadataKey(k string) bool {
	switch k {
	case "name", "phonenumber", "submittedat", "updatedat", "createdat", "eventid", "assignednumber":
		return true
	}
	return false
}

func normalizeKey(k string) string {
	var b strings.Builder
	b.Grow(len(k))
	for _, r := range k {
		if r == '_' || r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func (idx surveyIndex) lookup(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := idx[normalizeKey(k)]; ok && v != nil {
			if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
				continue
			}
			return v, true
		}
	}
	return nil, false
}

func (idx surveyIndex) text(keys ...string) string {
	v, ok := idx.lookup(keys...)
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, p := range val {
			parts = append(parts, strings.TrimSpace(fmt.Sprint(p)))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(val)
	}
}

func (idx surveyIndex) word(keys ...string) string {
	return strings.ToLower(idx.text(keys...))
}

// letter returns the answer letter of a multiple-choice answer such as
// "B", "b", "B) Sometimes" or "B. Sometimes".
func (idx surveyIndex) letter(keys ...string) string {
	s := strings.ToUpper(idx.text(keys...))
	if s == "" {
		return ""
	}
	runes := []rune(s)
	if len(runes) == 1 || !unicode.IsLetter(runes[1]) {
		return string(runes[0])
	}
	return s
}

func (idx surveyIndex) number(keys ...string) int {
	v, ok := idx.lookup(keys...)
	if !ok {
		return Unknown
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case int64:
		return int(val)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return Unknown
		}
		return n
	}
	return Unknown
}

// scale reads an ordinal answer and reports Unknown when it falls outside [lo, hi].
func (idx surveyIndex) scale(lo, hi int, keys ...string) int {
	n := idx.number(keys...)
	if n < lo || n > hi {
		return Unknown
	}
	return n
}

func (idx surveyIndex) flag(keys ...string) bool {
	v, ok := idx.lookup(keys...)
	if !ok {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes", "1", "نعم":
			return true
		}
	}
	return false
}
