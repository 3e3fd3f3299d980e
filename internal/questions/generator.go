package questions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ZanzyTHEbar/blind-match/internal/analysis"
	"github.com/ZanzyTHEbar/blind-match/internal/monitoring"
)

// Count is the exact number of questions in every set.
const Count = 5

// DefaultGenerateTimeout bounds one shared generation once every waiter has
// gone away.
const DefaultGenerateTimeout = 90 * time.Second

// Source records which path produced a question set.
type Source string

const (
	SourceLLM       Source = "llm"
	SourceHeuristic Source = "heuristic"
	SourceFallback  Source = "fallback"
)

// FallbackQuestions pad short replies and replace failed generations.
var FallbackQuestions = []string{
	"ما هو الشيء الذي يجعل يومك جميلاً مهما كانت الظروف؟",
	"لو استطعت أن تتقن مهارة جديدة خلال شهر، ماذا ستختار ولماذا؟",
	"ما هي الذكرى التي تبتسم كلما تذكرتها؟",
	"كيف تقضي يوماً مثالياً بلا أي التزامات؟",
	"ما هو المكان الذي تحلم بزيارته، وما الذي يجذبك إليه؟",
	"ما هي القيمة التي لا تتنازل عنها في علاقاتك مع الآخرين؟",
	"ما هو آخر شيء تعلمته وغيّر نظرتك لأمر ما؟",
	"لو كتبت كتاباً عن حياتك، ماذا سيكون عنوانه؟",
}

// Key identifies a question set: one match, one round, one unordered pair.
type Key struct {
	MatchID string `json:"match_id"`
	Round   int    `json:"round"`
	A       int    `json:"participant_a"`
	B       int    `json:"participant_b"`
}

// NewKey builds a key with the pair in ascending order.
func NewKey(matchID string, round, a, b int) Key {
	if b < a {
		a, b = b, a
	}
	return Key{MatchID: strings.TrimSpace(matchID), Round: round, A: a, B: b}
}

func (k Key) String() string {
	return fmt.Sprintf("questions:%s:%d:%d:%d", k.MatchID, k.Round, k.A, k.B)
}

// Validate rejects keys that cannot name a real match.
func (k Key) Validate() error {
	if k.MatchID == "" {
		return fmt.Errorf("match id is required")
	}
	if k.Round < 0 {
		return fmt.Errorf("round must not be negative, got %d", k.Round)
	}
	return analysis.ValidatePair(k.A, k.B)
}

// Set is a generated list of exactly Count questions.
type Set struct {
	Key       Key       `json:"key"`
	Questions []string  `json:"questions"`
	Source    Source    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists question sets so a pair is generated once.
type Store interface {
	LoadQuestions(ctx context.Context, key Key) (Set, bool, error)
	SaveQuestions(ctx context.Context, set Set) error
}

// Completer is the chat capability used to write questions.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Metrics receives one event per generated set.
type Metrics interface {
	RecordQuestionSet(source string)
}

// Generator produces cached conversation questions for a matched pair.
type Generator struct {
	llm     Completer
	store   Store
	metrics Metrics
	logger  *monitoring.Logger
	group   singleflight.Group
	timeout time.Duration
	now     func() time.Time
}

// NewGenerator wires the collaborators. A nil completer always serves the
// fallback list; a nil store disables caching.
func NewGenerator(llm Completer, store Store, metrics Metrics, logger *monitoring.Logger) *Generator {
	if logger == nil {
		logger = monitoring.NewLoggerTo(io.Discard, slog.LevelError)
	}
	return &Generator{
		llm:     llm,
		store:   store,
		metrics: metrics,
		logger:  logger,
		timeout: DefaultGenerateTimeout,
		now:     time.Now,
	}
}

// Generate returns the cached set for key or creates one. The bool reports a
// cache hit. LLM failures never surface as errors. A fallback set is only
// persisted when no completer is configured, so a later call can still reach
// the model.
func (g *Generator) Generate(ctx context.Context, key Key, a, b analysis.Traits) (Set, bool, error) {
	key = NewKey(key.MatchID, key.Round, key.A, key.B)
	if err := key.Validate(); err != nil {
		return Set{}, false, err
	}

	if g.store != nil {
		set, ok, err := g.store.LoadQuestions(ctx, key)
		if err != nil {
			g.logger.Warn("Question cache read failed", "key", key.String(), "error", err)
		} else if ok {
			return set, true, nil
		}
	}

	// The flight outlives any single caller; each waiter honours its own ctx.
	ch := g.group.DoChan(key.String(), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()

		set := g.create(fctx, key, a, b)
		if g.store != nil && g.cacheable(set) {
			if err := g.store.SaveQuestions(fctx, set); err != nil {
				g.logger.Warn("Question cache write failed", "key", key.String(), "error", err)
			}
		}
		if g.metrics != nil {
			g.metrics.RecordQuestionSet(string(set.Source))
		}
		return set, nil
	})

	select {
	case <-ctx.Done():
		return Set{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Set{}, false, res.Err
		}
		return res.Val.(Set), false, nil
	}
}

func (g *Generator) cacheable(set Set) bool {
	return set.Source != SourceFallback || g.llm == nil
}

func (g *Generator) create(ctx context.Context, key Key, a, b analysis.Traits) Set {
	set := Set{Key: key, Source: SourceFallback, CreatedAt: g.now().UTC()}

	var parsed []string
	if g.llm != nil {
		reply, err := g.llm.Complete(ctx, systemPrompt, buildPrompt(a, b))
		switch {
		case err != nil:
			g.logger.Warn("Question generation failed, using fallback list",
				"key", key.String(), "error", err)
		default:
			if qs, ok := ParseStructured(reply); ok {
				parsed, set.Source = qs, SourceLLM
			} else if qs := ParseHeuristic(reply); len(qs) > 0 {
				parsed, set.Source = qs, SourceHeuristic
			}
		}
	}

	set.Questions = Normalize(parsed)
	return set
}

// Normalize returns exactly Count distinct questions, truncating or padding
// from FallbackQuestions in order.
func Normalize(qs []string) []string {
	out := make([]string, 0, Count)
	seen := make(map[string]bool, Count)
	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" || seen[q] || len(out) == Count {
			return
		}
		seen[q] = true
		out = append(out, q)
	}
	for _, q := range qs {
		add(q)
	}
	for _, q := range FallbackQuestions {
		add(q)
	}
	return out
}

const systemPrompt = `أنت منسق فعاليات تعارف. اكتب خمسة أسئلة مفتوحة باللغة العربية تساعد شخصين ` +
	`على بدء حديث ممتع وعميق في لقائهما الأول. تجنب الأسئلة الشخصية المحرجة وأسئلة نعم/لا. ` +
	`أعد النتيجة كمصفوفة JSON من خمسة نصوص فقط دون أي شرح.`

func buildPrompt(a, b analysis.Traits) string {
	var sb strings.Builder
	describe(&sb, "الشخص الأول", a)
	sb.WriteString("\n")
	describe(&sb, "الشخص الثاني", b)
	return sb.String()
}

func describe(sb *strings.Builder, label string, t analysis.Traits) {
	sb.WriteString(label)
	sb.WriteString(":\n")
	if t.ConversationDepth != "" {
		fmt.Fprintf(sb, "- عمق الحديث المفضل: %s\n", t.ConversationDepth)
	}
	if t.HumorSubtype != "" {
		fmt.Fprintf(sb, "- نوع الفكاهة: %s\n", t.HumorSubtype)
	}
	if t.CuriosityStyle != "" {
		fmt.Fprintf(sb, "- أسلوب الفضول: %s\n", t.CuriosityStyle)
	}
	for _, answer := range t.VibeAnswers {
		fmt.Fprintf(sb, "- %s\n", answer)
	}
}
