package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/blind-match/internal/analysis"
)

// Completer is the chat capability the vibe and question generators need.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// ErrNoVibeAnswers means neither participant wrote any free-text answer.
var ErrNoVibeAnswers = stderrors.New("no free-text answers to compare")

var numberPattern = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)

const vibeSystemPrompt = `You rate how well two people would click in a first face-to-face conversation, ` +
	`based only on their free-text answers about themselves. ` +
	`Answer with a single number from 0 to 20 and nothing else. ` +
	`20 means their energy, interests and outlook fit naturally; 0 means there is nothing to build on.`

// VibeScorer rates free-text answers through the LLM. It implements
// analysis.VibeScorer.
type VibeScorer struct {
	client Completer
}

// NewVibeScorer wraps a completer.
func NewVibeScorer(client Completer) *VibeScorer {
	return &VibeScorer{client: client}
}

// ScoreVibe returns points in [0, analysis.PairWeights.Vibe].
func (v *VibeScorer) ScoreVibe(ctx context.Context, a, b analysis.Traits) (float64, error) {
	if len(a.VibeAnswers) == 0 && len(b.VibeAnswers) == 0 {
		return 0, ErrNoVibeAnswers
	}

	reply, err := v.client.Complete(ctx, vibeSystemPrompt, vibePrompt(a, b))
	if err != nil {
		return 0, err
	}
	return ParseVibePoints(reply, analysis.PairWeights.Vibe)
}

func vibePrompt(a, b analysis.Traits) string {
	var sb strings.Builder
	writeAnswers(&sb, "Person A", a.VibeAnswers)
	sb.WriteString("\n")
	writeAnswers(&sb, "Person B", b.VibeAnswers)
	return sb.String()
}

func writeAnswers(sb *strings.Builder, label string, answers []string) {
	sb.WriteString(label)
	sb.WriteString(":\n")
	if len(answers) == 0 {
		sb.WriteString("- (no answers)\n")
		return
	}
	for _, answer := range answers {
		sb.WriteString("- ")
		sb.WriteString(answer)
		sb.WriteString("\n")
	}
}

// ParseVibePoints takes the first number in a model reply and clamps it to [0, limit].
func ParseVibePoints(reply string, limit float64) (float64, error) {
	match := numberPattern.FindString(reply)
	if match == "" {
		return 0, fmt.Errorf("no number in vibe reply %q", truncate(reply, 80))
	}
	points, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("parse vibe points %q: %w", match, err)
	}
	return max(0, min(points, limit)), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
