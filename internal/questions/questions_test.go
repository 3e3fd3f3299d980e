package questions

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/blind-match/internal/analysis"
)

func TestParseHeuristic_NumberedArabicReply(t *testing.T) {
	reply := "إليك الأسئلة:\n" +
		"1. ما هو أجمل مكان زرته؟\n" +
		"2) \"ما الذي يجعلك تضحك من قلبك؟\"\n" +
		"٣- ما هي الهواية التي تتمنى أن تجربها؟\n" +
		"- • «لو كان لديك يوم حر، كيف تقضيه؟»\n" +
		"\n" +
		"(5) ما الحلم الذي تسعى لتحقيقه؟\n" +
		"أتمنى لكما حديثاً ممتعاً"

	got := ParseHeuristic(reply)
	assert.Equal(t, []string{
		"ما هو أجمل مكان زرته؟",
		"ما الذي يجعلك تضحك من قلبك؟",
		"ما هي الهواية التي تتمنى أن تجربها؟",
		"لو كان لديك يوم حر، كيف تقضيه؟",
		"ما الحلم الذي تسعى لتحقيقه؟",
	}, got)
}

func TestParseHeuristic_NoQuestionMarks(t *testing.T) {
	got := ParseHeuristic("Questions:\n* Tell me about your favourite trip\n** 2. Describe a perfect weekend\n")
	assert.Equal(t, []string{"Tell me about your favourite trip", "Describe a perfect weekend"}, got)
}

func TestParseHeuristic_KeepsLeadingNumbersInText(t *testing.T) {
	got := ParseHeuristic("1. 3 أشياء لا تستطيع العيش بدونها؟")
	assert.Equal(t, []string{"3 أشياء لا تستطيع العيش بدونها؟"}, got)
}

func TestParseStructured(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		expected []string
		ok       bool
	}{
		{"array", `["أ؟", " ب؟ "]`, []string{"أ؟", "ب؟"}, true},
		{"object", `{"questions": ["1. first?", "second?"]}`, []string{"first?", "second?"}, true},
		{"code fence", "```json\n[\"one?\"]\n```", []string{"one?"}, true},
		{"plain text", "1. one?\n2. two?", nil, false},
		{"broken json", `["one?"`, nil, false},
		{"empty array", `[]`, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseStructured(tt.reply)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, got)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	long := []string{"a", "b", "c", "d", "e", "f", "g"}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, Normalize(long))

	padded := Normalize([]string{"x", "x", " ", FallbackQuestions[0]})
	require.Len(t, padded, Count)
	assert.Equal(t, []string{"x", FallbackQuestions[0], FallbackQuestions[1], FallbackQuestions[2], FallbackQuestions[3]}, padded)

	assert.Equal(t, FallbackQuestions[:Count], Normalize(nil))
}

func TestNewKey_Canonical(t *testing.T) {
	assert.Equal(t, NewKey("m1", 1, 3, 9), NewKey(" m1 ", 1, 9, 3))
	assert.Equal(t, "questions:m1:1:3:9", NewKey("m1", 1, 9, 3).String())

	assert.Error(t, NewKey("", 1, 1, 2).Validate())
	assert.Error(t, NewKey("m", 1, 2, 2).Validate())
	assert.Error(t, NewKey("m", -1, 1, 2).Validate())
}

type memoryStore struct {
	mu    sync.Mutex
	sets  map[Key]Set
	saves int
	err   error
}

func newMemoryStore() *memoryStore { return &memoryStore{sets: map[Key]Set{}} }

func (m *memoryStore) LoadQuestions(_ context.Context, key Key) (Set, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	return set, ok, nil
}

func (m *memoryStore) SaveQuestions(_ context.Context, set Set) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.err != nil {
		return m.err
	}
	m.sets[set.Key] = set
	return nil
}

type scriptedLLM struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (s *scriptedLLM) Complete(context.Context, string, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.reply, s.err
}

type blockingLLM struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingLLM) Complete(ctx context.Context, _, _ string) (string, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-b.release:
		return `["a?","b?","c?","d?","e?"]`, nil
	}
}

type sourceCounter struct {
	mu      sync.Mutex
	sources []string
}

func (c *sourceCounter) RecordQuestionSet(source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = append(c.sources, source)
}

func TestGenerator_Sources(t *testing.T) {
	a, b := analysis.Traits{Number: 4}, analysis.Traits{Number: 2}

	tests := []struct {
		name     string
		llm      Completer
		source   Source
		firstQ   string
		llmCalls int
	}{
		{"structured", &scriptedLLM{reply: `["سؤال أول؟","سؤال ثان؟"]`}, SourceLLM, "سؤال أول؟", 1},
		{"heuristic", &scriptedLLM{reply: "1. سؤال أول؟\n2. سؤال ثان؟"}, SourceHeuristic, "سؤال أول؟", 1},
		{"llm error", &scriptedLLM{err: stderrors.New("timeout")}, SourceFallback, FallbackQuestions[0], 1},
		{"empty reply", &scriptedLLM{reply: "   "}, SourceFallback, FallbackQuestions[0], 1},
		{"no llm", nil, SourceFallback, FallbackQuestions[0], 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := &sourceCounter{}
			gen := NewGenerator(tt.llm, newMemoryStore(), metrics, nil)

			set, cached, err := gen.Generate(context.Background(), NewKey("m1", 2, 4, 2), a, b)
			require.NoError(t, err)
			assert.False(t, cached)
			assert.Equal(t, tt.source, set.Source)
			assert.Len(t, set.Questions, Count)
			assert.Equal(t, tt.firstQ, set.Questions[0])
			assert.Equal(t, Key{MatchID: "m1", Round: 2, A: 2, B: 4}, set.Key)
			assert.Equal(t, []string{string(tt.source)}, metrics.sources)

			if s, ok := tt.llm.(*scriptedLLM); ok {
				assert.Equal(t, tt.llmCalls, s.calls)
			}
		})
	}
}

func TestGenerator_CachesPerCanonicalPair(t *testing.T) {
	llm := &scriptedLLM{reply: `["a?","b?","c?","d?","e?"]`}
	store := newMemoryStore()
	gen := NewGenerator(llm, store, nil, nil)
	a, b := analysis.Traits{Number: 1}, analysis.Traits{Number: 2}

	first, cached, err := gen.Generate(context.Background(), Key{MatchID: "m", Round: 1, A: 1, B: 2}, a, b)
	require.NoError(t, err)
	assert.False(t, cached)

	second, cached, err := gen.Generate(context.Background(), Key{MatchID: "m", Round: 1, A: 2, B: 1}, b, a)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, first.Questions, second.Questions)
	assert.Equal(t, 1, llm.calls)

	_, cached, err = gen.Generate(context.Background(), Key{MatchID: "m", Round: 2, A: 1, B: 2}, a, b)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, llm.calls)
}

func TestGenerator_FallbackNotCachedWhenModelConfigured(t *testing.T) {
	llm := &scriptedLLM{err: stderrors.New("upstream 503")}
	store := newMemoryStore()
	gen := NewGenerator(llm, store, nil, nil)
	key := NewKey("m", 1, 1, 2)
	a, b := analysis.Traits{Number: 1}, analysis.Traits{Number: 2}

	first, cached, err := gen.Generate(context.Background(), key, a, b)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, SourceFallback, first.Source)
	assert.Equal(t, 0, store.saves)

	llm.mu.Lock()
	llm.err, llm.reply = nil, `["a?","b?","c?","d?","e?"]`
	llm.mu.Unlock()

	second, cached, err := gen.Generate(context.Background(), key, a, b)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, SourceLLM, second.Source)
	assert.Equal(t, "a?", second.Questions[0])

	third, cached, err := gen.Generate(context.Background(), key, a, b)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, second.Questions, third.Questions)
	assert.Equal(t, 2, llm.calls)
}

func TestGenerator_CancelledCallerLeavesSharedGeneration(t *testing.T) {
	llm := &blockingLLM{started: make(chan struct{}), release: make(chan struct{})}
	store := newMemoryStore()
	gen := NewGenerator(llm, store, nil, nil)
	key := NewKey("m", 1, 1, 2)
	a, b := analysis.Traits{Number: 1}, analysis.Traits{Number: 2}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := gen.Generate(firstCtx, key, a, b)
		firstErr <- err
	}()
	<-llm.started

	type result struct {
		set Set
		err error
	}
	second := make(chan result, 1)
	go func() {
		set, _, err := gen.Generate(context.Background(), key, a, b)
		second <- result{set, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(llm.release)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, SourceLLM, res.set.Source)
	assert.Equal(t, "a?", res.set.Questions[0])

	stored, ok, err := store.LoadQuestions(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, SourceLLM, stored.Source)
}

func TestGenerator_StoreFailureStillReturnsSet(t *testing.T) {
	store := newMemoryStore()
	store.err = stderrors.New("disk full")
	gen := NewGenerator(nil, store, nil, nil)

	set, _, err := gen.Generate(context.Background(), NewKey("m", 1, 1, 2), analysis.Traits{Number: 1}, analysis.Traits{Number: 2})
	require.NoError(t, err)
	assert.Len(t, set.Questions, Count)
	assert.Equal(t, 1, store.saves)
}

func TestGenerator_RejectsInvalidKey(t *testing.T) {
	gen := NewGenerator(nil, nil, nil, nil)
	_, _, err := gen.Generate(context.Background(), NewKey("m", 1, 3, 3), analysis.Traits{}, analysis.Traits{})
	assert.Error(t, err)
}
