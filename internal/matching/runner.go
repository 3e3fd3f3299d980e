package matching

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ZanzyTHEbar/blind-match/internal/analysis"
	"github.com/ZanzyTHEbar/blind-match/internal/cache"
	"github.com/ZanzyTHEbar/blind-match/internal/database"
	"github.com/ZanzyTHEbar/blind-match/internal/errors"
	"github.com/ZanzyTHEbar/blind-match/internal/monitoring"
)

const (
	DefaultParallelism = 8

	MinGroupSize = 3
	MaxGroupSize = 4

	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var (
	// ErrSuperseded cancels a run when a newer run starts for the same event.
	ErrSuperseded = stderrors.New("match run superseded by a newer run")
	// ErrCancelled cancels a run on operator request.
	ErrCancelled = stderrors.New("match run cancelled")
)

// Metrics receives scoring counters.
type Metrics interface {
	RecordPairScored(vetoed bool)
	RecordMatchRun(success bool)
}

// Request describes one matrix run.
type Request struct {
	EventID      int              `json:"event_id"`
	Round        int              `json:"round"`
	Options      analysis.Options `json:"options"`
	MatchType    string           `json:"match_type"`
	AllowRepeats bool             `json:"allow_repeats"`
	Persist      bool             `json:"persist"`
}

func (r *Request) validate() error {
	if r.EventID <= 0 {
		return errors.NewValidationError("event_id must be positive", map[string]any{"event_id": r.EventID})
	}
	if r.Round < 0 {
		return errors.NewValidationError("round cannot be negative", map[string]any{"round": r.Round})
	}
	switch r.MatchType {
	case "":
		r.MatchType = database.MatchTypeIndividual
	case database.MatchTypeIndividual, database.MatchTypeGroup:
	default:
		return errors.NewValidationError("unknown match_type", map[string]any{"match_type": r.MatchType})
	}
	if err := r.Options.Validate(); err != nil {
		return errors.NewValidationError(err.Error(), nil)
	}
	return nil
}

// Result is a completed matrix run.
type Result struct {
	Session  database.MatchSession  `json:"session"`
	Results  []analysis.PairResult  `json:"results"`
	Locked   []database.LockedMatch `json:"locked"`
	Skipped  map[int]SkipReason     `json:"skipped"`
	Filtered map[string]int         `json:"filtered_pairs"`
}

// GroupResult scores an explicit group.
type GroupResult struct {
	EventID int                   `json:"event_id"`
	Members []int                 `json:"members"`
	Summary analysis.GroupSummary `json:"summary"`
	Pairs   []analysis.PairResult `json:"pairs"`
}

type activeRun struct {
	id     uint64
	cancel context.CancelCauseFunc
}

// Runner scores candidate matrices. At most one run per event is live:
// starting a run cancels the previous one for that event.
type Runner struct {
	store       Store
	scorer      *analysis.Scorer
	cache       *cache.PairCache
	metrics     Metrics
	logger      *monitoring.Logger
	parallelism int

	mu     sync.Mutex
	active map[int]activeRun
	seq    uint64
}

// NewRunner creates a runner. parallelism <= 0 selects DefaultParallelism.
func NewRunner(store Store, scorer *analysis.Scorer, pairs *cache.PairCache, metrics Metrics, logger *monitoring.Logger, parallelism int) *Runner {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	if logger == nil {
		logger = monitoring.NewLoggerTo(io.Discard, slog.LevelError)
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}
	return &Runner{
		store:       store,
		scorer:      scorer,
		cache:       pairs,
		metrics:     metrics,
		logger:      logger,
		parallelism: parallelism,
		active:      make(map[int]activeRun),
	}
}

func (r *Runner) begin(ctx context.Context, eventID int) (context.Context, func()) {
	runCtx, cancel := context.WithCancelCause(ctx)

	r.mu.Lock()
	if prev, ok := r.active[eventID]; ok {
		prev.cancel(ErrSuperseded)
	}
	r.seq++
	id := r.seq
	r.active[eventID] = activeRun{id: id, cancel: cancel}
	r.mu.Unlock()

	return runCtx, func() {
		r.mu.Lock()
		if cur, ok := r.active[eventID]; ok && cur.id == id {
			delete(r.active, eventID)
		}
		r.mu.Unlock()
		cancel(nil)
	}
}

// Cancel stops the live run of an event. It reports whether one was running.
func (r *Runner) Cancel(eventID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.active[eventID]
	if ok {
		run.cancel(ErrCancelled)
		delete(r.active, eventID)
	}
	return ok
}

// Running reports whether an event has a live run.
func (r *Runner) Running(eventID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[eventID]
	return ok
}

// fallbackVibe carries raw scores that must not be cached because the vibe
// collaborator failed.
type fallbackVibe struct {
	raw analysis.RawScores
}

func (f *fallbackVibe) Error() string { return "vibe fallback" }

// ScorePair scores two candidates through the pair cache. The boolean reports
// a cache hit.
func (r *Runner) ScorePair(ctx context.Context, eventID int, a, b Candidate, opts analysis.Options) (analysis.PairResult, bool, error) {
	if err := analysis.ValidatePair(a.Number(), b.Number()); err != nil {
		return analysis.PairResult{}, false, errors.NewValidationError(err.Error(), nil)
	}

	key := cache.NewKey(eventID, a.Number(), b.Number(), opts.AI,
		a.Participant.SurveyVersion(), b.Participant.SurveyVersion())

	raw, hit, err := r.cache.GetOrCompute(ctx, key, func(ctx context.Context) (analysis.RawScores, error) {
		raw := r.scorer.Raw(ctx, a.Traits, b.Traits, opts.AI)
		if raw.VibeSource == analysis.VibeFromFallback {
			return analysis.RawScores{}, &fallbackVibe{raw: raw}
		}
		return raw, nil
	})
	var fb *fallbackVibe
	if stderrors.As(err, &fb) {
		raw, hit, err = fb.raw, false, nil
	}
	if err != nil {
		return analysis.PairResult{}, false, err
	}

	res := r.scorer.Finalize(eventID, a.Traits, b.Traits, raw, opts)
	r.metrics.RecordPairScored(res.Flags.DeadAirVetoApplied || res.Flags.HumorClashVetoApplied)
	return res, hit, nil
}

// Run builds the event pool and scores every candidate pair in parallel.
// A run superseded or cancelled before completion records nothing beyond
// cache entries.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	runCtx, done := r.begin(ctx, req.EventID)
	defer done()

	start := time.Now()
	session := database.MatchSession{
		ID:        uuid.New().String(),
		EventID:   req.EventID,
		Round:     req.Round,
		MatchType: req.MatchType,
		CreatedAt: start,
	}

	pool, err := BuildPool(runCtx, r.store, req.EventID, req.Round, PoolOptions{AllowRepeats: req.AllowRepeats, Logger: r.logger.Logger})
	if err != nil {
		return nil, r.fail(runCtx, &session, start, err)
	}
	session.Participants = len(pool.Candidates)

	results := make([]analysis.PairResult, len(pool.Pairs))
	var hits, misses atomic.Int64

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(r.parallelism)
	for i, p := range pool.Pairs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, hit, err := r.ScorePair(gctx, req.EventID, pool.Candidates[p.A], pool.Candidates[p.B], req.Options)
			if err != nil {
				return fmt.Errorf("score pair %d-%d: %w", p.A, p.B, err)
			}
			if hit {
				hits.Add(1)
			} else {
				misses.Add(1)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, r.fail(runCtx, &session, start, err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].ParticipantA != results[j].ParticipantA {
			return results[i].ParticipantA < results[j].ParticipantA
		}
		return results[i].ParticipantB < results[j].ParticipantB
	})

	session.PairsScored = len(results)
	session.GenerationType = generationType(req.Options.AI, int(misses.Load()))
	if req.Options.AI {
		session.AICalls = int(misses.Load())
	}
	if len(results) > 0 {
		session.CacheHitRate = float64(hits.Load()) / float64(len(results))
	}

	if req.Persist {
		rows := make([]database.MatchResult, 0, len(results))
		for _, res := range results {
			row, err := database.NewMatchResult(res, req.Round, session.ID)
			if err != nil {
				return nil, r.fail(runCtx, &session, start, err)
			}
			rows = append(rows, row)
		}
		if err := r.store.SaveMatchResults(runCtx, rows); err != nil {
			return nil, r.fail(runCtx, &session, start, err)
		}
	}

	session.Status = StatusCompleted
	session.DurationMS = time.Since(start).Milliseconds()
	if err := r.store.CreateSession(runCtx, &session); err != nil {
		r.logger.Warn("Failed to record match session", "session_id", session.ID, "error", err)
	}

	r.metrics.RecordMatchRun(true)
	r.logger.MatchRunLogger(req.EventID, req.Round, len(results), session.AICalls, int(hits.Load()), time.Since(start), nil)

	return &Result{
		Session:  session,
		Results:  results,
		Locked:   pool.Locks,
		Skipped:  pool.Skipped,
		Filtered: pool.Filtered,
	}, nil
}

// fail records a failed session unless the run was cancelled, and maps the
// error for callers.
func (r *Runner) fail(runCtx context.Context, session *database.MatchSession, start time.Time, err error) error {
	r.metrics.RecordMatchRun(false)
	r.logger.MatchRunLogger(session.EventID, session.Round, session.PairsScored, session.AICalls, 0, time.Since(start), err)

	if cause := context.Cause(runCtx); cause != nil {
		if stderrors.Is(cause, ErrSuperseded) || stderrors.Is(cause, ErrCancelled) {
			return errors.NewCancelledError(cause.Error(), cause)
		}
		return errors.NewTimeoutError("match run interrupted", cause)
	}

	session.Status = StatusFailed
	session.Error = err.Error()
	session.DurationMS = time.Since(start).Milliseconds()
	if cerr := r.store.CreateSession(context.WithoutCancel(runCtx), session); cerr != nil {
		r.logger.Warn("Failed to record match session", "session_id", session.ID, "error", cerr)
	}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return errors.NewInternalError("match run failed", err)
}

func generationType(ai bool, computed int) string {
	switch {
	case !ai:
		return database.GenerationNoAI
	case computed == 0:
		return database.GenerationCached
	default:
		return database.GenerationAI
	}
}

// ScoreGroup scores every pair inside a group of three or four and
// summarizes the group.
func (r *Runner) ScoreGroup(ctx context.Context, eventID int, members []Candidate, opts analysis.Options) (*GroupResult, error) {
	if len(members) < MinGroupSize || len(members) > MaxGroupSize {
		return nil, errors.NewValidationError(
			fmt.Sprintf("groups have %d to %d members", MinGroupSize, MaxGroupSize),
			map[string]any{"members": len(members)})
	}
	if err := opts.Validate(); err != nil {
		return nil, errors.NewValidationError(err.Error(), nil)
	}

	sorted := append([]Candidate(nil), members...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number() < sorted[j].Number() })

	out := &GroupResult{EventID: eventID}
	var scores []int
	for i, a := range sorted {
		out.Members = append(out.Members, a.Number())
		for _, b := range sorted[i+1:] {
			res, _, err := r.ScorePair(ctx, eventID, a, b, opts)
			if err != nil {
				return nil, err
			}
			out.Pairs = append(out.Pairs, res)
			scores = append(scores, res.Score)
		}
	}
	out.Summary = analysis.SummarizeGroup(scores)
	return out, nil
}
