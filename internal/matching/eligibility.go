package matching

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ZanzyTHEbar/blind-match/internal/analysis"
	"github.com/ZanzyTHEbar/blind-match/internal/database"
)

// Store is the persistence the matching engine reads and writes.
// *database.Repository implements it.
type Store interface {
	ListEventParticipants(ctx context.Context, eventID int) ([]database.Participant, error)
	ListExcludedParticipants(ctx context.Context) ([]database.ExcludedParticipant, error)
	ListExcludedPairs(ctx context.Context) ([]database.ExcludedPair, error)
	ListLocks(ctx context.Context, eventID, round int) ([]database.LockedMatch, error)
	PreviousPartners(ctx context.Context, eventID int) (map[int][]int, error)
	SaveMatchResults(ctx context.Context, results []database.MatchResult) error
	CreateSession(ctx context.Context, s *database.MatchSession) error
}

// SkipReason explains why a participant is not in the pool.
type SkipReason string

const (
	SkipExcluded      SkipReason = "excluded"
	SkipMissingSurvey SkipReason = "missing_survey"
	SkipInvalidSurvey SkipReason = "invalid_survey"
)

// Pair filter outcomes, counted per pool.
const (
	FilterGender       = "gender_preference"
	FilterExcludedPair = "excluded_pair"
	FilterRepeat       = "previously_matched"
	FilterAge          = "age_preference"
	FilterLockPartner  = "lock_partner_ineligible"
)

// Candidate is an eligible participant with extracted traits.
type Candidate struct {
	Participant database.Participant
	Traits      analysis.Traits
}

// Number returns the assigned number.
func (c Candidate) Number() int { return c.Participant.AssignedNumber }

// Pair is an unordered candidate pair, A < B.
type Pair struct {
	A, B        int
	Locked      bool
	LockedScore int
}

// Pool is everything a run scores: eligible participants, candidate pairs
// and the locked pairs carried as fixed.
type Pool struct {
	EventID    int
	Round      int
	Candidates map[int]Candidate
	Skipped    map[int]SkipReason
	Pairs      []Pair
	Locks      []database.LockedMatch
	Filtered   map[string]int
}

// PoolOptions tunes candidate pair filtering.
type PoolOptions struct {
	AllowRepeats bool
	Logger       *slog.Logger
}

type pairKey struct{ a, b int }

func newPairKey(a, b int) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{a, b}
}

// BuildPool loads an event round and applies the eligibility rules.
func BuildPool(ctx context.Context, store Store, eventID, round int, opts PoolOptions) (*Pool, error) {
	participants, err := store.ListEventParticipants(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	excluded, err := store.ListExcludedParticipants(ctx)
	if err != nil {
		return nil, fmt.Errorf("load excluded participants: %w", err)
	}
	excludedPairs, err := store.ListExcludedPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load excluded pairs: %w", err)
	}
	locks, err := store.ListLocks(ctx, eventID, round)
	if err != nil {
		return nil, fmt.Errorf("load locks: %w", err)
	}
	var history map[int][]int
	if !opts.AllowRepeats {
		if history, err = store.PreviousPartners(ctx, eventID); err != nil {
			return nil, fmt.Errorf("load match history: %w", err)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool := &Pool{
		EventID:    eventID,
		Round:      round,
		Candidates: make(map[int]Candidate, len(participants)),
		Skipped:    make(map[int]SkipReason),
		Filtered:   make(map[string]int),
	}

	banned := make(map[int]bool, len(excluded))
	for _, e := range excluded {
		banned[e.ParticipantNumber] = true
	}
	for _, p := range participants {
		n := p.AssignedNumber
		switch {
		case banned[n]:
			pool.Skipped[n] = SkipExcluded
			continue
		case !p.HasSurvey():
			pool.Skipped[n] = SkipMissingSurvey
			continue
		}
		traits, err := p.Traits()
		if err != nil {
			if stderrors.Is(err, analysis.ErrMissingSurveyData) {
				pool.Skipped[n] = SkipMissingSurvey
			} else {
				pool.Skipped[n] = SkipInvalidSurvey
				logger.Warn("Skipping participant with unreadable survey", "participant", n, "error", err)
			}
			continue
		}
		pool.Candidates[n] = Candidate{Participant: p, Traits: traits}
	}

	// A lock only binds when both members are eligible. Otherwise the
	// eligible member is paired normally.
	lockedMembers := make(map[int]bool, 2*len(locks))
	for _, l := range locks {
		_, okA := pool.Candidates[l.Participant1Number]
		_, okB := pool.Candidates[l.Participant2Number]
		if !okA || !okB {
			pool.Filtered[FilterLockPartner]++
			logger.Info("Lock not applied, member ineligible",
				"participant_a", l.Participant1Number,
				"participant_b", l.Participant2Number)
			continue
		}
		lockedMembers[l.Participant1Number] = true
		lockedMembers[l.Participant2Number] = true
		pool.Locks = append(pool.Locks, l)
		k := newPairKey(l.Participant1Number, l.Participant2Number)
		pool.Pairs = append(pool.Pairs, Pair{A: k.a, B: k.b, Locked: true, LockedScore: l.OriginalCompatibilityScore})
	}

	denied := make(map[pairKey]bool, len(excludedPairs))
	for _, e := range excludedPairs {
		denied[newPairKey(e.Participant1Number, e.Participant2Number)] = true
	}
	previous := make(map[pairKey]bool)
	for a, partners := range history {
		for _, b := range partners {
			previous[newPairKey(a, b)] = true
		}
	}

	numbers := pool.Numbers()
	for i, a := range numbers {
		if lockedMembers[a] {
			continue
		}
		for _, b := range numbers[i+1:] {
			if lockedMembers[b] {
				continue
			}
			ta, tb := pool.Candidates[a].Traits, pool.Candidates[b].Traits
			k := newPairKey(a, b)
			switch {
			case !GenderCompatible(ta, tb):
				pool.Filtered[FilterGender]++
			case denied[k]:
				pool.Filtered[FilterExcludedPair]++
			case previous[k]:
				pool.Filtered[FilterRepeat]++
			case analysis.AgePreferenceGap(ta, tb) > analysis.AgeToleranceYears:
				pool.Filtered[FilterAge]++
			default:
				pool.Pairs = append(pool.Pairs, Pair{A: a, B: b})
			}
		}
	}

	return pool, nil
}

// Numbers returns the eligible assigned numbers in ascending order.
func (p *Pool) Numbers() []int {
	out := make([]int, 0, len(p.Candidates))
	for n := range p.Candidates {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// GenderCompatible holds when each side's preference accepts the other's
// gender. Unknown genders or preferences never block a pair.
func GenderCompatible(a, b analysis.Traits) bool {
	return accepts(a.PreferredGender, b.Gender) && accepts(b.PreferredGender, a.Gender)
}

func accepts(preference, gender string) bool {
	if preference == "" || preference == "any" || gender == "" {
		return true
	}
	return preference == gender
}
