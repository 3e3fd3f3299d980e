package analysis

import (
	"math"
	"sort"
)

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	cp := append([]float64(nil), xs...)
	sort.Float64s(cp)
	mid := len(cp) / 2
	if len(cp)%2 == 1 {
		return cp[mid]
	}
	return 0.5 * (cp[mid-1] + cp[mid])
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// GroupSummary aggregates the pairwise scores inside a group of 3-4.
type GroupSummary struct {
	Score  int     `json:"score"`
	Min    int     `json:"min_pair_score"`
	Median float64 `json:"median_pair_score"`
	Pairs  int     `json:"pairs"`
}

// SummarizeGroup scores a group as the rounded mean of its pair scores.
func SummarizeGroup(pairScores []int) GroupSummary {
	if len(pairScores) == 0 {
		return GroupSummary{}
	}
	xs := make([]float64, len(pairScores))
	lo := pairScores[0]
	for i, s := range pairScores {
		xs[i] = float64(s)
		if s < lo {
			lo = s
		}
	}
	return GroupSummary{
		Score:  int(math.Round(clip(mean(xs), 0, 100))),
		Min:    lo,
		Median: median(xs),
		Pairs:  len(pairScores),
	}
}
