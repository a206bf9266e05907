package similarity

import (
	"context"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/okian/ryno/internal/domain/scoring"
)

// FuzzyScorer scores by normalised Levenshtein similarity, times the query
// weight. Similarities under the threshold count as 0.
type FuzzyScorer struct {
	threshold float64
}

// NewFuzzyScorer creates a fuzzy scorer. threshold is clamped to [0, 1].
func NewFuzzyScorer(threshold float64) *FuzzyScorer {
	return &FuzzyScorer{threshold: min(max(threshold, 0), 1)}
}

// Score implements scoring.ScoringTask.
func (f *FuzzyScorer) Score(_ context.Context, in scoring.ScoreInput) (float64, error) {
	if in.Response == nil {
		return 0, scoring.ErrNoScore
	}
	sim := EditSimilarity(foldCaser.String(in.Reference), foldCaser.String(in.Response.Completion))
	if sim < f.threshold {
		return 0, nil
	}
	return in.Weight * sim, nil
}

// EditSimilarity returns 1 - distance/maxRuneLen; two empty strings are identical.
func EditSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1
	}
	s := 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
	return max(s, 0)
}
