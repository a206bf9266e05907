package similarity

import (
	"context"
	"math"

	"github.com/okian/ryno/internal/domain/scoring"
)

// Default word count window relative to the reference answer.
const (
	defaultMinWordRatio = 0.5
	defaultMaxWordRatio = 1.4
)

// TextScorer scores a completion by TF-IDF cosine similarity with the
// reference, times the query weight. Completions whose word count falls
// outside [MinRatio, MaxRatio] times the reference word count score 0.
type TextScorer struct {
	minRatio float64
	maxRatio float64
}

// TextOption configures a TextScorer.
type TextOption func(*TextScorer)

// WithWordRatio sets the accepted word count window.
func WithWordRatio(minRatio, maxRatio float64) TextOption {
	return func(t *TextScorer) {
		if minRatio >= 0 && maxRatio >= minRatio {
			t.minRatio = minRatio
			t.maxRatio = maxRatio
		}
	}
}

// NewTextScorer creates a text scorer.
func NewTextScorer(opts ...TextOption) *TextScorer {
	t := &TextScorer{minRatio: defaultMinWordRatio, maxRatio: defaultMaxWordRatio}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Score implements scoring.ScoringTask.
func (t *TextScorer) Score(_ context.Context, in scoring.ScoreInput) (float64, error) {
	if in.Response == nil {
		return 0, scoring.ErrNoScore
	}
	sim, ok := CosineTFIDF(in.Reference, in.Response.Completion)
	if !ok {
		return 0, scoring.ErrNoScore
	}

	words := float64(wordCount(in.Response.Completion))
	ref := float64(wordCount(in.Reference))
	if words < ref*t.minRatio || words > ref*t.maxRatio {
		return 0, nil
	}
	return in.Weight * sim, nil
}

// CosineTFIDF returns the cosine similarity of the TF-IDF vectors of a and b,
// fitted on the two documents alone. idf is smoothed, ln((1+n)/(1+df))+1, and
// vectors are l2-normalised. ok is false when neither document has a term.
func CosineTFIDF(a, b string) (float64, bool) {
	ta, tb := termCounts(tokenize(a)), termCounts(tokenize(b))
	if len(ta) == 0 && len(tb) == 0 {
		return 0, false
	}

	const docs = 2.0
	idf := func(term string) float64 {
		df := 0.0
		if ta[term] > 0 {
			df++
		}
		if tb[term] > 0 {
			df++
		}
		return math.Log((1+docs)/(1+df)) + 1
	}

	var dot, na, nb float64
	for term, ca := range ta {
		w := float64(ca) * idf(term)
		na += w * w
		if cb, ok := tb[term]; ok {
			dot += w * float64(cb) * idf(term)
		}
	}
	for term, cb := range tb {
		w := float64(cb) * idf(term)
		nb += w * w
	}
	if na == 0 || nb == 0 {
		return 0, true
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

func termCounts(tokens []string) map[string]int {
	out := make(map[string]int, len(tokens))
	for _, t := range tokens {
		out[t]++
	}
	return out
}
