package similarity

import (
	"context"
	"net/url"
	"slices"
	"strings"

	"github.com/okian/ryno/internal/domain/scoring"
)

// MediaScorer scores image responses: the query weight when the response
// carries an https URL from an allowed host, otherwise 0. An empty host list
// accepts any host.
type MediaScorer struct {
	hosts []string
}

// NewMediaScorer creates a media scorer for the given hosts (suffix match).
func NewMediaScorer(hosts ...string) *MediaScorer {
	return &MediaScorer{hosts: hosts}
}

// Score implements scoring.ScoringTask.
func (m *MediaScorer) Score(_ context.Context, in scoring.ScoreInput) (float64, error) {
	if in.Response == nil || in.Response.ImageURL == "" {
		return 0, scoring.ErrNoScore
	}
	u, err := url.Parse(in.Response.ImageURL)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return 0, nil
	}
	if len(m.hosts) > 0 && !slices.ContainsFunc(m.hosts, func(h string) bool {
		return u.Hostname() == h || strings.HasSuffix(u.Hostname(), "."+h)
	}) {
		return 0, nil
	}
	return in.Weight, nil
}

// Router sends a pair to the text or media scorer by query kind.
type Router struct {
	Text  scoring.ScoringTask
	Media scoring.ScoringTask
}

// Score implements scoring.ScoringTask.
func (r Router) Score(ctx context.Context, in scoring.ScoreInput) (float64, error) {
	if in.Query.Kind == "images" && r.Media != nil {
		return r.Media.Score(ctx, in)
	}
	return r.Text.Score(ctx, in)
}
