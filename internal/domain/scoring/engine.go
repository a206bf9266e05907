// Package scoring implements the round scoring and aggregation engine: it
// answers and scores every pair of a round concurrently, groups the results
// by worker, provider and model, and folds them into one score per worker.
package scoring

import (
	"cmp"
	"context"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/okian/ryno/internal/domain/model"
	"github.com/okian/ryno/pkg/logger"
	"github.com/okian/ryno/pkg/metrics"
)

// defaultModelWeight applies to every provider/model without a configured weight.
const defaultModelWeight = 1.0

// Engine scores rounds. It is safe for concurrent use.
type Engine struct {
	answerer     AnsweringTask
	scorer       ScoringTask
	logger       logger.Logger
	concurrency  int
	modelWeights map[model.ProviderModel]float64
	reporter     Reporter
	tracer       trace.Tracer
}

// NewEngine creates an engine around the given tasks.
func NewEngine(answerer AnsweringTask, scorer ScoringTask, opts ...Option) *Engine {
	e := &Engine{
		answerer: answerer,
		scorer:   scorer,
		logger:   logger.Nop(),
		reporter: nopReporter{},
		tracer:   otel.Tracer("scoring-engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// group collects the raw scores of one aggregation key.
type group struct {
	key       model.AggregationKey
	sum       float64
	n         int
	responses []*model.Response
}

// Score runs the answering phase, then the scoring phase, each behind a full
// barrier, and aggregates the results.
//
// Task failures never abort the round: they count as a 0 score. A pair with
// no response records 0 under its key, so its worker appears with 0 unless it
// scored elsewhere. The only error is a malformed aggregation key.
//
// Similarity (key average) and Score (weighted) are written back on every
// response sharing a key. Rows are sorted by worker ID and handed to the
// reporter.
func (e *Engine) Score(ctx context.Context, pairs []model.Pair, capacity model.CapacityTable) (model.WorkerScores, []model.DetailRow, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Score", trace.WithAttributes(attribute.Int("round.pairs", len(pairs))))
	defer span.End()

	if len(pairs) == 0 {
		return model.WorkerScores{}, nil, nil
	}
	for _, p := range pairs {
		if err := p.Key().Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "malformed aggregation key")
			return nil, nil, err
		}
	}

	start := time.Now()
	answers, answered := e.answerAll(ctx, pairs)
	raw := e.scoreAll(ctx, pairs, answers, answered)

	scores, rows := e.aggregate(pairs, raw, capacity)
	e.reporter.Report(ctx, rows)

	elapsed := time.Since(start)
	metrics.RecordRoundScoringLatency(float64(elapsed.Microseconds()) / 1000.0)
	metrics.UpdateWorkersScored(len(scores))
	span.SetAttributes(
		attribute.Int("round.workers", len(scores)),
		attribute.Int("round.keys", len(rows)),
		attribute.Int64("round.latency_ms", elapsed.Milliseconds()),
	)
	e.logger.Debug(ctx, "round scored",
		logger.Int("pairs", len(pairs)),
		logger.Int("workers", len(scores)),
		logger.Duration("elapsed", elapsed))

	return scores, rows, nil
}

// answerAll runs the answering task of every pair and waits for all of them.
func (e *Engine) answerAll(ctx context.Context, pairs []model.Pair) ([]string, []bool) {
	answers := make([]string, len(pairs))
	answered := make([]bool, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i, p := range pairs {
		g.Go(func() error {
			answers[i], answered[i] = GuardAnswer(gctx, e.answerer, p.WorkerID, p.Query, p.Response, e.logger)
			return nil
		})
	}
	_ = g.Wait() // tasks never return errors

	return answers, answered
}

// scoreAll runs the scoring task of every pair that has a response and an
// answer. Everything else scores 0.
func (e *Engine) scoreAll(ctx context.Context, pairs []model.Pair, answers []string, answered []bool) []float64 {
	raw := make([]float64, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i, p := range pairs {
		if p.Response == nil || !answered[i] {
			continue
		}
		in := ScoreInput{
			Reference:   answers[i],
			Response:    p.Response,
			Query:       p.Query,
			Weight:      p.Query.Weight,
			Temperature: p.Query.Temperature,
			Provider:    p.Query.Provider,
		}
		g.Go(func() error {
			if s, ok := GuardScore(gctx, e.scorer, in, e.logger); ok {
				raw[i] = s
			}
			return nil
		})
	}
	_ = g.Wait()

	return raw
}

// aggregate groups raw scores by key, averages, weights and sums per worker.
// It runs after both barriers, on a single goroutine.
func (e *Engine) aggregate(pairs []model.Pair, raw []float64, capacity model.CapacityTable) (model.WorkerScores, []model.DetailRow) {
	groups := make(map[model.AggregationKey]*group)
	order := make([]model.AggregationKey, 0, len(pairs))
	for i, p := range pairs {
		k := p.Key()
		g, ok := groups[k]
		if !ok {
			g = &group{key: k}
			groups[k] = g
			order = append(order, k)
		}
		g.sum += raw[i]
		g.n++
		if p.Response != nil {
			g.responses = append(g.responses, p.Response)
		}
	}

	scores := make(model.WorkerScores)
	rows := make([]model.DetailRow, 0, len(order))
	for _, k := range order {
		g := groups[k]
		avg := g.sum / float64(g.n)
		w := e.modelWeight(k.Provider, k.Model)
		b, _ := capacity.Bandwidth(k.WorkerID, k.Provider, k.Model)
		weighted := avg * w * float64(b)

		scores[k.WorkerID] += weighted
		for _, r := range g.responses {
			r.Similarity = avg
			r.Score = weighted
		}
		rows = append(rows, model.DetailRow{
			WorkerID:    k.WorkerID,
			Provider:    k.Provider,
			Model:       k.Model,
			Similarity:  avg,
			ModelWeight: w,
			Bandwidth:   b,
			Weighted:    weighted,
		})
	}

	slices.SortStableFunc(rows, func(a, b model.DetailRow) int {
		return cmp.Or(
			cmp.Compare(a.WorkerID, b.WorkerID),
			cmp.Compare(a.Provider, b.Provider),
			cmp.Compare(a.Model, b.Model),
		)
	})
	return scores, rows
}

func (e *Engine) modelWeight(provider, modelName string) float64 {
	if w, ok := e.modelWeights[model.ProviderModel{Provider: provider, Model: modelName}]; ok {
		return w
	}
	return defaultModelWeight
}
