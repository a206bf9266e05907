package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/okian/ryno/internal/domain/model"
	"github.com/okian/ryno/pkg/logger"
	"github.com/okian/ryno/pkg/metrics"
)

// AnsweringTask produces the reference answer a response is scored against.
// Implementations own their timeouts.
type AnsweringTask interface {
	Answer(ctx context.Context, workerID int, q model.Query, r *model.Response) (string, error)
}

// AnswerFunc adapts a function to AnsweringTask.
type AnswerFunc func(ctx context.Context, workerID int, q model.Query, r *model.Response) (string, error)

// Answer implements AnsweringTask.
func (f AnswerFunc) Answer(ctx context.Context, workerID int, q model.Query, r *model.Response) (string, error) {
	return f(ctx, workerID, q, r)
}

// ScoreInput is everything a ScoringTask may look at.
type ScoreInput struct {
	Reference   string
	Response    *model.Response
	Query       model.Query
	Weight      float64
	Temperature float64
	Provider    string
}

// ScoringTask computes a score in [0, +Inf) for one response.
type ScoringTask interface {
	Score(ctx context.Context, in ScoreInput) (float64, error)
}

// ScoreFunc adapts a function to ScoringTask.
type ScoreFunc func(ctx context.Context, in ScoreInput) (float64, error)

// Score implements ScoringTask.
func (f ScoreFunc) Score(ctx context.Context, in ScoreInput) (float64, error) {
	return f(ctx, in)
}

// Reporter receives the sorted detail rows of a scored round.
type Reporter interface {
	Report(ctx context.Context, rows []model.DetailRow)
}

type nopReporter struct{}

func (nopReporter) Report(context.Context, []model.DetailRow) {}

// GuardAnswer runs task and turns errors and panics into an absent answer.
func GuardAnswer(ctx context.Context, task AnsweringTask, workerID int, q model.Query, r *model.Response, log logger.Logger) (answer string, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.RecordTaskFailure("answer")
			log.Warn(ctx, "answering task panicked",
				logger.Int("worker_id", workerID),
				logger.Error(fmt.Errorf("%w: %v", ErrPanic, rec)))
			answer, ok = "", false
		}
	}()

	a, err := task.Answer(ctx, workerID, q, r)
	if err != nil {
		if !errors.Is(err, ErrNoAnswer) {
			metrics.RecordTaskFailure("answer")
			log.Warn(ctx, "answering task failed",
				logger.Int("worker_id", workerID),
				logger.String("provider", q.Provider),
				logger.String("model", q.Model),
				logger.Error(err))
		}
		return "", false
	}
	return a, true
}

// GuardScore runs task and turns errors, panics and non-finite or negative
// values into an absent score.
func GuardScore(ctx context.Context, task ScoringTask, in ScoreInput, log logger.Logger) (score float64, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.RecordTaskFailure("score")
			log.Warn(ctx, "scoring task panicked",
				logger.String("provider", in.Provider),
				logger.Error(fmt.Errorf("%w: %v", ErrPanic, rec)))
			score, ok = 0, false
		}
	}()

	s, err := task.Score(ctx, in)
	if err != nil {
		if !errors.Is(err, ErrNoScore) {
			metrics.RecordTaskFailure("score")
			log.Warn(ctx, "scoring task failed", logger.String("provider", in.Provider), logger.Error(err))
		}
		return 0, false
	}
	if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
		metrics.RecordTaskFailure("score")
		log.Warn(ctx, "scoring task returned an invalid value", logger.Float64("score", s))
		return 0, false
	}
	return s, true
}
