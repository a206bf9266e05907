package scoring

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/ryno/internal/domain/model"
	"github.com/okian/ryno/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithLogger sets the logger for task failures and round summaries.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithConcurrency bounds the number of tasks running at once in each phase.
// n <= 0 starts every task of a phase at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		e.concurrency = n
	}
}

// WithModelWeights sets per provider/model weights. Missing entries weigh 1.
func WithModelWeights(weights map[model.ProviderModel]float64) Option {
	return func(e *Engine) {
		e.modelWeights = make(map[model.ProviderModel]float64, len(weights))
		for k, w := range weights {
			if w >= 0 {
				e.modelWeights[k] = w
			}
		}
	}
}

// WithReporter sets the sink receiving the detail rows of every round.
func WithReporter(r Reporter) Option {
	return func(e *Engine) {
		if r != nil {
			e.reporter = r
		}
	}
}

// WithTracer sets the tracer used for round spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}
