package service

import (
	"io"

	"github.com/okian/ryno/internal/adapters/repository"
	"github.com/okian/ryno/internal/domain/itemqueue"
	"github.com/okian/ryno/internal/domain/model"
	"github.com/okian/ryno/internal/domain/scoring"
	"github.com/okian/ryno/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of round workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the round queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many round IDs are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithConcurrency bounds the answering and scoring tasks of a round.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		s.concurrency = n
	}
}

// WithAlpha sets the smoothing factor of worker weights.
func WithAlpha(alpha float64) Option {
	return func(s *Service) {
		if alpha > 0 && alpha <= 1 {
			s.alpha = alpha
		}
	}
}

// WithTextWeight sets the scoring weight of text queries that carry none.
func WithTextWeight(w float64) Option {
	return func(s *Service) {
		if w >= 0 {
			s.textWeight = w
		}
	}
}

// WithModelWeights sets per provider/model weights applied during aggregation.
func WithModelWeights(weights map[model.ProviderModel]float64) Option {
	return func(s *Service) {
		s.modelWeights = weights
	}
}

// WithAnswerer sets the task producing reference answers.
func WithAnswerer(a scoring.AnsweringTask) Option {
	return func(s *Service) {
		s.answerer = a
	}
}

// WithScorer sets the task comparing responses to reference answers.
func WithScorer(sc scoring.ScoringTask) Option {
	return func(s *Service) {
		s.scorer = sc
	}
}

// WithReporter sets the sink receiving per-round detail rows.
func WithReporter(r scoring.Reporter) Option {
	return func(s *Service) {
		s.reporter = r
	}
}

// WithSupplier sets the source of new themes and questions.
func WithSupplier(sup itemqueue.Supplier) Option {
	return func(s *Service) {
		s.supplier = sup
	}
}

// WithState seeds the item queue. It takes precedence over WithStateFile
// for the initial state.
func WithState(state itemqueue.State) Option {
	return func(s *Service) {
		s.state = state
	}
}

// WithStateFile loads the item queue on Start and saves it on Stop and
// through SaveState.
func WithStateFile(f *repository.StateFile) Option {
	return func(s *Service) {
		s.stateFile = f
	}
}

// WithCloser registers a resource closed on Stop.
func WithCloser(c io.Closer) Option {
	return func(s *Service) {
		if c != nil {
			s.closers = append(s.closers, c)
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
