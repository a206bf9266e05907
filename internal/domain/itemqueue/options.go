package itemqueue

import (
	"math/rand/v2"

	"github.com/okian/ryno/pkg/logger"
)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithLogger sets the logger used for refill and exhaustion events.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRand sets the source used to pick random themes.
func WithRand(r *rand.Rand) Option {
	return func(s *Store) {
		if r != nil {
			s.rand = r
		}
	}
}
