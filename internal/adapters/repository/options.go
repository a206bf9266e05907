package repository

import (
	"time"

	"github.com/okian/ryno/pkg/logger"
)

// Option applies a configuration option to the TreapStore.
type Option func(*TreapStore)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *TreapStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithAlpha sets the moving-average factor in (0, 1]. 1 replaces the weight
// with the latest round score.
func WithAlpha(alpha float64) Option {
	return func(s *TreapStore) {
		if alpha > 0 && alpha <= 1 {
			s.alpha = alpha
		}
	}
}

// StateOption configures a StateFile.
type StateOption func(*StateFile)

// WithStateLogger sets the logger used for load and save events.
func WithStateLogger(l logger.Logger) StateOption {
	return func(f *StateFile) {
		if l != nil {
			f.logger = l
		}
	}
}
