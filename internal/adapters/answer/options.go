package answer

import (
	"github.com/okian/ryno/pkg/logger"
)

// Option configures an LLMAnswerer or a Cached answerer.
type Option func(*options)

type options struct {
	logger   logger.Logger
	fallback string
}

func newOptions(opts []Option) options {
	o := options{logger: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithFallbackProvider names the provider used when a query's own provider
// is not configured.
func WithFallbackProvider(name string) Option {
	return func(o *options) {
		o.fallback = name
	}
}
