// Package llm talks to the generation providers used to build reference
// answers and questions. Providers are created through a static factory
// table keyed by provider name and wrapped in middleware for timeouts,
// retries, rate limiting and metrics.
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/ryno/internal/domain/model"
)

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderBedrock   = "bedrock"
)

const defaultMaxTokens = 1024

// Request is one chat completion call.
type Request struct {
	Model       string
	Messages    []model.Message
	Temperature float64
	MaxTokens   int
	Seed        int64
}

// RequestFromQuery builds the request a worker was asked to answer.
func RequestFromQuery(q model.Query) Request {
	return Request{Model: q.Model, Messages: q.Messages, Temperature: q.Temperature, Seed: q.Seed}
}

// Completer returns the completion of a chat request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
	// Provider returns the provider name, used in logs and metrics.
	Provider() string
}

// Config holds the credentials and defaults of one provider.
type Config struct {
	APIKey       string
	BaseURL      string
	Region       string // bedrock only
	DefaultModel string
	MaxTokens    int
}

// Factory creates a provider client.
type Factory func(ctx context.Context, cfg Config) (Completer, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{
		ProviderOpenAI:    newOpenAI,
		ProviderAnthropic: newAnthropic,
		ProviderGoogle:    newGoogle,
		ProviderBedrock:   newBedrock,
	}
)

// Register adds or replaces a provider factory.
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Providers lists the registered provider names.
func Providers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New creates the named provider and wraps it in mw; the first middleware is outermost.
func New(ctx context.Context, name string, cfg Config, mw ...Middleware) (Completer, error) {
	factoriesMu.RLock()
	f, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, name)
	}
	c, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", name, err)
	}
	return Chain(c, mw...), nil
}

// Middleware wraps a Completer.
type Middleware func(Completer) Completer

// Chain applies mw so that mw[0] runs first.
func Chain(c Completer, mw ...Middleware) Completer {
	for i := len(mw) - 1; i >= 0; i-- {
		c = mw[i](c)
	}
	return c
}

func maxTokens(req Request, cfg Config) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if cfg.MaxTokens > 0 {
		return cfg.MaxTokens
	}
	return defaultMaxTokens
}

func modelName(req Request, cfg Config) string {
	if req.Model != "" {
		return req.Model
	}
	return cfg.DefaultModel
}
