// Package answer produces the reference answers worker responses are scored
// against.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/ryno/internal/adapters/llm"
	"github.com/okian/ryno/internal/domain/model"
	"github.com/okian/ryno/internal/domain/scoring"
	"github.com/okian/ryno/pkg/logger"
)

// LLMAnswerer asks the provider named in the query for the reference answer,
// using the same model, messages, temperature and seed the worker was given.
type LLMAnswerer struct {
	registry *llm.Registry
	fallback string
	logger   logger.Logger
}

var _ scoring.AnsweringTask = (*LLMAnswerer)(nil)

// NewLLMAnswerer creates an answerer backed by reg.
func NewLLMAnswerer(reg *llm.Registry, opts ...Option) *LLMAnswerer {
	o := newOptions(opts)
	return &LLMAnswerer{registry: reg, fallback: o.fallback, logger: o.logger}
}

// Answer implements scoring.AnsweringTask.
func (a *LLMAnswerer) Answer(ctx context.Context, workerID int, q model.Query, _ *model.Response) (string, error) {
	if len(q.Messages) == 0 {
		return "", scoring.ErrNoAnswer
	}
	c, fellBack, err := a.completer(q.Provider)
	if err != nil {
		return "", err
	}
	req := llm.RequestFromQuery(q)
	if fellBack {
		// the query's model belongs to another provider
		req.Model = ""
	}
	out, err := c.Complete(ctx, req)
	if errors.Is(err, llm.ErrEmptyCompletion) {
		return "", scoring.ErrNoAnswer
	}
	if err != nil {
		return "", fmt.Errorf("reference answer for worker %d: %w", workerID, err)
	}
	a.logger.Debug(ctx, "reference answer generated",
		logger.Int("worker_id", workerID),
		logger.String("provider", c.Provider()),
		logger.Int("length", len(out)))
	return out, nil
}

// completer resolves the provider of a query and reports whether the
// fallback provider was used instead.
func (a *LLMAnswerer) completer(provider string) (llm.Completer, bool, error) {
	if a.registry == nil {
		return nil, false, fmt.Errorf("%w: %q", ErrNoCompleter, provider)
	}
	c, err := a.registry.Get(provider)
	if err == nil {
		return c, false, nil
	}
	if a.fallback == "" || a.fallback == provider {
		return nil, false, fmt.Errorf("%w: %w", ErrNoCompleter, err)
	}
	c, ferr := a.registry.Get(a.fallback)
	if ferr != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrNoCompleter, err)
	}
	return c, true, nil
}

// Passthrough uses the query prompt itself as the reference. Media validators
// use it, since the prompt carries the expected content.
type Passthrough struct{}

// Answer implements scoring.AnsweringTask.
func (Passthrough) Answer(_ context.Context, _ int, q model.Query, _ *model.Response) (string, error) {
	p := strings.TrimSpace(q.Prompt())
	if p == "" {
		return "", scoring.ErrNoAnswer
	}
	return p, nil
}

// ByKind routes a query to the media answerer for image queries and to the
// text answerer otherwise.
type ByKind struct {
	Text  scoring.AnsweringTask
	Media scoring.AnsweringTask
}

// Answer implements scoring.AnsweringTask.
func (b ByKind) Answer(ctx context.Context, workerID int, q model.Query, r *model.Response) (string, error) {
	if q.Kind == "images" && b.Media != nil {
		return b.Media.Answer(ctx, workerID, q, r)
	}
	return b.Text.Answer(ctx, workerID, q, r)
}
