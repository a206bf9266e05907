package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry maps provider names to configured completers.
type Registry struct {
	mu        sync.RWMutex
	completer map[string]Completer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{completer: make(map[string]Completer)}
}

// Add stores c under name, replacing any previous completer.
func (r *Registry) Add(name string, c Completer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completer[name] = c
}

// Get returns the completer for provider.
func (r *Registry) Get(provider string) (Completer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.completer[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, provider)
	}
	return c, nil
}

// Names lists the configured providers.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.completer))
	for n := range r.completer {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Build creates every provider in cfgs and wraps each in mw. Providers that
// fail to build are returned in the error map and left out of the registry.
func Build(ctx context.Context, cfgs map[string]Config, mw ...Middleware) (*Registry, map[string]error) {
	r := NewRegistry()
	failed := make(map[string]error)
	for name, cfg := range cfgs {
		c, err := New(ctx, name, cfg, mw...)
		if err != nil {
			failed[name] = err
			continue
		}
		r.Add(name, c)
	}
	return r, failed
}
