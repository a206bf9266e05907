// Package itemqueue implements the rotating supply of themes and questions
// used to build queries. A single mutex guards every category: a pop for
// "images" waits for a concurrent pop for "text".
package itemqueue

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/okian/ryno/internal/domain/model"
	"github.com/okian/ryno/pkg/logger"
	"github.com/okian/ryno/pkg/metrics"
)

// Supplier produces a fresh batch of items for a category and kind. theme is
// empty when kind is "themes".
type Supplier interface {
	Supply(ctx context.Context, category, kind, theme string) ([]model.WorkItem, error)
}

// SupplierFunc adapts a function to Supplier.
type SupplierFunc func(ctx context.Context, category, kind, theme string) ([]model.WorkItem, error)

// Supply implements Supplier.
func (f SupplierFunc) Supply(ctx context.Context, category, kind, theme string) ([]model.WorkItem, error) {
	return f(ctx, category, kind, theme)
}

// Store owns the item lists of every category.
type Store struct {
	mu       sync.Mutex
	state    State
	supplier Supplier
	logger   logger.Logger
	rand     *rand.Rand
}

// New creates a store seeded with state. A nil state, or one missing a
// category, is completed with empty lists.
func New(state State, supplier Supplier, opts ...Option) *Store {
	s := &Store{
		state:    NewState(),
		supplier: supplier,
		logger:   logger.Nop(),
	}
	for name, cs := range state.Clone() {
		s.state[name] = cs
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next pops the next item of (category, kind). Terminal consumers take the
// last item; others take the first item without media. When nothing is
// eligible the list is refilled from the Supplier once and the pick retried.
//
// For questions without a caller theme, a random theme is popped from the
// category's themes (refilled through the same Supplier when empty) before
// the questions are supplied.
//
// ok is false when no item is available right now. err is non-nil only for
// unknown categories or kinds and for Supplier failures.
func (s *Store) Next(ctx context.Context, category, kind string, terminal bool, theme string) (model.WorkItem, bool, error) {
	if err := checkCategory(category); err != nil {
		return model.WorkItem{}, false, err
	}
	if err := checkKind(kind); err != nil {
		return model.WorkItem{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.state[category]
	item, ok := take(cs, kind, terminal)
	if !ok {
		s.logger.Debug(ctx, "no eligible item, refilling",
			logger.String("category", category),
			logger.String("kind", kind),
			logger.Int("remaining", len(cs.list(kind))))
		if err := s.refillLocked(ctx, category, kind, theme); err != nil {
			return model.WorkItem{}, false, err
		}
		item, ok = take(cs, kind, terminal)
	}
	metrics.UpdateItemListLength(category, kind, len(cs.list(kind)))

	if !ok {
		metrics.RecordItemExhausted(category, kind)
		s.logger.Debug(ctx, "item list exhausted after refill",
			logger.String("category", category),
			logger.String("kind", kind))
		return model.WorkItem{}, false, nil
	}
	metrics.RecordItemServed(category, kind)
	return item, true, nil
}

// Snapshot returns a deep copy of the current state for persistence.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Len returns the number of items left in one list.
func (s *Store) Len(category, kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.state[category]
	if !ok {
		return 0
	}
	return len(cs.list(kind))
}

// take removes and returns the eligible item of one list. The remainder is
// written back, as an empty list when nothing is left.
func take(cs *CategoryState, kind string, terminal bool) (model.WorkItem, bool) {
	items := cs.list(kind)
	if terminal {
		if len(items) == 0 {
			cs.setList(kind, items)
			return model.WorkItem{}, false
		}
		last := items[len(items)-1]
		cs.setList(kind, items[:len(items)-1])
		return last, true
	}
	for i, it := range items {
		if it.HasMedia() {
			continue
		}
		cs.setList(kind, slices.Delete(items, i, i+1))
		return it, true
	}
	cs.setList(kind, items)
	return model.WorkItem{}, false
}

// refillLocked replaces the (category, kind) list with a fresh Supplier batch.
func (s *Store) refillLocked(ctx context.Context, category, kind, theme string) error {
	if kind == KindQuestions && theme == "" {
		t, ok, err := s.popThemeLocked(ctx, category)
		if err != nil {
			return err
		}
		if !ok {
			// nothing to ask questions about; the caller sees an absent item
			return nil
		}
		theme = t
	}

	batch, err := s.supplier.Supply(ctx, category, kind, theme)
	if err != nil {
		metrics.RecordItemRefill(category, "error")
		s.logger.Warn(ctx, "item supply failed",
			logger.String("category", category),
			logger.String("kind", kind),
			logger.String("theme", theme),
			logger.Error(err))
		return fmt.Errorf("%w: %s/%s: %w", ErrSupplyFailed, category, kind, err)
	}

	cs := s.state[category]
	cs.setList(kind, slices.Clone(batch))
	cs.bump(kind)
	metrics.RecordItemRefill(category, "ok")
	s.logger.Debug(ctx, "item list refilled",
		logger.String("category", category),
		logger.String("kind", kind),
		logger.String("theme", theme),
		logger.Int("items", len(batch)))
	return nil
}

// popThemeLocked removes a random theme of category, refilling themes first when empty.
func (s *Store) popThemeLocked(ctx context.Context, category string) (string, bool, error) {
	cs := s.state[category]
	if len(cs.Themes) == 0 {
		if err := s.refillLocked(ctx, category, KindThemes, ""); err != nil {
			return "", false, err
		}
	}
	if len(cs.Themes) == 0 {
		return "", false, nil
	}
	i := s.intN(len(cs.Themes))
	t := cs.Themes[i]
	cs.setList(KindThemes, slices.Delete(cs.Themes, i, i+1))
	return t.Prompt, true, nil
}

func (s *Store) intN(n int) int {
	if s.rand != nil {
		return s.rand.IntN(n)
	}
	return rand.IntN(n)
}
