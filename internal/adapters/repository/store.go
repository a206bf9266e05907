// Package repository holds the worker ranking and the persisted item queue state.
package repository

import (
	"context"

	"github.com/okian/ryno/internal/domain/model"
)

// Ranking provides read/write access to the worker weights.
type Ranking interface {
	// Apply folds a round's worker scores into the moving-average weights.
	Apply(ctx context.Context, scores model.WorkerScores) error

	// Rank returns the current rank and weight of a worker.
	// Returns ErrNotFound if the worker is unknown.
	Rank(ctx context.Context, workerID int) (model.Entry, error)

	// TopN returns the top-N entries ordered by weight desc.
	TopN(ctx context.Context, n int) ([]model.Entry, error)

	// Count returns the number of ranked workers.
	Count(ctx context.Context) int
}
