// Package worker scores queued rounds and applies the results to the ranking.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/ryno/internal/domain/model"
	"github.com/okian/ryno/pkg/logger"
	"github.com/okian/ryno/pkg/metrics"
)

// Default worker configuration constants.
const (
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Scorer scores the pairs of a round.
type Scorer interface {
	Score(ctx context.Context, pairs []model.Pair, capacity model.CapacityTable) (model.WorkerScores, []model.DetailRow, error)
}

// Applier folds round scores into the worker ranking.
type Applier interface {
	Apply(ctx context.Context, scores model.WorkerScores) error
}

// Queue defines how workers receive rounds.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Round
}

// ResultHandler observes every applied round.
type ResultHandler func(ctx context.Context, round model.Round, scores model.WorkerScores, rows []model.DetailRow)

// Worker processes rounds until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after the round in progress.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker pulls rounds from a queue, scores them and applies the result.
type InMemoryWorker struct {
	queue    Queue
	scorer   Scorer
	applier  Applier
	name     string
	onResult ResultHandler
	busy     *atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker with configuration options.
func NewInMemoryWorker(queue Queue, scorer Scorer, applier Applier, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		scorer:   scorer,
		applier:  applier,
		name:     "worker",
		onResult: func(context.Context, model.Round, model.WorkerScores, []model.DetailRow) {},
		busy:     &atomic.Int64{},
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	rounds := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case r, ok := <-rounds:
			if !ok {
				return
			}
			if err := w.processRound(ctx, r); err != nil {
				w.logger.Error(ctx, "error processing round", logger.String("round_id", r.ID), logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker and waits for it or for ctx.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) processRound(ctx context.Context, r model.Round) error {
	w.busy.Add(1)
	start := time.Now()
	defer func() {
		w.busy.Add(-1)
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	scores, rows, err := w.scorer.Score(ctx, r.Pairs, r.Capacity)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "scoring_error")
		return fmt.Errorf("score round %s: %w", r.ID, err)
	}

	if err := w.applier.Apply(ctx, scores); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "apply_error")
		return fmt.Errorf("apply round %s: %w", r.ID, err)
	}

	metrics.RecordRoundProcessed()
	w.logger.Debug(ctx, "round applied",
		logger.String("round_id", r.ID),
		logger.Int("pairs", len(r.Pairs)),
		logger.Int("workers", len(scores)))
	w.onResult(ctx, r, scores, rows)
	return nil
}

// Pool manages multiple workers reading the same queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	busy    *atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once

	logger logger.Logger
}

// NewPool creates a worker pool. workerCount < 1 uses runtime.NumCPU().
// opts apply to every worker.
func NewPool(workerCount int, queue Queue, scorer Scorer, applier Applier, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	busy := &atomic.Int64{}
	pool := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    queue,
		busy:     busy,
		shutdown: make(chan struct{}),
		logger:   logger.Nop(),
	}

	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(queue, scorer, applier, wopts...)
		w.busy = busy
		pool.workers[i] = w
	}
	if len(pool.workers) > 0 {
		pool.logger = pool.workers[0].logger
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(workerCount)
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

func (p *Pool) updateMetrics() {
	active := int(p.busy.Load())
	metrics.UpdateWorkerActiveCount(active)
	metrics.UpdateWorkerIdleCount(len(p.workers) - active)
}

// Shutdown closes the queue when it supports closing, then waits for
// every worker to drain it or for ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	p.shutdownOnce.Do(func() { close(p.shutdown) })

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut++
		}
	}
	if timedOut > 0 {
		p.logger.Warn(ctx, "workers did not stop in time", logger.Int("workers", timedOut))
		return fmt.Errorf("%d workers did not stop: %w", timedOut, shutdownCtx.Err())
	}
	return nil
}
