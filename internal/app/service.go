// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/ryno/internal/adapters/answer"
	eventqueue "github.com/okian/ryno/internal/adapters/mq/queue"
	workerpool "github.com/okian/ryno/internal/adapters/mq/worker"
	"github.com/okian/ryno/internal/adapters/repository"
	"github.com/okian/ryno/internal/adapters/supplier"
	"github.com/okian/ryno/internal/domain/dedupe"
	"github.com/okian/ryno/internal/domain/itemqueue"
	"github.com/okian/ryno/internal/domain/model"
	"github.com/okian/ryno/internal/domain/scoring"
	"github.com/okian/ryno/internal/domain/similarity"
	"github.com/okian/ryno/pkg/logger"
	"github.com/okian/ryno/pkg/metrics"
)

// ErrNotStarted is returned by operations that need a running service.
var ErrNotStarted = errors.New("service not started")

// Service implements the API dependencies of the validator.
type Service struct {
	mu sync.RWMutex

	// Core components
	ranking *repository.TreapStore
	deduper dedupe.Deduper
	queue   *eventqueue.InMemoryQueue
	engine  *scoring.Engine
	pool    *workerpool.Pool
	items   *itemqueue.Store

	// Collaborators supplied through options
	answerer  scoring.AnsweringTask
	scorer    scoring.ScoringTask
	reporter  scoring.Reporter
	supplier  itemqueue.Supplier
	state     itemqueue.State
	stateFile *repository.StateFile
	closers   []io.Closer

	// Configuration
	workerCount  int
	queueSize    int
	dedupeSize   int
	concurrency  int
	alpha        float64
	textWeight   float64
	modelWeights map[model.ProviderModel]float64

	// State
	started         bool
	cancelRun       context.CancelFunc
	roundsProcessed atomic.Int64
	lastRoundID     atomic.Value

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU(),
		queueSize:   1024,
		dedupeSize:  50_000,
		alpha:       0.1,
		textWeight:  1,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	return s
}

// Start builds and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting validator service...")

	if s.state == nil && s.stateFile != nil {
		state, err := s.stateFile.Load(ctx)
		if err != nil {
			return fmt.Errorf("load item state: %w", err)
		}
		s.state = state
	}

	answerer := s.answerer
	if answerer == nil {
		answerer = answer.Passthrough{}
	}
	scorer := s.scorer
	if scorer == nil {
		scorer = similarity.Router{Text: similarity.NewTextScorer(), Media: similarity.NewMediaScorer()}
	}
	scorer = defaultWeight{next: scorer, text: s.textWeight}
	if s.supplier == nil {
		s.supplier = supplier.Composite{Themes: supplier.DefaultThemes()}
	}

	engineOpts := []scoring.Option{
		scoring.WithLogger(s.logger.Named("engine")),
		scoring.WithConcurrency(s.concurrency),
		scoring.WithModelWeights(s.modelWeights),
	}
	if s.reporter != nil {
		engineOpts = append(engineOpts, scoring.WithReporter(s.reporter))
	}
	s.engine = scoring.NewEngine(answerer, scorer, engineOpts...)

	// Workers outlive ctx so Stop can drain the queue; Stop cancels runCtx.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelRun = cancel

	s.ranking = repository.NewTreapStore(runCtx, repository.WithAlpha(s.alpha))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.items = itemqueue.New(s.state, s.supplier, itemqueue.WithLogger(s.logger.Named("items")))

	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.engine, s.ranking,
		workerpool.WithLogger(s.logger.Named("worker")),
		workerpool.WithResultHandler(s.onRoundScored),
	)
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "validator service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Float64("alpha", s.alpha),
	)
	return nil
}

// Stop drains the queue, saves the item state and releases resources.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping validator service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}
	s.cancelRun()
	if err := s.saveStateLocked(ctx); err != nil {
		s.logger.Error(ctx, "final state save failed", logger.Error(err))
	}
	s.state = s.items.Snapshot()
	_ = s.ranking.Close()
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.logger.Warn(ctx, "close failed", logger.Error(err))
		}
	}

	s.started = false
	s.logger.Info(ctx, "validator service stopped")
}

func (s *Service) onRoundScored(ctx context.Context, r model.Round, scores model.WorkerScores, rows []model.DetailRow) {
	s.roundsProcessed.Add(1)
	s.lastRoundID.Store(r.ID)
	s.logger.Debug(ctx, "round scored",
		logger.String("round_id", r.ID),
		logger.Int("workers", len(scores)),
		logger.Int("rows", len(rows)),
	)
}

// SeenAndRecord reports whether a round ID was already seen and records it if not.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	return s.deduper.SeenAndRecord(ctx, id)
}

// Unrecord forgets a round ID so it can be submitted again.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.deduper.Unrecord(ctx, id)
}

// Size returns the number of remembered round IDs.
func (s *Service) Size() int64 {
	return s.deduper.Size()
}

// Enqueue submits a round for asynchronous scoring.
func (s *Service) Enqueue(ctx context.Context, r model.Round) error {
	s.mu.RLock()
	q := s.queue
	started := s.started
	s.mu.RUnlock()
	if !started {
		return eventqueue.ErrClosed
	}

	if err := q.Enqueue(ctx, r); err != nil {
		s.logger.Warn(ctx, "round rejected", logger.String("round_id", r.ID), logger.Error(err))
		return err
	}
	s.logger.Debug(ctx, "round queued", logger.String("round_id", r.ID), logger.Int("pairs", len(r.Pairs)))
	return nil
}

// Score runs the scoring engine synchronously on a round without touching
// the leaderboard.
func (s *Service) Score(ctx context.Context, r model.Round) (model.WorkerScores, []model.DetailRow, error) {
	s.mu.RLock()
	engine := s.engine
	s.mu.RUnlock()
	if engine == nil {
		return nil, nil, ErrNotStarted
	}
	return engine.Score(ctx, r.Pairs, r.Capacity)
}

// TopN returns the top N leaderboard entries.
func (s *Service) TopN(ctx context.Context, n int) ([]model.Entry, error) {
	ranking := s.rankingStore()
	if ranking == nil {
		return nil, ErrNotStarted
	}
	return ranking.TopN(ctx, n)
}

// Rank returns the rank and weight of a worker.
func (s *Service) Rank(ctx context.Context, workerID int) (model.Entry, error) {
	ranking := s.rankingStore()
	if ranking == nil {
		return model.Entry{}, ErrNotStarted
	}
	return ranking.Rank(ctx, workerID)
}

func (s *Service) rankingStore() *repository.TreapStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ranking
}

// Next pops a work item from the rotating item queue.
func (s *Service) Next(ctx context.Context, category, kind string, terminal bool, theme string) (model.WorkItem, bool, error) {
	s.mu.RLock()
	items := s.items
	s.mu.RUnlock()
	if items == nil {
		return model.WorkItem{}, false, ErrNotStarted
	}
	return items.Next(ctx, category, kind, terminal, theme)
}

// SaveState writes the item queue state to the state file, if one is set.
func (s *Service) SaveState(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveStateLocked(ctx)
}

func (s *Service) saveStateLocked(ctx context.Context) error {
	if s.stateFile == nil || s.items == nil {
		return nil
	}
	return s.stateFile.Save(ctx, s.items.Snapshot())
}

// RunStateSaver saves the item state every interval until ctx is done.
func (s *Service) RunStateSaver(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SaveState(ctx); err != nil {
				s.logger.Error(ctx, "periodic state save failed", logger.Error(err))
			}
		}
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":         s.started,
		"workerCount":     s.workerCount,
		"queueSize":       s.queueSize,
		"dedupeSize":      s.dedupeSize,
		"alpha":           s.alpha,
		"roundsProcessed": s.roundsProcessed.Load(),
	}
	if id, ok := s.lastRoundID.Load().(string); ok {
		stats["lastRoundID"] = id
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		totalWorkers := s.ranking.Count(ctx)

		stats["queueLength"] = queueLen
		stats["totalWorkers"] = totalWorkers
		stats["seenRounds"] = s.deduper.Size()

		items := make(map[string]map[string]int)
		for _, c := range []string{itemqueue.CategoryText, itemqueue.CategoryImages} {
			items[c] = map[string]int{
				itemqueue.KindThemes:    s.items.Len(c, itemqueue.KindThemes),
				itemqueue.KindQuestions: s.items.Len(c, itemqueue.KindQuestions),
			}
		}
		stats["items"] = items

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateTotalWorkers(totalWorkers)
		metrics.UpdateWorkerCount(s.workerCount)
	}
	return stats
}

// defaultWeight gives text queries without a weight the configured text weight.
type defaultWeight struct {
	next scoring.ScoringTask
	text float64
}

func (d defaultWeight) Score(ctx context.Context, in scoring.ScoreInput) (float64, error) {
	if in.Weight == 0 && in.Query.Kind != "images" {
		in.Weight = d.text
	}
	return d.next.Score(ctx, in)
}
