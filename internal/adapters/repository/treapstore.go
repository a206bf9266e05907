package repository

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/ryno/internal/domain/model"
	"github.com/okian/ryno/pkg/metrics"
)

// Treap-based, in-memory Ranking implementation.
//
// Ordering: weight DESC, then workerID ASC (deterministic). "less" means
// ranks earlier, so in-order traversal yields the leaderboard from best to
// worst. Node sizes give ranks in O(log n).

const defaultAlpha = 0.1

// weightScale controls fixed-point scaling from float64.
const weightScale = 1_000_000_000_000 // 12 decimal places

type weightFP int64

func toFixedPoint(x float64) weightFP {
	switch {
	case math.IsNaN(x):
		return 0
	case x*weightScale >= math.MaxInt64:
		return weightFP(math.MaxInt64)
	case x*weightScale <= math.MinInt64:
		return weightFP(math.MinInt64)
	}
	return weightFP(math.Round(x * weightScale))
}

// treap node
type node struct {
	id     int
	weight weightFP
	prio   uint64
	left   *node
	right  *node
	size   int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aW, aID) should appear before (bW, bID).
func less(aW weightFP, aID int, bW weightFP, bID int) bool {
	if aW != bW {
		return aW > bW
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id int, w weightFP, prio uint64) *node {
	if n == nil {
		return &node{id: id, weight: w, prio: prio, size: 1}
	}
	if less(w, id, n.weight, n.id) {
		n.left = insert(n.left, id, w, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, w, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id int, w weightFP) *node {
	if n == nil {
		return nil
	}
	if w == n.weight && id == n.id {
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, w)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, w)
		}
	} else if less(w, id, n.weight, n.id) {
		n.left = deleteNode(n.left, id, w)
	} else {
		n.right = deleteNode(n.right, id, w)
	}
	fix(n)
	return n
}

// countAbove returns the number of nodes with a weight strictly above w.
func countAbove(n *node, w weightFP) int {
	count := 0
	for n != nil {
		if n.weight > w {
			count += 1 + nsize(n.left)
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// collectTopN appends up to limit entries in rank order.
func collectTopN(n *node, limit int, byID map[int]float64, out *[]model.Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, byID, out)
	if len(*out) < limit {
		*out = append(*out, model.Entry{WorkerID: n.id, Weight: byID[n.id]})
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, byID, out)
	}
}

// TreapStore keeps each worker's moving-average weight ordered for ranking.
type TreapStore struct {
	mu    sync.RWMutex
	root  *node
	byID  map[int]float64
	fp    map[int]weightFP
	alpha float64

	metricsUpdateInterval time.Duration
	wg                    sync.WaitGroup
	stopChan              chan struct{}
	stopOnce              sync.Once
}

var _ Ranking = (*TreapStore)(nil)

// NewTreapStore constructs a treap store. Background metrics updates stop
// when ctx is done or Close is called.
func NewTreapStore(ctx context.Context, opts ...Option) *TreapStore {
	s := &TreapStore{
		byID:                  make(map[int]float64),
		fp:                    make(map[int]weightFP),
		alpha:                 defaultAlpha,
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the background metrics updater.
func (s *TreapStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// Apply sets weight = alpha*score + (1-alpha)*weight for every worker in
// scores. Unknown workers start from 0. Non-finite scores are ignored.
func (s *TreapStore) Apply(ctx context.Context, scores model.WorkerScores) error {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	s.mu.Lock()
	for id, score := range scores {
		if math.IsNaN(score) || math.IsInf(score, 0) {
			metrics.RecordErrorByComponent("repository", "invalid_score")
			continue
		}
		old := s.byID[id]
		if fp, ok := s.fp[id]; ok {
			s.root = deleteNode(s.root, id, fp)
		}
		w := s.alpha*score + (1-s.alpha)*old
		fp := toFixedPoint(w)
		s.byID[id] = w
		s.fp[id] = fp
		s.root = insert(s.root, id, fp, rand.Uint64())
	}
	count := len(s.byID)
	s.mu.Unlock()

	metrics.RecordLeaderboardUpdate()
	metrics.UpdateTotalWorkers(count)
	return nil
}

// Weight returns a worker's current weight.
func (s *TreapStore) Weight(_ context.Context, workerID int) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.byID[workerID]
	return w, ok
}

// Rank returns the current rank and weight of a worker in O(log n). Workers
// with equal weights share a rank.
func (s *TreapStore) Rank(_ context.Context, workerID int) (model.Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	fp, ok := s.fp[workerID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Entry{}, ErrNotFound
	}
	return model.Entry{
		Rank:     countAbove(s.root, fp) + 1,
		WorkerID: workerID,
		Weight:   s.byID[workerID],
	}, nil
}

// TopN returns the top N entries ordered by weight desc.
func (s *TreapStore) TopN(_ context.Context, n int) ([]model.Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Entry, 0, min(n, len(s.byID)))
	collectTopN(s.root, n, s.byID, &out)
	assignRanksWithTies(out, s.fp)
	return out, nil
}

// Count returns the number of ranked workers.
func (s *TreapStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Weights returns a copy of every worker's weight.
func (s *TreapStore) Weights() map[int]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]float64, len(s.byID))
	for id, w := range s.byID {
		out[id] = w
	}
	return out
}

func (s *TreapStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateTotalWorkers(s.Count(ctx))
			}
		}
	}()
}

// assignRanksWithTies gives entries with equal weights the rank of the first
// of them; the next distinct weight ranks by position.
func assignRanksWithTies(entries []model.Entry, fp map[int]weightFP) {
	for i := range entries {
		if i > 0 && fp[entries[i].WorkerID] == fp[entries[i-1].WorkerID] {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
}
