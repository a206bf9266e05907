package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/ryno/internal/adapters/mq/queue"
	"github.com/okian/ryno/internal/adapters/mq/worker"
	"github.com/okian/ryno/internal/domain/model"
)

// Mock implementations for testing.
type mockQueue struct {
	rounds chan model.Round
	once   sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{rounds: make(chan model.Round, 10)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan model.Round { return mq.rounds }

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.rounds) })
	return nil
}

type mockScorer struct {
	mu     sync.Mutex
	errors map[string]error
}

func newMockScorer() *mockScorer {
	return &mockScorer{errors: make(map[string]error)}
}

// Score gives every worker 1 per pair with a response.
func (ms *mockScorer) Score(_ context.Context, pairs []model.Pair, _ model.CapacityTable) (model.WorkerScores, []model.DetailRow, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, p := range pairs {
		if err, ok := ms.errors[p.Query.Model]; ok {
			return nil, nil, err
		}
	}
	scores := model.WorkerScores{}
	for _, p := range pairs {
		if p.Response != nil {
			scores[p.WorkerID]++
		} else if _, ok := scores[p.WorkerID]; !ok {
			scores[p.WorkerID] = 0
		}
	}
	return scores, []model.DetailRow{}, nil
}

func (ms *mockScorer) setError(modelName string, err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.errors[modelName] = err
}

type mockApplier struct {
	mu      sync.Mutex
	applied []model.WorkerScores
	err     error
}

func (ma *mockApplier) Apply(_ context.Context, scores model.WorkerScores) error {
	ma.mu.Lock()
	defer ma.mu.Unlock()
	if ma.err != nil {
		return ma.err
	}
	ma.applied = append(ma.applied, scores)
	return nil
}

func (ma *mockApplier) count() int {
	ma.mu.Lock()
	defer ma.mu.Unlock()
	return len(ma.applied)
}

func testRound(id, modelName string) model.Round {
	return model.Round{ID: id, Pairs: []model.Pair{
		{WorkerID: 1, Query: model.Query{Provider: "openai", Model: modelName}, Response: &model.Response{Completion: "x"}},
		{WorkerID: 2, Query: model.Query{Provider: "openai", Model: modelName}},
	}}
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return false
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running worker", t, func() {
		q := newMockQueue()
		scorer := newMockScorer()
		applier := &mockApplier{}

		var mu sync.Mutex
		var handled []string
		w := worker.NewInMemoryWorker(q, scorer, applier,
			worker.WithName("test-worker"),
			worker.WithResultHandler(func(_ context.Context, r model.Round, _ model.WorkerScores, _ []model.DetailRow) {
				mu.Lock()
				handled = append(handled, r.ID)
				mu.Unlock()
			}))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a round is queued it is scored and applied", func() {
			q.rounds <- testRound("r1", "m")
			convey.So(waitFor(func() bool { return applier.count() == 1 }), convey.ShouldBeTrue)

			applier.mu.Lock()
			got := applier.applied[0]
			applier.mu.Unlock()
			convey.So(got, convey.ShouldResemble, model.WorkerScores{1: 1, 2: 0})

			convey.So(waitFor(func() bool {
				mu.Lock()
				defer mu.Unlock()
				return len(handled) == 1 && handled[0] == "r1"
			}), convey.ShouldBeTrue)
		})

		convey.Convey("When scoring fails nothing is applied and later rounds still run", func() {
			scorer.setError("bad", errors.New("malformed key"))
			q.rounds <- testRound("r1", "bad")
			q.rounds <- testRound("r2", "m")
			convey.So(waitFor(func() bool { return applier.count() == 1 }), convey.ShouldBeTrue)
		})

		convey.Convey("When applying fails the result handler is skipped", func() {
			applier.mu.Lock()
			applier.err = errors.New("store down")
			applier.mu.Unlock()
			q.rounds <- testRound("r1", "m")
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			convey.So(handled, convey.ShouldBeEmpty)
			mu.Unlock()
		})

		convey.Convey("When shutting down it stops", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer shutdownCancel()
			convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool on a real queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		applier := &mockApplier{}
		pool := worker.NewPool(4, q, newMockScorer(), applier)
		convey.So(pool.Size(), convey.ShouldEqual, 4)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.Convey("Every queued round is applied exactly once and shutdown drains the queue", func() {
			for i := 0; i < 40; i++ {
				convey.So(q.Enqueue(ctx, testRound("r", "m")), convey.ShouldBeNil)
			}
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
			convey.So(applier.count(), convey.ShouldEqual, 40)
			convey.So(q.IsClosed(), convey.ShouldBeTrue)
		})
	})

	convey.Convey("A pool without an explicit size uses one worker per CPU", t, func() {
		pool := worker.NewPool(0, newMockQueue(), newMockScorer(), &mockApplier{})
		convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
	})
}
