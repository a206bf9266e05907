package scoring_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/ryno/internal/domain/model"
	"github.com/okian/ryno/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

// echoAnswerer returns the prompt as the reference answer.
var echoAnswerer = scoring.AnswerFunc(func(_ context.Context, _ int, q model.Query, _ *model.Response) (string, error) {
	return q.Prompt(), nil
})

// tableScorer scores a response by looking up its completion.
func tableScorer(table map[string]float64) scoring.ScoringTask {
	return scoring.ScoreFunc(func(_ context.Context, in scoring.ScoreInput) (float64, error) {
		s, ok := table[in.Response.Completion]
		if !ok {
			return 0, scoring.ErrNoScore
		}
		return s, nil
	})
}

type captureReporter struct {
	mu   sync.Mutex
	rows [][]model.DetailRow
}

func (c *captureReporter) Report(_ context.Context, rows []model.DetailRow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = append(c.rows, rows)
}

func query(provider, modelName, prompt string) model.Query {
	return model.Query{
		Provider: provider,
		Model:    modelName,
		Messages: []model.Message{{Role: "user", Content: prompt}},
		Weight:   1,
	}
}

func TestEngineScenario(t *testing.T) {
	Convey("Given worker 1 answering q1 and worker 2 timing out", t, func() {
		ctx := context.Background()
		r1 := &model.Response{Completion: "r1"}
		pairs := []model.Pair{
			{WorkerID: 1, Query: query("p", "m", "q1"), Response: r1},
			{WorkerID: 2, Query: query("p", "m", "q1"), Response: nil},
		}
		reporter := &captureReporter{}
		engine := scoring.NewEngine(echoAnswerer, tableScorer(map[string]float64{"r1": 0.8}),
			scoring.WithReporter(reporter))

		scores, rows, err := engine.Score(ctx, pairs, nil)
		So(err, ShouldBeNil)

		Convey("Worker 1 scores 0.8 and worker 2 is present with 0", func() {
			So(scores, ShouldResemble, model.WorkerScores{1: 0.8, 2: 0.0})
		})

		Convey("The response carries similarity and score", func() {
			So(r1.Similarity, ShouldEqual, 0.8)
			So(r1.Score, ShouldEqual, 0.8)
		})

		Convey("Rows are sorted by worker and reported once", func() {
			So(rows, ShouldHaveLength, 2)
			So(rows[0].WorkerID, ShouldEqual, 1)
			So(rows[0].Bandwidth, ShouldEqual, 1)
			So(rows[0].ModelWeight, ShouldEqual, 1.0)
			So(rows[1].WorkerID, ShouldEqual, 2)
			So(rows[1].Weighted, ShouldEqual, 0.0)
			So(reporter.rows, ShouldHaveLength, 1)
			So(reporter.rows[0], ShouldResemble, rows)
		})
	})

	Convey("Given a worker with no pairs at all", t, func() {
		engine := scoring.NewEngine(echoAnswerer, tableScorer(map[string]float64{"r1": 0.8}))
		pairs := []model.Pair{
			{WorkerID: 1, Query: query("p", "m", "q1"), Response: &model.Response{Completion: "r1"}},
		}
		scores, _, err := engine.Score(context.Background(), pairs, nil)
		So(err, ShouldBeNil)

		Convey("It is absent from the result", func() {
			_, present := scores[2]
			So(present, ShouldBeFalse)
			So(scores, ShouldHaveLength, 1)
		})
	})
}

func TestEngineLaws(t *testing.T) {
	Convey("Given a capacity table and several keys per worker", t, func() {
		ctx := context.Background()
		capacity := model.NewCapacityTable([]model.CapacityEntry{
			{WorkerID: 1, Provider: "openai", Model: "gpt", Bandwidth: 3},
			{WorkerID: 1, Provider: "anthropic", Model: "claude", Bandwidth: 2},
		})
		scorer := tableScorer(map[string]float64{"a": 0.2, "b": 0.6, "c": 0.5})
		engine := scoring.NewEngine(echoAnswerer, scorer)

		r1, r2 := &model.Response{Completion: "a"}, &model.Response{Completion: "b"}
		r3 := &model.Response{Completion: "c"}
		pairs := []model.Pair{
			{WorkerID: 1, Query: query("openai", "gpt", "q"), Response: r1},
			{WorkerID: 1, Query: query("openai", "gpt", "q"), Response: r2},
			{WorkerID: 1, Query: query("anthropic", "claude", "q"), Response: r3},
		}

		scores, rows, err := engine.Score(ctx, pairs, capacity)
		So(err, ShouldBeNil)

		Convey("Records under one key are averaged and weighted by bandwidth", func() {
			So(rows[0].Provider, ShouldEqual, "anthropic")
			So(rows[0].Weighted, ShouldAlmostEqual, 0.5*2, 1e-12)
			So(rows[1].Similarity, ShouldAlmostEqual, 0.4, 1e-12)
			So(rows[1].Weighted, ShouldAlmostEqual, 0.4*3, 1e-12)
		})

		Convey("Keys of one worker are summed, not averaged", func() {
			So(scores[1], ShouldAlmostEqual, rows[0].Weighted+rows[1].Weighted, 1e-12)
		})

		Convey("Every response sharing a key gets the same write-back", func() {
			So(r1.Similarity, ShouldAlmostEqual, 0.4, 1e-12)
			So(r2.Similarity, ShouldAlmostEqual, 0.4, 1e-12)
			So(r1.Score, ShouldEqual, r2.Score)
			So(r3.Score, ShouldAlmostEqual, 1.0, 1e-12)
		})

		Convey("Repeated calls give identical output", func() {
			again, againRows, err := engine.Score(ctx, pairs, capacity)
			So(err, ShouldBeNil)
			So(again, ShouldResemble, scores)
			So(againRows, ShouldResemble, rows)
		})
	})

	Convey("Given a zero bandwidth entry", t, func() {
		capacity := model.CapacityTable{}
		capacity.Set(4, "p", "m", 0)
		engine := scoring.NewEngine(echoAnswerer, tableScorer(map[string]float64{"x": 0.9}))
		scores, _, err := engine.Score(context.Background(),
			[]model.Pair{{WorkerID: 4, Query: query("p", "m", "q"), Response: &model.Response{Completion: "x"}}},
			capacity)
		So(err, ShouldBeNil)
		So(scores[4], ShouldEqual, 0.0)
	})

	Convey("Given configured model weights", t, func() {
		engine := scoring.NewEngine(echoAnswerer, tableScorer(map[string]float64{"x": 0.5}),
			scoring.WithModelWeights(map[model.ProviderModel]float64{{Provider: "p", Model: "m"}: 2}))
		scores, rows, err := engine.Score(context.Background(),
			[]model.Pair{{WorkerID: 1, Query: query("p", "m", "q"), Response: &model.Response{Completion: "x"}}}, nil)
		So(err, ShouldBeNil)
		So(rows[0].ModelWeight, ShouldEqual, 2.0)
		So(scores[1], ShouldEqual, 1.0)
	})
}

func TestEngineDegradation(t *testing.T) {
	Convey("Given tasks that fail in every way", t, func() {
		ctx := context.Background()
		answerer := scoring.AnswerFunc(func(_ context.Context, id int, q model.Query, _ *model.Response) (string, error) {
			switch id {
			case 1:
				return "", errors.New("provider down")
			case 2:
				panic("boom")
			}
			return q.Prompt(), nil
		})
		scorer := scoring.ScoreFunc(func(_ context.Context, in scoring.ScoreInput) (float64, error) {
			switch in.Response.Completion {
			case "err":
				return 0, errors.New("scorer down")
			case "panic":
				panic("scorer boom")
			case "negative":
				return -1, nil
			}
			return 0.7, nil
		})
		engine := scoring.NewEngine(answerer, scorer)

		pairs := []model.Pair{
			{WorkerID: 1, Query: query("p", "m", "q"), Response: &model.Response{Completion: "ok"}},
			{WorkerID: 2, Query: query("p", "m", "q"), Response: &model.Response{Completion: "ok"}},
			{WorkerID: 3, Query: query("p", "m", "q"), Response: &model.Response{Completion: "err"}},
			{WorkerID: 4, Query: query("p", "m", "q"), Response: &model.Response{Completion: "panic"}},
			{WorkerID: 5, Query: query("p", "m", "q"), Response: &model.Response{Completion: "negative"}},
			{WorkerID: 6, Query: query("p", "m", "q"), Response: &model.Response{Completion: "ok"}},
		}

		scores, rows, err := engine.Score(ctx, pairs, nil)

		Convey("The round completes with failures scored 0", func() {
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 6)
			So(scores, ShouldResemble, model.WorkerScores{1: 0, 2: 0, 3: 0, 4: 0, 5: 0, 6: 0.7})
		})
	})

	Convey("Given a round where every response is absent", t, func() {
		engine := scoring.NewEngine(echoAnswerer, tableScorer(nil))
		pairs := []model.Pair{
			{WorkerID: 1, Query: query("p", "m", "q")},
			{WorkerID: 2, Query: query("p", "m2", "q")},
		}
		scores, _, err := engine.Score(context.Background(), pairs, nil)
		So(err, ShouldBeNil)
		So(scores, ShouldResemble, model.WorkerScores{1: 0, 2: 0})
	})

	Convey("Given no pairs", t, func() {
		called := atomic.Int32{}
		answerer := scoring.AnswerFunc(func(context.Context, int, model.Query, *model.Response) (string, error) {
			called.Add(1)
			return "", nil
		})
		reporter := &captureReporter{}
		engine := scoring.NewEngine(answerer, tableScorer(nil), scoring.WithReporter(reporter))
		scores, rows, err := engine.Score(context.Background(), nil, nil)
		So(err, ShouldBeNil)
		So(scores, ShouldBeEmpty)
		So(rows, ShouldBeEmpty)
		So(called.Load(), ShouldEqual, 0)
		So(reporter.rows, ShouldBeEmpty)
	})

	Convey("Given a provider containing the key separator", t, func() {
		engine := scoring.NewEngine(echoAnswerer, tableScorer(nil))
		_, _, err := engine.Score(context.Background(),
			[]model.Pair{{WorkerID: 1, Query: query("a::b", "m", "q"), Response: &model.Response{}}}, nil)
		So(errors.Is(err, model.ErrMalformedKey), ShouldBeTrue)
	})
}

func TestEngineBarriers(t *testing.T) {
	Convey("Given slow answering tasks", t, func() {
		const n = 8
		var answeredCount atomic.Int32
		var sawIncomplete atomic.Bool
		var inFlight, peak atomic.Int32

		answerer := scoring.AnswerFunc(func(_ context.Context, _ int, q model.Query, _ *model.Response) (string, error) {
			cur := inFlight.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			answeredCount.Add(1)
			return q.Prompt(), nil
		})
		scorer := scoring.ScoreFunc(func(context.Context, scoring.ScoreInput) (float64, error) {
			if answeredCount.Load() != n {
				sawIncomplete.Store(true)
			}
			return 1, nil
		})

		pairs := make([]model.Pair, n)
		for i := range pairs {
			pairs[i] = model.Pair{WorkerID: i, Query: query("p", "m", "q"), Response: &model.Response{Completion: "c"}}
		}

		Convey("No scoring task starts before every answer resolved", func() {
			engine := scoring.NewEngine(answerer, scorer)
			_, _, err := engine.Score(context.Background(), pairs, nil)
			So(err, ShouldBeNil)
			So(sawIncomplete.Load(), ShouldBeFalse)
		})

		Convey("Concurrency is bounded when configured", func() {
			engine := scoring.NewEngine(answerer, scorer, scoring.WithConcurrency(2))
			_, _, err := engine.Score(context.Background(), pairs, nil)
			So(err, ShouldBeNil)
			So(peak.Load(), ShouldBeLessThanOrEqualTo, 2)
		})
	})
}
