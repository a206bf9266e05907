package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/ryno/internal/adapters/http/api"
	"github.com/okian/ryno/internal/adapters/mq/queue"
	"github.com/okian/ryno/internal/adapters/repository"
	"github.com/okian/ryno/internal/domain/dedupe"
	"github.com/okian/ryno/internal/domain/itemqueue"
	"github.com/okian/ryno/internal/domain/model"
)

type mockDeps struct {
	dedupe.Deduper

	mu         sync.Mutex
	enqueued   []model.Round
	enqueueErr error

	topN    []model.Entry
	topNErr error
	rank    model.Entry
	rankErr error

	item     model.WorkItem
	itemOK   bool
	itemErr  error
	nextArgs []any
}

func newMockDeps() *mockDeps {
	return &mockDeps{Deduper: dedupe.NewInMemoryDeduper()}
}

func (m *mockDeps) Enqueue(_ context.Context, r model.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.enqueued = append(m.enqueued, r)
	return nil
}

func (m *mockDeps) TopN(_ context.Context, n int) ([]model.Entry, error) {
	if m.topNErr != nil {
		return nil, m.topNErr
	}
	if n > len(m.topN) {
		return m.topN, nil
	}
	return m.topN[:n], nil
}

func (m *mockDeps) Rank(_ context.Context, workerID int) (model.Entry, error) {
	if m.rankErr != nil {
		return model.Entry{}, m.rankErr
	}
	e := m.rank
	e.WorkerID = workerID
	return e, nil
}

func (m *mockDeps) Next(_ context.Context, category, kind string, terminal bool, theme string) (model.WorkItem, bool, error) {
	m.nextArgs = []any{category, kind, terminal, theme}
	return m.item, m.itemOK, m.itemErr
}

type mockStats map[string]any

func (m mockStats) GetStats() map[string]any { return m }

func newMux(deps *mockDeps) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, mockStats{"queue_len": 3}, 50).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

const validRound = `{
  "round_id": "r-1",
  "pairs": [
    {"worker_id": 1, "query": {"provider": "openai", "model": "gpt-4o", "messages": [{"role": "user", "content": "hi"}]},
     "response": {"completion": "hello"}},
    {"worker_id": 2, "query": {"provider": "openai", "model": "gpt-4o", "messages": [{"role": "user", "content": "hi"}]}}
  ],
  "capacity": [{"worker_id": 1, "provider": "openai", "model": "gpt-4o", "bandwidth": 3}]
}`

func TestPostRound(t *testing.T) {
	Convey("Given the API", t, func() {
		deps := newMockDeps()
		mux := newMux(deps)

		Convey("A valid round is accepted and queued", func() {
			w := do(mux, http.MethodPost, "/rounds", validRound)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(w.Body.String(), ShouldContainSubstring, `"round_id":"r-1"`)

			So(deps.enqueued, ShouldHaveLength, 1)
			r := deps.enqueued[0]
			So(r.ID, ShouldEqual, "r-1")
			So(r.Pairs, ShouldHaveLength, 2)
			So(r.Pairs[1].Response, ShouldBeNil)
			b, found := r.Capacity.Bandwidth(1, "openai", "gpt-4o")
			So(found, ShouldBeTrue)
			So(b, ShouldEqual, 3)

			Convey("And a resubmission is reported as duplicate", func() {
				w := do(mux, http.MethodPost, "/rounds", validRound)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"duplicate":true`)
				So(deps.enqueued, ShouldHaveLength, 1)
			})
		})

		Convey("A round without an ID gets one", func() {
			body := strings.Replace(validRound, `"round_id": "r-1",`, "", 1)
			w := do(mux, http.MethodPost, "/rounds", body)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			var ack struct {
				RoundID string `json:"round_id"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &ack), ShouldBeNil)
			So(ack.RoundID, ShouldHaveLength, 36)
		})

		Convey("Invalid bodies are rejected", func() {
			cases := map[string]string{
				"not json":      `{`,
				"no pairs":      `{"round_id": "x", "pairs": []}`,
				"missing model": `{"pairs": [{"worker_id": 1, "query": {"provider": "p", "messages": [{"role": "user"}]}}]}`,
				"no messages":   `{"pairs": [{"worker_id": 1, "query": {"provider": "p", "model": "m", "messages": []}}]}`,
				"negative id":   `{"pairs": [{"worker_id": -1, "query": {"provider": "p", "model": "m", "messages": [{"role": "user"}]}}]}`,
				"bad capacity":  `{"pairs": [{"worker_id": 1, "query": {"provider": "p", "model": "m", "messages": [{"role": "user"}]}}], "capacity": [{"worker_id": 1}]}`,
				"key separator": `{"pairs": [{"worker_id": 1, "query": {"provider": "a::b", "model": "m", "messages": [{"role": "user"}]}}]}`,
			}
			for name, body := range cases {
				w := do(mux, http.MethodPost, "/rounds", body)
				So(fmt.Sprintf("%s: %d", name, w.Code), ShouldEqual, fmt.Sprintf("%s: %d", name, http.StatusBadRequest))
			}
			So(deps.enqueued, ShouldBeEmpty)
		})

		Convey("A full queue answers 429 and forgets the round ID", func() {
			deps.enqueueErr = queue.ErrFull
			w := do(mux, http.MethodPost, "/rounds", validRound)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			So(deps.Size(), ShouldEqual, 0)

			deps.enqueueErr = nil
			w = do(mux, http.MethodPost, "/rounds", validRound)
			So(w.Code, ShouldEqual, http.StatusAccepted)
		})

		Convey("A closed queue answers 503", func() {
			deps.enqueueErr = queue.ErrClosed
			w := do(mux, http.MethodPost, "/rounds", validRound)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("Other methods are not routed", func() {
			w := do(mux, http.MethodGet, "/rounds", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestLeaderboardAndRank(t *testing.T) {
	Convey("Given a leaderboard", t, func() {
		deps := newMockDeps()
		deps.topN = []model.Entry{{Rank: 1, WorkerID: 4, Weight: 0.9}, {Rank: 2, WorkerID: 2, Weight: 0.5}}
		deps.rank = model.Entry{Rank: 2, Weight: 0.5}
		mux := newMux(deps)

		Convey("GET /leaderboard returns the top entries", func() {
			w := do(mux, http.MethodGet, "/leaderboard?limit=1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var got []model.Entry
			So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
			So(got, ShouldResemble, deps.topN[:1])

			w = do(mux, http.MethodGet, "/leaderboard", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Bad limits are rejected", func() {
			So(do(mux, http.MethodGet, "/leaderboard?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/leaderboard?limit=abc", "").Code, ShouldEqual, http.StatusBadRequest)
			w := do(mux, http.MethodGet, "/leaderboard?limit=51", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "limit_exceeded")
		})

		Convey("Store failures are 500", func() {
			deps.topNErr = errors.New("boom")
			So(do(mux, http.MethodGet, "/leaderboard?limit=5", "").Code, ShouldEqual, http.StatusInternalServerError)
		})

		Convey("GET /rank/{worker_id} returns the worker's entry", func() {
			w := do(mux, http.MethodGet, "/rank/2", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var got model.Entry
			So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
			So(got, ShouldResemble, model.Entry{Rank: 2, WorkerID: 2, Weight: 0.5})
		})

		Convey("Unknown and malformed worker IDs", func() {
			So(do(mux, http.MethodGet, "/rank/abc", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/rank/-3", "").Code, ShouldEqual, http.StatusBadRequest)

			deps.rankErr = fmt.Errorf("lookup: %w", repository.ErrNotFound)
			So(do(mux, http.MethodGet, "/rank/9", "").Code, ShouldEqual, http.StatusNotFound)

			deps.rankErr = errors.New("boom")
			So(do(mux, http.MethodGet, "/rank/9", "").Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestItems(t *testing.T) {
	Convey("Given the item endpoint", t, func() {
		deps := newMockDeps()
		mux := newMux(deps)

		Convey("An available item is returned with its parameters passed through", func() {
			deps.item, deps.itemOK = model.Text("Why is the sky blue?"), true
			w := do(mux, http.MethodGet, "/items/text/questions?terminal=true&theme=Science", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"item":"Why is the sky blue?"`)
			So(deps.nextArgs, ShouldResemble, []any{"text", "questions", true, "Science"})
		})

		Convey("No item is 204", func() {
			w := do(mux, http.MethodGet, "/items/images/questions", "")
			So(w.Code, ShouldEqual, http.StatusNoContent)
			So(w.Body.Len(), ShouldEqual, 0)
		})

		Convey("Errors map to status codes", func() {
			deps.itemErr = fmt.Errorf("x: %w", itemqueue.ErrUnknownCategory)
			So(do(mux, http.MethodGet, "/items/audio/questions", "").Code, ShouldEqual, http.StatusBadRequest)

			deps.itemErr = fmt.Errorf("x: %w", itemqueue.ErrSupplyFailed)
			So(do(mux, http.MethodGet, "/items/text/questions", "").Code, ShouldEqual, http.StatusBadGateway)

			deps.itemErr = nil
			So(do(mux, http.MethodGet, "/items/text/questions?terminal=maybe", "").Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestStatsAndHealth(t *testing.T) {
	Convey("Stats and health are served", t, func() {
		mux := newMux(newMockDeps())

		w := do(mux, http.MethodGet, "/stats", "")
		So(w.Code, ShouldEqual, http.StatusOK)
		So(w.Body.String(), ShouldContainSubstring, `"queue_len":3`)

		_ = do(mux, http.MethodGet, "/leaderboard?limit=1", "")
		w = do(mux, http.MethodGet, "/healthz", "")
		So(w.Code, ShouldEqual, http.StatusOK)
		So(w.Body.String(), ShouldContainSubstring, "ryno_validator_http_requests_total")
	})
}

func TestErrorKinds(t *testing.T) {
	Convey("API errors expose kind and cause", t, func() {
		cause := errors.New("eof")
		err := api.WrapKind("api.op", api.ErrBadRequest, cause)
		So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(err.Error(), ShouldEqual, "api.op: bad request: eof")
		So(api.NewKind("api.op", api.ErrBackpressure).Error(), ShouldEqual, "api.op: backpressure")
		So(errors.Is(api.Wrap("api.op", cause), cause), ShouldBeTrue)
	})
}
