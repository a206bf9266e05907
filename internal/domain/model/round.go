// Package model contains domain models passed between layers.
package model

// Message is one chat turn of a query.
type Message struct {
	Role    string `json:"role" validate:"required"`
	Content string `json:"content"`
}

// Query is the request dispatched to a worker. Provider and Model select the
// generation backend the worker must use and form part of the aggregation key.
type Query struct {
	Kind        string    `json:"kind"` // "text" or "images"
	Provider    string    `json:"provider" validate:"required"`
	Model       string    `json:"model" validate:"required"`
	Messages    []Message `json:"messages" validate:"required,min=1,dive"`
	Temperature float64   `json:"temperature" validate:"gte=0"`
	Seed        int64     `json:"seed"`
	Weight      float64   `json:"weight" validate:"gte=0"` // scoring weight passed to the scorer
}

// Prompt returns the content of the last message, the one answered by the worker.
func (q Query) Prompt() string {
	if len(q.Messages) == 0 {
		return ""
	}
	return q.Messages[len(q.Messages)-1].Content
}

// Response is a worker's reply. Similarity and Score are written back by the
// scoring engine after aggregation.
type Response struct {
	Completion  string  `json:"completion"`
	ImageURL    string  `json:"image_url,omitempty"`
	ProcessTime float64 `json:"process_time,omitempty"`

	Similarity float64 `json:"similarity"`
	Score      float64 `json:"score"`
}

// Pair ties a worker's query to its response. A nil Response means the worker
// failed or timed out; the pair still takes part in aggregation and scores 0.
type Pair struct {
	WorkerID int       `json:"worker_id" validate:"gte=0"`
	Query    Query     `json:"query"`
	Response *Response `json:"response,omitempty"`
}

// Key returns the aggregation key the pair is grouped under.
func (p Pair) Key() AggregationKey {
	return AggregationKey{WorkerID: p.WorkerID, Provider: p.Query.Provider, Model: p.Query.Model}
}

// Round is one batch of pairs scored together.
type Round struct {
	ID       string
	Pairs    []Pair
	Capacity CapacityTable
}

// ScoreRecord is one raw score recorded under an aggregation key.
type ScoreRecord struct {
	Key      AggregationKey
	Raw      float64
	Response *Response
}

// DetailRow is one line of the per-key aggregation report.
type DetailRow struct {
	WorkerID    int     `json:"worker_id"`
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Similarity  float64 `json:"similarity"` // average raw score of the key
	ModelWeight float64 `json:"model_weight"`
	Bandwidth   int     `json:"bandwidth"`
	Weighted    float64 `json:"weighted"`
}

// WorkerScores maps a worker to the sum of its weighted scores in a round.
type WorkerScores map[int]float64

// Entry is one leaderboard position.
type Entry struct {
	Rank     int     `json:"rank"`
	WorkerID int     `json:"worker_id"`
	Weight   float64 `json:"weight"`
}
