package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/okian/ryno/internal/adapters/mq/queue"
	"github.com/okian/ryno/internal/domain/dedupe"
	"github.com/okian/ryno/internal/domain/model"
	"github.com/okian/ryno/pkg/metrics"
)

// maxRoundBody caps the size of a round submission.
const maxRoundBody = 8 << 20

// RoundDependencies defines what round submission needs.
type RoundDependencies interface {
	dedupe.Deduper
	Enqueue(ctx context.Context, r model.Round) error
}

// roundRequest is the body of POST /rounds. A missing round_id gets a fresh UUID.
type roundRequest struct {
	RoundID  string                `json:"round_id"`
	Pairs    []model.Pair          `json:"pairs" validate:"required,min=1,dive"`
	Capacity []model.CapacityEntry `json:"capacity" validate:"omitempty,dive"`
}

type ackResponse struct {
	Status    string `json:"status"`
	RoundID   string `json:"round_id"`
	Duplicate bool   `json:"duplicate"`
}

// RoundsHandler accepts rounds for scoring.
type RoundsHandler struct {
	deps     RoundDependencies
	validate *validator.Validate
}

// NewRoundsHandler creates a new rounds handler.
func NewRoundsHandler(deps RoundDependencies) *RoundsHandler {
	return &RoundsHandler{deps: deps, validate: validator.New()}
}

// HandlePostRound handles POST /rounds requests.
func (h *RoundsHandler) HandlePostRound(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_round"

	var req roundRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRoundBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	for _, p := range req.Pairs {
		if err := p.Key().Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "malformed_key", WrapKind(op, ErrBadRequest, err))
			return
		}
	}

	req.RoundID = strings.TrimSpace(req.RoundID)
	if req.RoundID == "" {
		req.RoundID = uuid.NewString()
	}

	if h.deps.SeenAndRecord(r.Context(), req.RoundID) {
		metrics.RecordRoundDuplicate()
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", RoundID: req.RoundID, Duplicate: true})
		return
	}

	round := model.Round{ID: req.RoundID, Pairs: req.Pairs, Capacity: model.NewCapacityTable(req.Capacity)}
	if err := h.deps.Enqueue(r.Context(), round); err != nil {
		h.deps.Unrecord(r.Context(), req.RoundID)
		if errors.Is(err, queue.ErrClosed) {
			writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
			return
		}
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", RoundID: req.RoundID})
}
