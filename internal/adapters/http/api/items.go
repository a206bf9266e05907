package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/ryno/internal/domain/itemqueue"
	"github.com/okian/ryno/internal/domain/model"
)

// ItemDependencies defines the item queue operations.
type ItemDependencies interface {
	Next(ctx context.Context, category, kind string, terminal bool, theme string) (model.WorkItem, bool, error)
}

type itemResponse struct {
	Category string         `json:"category"`
	Kind     string         `json:"kind"`
	Item     model.WorkItem `json:"item"`
}

// ItemsHandler hands out themes and questions.
type ItemsHandler struct {
	deps ItemDependencies
}

// NewItemsHandler creates a new items handler.
func NewItemsHandler(deps ItemDependencies) *ItemsHandler {
	return &ItemsHandler{deps: deps}
}

// HandleGetItem handles GET /items/{category}/{kind}?terminal=&theme=. It
// answers 204 when no item is available.
func (h *ItemsHandler) HandleGetItem(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_item"

	category, kind := r.PathValue("category"), r.PathValue("kind")
	terminal := false
	if t := r.URL.Query().Get("terminal"); t != "" {
		var err error
		if terminal, err = strconv.ParseBool(t); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
	}

	item, ok, err := h.deps.Next(r.Context(), category, kind, terminal, r.URL.Query().Get("theme"))
	switch {
	case errors.Is(err, itemqueue.ErrUnknownCategory), errors.Is(err, itemqueue.ErrUnknownKind):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	case errors.Is(err, itemqueue.ErrSupplyFailed):
		writeError(w, http.StatusBadGateway, "supply_failed", WrapKind(op, ErrUpstream, err))
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	case !ok:
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, itemResponse{Category: category, Kind: kind, Item: item})
}
