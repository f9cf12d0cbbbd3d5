package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/okian/versus/internal/domain/model"
)

// RankDependencies defines the interface for rank operations.
type RankDependencies interface {
	Rank(ctx context.Context, list model.ListID, itemID string) (Entry, error)
}

// RankHandler handles rank requests.
type RankHandler struct {
	deps RankDependencies
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies) *RankHandler {
	return &RankHandler{deps: deps}
}

// HandleGetRank handles GET /v1/lists/{list}/items/{item}/rank.
func (h *RankHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rank"
	list, err := listParam(r)
	if err != nil {
		fail(w, op, err)
		return
	}
	item := strings.TrimSpace(chi.URLParam(r, "item"))
	if item == "" {
		fail(w, op, ErrBadRequest)
		return
	}
	entry, err := h.deps.Rank(r.Context(), list, item)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
