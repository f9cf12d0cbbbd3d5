package api

import (
	"context"
	"net/http"

	"github.com/okian/versus/internal/domain/model"
)

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	TopN(ctx context.Context, list model.ListID, n int) ([]Entry, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetLeaderboard handles GET /v1/lists/{list}/leaderboard?limit=N.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	list, err := listParam(r)
	if err != nil {
		fail(w, op, err)
		return
	}
	n, err := limitParam(r, h.maxLimit)
	if err != nil {
		fail(w, op, err)
		return
	}
	entries, err := h.deps.TopN(r.Context(), list, n)
	if err != nil {
		fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
