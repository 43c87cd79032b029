// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/mkanda/torifuda/internal/domain/model"
)

// LeaderboardDependencies defines the interface for leaderboard reads.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, seasonKey, division string, limit int) ([]model.RankingEntry, string, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps LeaderboardDependencies
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps}
}

// leaderboardResponse is the read shape of GET /leaderboard.
type leaderboardResponse struct {
	Season   string               `json:"season"`
	Division string               `json:"division"`
	Entries  []model.RankingEntry `json:"entries"`
}

// HandleGetLeaderboard handles GET /leaderboard?season=K&division=D&limit=N.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	limit := 0
	if limitStr := q.Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		limit = n
	}
	division := q.Get("division")
	entries, season, err := h.deps.Leaderboard(r.Context(), q.Get("season"), division, limit)
	if err != nil {
		writeAppError(w, op, err)
		return
	}
	if division == "" {
		division = "general"
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{Season: season, Division: division, Entries: entries})
}
