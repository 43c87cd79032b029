// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/mkanda/torifuda/internal/app"
)

// RankDependencies defines the interface for rank lookups.
type RankDependencies interface {
	Rank(ctx context.Context, playerID string) (app.RankInfo, error)
}

// RankHandler handles player rank requests.
type RankHandler struct {
	deps RankDependencies
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies) *RankHandler {
	return &RankHandler{deps: deps}
}

// HandleGetRank handles GET /rank/{playerID} requests.
func (h *RankHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rank"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	playerID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/rank/"), "/")
	if playerID == "" || strings.Contains(playerID, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	info, err := h.deps.Rank(r.Context(), playerID)
	if err != nil {
		writeAppError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
