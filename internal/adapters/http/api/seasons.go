// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/mkanda/torifuda/internal/app"
	"github.com/mkanda/torifuda/internal/domain/model"
)

// SeasonDependencies defines the interface for season pipeline operations.
type SeasonDependencies interface {
	Season(ctx context.Context, seasonKey string) (model.SeasonSnapshot, error)
	FreezeSeason(ctx context.Context, seasonKey string) (app.TransitionResult, error)
	FinalizeSeason(ctx context.Context, seasonKey string) (app.TransitionResult, error)
	PublishSeason(ctx context.Context, seasonKey string) (app.TransitionResult, error)
}

// SeasonsHandler handles season snapshot reads and pipeline transitions.
type SeasonsHandler struct {
	deps SeasonDependencies
}

// NewSeasonsHandler creates a new seasons handler.
func NewSeasonsHandler(deps SeasonDependencies) *SeasonsHandler {
	return &SeasonsHandler{deps: deps}
}

// transitionResponse is the outcome of a pipeline transition call.
type transitionResponse struct {
	Season     string                  `json:"season"`
	Status     model.SnapshotStatus    `json:"status"`
	Duplicate  bool                    `json:"duplicate"`
	Promotions []model.PromotionRecord `json:"promotions,omitempty"`
}

// HandleSeason dispatches GET /seasons/{key} and the POST transitions
// /seasons/{key}/freeze, /seasons/{key}/finalize, /seasons/{key}/publish.
func (h *SeasonsHandler) HandleSeason(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/seasons/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	seasonKey := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGet(w, r, seasonKey)
	case len(parts) == 2 && r.Method == http.MethodPost:
		h.handleTransition(w, r, seasonKey, parts[1])
	default:
		http.NotFound(w, r)
	}
}

func (h *SeasonsHandler) handleGet(w http.ResponseWriter, r *http.Request, seasonKey string) {
	const op = "api.get_season"
	snap, err := h.deps.Season(r.Context(), seasonKey)
	if err != nil {
		writeAppError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *SeasonsHandler) handleTransition(w http.ResponseWriter, r *http.Request, seasonKey, action string) {
	const op = "api.season_transition"
	var (
		result app.TransitionResult
		err    error
	)
	switch action {
	case "freeze":
		result, err = h.deps.FreezeSeason(r.Context(), seasonKey)
	case "finalize":
		result, err = h.deps.FinalizeSeason(r.Context(), seasonKey)
	case "publish":
		result, err = h.deps.PublishSeason(r.Context(), seasonKey)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeAppError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, transitionResponse{
		Season:     seasonKey,
		Status:     result.Snapshot.Status,
		Duplicate:  result.Duplicate,
		Promotions: result.Promotions,
	})
}
