// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mkanda/torifuda/internal/app"
	"github.com/mkanda/torifuda/internal/domain/model"
	"github.com/mkanda/torifuda/internal/domain/rules"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	CreateSession(ctx context.Context, callerID string, p app.CreateSessionParams) (model.Session, error)
	SubmitRounds(ctx context.Context, sessionID, callerID string, rounds []model.Round) (model.Session, error)
	Confirm(ctx context.Context, sessionID, callerID string, claimedCorrect int) (app.ConfirmOutcome, error)
	Session(ctx context.Context, sessionID, callerID string) (model.Session, error)
	SubmitExam(ctx context.Context, callerID string, exam rules.Exam) (app.ExamResult, error)
	Leaderboard(ctx context.Context, seasonKey, division string, limit int) ([]model.RankingEntry, string, error)
	Rank(ctx context.Context, playerID string) (app.RankInfo, error)
	Season(ctx context.Context, seasonKey string) (model.SeasonSnapshot, error)
	FreezeSeason(ctx context.Context, seasonKey string) (app.TransitionResult, error)
	FinalizeSeason(ctx context.Context, seasonKey string) (app.TransitionResult, error)
	PublishSeason(ctx context.Context, seasonKey string) (app.TransitionResult, error)
	GetStats(ctx context.Context) app.Stats
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	sessionsHandler    *SessionsHandler
	examsHandler       *ExamsHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	seasonsHandler     *SeasonsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		sessionsHandler:    NewSessionsHandler(deps),
		examsHandler:       NewExamsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps),
		rankHandler:        NewRankHandler(deps),
		seasonsHandler:     NewSeasonsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/sessions", MetricsMiddleware(s.sessionsHandler.HandleCreate, "sessions"))
	mux.HandleFunc("/sessions/", MetricsMiddleware(s.sessionsHandler.HandleSession, "sessions"))
	mux.HandleFunc("/exams", MetricsMiddleware(s.examsHandler.HandlePostExam, "exams"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/rank/", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	mux.HandleFunc("/seasons/", MetricsMiddleware(s.seasonsHandler.HandleSeason, "seasons"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeAppError maps application sentinels to HTTP statuses.
func writeAppError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, app.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "forbidden", err)
	case errors.Is(err, app.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, app.ErrSessionState), errors.Is(err, app.ErrSeasonState):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, app.ErrNoActiveSeason):
		writeError(w, http.StatusConflict, "no_active_season", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}
