// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/mkanda/torifuda/internal/app"
	"github.com/mkanda/torifuda/internal/domain/model"
)

// SessionDependencies defines the interface for session operations.
type SessionDependencies interface {
	CreateSession(ctx context.Context, callerID string, p app.CreateSessionParams) (model.Session, error)
	SubmitRounds(ctx context.Context, sessionID, callerID string, rounds []model.Round) (model.Session, error)
	Confirm(ctx context.Context, sessionID, callerID string, claimedCorrect int) (app.ConfirmOutcome, error)
	Session(ctx context.Context, sessionID, callerID string) (model.Session, error)
}

// SessionsHandler handles session lifecycle requests.
type SessionsHandler struct {
	deps SessionDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

// createSessionRequest mirrors the schema for POST /sessions.
type createSessionRequest struct {
	DisplayName        string `json:"display_name"`
	Division           string `json:"division"`
	EntryID            string `json:"entry_id"`
	CardSubset         string `json:"card_subset"`
	Profile            string `json:"profile"`
	ExpectedRoundCount int    `json:"expected_round_count"`
}

// roundRequest mirrors the schema of one submitted round.
type roundRequest struct {
	Index            int      `json:"index"`
	CorrectChoiceID  string   `json:"correct_choice_id"`
	OfferedChoiceIDs []string `json:"offered_choice_ids"`
	SelectedChoiceID string   `json:"selected_choice_id"`
	IsCorrect        bool     `json:"is_correct"`
	ElapsedMs        int64    `json:"elapsed_ms"`
}

// submitRoundsRequest mirrors the schema for POST /sessions/{id}/rounds.
type submitRoundsRequest struct {
	Rounds []roundRequest `json:"rounds"`
}

// confirmRequest mirrors the schema for POST /sessions/{id}/confirm.
type confirmRequest struct {
	ClaimedCorrectCount int `json:"claimed_correct_count"`
}

// confirmResponse is the terminal outcome of a confirmation.
type confirmResponse struct {
	Session   model.Session `json:"session"`
	Duplicate bool          `json:"duplicate"`
}

// HandleCreate handles POST /sessions requests.
func (h *SessionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_session"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	caller := callerID(r)
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", NewKind(op, ErrUnauthorized))
		return
	}
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	sess, err := h.deps.CreateSession(r.Context(), caller, app.CreateSessionParams{
		DisplayName:        req.DisplayName,
		Division:           req.Division,
		EntryID:            req.EntryID,
		CardSubset:         req.CardSubset,
		Profile:            req.Profile,
		ExpectedRoundCount: req.ExpectedRoundCount,
	})
	if err != nil {
		writeAppError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// HandleSession dispatches /sessions/{id}, /sessions/{id}/rounds and
// /sessions/{id}/confirm.
func (h *SessionsHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	const op = "api.session"
	caller := callerID(r)
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", NewKind(op, ErrUnauthorized))
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	sessionID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGet(w, r, sessionID, caller)
	case len(parts) == 2 && parts[1] == "rounds" && r.Method == http.MethodPost:
		h.handleRounds(w, r, sessionID, caller)
	case len(parts) == 2 && parts[1] == "confirm" && r.Method == http.MethodPost:
		h.handleConfirm(w, r, sessionID, caller)
	default:
		http.NotFound(w, r)
	}
}

func (h *SessionsHandler) handleGet(w http.ResponseWriter, r *http.Request, sessionID, caller string) {
	const op = "api.get_session"
	sess, err := h.deps.Session(r.Context(), sessionID, caller)
	if err != nil {
		writeAppError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *SessionsHandler) handleRounds(w http.ResponseWriter, r *http.Request, sessionID, caller string) {
	const op = "api.submit_rounds"
	var req submitRoundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if len(req.Rounds) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	rounds := make([]model.Round, 0, len(req.Rounds))
	for _, rr := range req.Rounds {
		if err := validateRound(rr); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		rounds = append(rounds, model.Round{
			Index:            rr.Index,
			CorrectChoiceID:  rr.CorrectChoiceID,
			OfferedChoiceIDs: rr.OfferedChoiceIDs,
			SelectedChoiceID: rr.SelectedChoiceID,
			IsCorrect:        rr.IsCorrect,
			ElapsedMs:        rr.ElapsedMs,
		})
	}
	sess, err := h.deps.SubmitRounds(r.Context(), sessionID, caller, rounds)
	if err != nil {
		writeAppError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *SessionsHandler) handleConfirm(w http.ResponseWriter, r *http.Request, sessionID, caller string) {
	const op = "api.confirm_session"
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	out, err := h.deps.Confirm(r.Context(), sessionID, caller, req.ClaimedCorrectCount)
	if err != nil {
		writeAppError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{Session: out.Session, Duplicate: out.Duplicate})
}

func validateRound(rr roundRequest) error {
	switch {
	case rr.Index < 0:
		return errors.New("negative round index")
	case strings.TrimSpace(rr.SelectedChoiceID) == "":
		return errors.New("missing selected_choice_id")
	case len(rr.OfferedChoiceIDs) == 0:
		return errors.New("missing offered_choice_ids")
	case rr.ElapsedMs < 0:
		return errors.New("negative elapsed_ms")
	}
	return nil
}
