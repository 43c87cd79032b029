// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/mkanda/torifuda/internal/app"
	"github.com/mkanda/torifuda/internal/domain/rules"
)

// ExamDependencies defines the interface for exam submission.
type ExamDependencies interface {
	SubmitExam(ctx context.Context, callerID string, exam rules.Exam) (app.ExamResult, error)
}

// ExamsHandler handles kyui exam submissions.
type ExamsHandler struct {
	deps ExamDependencies
}

// NewExamsHandler creates a new exams handler.
func NewExamsHandler(deps ExamDependencies) *ExamsHandler {
	return &ExamsHandler{deps: deps}
}

// examRequest mirrors the schema for POST /exams.
type examRequest struct {
	CardSubset string  `json:"card_subset"`
	SampleSize int     `json:"sample_size"`
	PassRate   float64 `json:"pass_rate"`
}

func (e examRequest) validate() error {
	switch {
	case strings.TrimSpace(e.CardSubset) == "":
		return errors.New("missing card_subset")
	case e.SampleSize < 1:
		return errors.New("sample_size must be positive")
	case e.PassRate < 0 || e.PassRate > 1:
		return errors.New("pass_rate must be within [0, 1]")
	}
	return nil
}

// examResponse is the outcome of an exam submission.
type examResponse struct {
	Promoted    bool `json:"promoted"`
	KyuiLevel   int  `json:"kyui_level"`
	DanEligible bool `json:"dan_eligible"`
}

// HandlePostExam handles POST /exams requests.
func (h *ExamsHandler) HandlePostExam(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_exam"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	caller := callerID(r)
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", NewKind(op, ErrUnauthorized))
		return
	}
	var req examRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	result, err := h.deps.SubmitExam(r.Context(), caller, rules.Exam{
		CardSubset: req.CardSubset,
		SampleSize: req.SampleSize,
		PassRate:   req.PassRate,
	})
	if err != nil {
		writeAppError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, examResponse{
		Promoted:    result.Outcome.Promoted,
		KyuiLevel:   result.Progress.KyuiLevel,
		DanEligible: result.Progress.DanEligible,
	})
}
