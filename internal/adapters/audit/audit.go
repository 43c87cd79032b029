// Package audit records confirmation and promotion decisions for later
// review. Recording is fire-and-forget: a failing trail must never
// block or fail the decision it documents.
package audit

import (
	"context"
	"time"

	"github.com/mkanda/torifuda/pkg/logger"
)

// Entry is one recorded decision.
type Entry struct {
	// Kind groups entries: session_confirmed, session_invalid,
	// session_expired, promotion, season_transition.
	Kind string

	// SubjectID is the session, player or season the decision is about.
	SubjectID string

	// ActorID is who triggered the decision, if anyone.
	ActorID string

	// Detail carries decision-specific fields.
	Detail map[string]any

	At time.Time
}

// Trail records decisions.
type Trail interface {
	Record(ctx context.Context, e Entry)
}

// LogTrail writes audit entries to the structured log.
type LogTrail struct {
	log logger.Logger
}

// NewLogTrail creates a log-backed trail.
func NewLogTrail() *LogTrail {
	return &LogTrail{log: logger.Get().Named("audit")}
}

// Record writes one entry. Never fails; the log line is the record.
func (t *LogTrail) Record(ctx context.Context, e Entry) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	fields := []logger.Field{
		logger.String("kind", e.Kind),
		logger.String("subject_id", e.SubjectID),
		logger.Int64("at_unix", e.At.Unix()),
	}
	if e.ActorID != "" {
		fields = append(fields, logger.String("actor_id", e.ActorID))
	}
	if len(e.Detail) > 0 {
		fields = append(fields, logger.Any("detail", e.Detail))
	}
	t.log.Info(ctx, "audit", fields...)
}

// NopTrail discards everything. Used in tests.
type NopTrail struct{}

// Record implements Trail.
func (NopTrail) Record(context.Context, Entry) {}
