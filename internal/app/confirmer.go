package app

import (
	"context"
	"errors"
	"time"

	"github.com/mkanda/torifuda/internal/adapters/audit"
	"github.com/mkanda/torifuda/internal/adapters/mq/queue"
	"github.com/mkanda/torifuda/internal/adapters/repository"
	"github.com/mkanda/torifuda/internal/domain/anomaly"
	"github.com/mkanda/torifuda/internal/domain/model"
	"github.com/mkanda/torifuda/internal/domain/score"
	"github.com/mkanda/torifuda/pkg/logger"
	"github.com/mkanda/torifuda/pkg/metrics"
)

const (
	defaultSessionTTL = 60 * time.Minute

	enqueueAttempts   = 3
	enqueueRetryDelay = 10 * time.Millisecond
)

// Enqueuer is the projection queue as the confirmer sees it.
type Enqueuer interface {
	Enqueue(ctx context.Context, e queue.Event) bool
}

// ConfirmOutcome is the result of one confirmation call. Duplicate is
// true when the session had already reached a terminal state and the
// stored result was returned unchanged.
type ConfirmOutcome struct {
	Session   model.Session
	Duplicate bool
}

// Confirmer drives a submitted session to exactly one terminal state:
// confirmed, invalid or expired. Re-confirming a terminal session
// returns the stored outcome without side effects.
type Confirmer struct {
	store    repository.Store
	enqueuer Enqueuer
	trail    audit.Trail
	profiles map[string]anomaly.Profile
	ttl      time.Duration
	now      func() time.Time
	log      logger.Logger
}

// NewConfirmer creates a Confirmer.
func NewConfirmer(store repository.Store, enq Enqueuer, trail audit.Trail, profiles map[string]anomaly.Profile, opts ...ConfirmerOption) *Confirmer {
	c := &Confirmer{
		store:    store,
		enqueuer: enq,
		trail:    trail,
		profiles: profiles,
		ttl:      defaultSessionTTL,
		now:      time.Now,
		log:      logger.Get().Named("confirmer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConfirmerOption applies a configuration option to a Confirmer.
type ConfirmerOption func(*Confirmer)

// WithSessionTTL overrides how long a started session stays confirmable.
func WithSessionTTL(d time.Duration) ConfirmerOption {
	return func(c *Confirmer) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) ConfirmerOption {
	return func(c *Confirmer) {
		if now != nil {
			c.now = now
		}
	}
}

// Confirm validates the session against its anomaly profile and the
// TTL, recomputes aggregates from the stored rounds, and moves the
// session to its terminal state. claimedCorrect is the client's own
// count; it is checked against bounds but never persisted.
func (c *Confirmer) Confirm(ctx context.Context, sessionID, callerID string, claimedCorrect int) (ConfirmOutcome, error) {
	start := c.now()
	var duplicate bool

	updated, err := c.store.UpdateSession(ctx, sessionID, func(s *model.Session) error {
		if s.OwnerID != callerID {
			return NewKind("confirm session", ErrPermissionDenied)
		}
		if s.Status.Terminal() {
			duplicate = true
			return nil
		}

		now := c.now()
		if now.Sub(s.StartedAt) > c.ttl {
			s.Status = model.SessionExpired
			s.ConfirmedAt = now
			return nil
		}

		verdict := anomaly.Detect(c.profile(s.Profile), s.Rounds, claimedCorrect, s.ExpectedRoundCount)
		if !verdict.Valid {
			s.Status = model.SessionInvalid
			s.InvalidReasons = verdict.ReasonCodes
			s.ConfirmedAt = now
			return nil
		}

		// Correctness is derived from the recorded choices. The
		// client-set IsCorrect flag is never consulted.
		correct := 0
		var elapsed int64
		for _, r := range s.Rounds {
			if r.SelectedChoiceID == r.CorrectChoiceID {
				correct++
			}
			elapsed += r.ElapsedMs
		}
		s.CorrectCount = correct
		s.TotalElapsedMs = elapsed
		s.Score = score.Calculate(correct, elapsed)
		s.Status = model.SessionConfirmed
		s.ConfirmedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ConfirmOutcome{}, NewKind("confirm session", ErrNotFound)
		}
		return ConfirmOutcome{}, err
	}

	metrics.RecordConfirmationLatency(float64(c.now().Sub(start).Milliseconds()))
	if duplicate {
		metrics.RecordConfirmation("duplicate")
		return ConfirmOutcome{Session: updated, Duplicate: true}, nil
	}

	c.finish(ctx, updated, callerID)
	return ConfirmOutcome{Session: updated}, nil
}

// finish emits the side effects of a fresh terminal transition.
func (c *Confirmer) finish(ctx context.Context, s model.Session, callerID string) {
	switch s.Status {
	case model.SessionExpired:
		metrics.RecordConfirmation("expired")
		c.trail.Record(ctx, audit.Entry{
			Kind: "session_expired", SubjectID: s.ID, ActorID: callerID, At: s.ConfirmedAt,
		})

	case model.SessionInvalid:
		metrics.RecordConfirmation("invalid")
		for _, code := range s.InvalidReasons {
			metrics.RecordAnomalyCode(code)
		}
		c.trail.Record(ctx, audit.Entry{
			Kind: "session_invalid", SubjectID: s.ID, ActorID: callerID, At: s.ConfirmedAt,
			Detail: map[string]any{"reason_codes": s.InvalidReasons},
		})

	case model.SessionConfirmed:
		metrics.RecordConfirmation("confirmed")
		c.trail.Record(ctx, audit.Entry{
			Kind: "session_confirmed", SubjectID: s.ID, ActorID: callerID, At: s.ConfirmedAt,
			Detail: map[string]any{"score": s.Score, "correct_count": s.CorrectCount},
		})
		c.enqueueProjection(ctx, queue.Event{
			SessionID:   s.ID,
			PlayerID:    s.OwnerID,
			DisplayName: s.DisplayName,
			SeasonID:    s.SeasonID,
			Division:    s.Division,
			Score:       s.Score,
			FullSet:     s.FullSet(),
		})

	default:
	}
}

// enqueueProjection hands the confirmed session to the projection
// queue, retrying a transiently full queue a few times with a short
// pause. A drop after that only delays the leaderboard: the session
// itself is already confirmed and the projections are idempotent, so
// an operator can replay the event safely.
func (c *Confirmer) enqueueProjection(ctx context.Context, e queue.Event) {
	for attempt := 0; attempt < enqueueAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(enqueueRetryDelay):
			}
		}
		if c.enqueuer.Enqueue(ctx, e) {
			return
		}
	}
	metrics.RecordErrorByComponent("confirmer", "enqueue_failed")
	c.log.Error(ctx, "projection enqueue failed",
		logger.String("sessionID", e.SessionID),
		logger.Int("attempts", enqueueAttempts),
	)
}

func (c *Confirmer) profile(name string) anomaly.Profile {
	if p, ok := c.profiles[name]; ok {
		return p
	}
	return anomaly.NewProfile(anomaly.ProfileRecord)
}
