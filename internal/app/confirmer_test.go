package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/mkanda/torifuda/internal/adapters/audit"
	"github.com/mkanda/torifuda/internal/adapters/mq/queue"
	"github.com/mkanda/torifuda/internal/adapters/repository"
	"github.com/mkanda/torifuda/internal/app"
	"github.com/mkanda/torifuda/internal/domain/anomaly"
	"github.com/mkanda/torifuda/internal/domain/model"
)

// captureQueue records enqueued projection events. The first reject
// attempts are refused, simulating a transiently full queue.
type captureQueue struct {
	mu     sync.Mutex
	events []queue.Event
	reject int
}

func (q *captureQueue) Enqueue(_ context.Context, e queue.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.reject > 0 {
		q.reject--
		return false
	}
	q.events = append(q.events, e)
	return true
}

func (q *captureQueue) all() []queue.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.Event(nil), q.events...)
}

func playableRounds(n int) []model.Round {
	rounds := make([]model.Round, 0, n)
	for i := 0; i < n; i++ {
		rounds = append(rounds, model.Round{
			Index:            i,
			CorrectChoiceID:  "c1",
			OfferedChoiceIDs: []string{"c1", "c2", "c3", "c4"},
			SelectedChoiceID: "c1",
			IsCorrect:        true,
			ElapsedMs:        1200,
		})
	}
	return rounds
}

func TestConfirm(t *testing.T) {
	Convey("Given a submitted session", t, func() {
		store := repository.NewMemStore()
		cq := &captureQueue{}
		started := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
		now := started.Add(5 * time.Minute)

		profiles := map[string]anomaly.Profile{
			anomaly.ProfileRecord:  anomaly.NewProfile(anomaly.ProfileRecord),
			anomaly.ProfileSession: anomaly.NewProfile(anomaly.ProfileSession),
		}
		confirmer := app.NewConfirmer(store, cq, audit.NopTrail{}, profiles,
			app.WithSessionTTL(time.Hour),
			app.WithClock(func() time.Time { return now }),
		)
		ctx := context.Background()

		sess := model.Session{
			ID:                 "s1",
			OwnerID:            "p1",
			DisplayName:        "Chihaya",
			SeasonID:           "2026-summer",
			Division:           "general",
			CardSubset:         model.FullCardSet,
			Profile:            anomaly.ProfileRecord,
			Status:             model.SessionSubmitted,
			ExpectedRoundCount: 10,
			Rounds:             playableRounds(10),
			StartedAt:          started,
		}
		So(store.CreateSession(ctx, sess), ShouldBeNil)

		Convey("When the owner confirms a clean session", func() {
			out, err := confirmer.Confirm(ctx, "s1", "p1", 10)
			So(err, ShouldBeNil)
			So(out.Duplicate, ShouldBeFalse)
			So(out.Session.Status, ShouldEqual, model.SessionConfirmed)

			Convey("Then the aggregates are recomputed from the rounds", func() {
				So(out.Session.CorrectCount, ShouldEqual, 10)
				So(out.Session.TotalElapsedMs, ShouldEqual, 12000)
				So(out.Session.Score, ShouldEqual, 1288)
			})

			Convey("And a projection event is enqueued", func() {
				events := cq.all()
				So(events, ShouldHaveLength, 1)
				So(events[0].SessionID, ShouldEqual, "s1")
				So(events[0].Score, ShouldEqual, 1288)
				So(events[0].FullSet, ShouldBeTrue)
			})

			Convey("And confirming again is an idempotent duplicate", func() {
				again, err := confirmer.Confirm(ctx, "s1", "p1", 10)
				So(err, ShouldBeNil)
				So(again.Duplicate, ShouldBeTrue)
				So(again.Session.Score, ShouldEqual, out.Session.Score)
				So(cq.all(), ShouldHaveLength, 1)
			})
		})

		Convey("When a round's flag contradicts its recorded choices", func() {
			_, err := store.UpdateSession(ctx, "s1", func(s *model.Session) error {
				s.Rounds[3].SelectedChoiceID = "c2"
				s.Rounds[3].IsCorrect = true
				return nil
			})
			So(err, ShouldBeNil)

			out, err := confirmer.Confirm(ctx, "s1", "p1", 10)
			So(err, ShouldBeNil)
			So(out.Session.Status, ShouldEqual, model.SessionConfirmed)

			Convey("Then correctness comes from the choices, not the flag", func() {
				So(out.Session.CorrectCount, ShouldEqual, 9)
				So(out.Session.Score, ShouldEqual, 1188)
			})
		})

		Convey("When the queue refuses the first enqueue attempts", func() {
			cq.reject = 2
			out, err := confirmer.Confirm(ctx, "s1", "p1", 10)
			So(err, ShouldBeNil)
			So(out.Session.Status, ShouldEqual, model.SessionConfirmed)

			Convey("Then the enqueue is retried until it lands", func() {
				events := cq.all()
				So(events, ShouldHaveLength, 1)
				So(events[0].SessionID, ShouldEqual, "s1")
			})
		})

		Convey("When someone else tries to confirm", func() {
			_, err := confirmer.Confirm(ctx, "s1", "intruder", 10)
			So(err, ShouldWrap, app.ErrPermissionDenied)

			Convey("Then the session is untouched", func() {
				got, err := store.GetSession(ctx, "s1")
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, model.SessionSubmitted)
			})
		})

		Convey("When the session has expired", func() {
			now = started.Add(61 * time.Minute)
			out, err := confirmer.Confirm(ctx, "s1", "p1", 10)
			So(err, ShouldBeNil)
			So(out.Session.Status, ShouldEqual, model.SessionExpired)

			Convey("Then nothing is enqueued", func() {
				So(cq.all(), ShouldBeEmpty)
			})

			Convey("And the expiry outcome is sticky even within the window", func() {
				now = started.Add(5 * time.Minute)
				again, err := confirmer.Confirm(ctx, "s1", "p1", 10)
				So(err, ShouldBeNil)
				So(again.Duplicate, ShouldBeTrue)
				So(again.Session.Status, ShouldEqual, model.SessionExpired)
			})
		})

		Convey("When the session is anomalous", func() {
			_, err := store.UpdateSession(ctx, "s1", func(s *model.Session) error {
				s.Rounds = s.Rounds[:9]
				return nil
			})
			So(err, ShouldBeNil)

			out, err := confirmer.Confirm(ctx, "s1", "p1", 9)
			So(err, ShouldBeNil)
			So(out.Session.Status, ShouldEqual, model.SessionInvalid)
			So(out.Session.InvalidReasons, ShouldContain, anomaly.CodeRoundCountMismatch)

			Convey("Then no projection event is enqueued", func() {
				So(cq.all(), ShouldBeEmpty)
			})

			Convey("And no score is assigned", func() {
				So(out.Session.Score, ShouldEqual, 0)
			})
		})

		Convey("When the session does not exist", func() {
			_, err := confirmer.Confirm(ctx, "missing", "p1", 10)
			So(err, ShouldWrap, app.ErrNotFound)
		})
	})
}
