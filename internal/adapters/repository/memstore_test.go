package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/mkanda/torifuda/internal/adapters/repository"
	"github.com/mkanda/torifuda/internal/domain/model"
)

func TestSessionLifecycle(t *testing.T) {
	Convey("Given an empty store", t, func() {
		store := repository.NewMemStore()
		ctx := context.Background()

		sess := model.Session{
			ID:                 "s1",
			OwnerID:            "p1",
			SeasonID:           "2026-summer",
			Division:           "general",
			Status:             model.SessionCreated,
			ExpectedRoundCount: 10,
			StartedAt:          time.Now(),
		}

		Convey("When a session is created", func() {
			So(store.CreateSession(ctx, sess), ShouldBeNil)

			Convey("Then it can be read back", func() {
				got, err := store.GetSession(ctx, "s1")
				So(err, ShouldBeNil)
				So(got.OwnerID, ShouldEqual, "p1")
				So(got.Version, ShouldEqual, 1)
			})

			Convey("And creating the same id again fails", func() {
				So(store.CreateSession(ctx, sess), ShouldWrap, repository.ErrExists)
			})

			Convey("And updates bump the version", func() {
				got, err := store.UpdateSession(ctx, "s1", func(s *model.Session) error {
					s.Status = model.SessionSubmitted
					return nil
				})
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, model.SessionSubmitted)
				So(got.Version, ShouldEqual, 2)
			})

			Convey("And a failing mutation writes nothing", func() {
				boom := repository.NewKind("test", repository.ErrConflict)
				_, err := store.UpdateSession(ctx, "s1", func(s *model.Session) error {
					s.Status = model.SessionConfirmed
					return boom
				})
				So(err, ShouldWrap, repository.ErrConflict)
				So(err.Error(), ShouldEqual, boom.Error())
				got, err := store.GetSession(ctx, "s1")
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, model.SessionCreated)
			})
		})

		Convey("When an unknown session is read or updated", func() {
			_, err := store.GetSession(ctx, "nope")
			So(err, ShouldWrap, repository.ErrNotFound)

			_, err = store.UpdateSession(ctx, "nope", func(*model.Session) error { return nil })
			So(err, ShouldWrap, repository.ErrNotFound)
		})

		Convey("When a caller mutates a returned copy", func() {
			sess.Rounds = []model.Round{{Index: 0, OfferedChoiceIDs: []string{"a", "b"}}}
			So(store.CreateSession(ctx, sess), ShouldBeNil)

			got, err := store.GetSession(ctx, "s1")
			So(err, ShouldBeNil)
			got.Rounds[0].OfferedChoiceIDs[0] = "tampered"

			fresh, err := store.GetSession(ctx, "s1")
			So(err, ShouldBeNil)
			So(fresh.Rounds[0].OfferedChoiceIDs[0], ShouldEqual, "a")
		})
	})
}

func TestRankingDocuments(t *testing.T) {
	Convey("Given an empty store", t, func() {
		store := repository.NewMemStore()
		ctx := context.Background()

		Convey("When a ranking is updated for the first time", func() {
			doc, err := store.UpdateRanking(ctx, "2026-summer", "general", func(d *model.RankingDocument) error {
				d.Entries = append(d.Entries, model.RankingEntry{PlayerID: "p1", BestScore: 900, Rank: 1})
				return nil
			})
			So(err, ShouldBeNil)
			So(doc.SeasonID, ShouldEqual, "2026-summer")
			So(doc.Division, ShouldEqual, "general")
			So(doc.Entries, ShouldHaveLength, 1)

			Convey("Then listing the season finds it", func() {
				_, err := store.UpdateRanking(ctx, "2026-summer", "open", func(*model.RankingDocument) error { return nil })
				So(err, ShouldBeNil)
				_, err = store.UpdateRanking(ctx, "2025-winter", "general", func(*model.RankingDocument) error { return nil })
				So(err, ShouldBeNil)

				docs, err := store.ListRankings(ctx, "2026-summer")
				So(err, ShouldBeNil)
				So(docs, ShouldHaveLength, 2)
				So(docs[0].Division, ShouldEqual, "general")
				So(docs[1].Division, ShouldEqual, "open")
			})
		})

		Convey("When an unknown ranking is read", func() {
			_, err := store.GetRanking(ctx, "2026-summer", "general")
			So(err, ShouldWrap, repository.ErrNotFound)
		})
	})
}

func TestProgressAndSnapshots(t *testing.T) {
	Convey("Given an empty store", t, func() {
		store := repository.NewMemStore()
		ctx := context.Background()

		Convey("When progress is touched for a new player", func() {
			prog, err := store.UpdateProgress(ctx, "p1", func(p *model.PlayerProgress) error {
				p.ConfirmedSessions++
				return nil
			})
			So(err, ShouldBeNil)
			So(prog.PlayerID, ShouldEqual, "p1")
			So(prog.KyuiLevel, ShouldEqual, 1)
			So(prog.ConfirmedSessions, ShouldEqual, 1)
		})

		Convey("When a snapshot is touched for a new season", func() {
			snap, err := store.UpdateSnapshot(ctx, "2026-summer", func(*model.SeasonSnapshot) error { return nil })
			So(err, ShouldBeNil)
			So(snap.SeasonKey, ShouldEqual, "2026-summer")
			So(snap.Status, ShouldEqual, model.SnapshotDraft)
		})
	})
}

func TestConcurrentUpdates(t *testing.T) {
	Convey("Given concurrent counter increments on one document", t, func() {
		store := repository.NewMemStore(repository.WithMaxTxnRetries(100))
		ctx := context.Background()

		const workers = 8
		const perWorker = 25

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < perWorker; j++ {
					for {
						_, err := store.UpdateProgress(ctx, "p1", func(p *model.PlayerProgress) error {
							p.ConfirmedSessions++
							return nil
						})
						if err == nil {
							break
						}
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then no increment is lost", func() {
			prog, err := store.GetProgress(ctx, "p1")
			So(err, ShouldBeNil)
			So(prog.ConfirmedSessions, ShouldEqual, workers*perWorker)
		})
	})
}
