package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/mkanda/torifuda/internal/adapters/audit"
	"github.com/mkanda/torifuda/internal/adapters/repository"
	"github.com/mkanda/torifuda/internal/app"
	"github.com/mkanda/torifuda/internal/domain/model"
	"github.com/mkanda/torifuda/internal/domain/rules"
)

// faultyStore fails progress updates for the players in failing until
// the fault is cleared. Everything else passes through.
type faultyStore struct {
	repository.Store

	mu      sync.Mutex
	failing map[string]bool
}

func newFaultyStore(store repository.Store, players ...string) *faultyStore {
	failing := make(map[string]bool, len(players))
	for _, p := range players {
		failing[p] = true
	}
	return &faultyStore{Store: store, failing: failing}
}

func (s *faultyStore) recover() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = map[string]bool{}
}

func (s *faultyStore) UpdateProgress(ctx context.Context, playerID string, fn func(*model.PlayerProgress) error) (model.PlayerProgress, error) {
	s.mu.Lock()
	failing := s.failing[playerID]
	s.mu.Unlock()
	if failing {
		return model.PlayerProgress{}, errors.New("progress write refused")
	}
	return s.Store.UpdateProgress(ctx, playerID, fn)
}

func promotionRuleset() rules.Ruleset {
	return rules.Ruleset{
		Version: "test",
		Kyui: []rules.KyuiRequirement{
			{FromLevel: 1, CardSubset: "starter", SampleSize: 10, PassRate: 0.6},
			{FromLevel: 2, CardSubset: "full", SampleSize: 10, PassRate: 0.8},
		},
		DanPercentiles:             []float64{0.5, 0.2},
		DenWinThresholds:           []int{1},
		UtakuraiChampionThresholds: []int{1},
		OfficialMinParticipants:    20,
	}
}

// officialDivision builds a frozen division of n ranked players with
// distinct scores; player IDs are p1 (rank 1) through pN (rank N).
func officialDivision(n int) model.DivisionResult {
	entries := make([]model.RankingEntry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, model.RankingEntry{
			PlayerID:  playerID(i + 1),
			BestScore: 2000 - i,
			Rank:      i + 1,
		})
	}
	return model.DivisionResult{Division: "general", Entries: entries, Official: true}
}

func playerID(rank int) string {
	return "p" + string(rune('0'+rank/10)) + string(rune('0'+rank%10))
}

func TestApplyExam(t *testing.T) {
	Convey("Given a promotion runner", t, func() {
		store := repository.NewMemStore()
		runner := app.NewRunner(store, promotionRuleset(), audit.NopTrail{})
		ctx := context.Background()

		Convey("When a new player passes the first exam", func() {
			out, prog, err := runner.ApplyExam(ctx, "p1", rules.Exam{
				CardSubset: "starter", SampleSize: 10, PassRate: 0.7,
			})
			So(err, ShouldBeNil)
			So(out.Promoted, ShouldBeTrue)
			So(prog.KyuiLevel, ShouldEqual, 2)
			So(prog.DanEligible, ShouldBeFalse)

			Convey("And passing the final exam makes them dan-eligible", func() {
				out, prog, err := runner.ApplyExam(ctx, "p1", rules.Exam{
					CardSubset: "full", SampleSize: 10, PassRate: 0.9,
				})
				So(err, ShouldBeNil)
				So(out.Promoted, ShouldBeTrue)
				So(prog.KyuiLevel, ShouldEqual, 3)
				So(prog.DanEligible, ShouldBeTrue)
			})
		})

		Convey("When the exam misses its pass rate", func() {
			out, prog, err := runner.ApplyExam(ctx, "p1", rules.Exam{
				CardSubset: "starter", SampleSize: 10, PassRate: 0.5,
			})
			So(err, ShouldBeNil)
			So(out.Promoted, ShouldBeFalse)
			So(prog.KyuiLevel, ShouldEqual, 1)
		})
	})
}

func TestSeasonPromotionPass(t *testing.T) {
	Convey("Given a frozen thirty-player official division", t, func() {
		store := repository.NewMemStore()
		runner := app.NewRunner(store, promotionRuleset(), audit.NopTrail{})
		ctx := context.Background()

		snap := model.SeasonSnapshot{
			SeasonKey: "2026-summer",
			Status:    model.SnapshotFrozen,
			Divisions: []model.DivisionResult{officialDivision(30)},
		}

		Convey("When nobody is dan-eligible yet", func() {
			records, err := runner.Run(ctx, snap)
			So(err, ShouldBeNil)
			So(records, ShouldBeEmpty)

			Convey("Then official wins are still tallied for the top third", func() {
				// ceil(30/3) = 10: ranks 1..10 earn a win
				p10, err := store.GetProgress(ctx, playerID(10))
				So(err, ShouldBeNil)
				So(p10.OfficialWinCount, ShouldEqual, 1)

				p11, err := store.GetProgress(ctx, playerID(11))
				So(err, ShouldBeNil)
				So(p11.OfficialWinCount, ShouldEqual, 0)
			})

			Convey("And the champion is counted", func() {
				p1, err := store.GetProgress(ctx, playerID(1))
				So(err, ShouldBeNil)
				So(p1.ChampionCount, ShouldEqual, 1)
			})
		})

		Convey("When a dan-eligible player with full-set play finishes rank 10", func() {
			_, err := store.UpdateProgress(ctx, playerID(10), func(p *model.PlayerProgress) error {
				p.KyuiLevel = 3
				p.DanEligible = true
				p.FullSetSeasons = map[string]bool{"2026-summer": true}
				return nil
			})
			So(err, ShouldBeNil)

			records, err := runner.Run(ctx, snap)
			So(err, ShouldBeNil)

			Convey("Then they gain exactly one dan level", func() {
				So(records, ShouldHaveLength, 1)
				So(records[0].PlayerID, ShouldEqual, playerID(10))
				So(records[0].Ladder, ShouldEqual, model.LadderDan)
				So(records[0].ToLevel, ShouldEqual, 1)
			})
		})

		Convey("When the cascade can run through dan, den and utakurai in one pass", func() {
			// Champion, one dan level from the top, already holds dan 1
			// with full-set play: dan completes (level 2), den eligibility
			// plus the fresh official win reaches den 1, completing the
			// den ladder, and the fresh championship reaches utakurai 1.
			_, err := store.UpdateProgress(ctx, playerID(1), func(p *model.PlayerProgress) error {
				p.KyuiLevel = 3
				p.DanEligible = true
				p.DanLevel = 1
				p.FullSetSeasons = map[string]bool{"2026-summer": true}
				return nil
			})
			So(err, ShouldBeNil)

			records, err := runner.Run(ctx, snap)
			So(err, ShouldBeNil)

			var ladders []string
			for _, rec := range records {
				if rec.PlayerID == playerID(1) {
					ladders = append(ladders, rec.Ladder)
				}
			}
			So(ladders, ShouldResemble, []string{model.LadderDan, model.LadderDen, model.LadderUtakurai})

			prog, err := store.GetProgress(ctx, playerID(1))
			So(err, ShouldBeNil)
			So(prog.DanLevel, ShouldEqual, 2)
			So(prog.DenLevel, ShouldEqual, 1)
			So(prog.UtakuraiLevel, ShouldEqual, 1)
		})

		Convey("When the pass runs twice over the same snapshot", func() {
			_, err := runner.Run(ctx, snap)
			So(err, ShouldBeNil)
			records, err := runner.Run(ctx, snap)
			So(err, ShouldBeNil)
			So(records, ShouldBeEmpty)

			Convey("Then nobody is tallied twice", func() {
				p1, err := store.GetProgress(ctx, playerID(1))
				So(err, ShouldBeNil)
				So(p1.OfficialWinCount, ShouldEqual, 1)
				So(p1.ChampionCount, ShouldEqual, 1)
			})
		})

		Convey("When one player's progress cannot be written", func() {
			faulty := newFaultyStore(store, playerID(1))
			flakyRunner := app.NewRunner(faulty, promotionRuleset(), audit.NopTrail{})

			_, err := flakyRunner.Run(ctx, snap)
			So(err, ShouldWrap, app.ErrPromotionIncomplete)

			Convey("Then the other players were still evaluated", func() {
				p2, err := store.GetProgress(ctx, playerID(2))
				So(err, ShouldBeNil)
				So(p2.OfficialWinCount, ShouldEqual, 1)

				_, err = store.GetProgress(ctx, playerID(1))
				So(err, ShouldWrap, repository.ErrNotFound)
			})

			Convey("And a rerun after recovery completes without double tallies", func() {
				faulty.recover()
				_, err := flakyRunner.Run(ctx, snap)
				So(err, ShouldBeNil)

				p1, err := store.GetProgress(ctx, playerID(1))
				So(err, ShouldBeNil)
				So(p1.OfficialWinCount, ShouldEqual, 1)
				So(p1.ChampionCount, ShouldEqual, 1)

				p2, err := store.GetProgress(ctx, playerID(2))
				So(err, ShouldBeNil)
				So(p2.OfficialWinCount, ShouldEqual, 1)
			})
		})

		Convey("When a division is casual", func() {
			casual := snap
			casual.Divisions = []model.DivisionResult{{
				Division: "beginners",
				Entries:  officialDivision(5).Entries[:5],
				Official: false,
			}}

			records, err := runner.Run(ctx, casual)
			So(err, ShouldBeNil)
			So(records, ShouldBeEmpty)

			Convey("Then no wins are tallied", func() {
				_, err := store.GetProgress(ctx, playerID(1))
				So(err, ShouldWrap, repository.ErrNotFound)
			})
		})
	})
}
