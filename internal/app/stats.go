package app

import (
	"context"

	"github.com/mkanda/torifuda/internal/adapters/mq/queue"
	"github.com/mkanda/torifuda/internal/adapters/repository"
	"github.com/mkanda/torifuda/internal/domain/model"
)

// StatsProjector folds confirmed sessions into per-player progression
// counters: lifetime session count, cumulative score per season and
// the full-set evidence the dan evaluator reads at season end.
type StatsProjector struct {
	store repository.Store
}

// NewStatsProjector creates a StatsProjector.
func NewStatsProjector(store repository.Store) *StatsProjector {
	return &StatsProjector{store: store}
}

// Apply folds one confirmed session into the player's progression
// record. The applied-session marker commits with the counters, so a
// redelivered event changes nothing.
func (p *StatsProjector) Apply(ctx context.Context, e queue.Event) error {
	_, err := p.store.UpdateProgress(ctx, e.PlayerID, func(prog *model.PlayerProgress) error {
		if prog.AppliedSessions[e.SessionID] {
			return nil
		}
		if e.DisplayName != "" {
			prog.DisplayName = e.DisplayName
		}
		prog.ConfirmedSessions++
		if prog.SeasonScores == nil {
			prog.SeasonScores = make(map[string]int)
		}
		prog.SeasonScores[e.SeasonID] += e.Score
		if e.FullSet {
			if prog.FullSetSeasons == nil {
				prog.FullSetSeasons = make(map[string]bool)
			}
			prog.FullSetSeasons[e.SeasonID] = true
		}
		if prog.AppliedSessions == nil {
			prog.AppliedSessions = make(map[string]bool)
		}
		prog.AppliedSessions[e.SessionID] = true
		return nil
	})
	return err
}
