package app

import (
	"context"
	"errors"
	"time"

	"github.com/mkanda/torifuda/internal/adapters/audit"
	"github.com/mkanda/torifuda/internal/adapters/repository"
	"github.com/mkanda/torifuda/internal/domain/calendar"
	"github.com/mkanda/torifuda/internal/domain/model"
	"github.com/mkanda/torifuda/internal/domain/rules"
	"github.com/mkanda/torifuda/pkg/logger"
	"github.com/mkanda/torifuda/pkg/metrics"
)

// Pipeline drives a season through draft -> frozen -> finalized ->
// published. Every transition is idempotent: repeating one that already
// happened reports Duplicate and changes nothing. Transitions never run
// out of order.
type Pipeline struct {
	store     repository.Store
	calendars calendar.Set
	ruleset   rules.Ruleset
	runner    *Runner
	trail     audit.Trail
	now       func() time.Time
	log       logger.Logger
}

// NewPipeline creates a season Pipeline.
func NewPipeline(store repository.Store, cals calendar.Set, rs rules.Ruleset, runner *Runner, trail audit.Trail, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		store:     store,
		calendars: cals,
		ruleset:   rs,
		runner:    runner,
		trail:     trail,
		now:       time.Now,
		log:       logger.Get().Named("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PipelineOption applies a configuration option to a Pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineClock overrides the time source. Used in tests.
func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// TransitionResult reports one pipeline call.
type TransitionResult struct {
	Snapshot  model.SeasonSnapshot
	Duplicate bool

	// Promotions granted by this call. Only ever set by Finalize.
	Promotions []model.PromotionRecord
}

// Freeze copies every live leaderboard of the season into an immutable
// snapshot and classifies divisions as official or casual by
// participant count. Late session confirmations keep flowing into the
// live documents but the snapshot never changes again.
func (p *Pipeline) Freeze(ctx context.Context, seasonKey string) (TransitionResult, error) {
	docs, err := p.store.ListRankings(ctx, seasonKey)
	if err != nil {
		return TransitionResult{}, err
	}

	// A key naming no configured period and holding no rankings is an
	// operator typo, not an empty season. Refuse to mint a snapshot for
	// it unless one already exists.
	if len(docs) == 0 && !p.calendars.Known(seasonKey) {
		if _, err := p.store.GetSnapshot(ctx, seasonKey); errors.Is(err, repository.ErrNotFound) {
			return TransitionResult{}, NewKind("freeze season", ErrNotFound)
		}
	}

	var duplicate bool
	snap, err := p.store.UpdateSnapshot(ctx, seasonKey, func(s *model.SeasonSnapshot) error {
		if s.Status.AtLeast(model.SnapshotFrozen) {
			duplicate = true
			return nil
		}

		var merged []model.RankingEntry
		total := 0
		s.Divisions = make([]model.DivisionResult, 0, len(docs))
		for _, doc := range docs {
			official := p.ruleset.Official(len(doc.Entries))
			s.Divisions = append(s.Divisions, model.DivisionResult{
				Division: doc.Division,
				Entries:  append([]model.RankingEntry(nil), doc.Entries...),
				Official: official,
			})
			if official {
				total += len(doc.Entries)
				merged = append(merged, doc.Entries...)
			}
		}
		Rerank(merged)
		s.Rankings = merged
		s.TotalParticipants = total
		s.Status = model.SnapshotFrozen
		s.FrozenAt = p.now().UTC()
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}
	if duplicate {
		return TransitionResult{Snapshot: snap, Duplicate: true}, nil
	}

	p.transitioned(ctx, snap, "frozen")
	return TransitionResult{Snapshot: snap}, nil
}

// Finalize runs the promotion pass over the frozen snapshot and marks
// the season finalized only once the pass completes cleanly. A failed
// pass leaves the season frozen so the call can be retried; per-player
// evaluation markers keep the retry from tallying anyone twice, and
// the same markers make a concurrent double run harmless.
func (p *Pipeline) Finalize(ctx context.Context, seasonKey string) (TransitionResult, error) {
	snap, err := p.store.GetSnapshot(ctx, seasonKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return TransitionResult{}, NewKind("season snapshot", ErrNotFound)
		}
		return TransitionResult{}, err
	}
	if snap.Status.AtLeast(model.SnapshotFinalized) {
		return TransitionResult{Snapshot: snap, Duplicate: true}, nil
	}
	if snap.Status != model.SnapshotFrozen {
		return TransitionResult{}, NewKind("finalize season", ErrSeasonState)
	}

	promotions, err := p.runner.Run(ctx, snap)
	if err != nil {
		return TransitionResult{}, err
	}

	var duplicate bool
	snap, err = p.updateExisting(ctx, seasonKey, func(s *model.SeasonSnapshot) error {
		if s.Status.AtLeast(model.SnapshotFinalized) {
			duplicate = true
			return nil
		}
		if s.Status != model.SnapshotFrozen {
			return NewKind("finalize season", ErrSeasonState)
		}
		s.Status = model.SnapshotFinalized
		s.FinalizedAt = p.now().UTC()
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}
	if duplicate {
		return TransitionResult{Snapshot: snap, Duplicate: true}, nil
	}

	p.transitioned(ctx, snap, "finalized")
	return TransitionResult{Snapshot: snap, Promotions: promotions}, nil
}

// Publish exposes the finalized season on the read path.
func (p *Pipeline) Publish(ctx context.Context, seasonKey string) (TransitionResult, error) {
	var duplicate bool
	snap, err := p.updateExisting(ctx, seasonKey, func(s *model.SeasonSnapshot) error {
		if s.Status.AtLeast(model.SnapshotPublished) {
			duplicate = true
			return nil
		}
		if s.Status != model.SnapshotFinalized {
			return NewKind("publish season", ErrSeasonState)
		}
		s.Status = model.SnapshotPublished
		s.PublishedAt = p.now().UTC()
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}
	if duplicate {
		return TransitionResult{Snapshot: snap, Duplicate: true}, nil
	}

	p.transitioned(ctx, snap, "published")
	return TransitionResult{Snapshot: snap}, nil
}

// Snapshot returns one season's snapshot.
func (p *Pipeline) Snapshot(ctx context.Context, seasonKey string) (model.SeasonSnapshot, error) {
	snap, err := p.store.GetSnapshot(ctx, seasonKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.SeasonSnapshot{}, NewKind("get season", ErrNotFound)
		}
		return model.SeasonSnapshot{}, err
	}
	return snap, nil
}

// BoundaryCheck freezes the most recently ended season if it has not
// been frozen yet. Runs daily; idempotence makes double triggers and
// missed days harmless.
func (p *Pipeline) BoundaryCheck(ctx context.Context) {
	res, ok := p.calendars.Previous(p.now())
	if !ok {
		p.log.Debug(ctx, "no ended season to check")
		return
	}
	key := res.SeasonKey()
	result, err := p.Freeze(ctx, key)
	if err != nil {
		p.log.Error(ctx, "boundary freeze failed", logger.String("season", key), logger.Error(err))
		metrics.RecordErrorByComponent("pipeline", "boundary_freeze")
		return
	}
	if !result.Duplicate {
		p.log.Info(ctx, "season frozen at boundary", logger.String("season", key))
	}
}

// updateExisting is UpdateSnapshot without lazy creation: transitions
// beyond freeze require the snapshot to exist.
func (p *Pipeline) updateExisting(ctx context.Context, seasonKey string, fn func(*model.SeasonSnapshot) error) (model.SeasonSnapshot, error) {
	if _, err := p.store.GetSnapshot(ctx, seasonKey); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.SeasonSnapshot{}, NewKind("season snapshot", ErrNotFound)
		}
		return model.SeasonSnapshot{}, err
	}
	return p.store.UpdateSnapshot(ctx, seasonKey, fn)
}

// transitioned emits the metric and audit line for a fresh transition.
func (p *Pipeline) transitioned(ctx context.Context, snap model.SeasonSnapshot, to string) {
	metrics.RecordSeasonTransition(to)
	p.trail.Record(ctx, audit.Entry{
		Kind:      "season_transition",
		SubjectID: snap.SeasonKey,
		Detail:    map[string]any{"to": to, "participants": snap.TotalParticipants},
	})
}
