package app

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mkanda/torifuda/internal/adapters/audit"
	"github.com/mkanda/torifuda/internal/adapters/repository"
	"github.com/mkanda/torifuda/internal/domain/model"
	"github.com/mkanda/torifuda/internal/domain/rules"
	"github.com/mkanda/torifuda/pkg/logger"
	"github.com/mkanda/torifuda/pkg/metrics"
)

const defaultPromotionParallelism = 8

// Runner executes promotion evaluation: the immediate kyui exam path
// and the season-end pass over frozen official divisions.
type Runner struct {
	store       repository.Store
	ruleset     rules.Ruleset
	trail       audit.Trail
	parallelism int
	log         logger.Logger
}

// NewRunner creates a promotion Runner.
func NewRunner(store repository.Store, rs rules.Ruleset, trail audit.Trail, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:       store,
		ruleset:     rs,
		trail:       trail,
		parallelism: defaultPromotionParallelism,
		log:         logger.Get().Named("promotion"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunnerOption applies a configuration option to a Runner.
type RunnerOption func(*Runner)

// WithParallelism bounds how many players are evaluated concurrently.
func WithParallelism(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

// ApplyExam evaluates one completed kyui exam and applies the promotion
// immediately if it passes. Kyui never waits for a season boundary.
func (r *Runner) ApplyExam(ctx context.Context, playerID string, exam rules.Exam) (rules.Outcome, model.PlayerProgress, error) {
	var out rules.Outcome
	prog, err := r.store.UpdateProgress(ctx, playerID, func(p *model.PlayerProgress) error {
		if p.KyuiLevel < 1 {
			p.KyuiLevel = 1
		}
		out = rules.EvaluateKyui(*p, r.ruleset, exam)
		if !out.Promoted {
			return nil
		}
		p.KyuiLevel = out.NewLevel
		p.DanEligible = out.DanEligible
		return nil
	})
	if err != nil {
		return rules.Outcome{}, model.PlayerProgress{}, err
	}
	if out.Promoted {
		r.record(ctx, model.PromotionRecord{
			PlayerID:  playerID,
			Ladder:    model.LadderKyui,
			FromLevel: out.NewLevel - 1,
			ToLevel:   out.NewLevel,
		})
	}
	return out, prog, nil
}

// Run executes the season-end promotion pass over a frozen snapshot.
// Official divisions only. Per player the ladders cascade in order:
// win/championship tally, then dan, den and utakurai, each reading the
// counters the previous step produced. Players are evaluated
// concurrently and independently: one player's failure is logged and
// the rest of the pass still runs, but the pass then reports
// ErrPromotionIncomplete so the caller can retry it. Each player
// carries a per-season evaluation marker, so a retried pass never
// tallies anyone twice.
func (r *Runner) Run(ctx context.Context, snap model.SeasonSnapshot) ([]model.PromotionRecord, error) {
	var (
		mu      sync.Mutex
		records []model.PromotionRecord
		failed  int
	)

	for _, div := range snap.Divisions {
		if !div.Official {
			continue
		}
		participants := len(div.Entries)
		winCutoff := rules.OfficialWinCutoff(participants)

		var g errgroup.Group
		g.SetLimit(r.parallelism)
		for _, entry := range div.Entries {
			g.Go(func() error {
				recs, err := r.evaluatePlayer(ctx, snap.SeasonKey, entry, participants, winCutoff)
				if err != nil {
					metrics.RecordErrorByComponent("promotion", "evaluation_failed")
					r.log.Error(ctx, "player evaluation failed",
						logger.String("player_id", entry.PlayerID),
						logger.String("season_key", snap.SeasonKey),
						logger.Error(err),
					)
					mu.Lock()
					failed++
					mu.Unlock()
					return nil
				}
				mu.Lock()
				records = append(records, recs...)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].PlayerID != records[j].PlayerID {
			return records[i].PlayerID < records[j].PlayerID
		}
		return ladderOrder(records[i].Ladder) < ladderOrder(records[j].Ladder)
	})
	for _, rec := range records {
		r.record(ctx, rec)
	}
	if failed > 0 {
		return records, fmt.Errorf("promotion pass for %s: %d players failed: %w", snap.SeasonKey, failed, ErrPromotionIncomplete)
	}
	return records, nil
}

// evaluatePlayer runs the full cascade for one ranked player inside a
// single versioned update, so the tally and all three ladder decisions
// commit together or not at all. The per-season marker makes a repeat
// evaluation a no-op. The update fn can rerun on a version conflict,
// so all locals reset at its top.
func (r *Runner) evaluatePlayer(ctx context.Context, seasonKey string, entry model.RankingEntry, participants, winCutoff int) ([]model.PromotionRecord, error) {
	var records []model.PromotionRecord

	_, err := r.store.UpdateProgress(ctx, entry.PlayerID, func(p *model.PlayerProgress) error {
		records = records[:0]
		if p.EvaluatedSeasons[seasonKey] {
			return nil
		}

		// Lifetime tallies first: dan and den read them below.
		if entry.DisplayName != "" {
			p.DisplayName = entry.DisplayName
		}
		if entry.Rank <= winCutoff {
			p.OfficialWinCount++
		}
		if entry.Rank == 1 {
			p.ChampionCount++
		}

		danOut := rules.EvaluateDan(*p, r.ruleset, rules.DanContext{
			Rank:          entry.Rank,
			Participants:  participants,
			PlayedFullSet: p.PlayedFullSet(seasonKey),
		})
		if danOut.Promoted {
			p.DanLevel = danOut.NewLevel
			p.DenEligible = danOut.DenEligible
			records = append(records, model.PromotionRecord{
				PlayerID: entry.PlayerID, Ladder: model.LadderDan,
				FromLevel: danOut.NewLevel - 1, ToLevel: danOut.NewLevel, SeasonKey: seasonKey,
			})
		}

		denOut := rules.EvaluateDen(*p, r.ruleset)
		if denOut.Promoted {
			p.DenLevel = denOut.NewLevel
			records = append(records, model.PromotionRecord{
				PlayerID: entry.PlayerID, Ladder: model.LadderDen,
				FromLevel: denOut.NewLevel - 1, ToLevel: denOut.NewLevel, SeasonKey: seasonKey,
			})
		}

		utaOut := rules.EvaluateUtakurai(*p, r.ruleset)
		if utaOut.Promoted {
			p.UtakuraiLevel = utaOut.NewLevel
			records = append(records, model.PromotionRecord{
				PlayerID: entry.PlayerID, Ladder: model.LadderUtakurai,
				FromLevel: utaOut.NewLevel - 1, ToLevel: utaOut.NewLevel, SeasonKey: seasonKey,
			})
		}

		if p.EvaluatedSeasons == nil {
			p.EvaluatedSeasons = make(map[string]bool)
		}
		p.EvaluatedSeasons[seasonKey] = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ladderOrder fixes the cascade order used when sorting records.
func ladderOrder(ladder string) int {
	switch ladder {
	case model.LadderKyui:
		return 0
	case model.LadderDan:
		return 1
	case model.LadderDen:
		return 2
	default:
		return 3
	}
}

// record emits metrics and the audit line for one granted promotion.
func (r *Runner) record(ctx context.Context, rec model.PromotionRecord) {
	metrics.RecordPromotion(rec.Ladder)
	r.trail.Record(ctx, audit.Entry{
		Kind:      "promotion",
		SubjectID: rec.PlayerID,
		Detail: map[string]any{
			"ladder":     rec.Ladder,
			"from_level": rec.FromLevel,
			"to_level":   rec.ToLevel,
			"season_key": rec.SeasonKey,
		},
	})
}
