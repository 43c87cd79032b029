package app

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/mkanda/torifuda/internal/adapters/mq/queue"
	"github.com/mkanda/torifuda/internal/adapters/repository"
	"github.com/mkanda/torifuda/internal/domain/model"
	"github.com/mkanda/torifuda/pkg/metrics"
)

// Aggregator maintains one live leaderboard per (season, division)
// pair. Each player holds a single row keyed by best confirmed score;
// additional confirmed sessions only ever raise it.
type Aggregator struct {
	store repository.Store
}

// NewAggregator creates an Aggregator.
func NewAggregator(store repository.Store) *Aggregator {
	return &Aggregator{store: store}
}

// Upsert folds one confirmed session into its division leaderboard.
// The applied-session marker commits in the same versioned update as
// the entry change, so a redelivered event changes nothing.
func (a *Aggregator) Upsert(ctx context.Context, e queue.Event) error {
	_, err := a.store.UpdateRanking(ctx, e.SeasonID, e.Division, func(doc *model.RankingDocument) error {
		if doc.AppliedSessions[e.SessionID] {
			return nil
		}
		found := false
		for i := range doc.Entries {
			if doc.Entries[i].PlayerID != e.PlayerID {
				continue
			}
			found = true
			doc.Entries[i].ConfirmedSessionCount++
			if e.Score > doc.Entries[i].BestScore {
				doc.Entries[i].BestScore = e.Score
			}
			if e.DisplayName != "" {
				doc.Entries[i].DisplayName = e.DisplayName
			}
			break
		}
		if !found {
			doc.Entries = append(doc.Entries, model.RankingEntry{
				PlayerID:              e.PlayerID,
				DisplayName:           e.DisplayName,
				BestScore:             e.Score,
				ConfirmedSessionCount: 1,
			})
		}
		Rerank(doc.Entries)
		if doc.AppliedSessions == nil {
			doc.AppliedSessions = make(map[string]bool)
		}
		doc.AppliedSessions[e.SessionID] = true
		doc.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return err
	}
	metrics.RecordRankingUpsert()
	return nil
}

// Top returns the leaderboard head for one division.
func (a *Aggregator) Top(ctx context.Context, seasonID, division string, limit int) ([]model.RankingEntry, error) {
	doc, err := a.store.GetRanking(ctx, seasonID, division)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return []model.RankingEntry{}, nil
		}
		return nil, err
	}
	metrics.UpdateLeaderboardSize(seasonID, division, len(doc.Entries))
	if limit > 0 && limit < len(doc.Entries) {
		return doc.Entries[:limit], nil
	}
	return doc.Entries, nil
}

// EntriesFor returns the player's rows across every division of a season.
func (a *Aggregator) EntriesFor(ctx context.Context, seasonID, playerID string) ([]model.RankingDocument, []model.RankingEntry, error) {
	docs, err := a.store.ListRankings(ctx, seasonID)
	if err != nil {
		return nil, nil, err
	}
	var owned []model.RankingDocument
	var entries []model.RankingEntry
	for _, doc := range docs {
		for _, e := range doc.Entries {
			if e.PlayerID == playerID {
				owned = append(owned, doc)
				entries = append(entries, e)
				break
			}
		}
	}
	return owned, entries, nil
}

// Rerank sorts entries best-score-descending and assigns competition
// ranks: tied scores share a rank and the next distinct score takes its
// positional rank (1, 1, 3). Ties are ordered by player ID so output
// is deterministic.
func Rerank(entries []model.RankingEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].BestScore != entries[j].BestScore {
			return entries[i].BestScore > entries[j].BestScore
		}
		return entries[i].PlayerID < entries[j].PlayerID
	})
	for i := range entries {
		if i > 0 && entries[i].BestScore == entries[i-1].BestScore {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
}
