// Package repository provides the persistence boundary for sessions,
// rankings, player progression and season snapshots.
//
// All mutation goes through versioned update closures: the store hands
// the closure a copy of the current document, applies the mutation, and
// commits only if the document version is unchanged, retrying
// otherwise. Read-modify-write races therefore cannot lose writes.
package repository

import (
	"context"

	"github.com/mkanda/torifuda/internal/domain/model"
)

// Store is the persistence interface the application layer depends on.
type Store interface {
	// CreateSession persists a new session. Fails with ErrExists when
	// the ID is already taken.
	CreateSession(ctx context.Context, s model.Session) error

	// GetSession returns a session by ID.
	GetSession(ctx context.Context, id string) (model.Session, error)

	// UpdateSession applies fn to the current session under version
	// control. fn returning an error aborts without writing.
	UpdateSession(ctx context.Context, id string, fn func(*model.Session) error) (model.Session, error)

	// GetRanking returns one leaderboard document.
	GetRanking(ctx context.Context, seasonID, division string) (model.RankingDocument, error)

	// UpdateRanking applies fn to a leaderboard document, creating an
	// empty one on first touch.
	UpdateRanking(ctx context.Context, seasonID, division string, fn func(*model.RankingDocument) error) (model.RankingDocument, error)

	// ListRankings returns every division leaderboard of one season.
	ListRankings(ctx context.Context, seasonID string) ([]model.RankingDocument, error)

	// GetProgress returns one player's progression record.
	GetProgress(ctx context.Context, playerID string) (model.PlayerProgress, error)

	// UpdateProgress applies fn to a player's progression record,
	// creating a fresh one on first touch.
	UpdateProgress(ctx context.Context, playerID string, fn func(*model.PlayerProgress) error) (model.PlayerProgress, error)

	// GetSnapshot returns one season's pipeline snapshot.
	GetSnapshot(ctx context.Context, seasonKey string) (model.SeasonSnapshot, error)

	// UpdateSnapshot applies fn to a season snapshot, creating a draft
	// one on first touch.
	UpdateSnapshot(ctx context.Context, seasonKey string, fn func(*model.SeasonSnapshot) error) (model.SeasonSnapshot, error)
}
