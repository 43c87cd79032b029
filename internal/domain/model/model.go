// Package model contains domain documents passed between layers.
package model

import "time"

// FullCardSet names the unrestricted card set. Sessions and exams played
// against any other subset do not count as full-set play.
const FullCardSet = "full"

// SessionStatus is the lifecycle state of a play session.
type SessionStatus string

// Session lifecycle states. Terminal states are never left again.
const (
	SessionCreated    SessionStatus = "created"
	SessionInProgress SessionStatus = "in_progress"
	SessionSubmitted  SessionStatus = "submitted"
	SessionConfirmed  SessionStatus = "confirmed"
	SessionInvalid    SessionStatus = "invalid"
	SessionExpired    SessionStatus = "expired"
)

// Terminal reports whether the status is one of the final states.
func (s SessionStatus) Terminal() bool {
	return s == SessionConfirmed || s == SessionInvalid || s == SessionExpired
}

// Round is a single question inside a session. Rounds are written once
// during play and read-only afterward. Index is 0-based and unique
// within the session; position in the slice carries no meaning.
type Round struct {
	Index            int      `json:"index"`
	CorrectChoiceID  string   `json:"correct_choice_id"`
	OfferedChoiceIDs []string `json:"offered_choice_ids"`
	SelectedChoiceID string   `json:"selected_choice_id"`
	IsCorrect        bool     `json:"is_correct"`
	ElapsedMs        int64    `json:"elapsed_ms"`
}

// Session is a timed multiple-choice play-through owned by a single
// player. It reaches exactly one terminal status and is immutable after
// that. Score, CorrectCount and TotalElapsedMs are recomputed from the
// rounds at confirmation time; client-claimed aggregates are never
// persisted.
type Session struct {
	ID                 string        `json:"id"`
	OwnerID            string        `json:"owner_id"`
	DisplayName        string        `json:"display_name"`
	SeasonID           string        `json:"season_id"`
	Division           string        `json:"division"`
	EntryID            string        `json:"entry_id"`
	CardSubset         string        `json:"card_subset"`
	Profile            string        `json:"profile"`
	Status             SessionStatus `json:"status"`
	ExpectedRoundCount int           `json:"expected_round_count"`
	Rounds             []Round       `json:"rounds"`
	Score              int           `json:"score"`
	CorrectCount       int           `json:"correct_count"`
	TotalElapsedMs     int64         `json:"total_elapsed_ms"`
	InvalidReasons     []string      `json:"invalid_reasons,omitempty"`
	StartedAt          time.Time     `json:"started_at"`
	ConfirmedAt        time.Time     `json:"confirmed_at,omitempty"`
	Version            int64         `json:"-"`
}

// FullSet reports whether the session was played against the full card set.
func (s Session) FullSet() bool {
	return s.CardSubset == FullCardSet
}

// RankingEntry is one player's row in a leaderboard.
type RankingEntry struct {
	PlayerID              string `json:"player_id"`
	DisplayName           string `json:"display_name"`
	BestScore             int    `json:"best_score"`
	ConfirmedSessionCount int    `json:"confirmed_session_count"`
	Rank                  int    `json:"rank"`
}

// RankingDocument is the live leaderboard for one (season, division)
// pair. Entries are kept sorted score-descending with shared ranks on
// ties; all mutation goes through the store's versioned update.
// AppliedSessions records which sessions have already been folded in so
// a redelivered projection event never counts twice.
type RankingDocument struct {
	SeasonID        string          `json:"season_id"`
	Division        string          `json:"division"`
	Entries         []RankingEntry  `json:"entries"`
	AppliedSessions map[string]bool `json:"applied_sessions,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Version         int64           `json:"-"`
}

// SnapshotStatus is the season pipeline state. It only ever advances.
type SnapshotStatus string

// Season pipeline states in order.
const (
	SnapshotDraft     SnapshotStatus = "draft"
	SnapshotFrozen    SnapshotStatus = "frozen"
	SnapshotFinalized SnapshotStatus = "finalized"
	SnapshotPublished SnapshotStatus = "published"
)

// order maps each status to its position in the pipeline.
func (s SnapshotStatus) order() int {
	switch s {
	case SnapshotFrozen:
		return 1
	case SnapshotFinalized:
		return 2
	case SnapshotPublished:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether s has reached other in the pipeline ordering.
func (s SnapshotStatus) AtLeast(other SnapshotStatus) bool {
	return s.order() >= other.order()
}

// DivisionResult is one division's frozen leaderboard inside a season
// snapshot. Official divisions met the configured minimum participant
// count and feed the promotion pass; casual divisions are kept for the
// read path only.
type DivisionResult struct {
	Division string         `json:"division"`
	Entries  []RankingEntry `json:"entries"`
	Official bool           `json:"official"`
}

// SeasonSnapshot is the immutable season-end copy of all leaderboards
// plus the pipeline status. Created lazily on first freeze; rankings
// and participant counts never change after that.
type SeasonSnapshot struct {
	SeasonKey         string           `json:"season_key"`
	Status            SnapshotStatus   `json:"status"`
	Rankings          []RankingEntry   `json:"rankings"`
	Divisions         []DivisionResult `json:"divisions"`
	TotalParticipants int              `json:"total_participants"`
	FrozenAt          time.Time        `json:"frozen_at,omitempty"`
	FinalizedAt       time.Time        `json:"finalized_at,omitempty"`
	PublishedAt       time.Time        `json:"published_at,omitempty"`
	Version           int64            `json:"-"`
}

// PlayerProgress is a player's position on the four skill ladders plus
// the lifetime counters the promotion rules consume. Levels only
// advance and counters only increase. A zero ladder level means the
// player has not entered that ladder yet. AppliedSessions and
// EvaluatedSeasons are idempotence markers: a session's stats land at
// most once, and a season's promotion pass evaluates the player at
// most once, no matter how often either is retried.
type PlayerProgress struct {
	PlayerID          string          `json:"player_id"`
	DisplayName       string          `json:"display_name"`
	KyuiLevel         int             `json:"kyui_level"`
	DanLevel          int             `json:"dan_level"`
	DanEligible       bool            `json:"dan_eligible"`
	DenLevel          int             `json:"den_level"`
	DenEligible       bool            `json:"den_eligible"`
	UtakuraiLevel     int             `json:"utakurai_level"`
	OfficialWinCount  int             `json:"official_win_count"`
	ChampionCount     int             `json:"champion_count"`
	ConfirmedSessions int             `json:"confirmed_sessions"`
	SeasonScores      map[string]int  `json:"season_scores,omitempty"`
	FullSetSeasons    map[string]bool `json:"full_set_seasons,omitempty"`
	AppliedSessions   map[string]bool `json:"applied_sessions,omitempty"`
	EvaluatedSeasons  map[string]bool `json:"evaluated_seasons,omitempty"`
	Version           int64           `json:"-"`
}

// PlayedFullSet reports whether the player had at least one full-set
// session in the given season.
func (p PlayerProgress) PlayedFullSet(seasonKey string) bool {
	return p.FullSetSeasons[seasonKey]
}

// Ladder names used in promotion records and metrics.
const (
	LadderKyui     = "kyui"
	LadderDan      = "dan"
	LadderDen      = "den"
	LadderUtakurai = "utakurai"
)

// PromotionRecord describes one granted promotion, emitted by the
// season-end pass and by immediate kyui exams for downstream
// notification.
type PromotionRecord struct {
	PlayerID  string `json:"player_id"`
	Ladder    string `json:"ladder"`
	FromLevel int    `json:"from_level"`
	ToLevel   int    `json:"to_level"`
	SeasonKey string `json:"season_key,omitempty"`
}

// ProjectionEvent carries a confirmed session's contribution to the
// downstream leaderboard and player-stats projections. Both
// projections persist an applied-session marker, so a redelivered
// event is a no-op and failed events are safe to requeue. Attempts
// counts deliveries so workers can bound their retries.
type ProjectionEvent struct {
	SessionID   string
	PlayerID    string
	DisplayName string
	SeasonID    string
	Division    string
	Score       int
	FullSet     bool
	Attempts    int
}
