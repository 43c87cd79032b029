// Package rules evaluates promotion eligibility for the four skill
// ladders: kyui, dan, den and utakurai.
//
// Every evaluator is a pure function of (progress, ruleset, context).
// "Not promoted" is an ordinary return value; evaluators never error
// on business-rule outcomes. The ruleset is an immutable value object
// passed into every call, never hidden package state.
package rules

import (
	"math"

	"github.com/mkanda/torifuda/internal/domain/model"
)

// KyuiRequirement gates one kyui step. A player at FromLevel advances
// to FromLevel+1 by passing an exam matching the required card subset
// and sample size with at least the required pass rate.
type KyuiRequirement struct {
	FromLevel  int     `json:"from_level"`
	CardSubset string  `json:"card_subset"`
	SampleSize int     `json:"sample_size"`
	PassRate   float64 `json:"pass_rate"`
}

// Ruleset is the versioned, operator-managed configuration the
// promotion engine reads. It is read-only to the pipeline.
type Ruleset struct {
	Version string `json:"version"`

	// Kyui requirements, ordered by FromLevel.
	Kyui []KyuiRequirement `json:"kyui"`

	// DanPercentiles[i] is the top-fraction of official participants a
	// player must finish within to reach dan level i+1.
	DanPercentiles []float64 `json:"dan_percentiles"`

	// DenWinThresholds[i] is the lifetime official-win count required
	// for den level i+1.
	DenWinThresholds []int `json:"den_win_thresholds"`

	// UtakuraiChampionThresholds[i] is the lifetime championship count
	// required for utakurai level i+1.
	UtakuraiChampionThresholds []int `json:"utakurai_champion_thresholds"`

	// OfficialMinParticipants distinguishes official competition tiers
	// from casual ones.
	OfficialMinParticipants int `json:"official_min_participants"`
}

// MaxKyuiLevel is the terminal kyui level; reaching it makes the
// player dan-eligible.
func (r Ruleset) MaxKyuiLevel() int {
	return len(r.Kyui) + 1
}

// MaxDanLevel is the last dan step; reaching it completes the ladder
// and makes the player den-eligible.
func (r Ruleset) MaxDanLevel() int {
	return len(r.DanPercentiles)
}

// MaxDenLevel is the last den step; reaching it opens the utakurai ladder.
func (r Ruleset) MaxDenLevel() int {
	return len(r.DenWinThresholds)
}

// kyuiRequirementFor returns the requirement for advancing from the
// given level, if any.
func (r Ruleset) kyuiRequirementFor(level int) (KyuiRequirement, bool) {
	for _, req := range r.Kyui {
		if req.FromLevel == level {
			return req, true
		}
	}
	return KyuiRequirement{}, false
}

// Official reports whether a competition with the given participant
// count qualifies as an official tier.
func (r Ruleset) Official(participants int) bool {
	return participants >= r.OfficialMinParticipants
}

// OfficialWinCutoff is the worst rank that still counts as an official
// win: the top third of participants, rounded up.
func OfficialWinCutoff(participants int) int {
	return int(math.Ceil(float64(participants) / 3))
}

// Exam is a completed kyui exam record.
type Exam struct {
	CardSubset string  `json:"card_subset"`
	SampleSize int     `json:"sample_size"`
	PassRate   float64 `json:"pass_rate"`
}

// Outcome is the result of one ladder evaluation.
type Outcome struct {
	Promoted    bool
	NewLevel    int
	DanEligible bool
	DenEligible bool
}

// EvaluateKyui checks an immediate per-exam kyui promotion. The exam
// must match the next step's card subset and sample size exactly and
// meet its pass rate. On success the player advances exactly one
// level; completing the ladder additionally sets dan eligibility.
func EvaluateKyui(progress model.PlayerProgress, rs Ruleset, exam Exam) Outcome {
	level := progress.KyuiLevel
	if level < 1 {
		level = 1
	}
	req, ok := rs.kyuiRequirementFor(level)
	if !ok {
		// Ladder already complete, or no requirement configured.
		return Outcome{NewLevel: level, DanEligible: progress.DanEligible}
	}
	if exam.CardSubset != req.CardSubset || exam.SampleSize != req.SampleSize {
		return Outcome{NewLevel: level, DanEligible: progress.DanEligible}
	}
	if exam.PassRate < req.PassRate {
		return Outcome{NewLevel: level, DanEligible: progress.DanEligible}
	}
	next := level + 1
	return Outcome{
		Promoted:    true,
		NewLevel:    next,
		DanEligible: progress.DanEligible || next == rs.MaxKyuiLevel(),
	}
}

// DanContext carries the finalized-season evidence the dan evaluator needs.
type DanContext struct {
	// Rank is the player's final rank in an official-tier competition.
	Rank int

	// Participants is that competition's total participant count.
	Participants int

	// PlayedFullSet is true when at least one of the player's official
	// matches that season used the full card set.
	PlayedFullSet bool
}

// EvaluateDan checks a season-boundary dan promotion. Requires dan
// eligibility, a finish within the next level's top percentile of
// official participants, and full-set evidence. Advances at most one
// level per season.
func EvaluateDan(progress model.PlayerProgress, rs Ruleset, ctx DanContext) Outcome {
	out := Outcome{NewLevel: progress.DanLevel, DenEligible: progress.DenEligible}
	if !progress.DanEligible {
		return out
	}
	if progress.DanLevel >= rs.MaxDanLevel() {
		return out
	}
	if ctx.Participants <= 0 || ctx.Rank <= 0 {
		return out
	}
	if !ctx.PlayedFullSet {
		return out
	}
	pct := rs.DanPercentiles[progress.DanLevel]
	cutoff := int(math.Ceil(float64(ctx.Participants) * pct))
	if cutoff < 1 {
		cutoff = 1
	}
	if ctx.Rank > cutoff {
		return out
	}
	next := progress.DanLevel + 1
	return Outcome{
		Promoted:    true,
		NewLevel:    next,
		DenEligible: progress.DenEligible || next == rs.MaxDanLevel(),
	}
}

// EvaluateDen checks a season-boundary den promotion. Requires den
// eligibility (completed dan ladder) and a lifetime official-win count
// meeting the next den level's threshold.
func EvaluateDen(progress model.PlayerProgress, rs Ruleset) Outcome {
	out := Outcome{NewLevel: progress.DenLevel}
	if !progress.DenEligible {
		return out
	}
	if progress.DenLevel >= len(rs.DenWinThresholds) {
		return out
	}
	if progress.OfficialWinCount < rs.DenWinThresholds[progress.DenLevel] {
		return out
	}
	return Outcome{Promoted: true, NewLevel: progress.DenLevel + 1}
}

// EvaluateUtakurai checks a season-boundary utakurai promotion.
// Requires a completed den ladder and a lifetime championship count
// meeting the next utakurai level's threshold.
func EvaluateUtakurai(progress model.PlayerProgress, rs Ruleset) Outcome {
	out := Outcome{NewLevel: progress.UtakuraiLevel}
	if rs.MaxDenLevel() == 0 || progress.DenLevel < rs.MaxDenLevel() {
		return out
	}
	if progress.UtakuraiLevel >= len(rs.UtakuraiChampionThresholds) {
		return out
	}
	if progress.ChampionCount < rs.UtakuraiChampionThresholds[progress.UtakuraiLevel] {
		return out
	}
	return Outcome{Promoted: true, NewLevel: progress.UtakuraiLevel + 1}
}
