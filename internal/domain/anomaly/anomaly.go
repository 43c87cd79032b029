// Package anomaly detects structurally or statistically implausible
// sessions before they are allowed to enter official scoring.
//
// Every rule is evaluated independently; a malformed session reports
// all violated codes, not just the first. An invalid verdict is a
// normal domain outcome, never an error.
package anomaly

import (
	"sort"

	"github.com/mkanda/torifuda/internal/domain/model"
)

// Reason codes, reported in a stable order.
const (
	CodeRoundCountMismatch  = "ROUND_COUNT_MISMATCH"
	CodeRoundIndexDuplicate = "ROUND_INDEX_DUPLICATE"
	CodeInvalidSelection    = "INVALID_SELECTION"
	CodeTooFast             = "TOO_FAST"
	CodeTooSlow             = "TOO_SLOW"
	CodeInvalidCorrectCount = "INVALID_CORRECT_COUNT"
)

// Default threshold constants shared by both profiles.
const (
	defaultFastRoundMs     = 200
	defaultSlowRoundMs     = 60000
	defaultSmallSessionMax = 10
	defaultFastLimitSmall  = 3
	defaultFastLimitLarge  = 5
)

// Profile names. The 10-round record path and the 50-round session
// path historically used different fast-round count limits; they are
// kept as two named profiles of the same detector rather than
// duplicated logic.
const (
	ProfileRecord  = "record"
	ProfileSession = "session"
)

// Profile holds the thresholds one detection pass runs with.
type Profile struct {
	// Name identifies the profile in logs and persisted sessions.
	Name string

	// FastRoundMs: rounds faster than this are suspicious.
	FastRoundMs int64

	// SlowRoundMs: any single round slower than this invalidates the session.
	SlowRoundMs int64

	// FastLimitSmall applies to sessions of at most SmallSessionMax rounds.
	FastLimitSmall int

	// FastLimitLarge applies to larger sessions.
	FastLimitLarge int

	// SmallSessionMax is the round count boundary between the two limits.
	SmallSessionMax int
}

// Option applies a configuration option to a Profile.
type Option func(*Profile)

// WithFastRoundMs overrides the fast-round threshold.
func WithFastRoundMs(ms int64) Option {
	return func(p *Profile) {
		if ms > 0 {
			p.FastRoundMs = ms
		}
	}
}

// WithSlowRoundMs overrides the slow-round threshold.
func WithSlowRoundMs(ms int64) Option {
	return func(p *Profile) {
		if ms > 0 {
			p.SlowRoundMs = ms
		}
	}
}

// WithFastLimits overrides the fast-round count limits.
func WithFastLimits(small, large int) Option {
	return func(p *Profile) {
		if small > 0 {
			p.FastLimitSmall = small
		}
		if large > 0 {
			p.FastLimitLarge = large
		}
	}
}

// NewProfile builds a named profile with defaults and options applied.
func NewProfile(name string, opts ...Option) Profile {
	p := Profile{
		Name:            name,
		FastRoundMs:     defaultFastRoundMs,
		SlowRoundMs:     defaultSlowRoundMs,
		FastLimitSmall:  defaultFastLimitSmall,
		FastLimitLarge:  defaultFastLimitLarge,
		SmallSessionMax: defaultSmallSessionMax,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// fastLimit returns the fast-round count threshold for a session size.
func (p Profile) fastLimit(expectedRounds int) int {
	if expectedRounds <= p.SmallSessionMax {
		return p.FastLimitSmall
	}
	return p.FastLimitLarge
}

// Verdict is the outcome of one detection pass.
type Verdict struct {
	Valid       bool
	ReasonCodes []string
}

// Detect evaluates all rules against the round sequence and the
// claimed aggregates. Rules key on round.Index, never on slice
// position, so the verdict is invariant under reordering of the input.
func Detect(p Profile, rounds []model.Round, claimedCorrect, expectedRounds int) Verdict {
	codes := make([]string, 0, 4)

	if len(rounds) != expectedRounds {
		codes = append(codes, CodeRoundCountMismatch)
	}

	if !indicesExact(rounds, expectedRounds) {
		codes = append(codes, CodeRoundIndexDuplicate)
	}

	invalidSelection := false
	fastCount := 0
	tooSlow := false
	for _, r := range rounds {
		if !offered(r.OfferedChoiceIDs, r.SelectedChoiceID) {
			invalidSelection = true
		}
		if r.ElapsedMs < p.FastRoundMs {
			fastCount++
		}
		if r.ElapsedMs > p.SlowRoundMs {
			tooSlow = true
		}
	}
	if invalidSelection {
		codes = append(codes, CodeInvalidSelection)
	}
	if fastCount >= p.fastLimit(expectedRounds) {
		codes = append(codes, CodeTooFast)
	}
	if tooSlow {
		codes = append(codes, CodeTooSlow)
	}

	if claimedCorrect < 0 || claimedCorrect > expectedRounds {
		codes = append(codes, CodeInvalidCorrectCount)
	}

	return Verdict{Valid: len(codes) == 0, ReasonCodes: codes}
}

// indicesExact reports whether round indices form exactly the set
// {0..expected-1}.
func indicesExact(rounds []model.Round, expected int) bool {
	if len(rounds) != expected {
		return false
	}
	idx := make([]int, len(rounds))
	for i, r := range rounds {
		idx[i] = r.Index
	}
	sort.Ints(idx)
	for i, v := range idx {
		if v != i {
			return false
		}
	}
	return true
}

func offered(offeredIDs []string, selected string) bool {
	for _, id := range offeredIDs {
		if id == selected {
			return true
		}
	}
	return false
}
