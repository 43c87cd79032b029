// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - Provide New() to build a Config with defaults.
//   - External errors must be wrapped via this package's error helpers.
//   - Derived domain values (ruleset, calendars, profiles) are built from
//     the raw config through conversion methods, never read back raw.
package config

import (
	"fmt"
	"time"

	"github.com/mkanda/torifuda/internal/domain/anomaly"
	"github.com/mkanda/torifuda/internal/domain/calendar"
	"github.com/mkanda/torifuda/internal/domain/rules"
)

// KyuiStep configures one kyui promotion requirement.
type KyuiStep struct {
	FromLevel  int     `koanf:"from_level"`
	CardSubset string  `koanf:"card_subset"`
	SampleSize int     `koanf:"sample_size"`
	PassRate   float64 `koanf:"pass_rate"`
}

// PeriodConfig configures one competition period. Start and End are
// RFC 3339 instants; the window is half-open [start, end).
type PeriodConfig struct {
	ID    string `koanf:"id"`
	Start string `koanf:"start"`
	End   string `koanf:"end"`
}

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory projection queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of projection workers.
	WorkerCount int `koanf:"worker_count"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// SessionTTLMinutes bounds how long a started session stays confirmable.
	SessionTTLMinutes int `koanf:"session_ttl_minutes"`

	// Anomaly detector threshold overrides. Zero keeps the built-in default.
	AnomalyFastRoundMs    int64 `koanf:"anomaly_fast_round_ms"`
	AnomalySlowRoundMs    int64 `koanf:"anomaly_slow_round_ms"`
	AnomalyFastLimitSmall int   `koanf:"anomaly_fast_limit_small"`
	AnomalyFastLimitLarge int   `koanf:"anomaly_fast_limit_large"`

	// Promotion ruleset.
	RulesetVersion             string     `koanf:"ruleset_version"`
	KyuiSteps                  []KyuiStep `koanf:"kyui_steps"`
	DanPercentiles             []float64  `koanf:"dan_percentiles"`
	DenWinThresholds           []int      `koanf:"den_win_thresholds"`
	UtakuraiChampionThresholds []int      `koanf:"utakurai_champion_thresholds"`
	OfficialMinParticipants    int        `koanf:"official_min_participants"`

	// Calendars maps year to its configured competition periods.
	Calendars map[int][]PeriodConfig `koanf:"calendars"`

	// BoundarySchedule is the cron spec for the daily boundary check.
	BoundarySchedule string `koanf:"boundary_schedule"`

	// Timezone interprets the boundary schedule, e.g. "Asia/Tokyo".
	Timezone string `koanf:"timezone"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		QueueSize:           100_000,
		WorkerCount:         8,
		MaxLeaderboardLimit: 100,
		SessionTTLMinutes:   60,
		RulesetVersion:      "v1",
		KyuiSteps: []KyuiStep{
			{FromLevel: 1, CardSubset: "starter", SampleSize: 10, PassRate: 0.6},
			{FromLevel: 2, CardSubset: "starter", SampleSize: 10, PassRate: 0.8},
			{FromLevel: 3, CardSubset: "half", SampleSize: 25, PassRate: 0.6},
			{FromLevel: 4, CardSubset: "half", SampleSize: 25, PassRate: 0.8},
			{FromLevel: 5, CardSubset: "full", SampleSize: 50, PassRate: 0.8},
		},
		DanPercentiles:             []float64{0.5, 0.3, 0.2, 0.1, 0.05},
		DenWinThresholds:           []int{3, 8, 15},
		UtakuraiChampionThresholds: []int{1, 3},
		OfficialMinParticipants:    20,
		BoundarySchedule:           "5 0 * * *",
		Timezone:                   "Asia/Tokyo",
	}
}

// Ruleset converts the raw promotion fields into the engine's value object.
func (c *Config) Ruleset() rules.Ruleset {
	kyui := make([]rules.KyuiRequirement, 0, len(c.KyuiSteps))
	for _, s := range c.KyuiSteps {
		kyui = append(kyui, rules.KyuiRequirement{
			FromLevel:  s.FromLevel,
			CardSubset: s.CardSubset,
			SampleSize: s.SampleSize,
			PassRate:   s.PassRate,
		})
	}
	return rules.Ruleset{
		Version:                    c.RulesetVersion,
		Kyui:                       kyui,
		DanPercentiles:             c.DanPercentiles,
		DenWinThresholds:           c.DenWinThresholds,
		UtakuraiChampionThresholds: c.UtakuraiChampionThresholds,
		OfficialMinParticipants:    c.OfficialMinParticipants,
	}
}

// CalendarSet parses and validates the configured competition calendars.
func (c *Config) CalendarSet() (calendar.Set, error) {
	set := make(calendar.Set, len(c.Calendars))
	for year, periods := range c.Calendars {
		cal := calendar.Calendar{Year: year, Periods: make([]calendar.Period, 0, len(periods))}
		for _, pc := range periods {
			start, err := time.Parse(time.RFC3339, pc.Start)
			if err != nil {
				return nil, WrapKind(fmt.Sprintf("calendar %d period %q start", year, pc.ID), ErrInvalidConfig, err)
			}
			end, err := time.Parse(time.RFC3339, pc.End)
			if err != nil {
				return nil, WrapKind(fmt.Sprintf("calendar %d period %q end", year, pc.ID), ErrInvalidConfig, err)
			}
			cal.Periods = append(cal.Periods, calendar.Period{ID: pc.ID, Start: start, End: end})
		}
		set[year] = cal
	}
	if err := set.Validate(); err != nil {
		return nil, WrapKind("validate calendars", ErrInvalidConfig, err)
	}
	return set, nil
}

// AnomalyProfile builds a named detector profile with configured overrides.
func (c *Config) AnomalyProfile(name string) anomaly.Profile {
	return anomaly.NewProfile(name,
		anomaly.WithFastRoundMs(c.AnomalyFastRoundMs),
		anomaly.WithSlowRoundMs(c.AnomalySlowRoundMs),
		anomaly.WithFastLimits(c.AnomalyFastLimitSmall, c.AnomalyFastLimitLarge),
	)
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, WrapKind("load timezone", ErrInvalidConfig, err)
	}
	return loc, nil
}
