// Package calendar maps wall-clock instants to named competition
// periods using operator-configured boundary instants.
package calendar

import (
	"fmt"
	"sort"
	"time"
)

// Period is one competition window: [Start, End).
type Period struct {
	ID    string
	Start time.Time
	End   time.Time
}

// Contains reports whether the instant falls inside the half-open window.
func (p Period) Contains(at time.Time) bool {
	return !at.Before(p.Start) && at.Before(p.End)
}

// Calendar is one year's ordered set of periods. Immutable once any of
// its periods has started; created ahead of time by an operator.
type Calendar struct {
	Year    int
	Periods []Period
}

// Set indexes calendars by year.
type Set map[int]Calendar

// Resolution names the period containing a resolved instant.
type Resolution struct {
	PeriodID string
	Year     int
}

// SeasonKey is the storage key for the resolved season, e.g. "2026-summer".
func (r Resolution) SeasonKey() string {
	return fmt.Sprintf("%d-%s", r.Year, r.PeriodID)
}

// Resolve returns the period whose window contains the instant,
// preferring the instant's own year and falling back to the prior
// year's calendar so winter periods spanning Jan 1 resolve correctly.
// The second return is false when no configured period matches:
// callers must treat that as "competition currently paused", not as an
// error.
func (s Set) Resolve(at time.Time) (Resolution, bool) {
	for _, year := range []int{at.Year(), at.Year() - 1} {
		cal, ok := s[year]
		if !ok {
			continue
		}
		for _, p := range cal.Periods {
			if p.Contains(at) {
				return Resolution{PeriodID: p.ID, Year: year}, true
			}
		}
	}
	return Resolution{}, false
}

// Previous returns the most recently ended period at the given
// instant, searching the instant's year then the prior year. Used by
// the daily boundary check to find the season that needs freezing.
func (s Set) Previous(at time.Time) (Resolution, bool) {
	var (
		best    Resolution
		bestEnd time.Time
		found   bool
	)
	for _, year := range []int{at.Year(), at.Year() - 1} {
		cal, ok := s[year]
		if !ok {
			continue
		}
		for _, p := range cal.Periods {
			if !p.End.After(at) && (!found || p.End.After(bestEnd)) {
				best = Resolution{PeriodID: p.ID, Year: year}
				bestEnd = p.End
				found = true
			}
		}
	}
	return best, found
}

// Known reports whether the season key names a configured period.
func (s Set) Known(key string) bool {
	for year, cal := range s {
		for _, p := range cal.Periods {
			if (Resolution{PeriodID: p.ID, Year: year}).SeasonKey() == key {
				return true
			}
		}
	}
	return false
}

// Validate checks that every calendar's periods are well-formed and
// non-overlapping. Periods are sorted by start as a side effect so
// resolution order is deterministic.
func (s Set) Validate() error {
	for year, cal := range s {
		periods := cal.Periods
		sort.Slice(periods, func(i, j int) bool { return periods[i].Start.Before(periods[j].Start) })
		for i, p := range periods {
			if p.ID == "" {
				return fmt.Errorf("calendar %d: period %d has no id", year, i)
			}
			if !p.End.After(p.Start) {
				return fmt.Errorf("calendar %d: period %q ends before it starts", year, p.ID)
			}
			if i > 0 && p.Start.Before(periods[i-1].End) {
				return fmt.Errorf("calendar %d: period %q overlaps %q", year, p.ID, periods[i-1].ID)
			}
		}
		cal.Periods = periods
		s[year] = cal
	}
	return nil
}
