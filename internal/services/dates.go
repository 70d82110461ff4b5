package services

import (
	"math"
	"time"
	// The engine's calendar arithmetic must be DST-correct even on hosts
	// without a system zone database (scratch containers).
	_ "time/tzdata"
)

// dateDisplayFormat matches the short en-US style used in task templates,
// e.g. "Mar 5, 2026".
const dateDisplayFormat = "Jan 2, 2006"

// FormatDate renders a date for display in templates.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateDisplayFormat)
}

// DaysUntil returns the number of calendar days from "now" to the target
// date, counted on the organization's local calendar. The target is
// date-valued (stored at midnight UTC), so its calendar date is taken as
// stored rather than shifted through the location. The result may be
// negative when the date is already past.
func DaysUntil(target time.Time, now time.Time, loc *time.Location) int {
	if target.IsZero() {
		return 0
	}
	if loc == nil {
		loc = time.UTC
	}

	ty, tm, td := target.Date()
	n := now.In(loc)

	targetMidnight := time.Date(ty, tm, td, 0, 0, 0, 0, loc)
	todayMidnight := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)

	// Midnight-to-midnight spans are whole days except across a DST shift,
	// where one day is 23h or 25h; rounding absorbs the skew.
	return int(math.Round(targetMidnight.Sub(todayMidnight).Hours() / 24))
}

// LocalDate returns midnight UTC of the calendar date that "now" falls on
// in the given location. Date-valued columns are stored at midnight UTC, so
// this is the value renewal dates are compared against.
func LocalDate(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	n := now.In(loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

// LocalHour returns the wall-clock hour (0-23) in the given location.
func LocalHour(now time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Hour()
}

// LoadLocationOrDefault resolves an IANA timezone name, falling back to the
// default zone when the name is empty or unknown, and to UTC if even the
// default cannot be loaded.
func LoadLocationOrDefault(name, fallback string) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	if fallback != "" {
		if loc, err := time.LoadLocation(fallback); err == nil {
			return loc
		}
	}
	return time.UTC
}
