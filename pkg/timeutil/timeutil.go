// Package timeutil provides calendar-day utilities for the progression engine.
// Streaks and daily bonuses are computed against one canonical time zone (UTC
// by default) so that a "day" means the same thing on every server and client.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// CanonicalTZ is the time zone against which calendar days are computed.
// Defaults to UTC; SetCanonicalTZ allows an operator override at startup.
var CanonicalTZ = time.UTC

// SetCanonicalTZ overrides the canonical time zone. Must be called during
// startup, before any streak or daily-bonus computation.
func SetCanonicalTZ(loc *time.Location) {
	if loc != nil {
		CanonicalTZ = loc
	}
}

// Now returns the current time in the canonical time zone.
func Now() time.Time {
	return time.Now().In(CanonicalTZ)
}

// ToCanonical converts a time to the canonical time zone.
func ToCanonical(t time.Time) time.Time {
	return t.In(CanonicalTZ)
}

// StartOfDay returns the start of the calendar day (00:00:00) containing t.
func StartOfDay(t time.Time) time.Time {
	c := ToCanonical(t)
	return time.Date(c.Year(), c.Month(), c.Day(), 0, 0, 0, 0, CanonicalTZ)
}

// DateOnly truncates a time to its calendar date. Alias for StartOfDay,
// named for call sites that store dates rather than day boundaries.
func DateOnly(t time.Time) time.Time {
	return StartOfDay(t)
}

// IsSameDay checks if two times fall on the same calendar day.
func IsSameDay(t1, t2 time.Time) bool {
	c1, c2 := ToCanonical(t1), ToCanonical(t2)
	return c1.Year() == c2.Year() && c1.YearDay() == c2.YearDay()
}

// IsConsecutiveDay checks if t2 falls on the day immediately after t1.
func IsConsecutiveDay(t1, t2 time.Time) bool {
	nextDay := StartOfDay(t1).AddDate(0, 0, 1)
	return IsSameDay(nextDay, t2)
}

// DaysBetween returns the number of whole calendar days from t1 to t2.
// Negative when t2 precedes t1. Uses AddDate rather than duration division
// so DST transitions in a non-UTC canonical zone cannot skew the count.
func DaysBetween(t1, t2 time.Time) int {
	d1 := StartOfDay(t1)
	d2 := StartOfDay(t2)

	days := 0
	switch {
	case d1.Before(d2):
		for d1.Before(d2) {
			d1 = d1.AddDate(0, 0, 1)
			days++
		}
	case d2.Before(d1):
		for d2.Before(d1) {
			d2 = d2.AddDate(0, 0, 1)
			days--
		}
	}
	return days
}

// DaysSince returns the number of whole calendar days from t until now.
func DaysSince(t time.Time) int {
	return DaysBetween(t, Now())
}

// IsToday checks if the given time falls on the current calendar day.
func IsToday(t time.Time) bool {
	return IsSameDay(t, Now())
}

// IsYesterday checks if the given time falls on the previous calendar day.
func IsYesterday(t time.Time) bool {
	return IsSameDay(t, Now().AddDate(0, 0, -1))
}

// FormatDate is the standard date format (YYYY-MM-DD).
const FormatDate = "2006-01-02"

// FormatDateStr formats a time as a date string in the canonical time zone.
func FormatDateStr(t time.Time) string {
	return ToCanonical(t).Format(FormatDate)
}

// ParseDate parses a date string (YYYY-MM-DD) in the canonical time zone.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, CanonicalTZ)
}
