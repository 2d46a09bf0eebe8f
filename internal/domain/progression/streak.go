package progression

import (
	"time"

	"github.com/skillforge/skillforge-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK TRACKER
// Calendar-day comparison against one canonical time zone (timeutil).
// Multiple activities on the same day are a no-op, never a double increment.
// ══════════════════════════════════════════════════════════════════════════════

// Streak holds a user's daily activity streak state.
type Streak struct {
	// Current - current run of consecutive active days.
	Current int

	// Longest - best run ever recorded.
	Longest int

	// LastActivityAt - the most recent active calendar day (date, not timestamp).
	LastActivityAt time.Time
}

// StreakResult describes the outcome of recording one activity.
type StreakResult struct {
	// Current - streak after the update.
	Current int

	// Longest - longest streak after the update.
	Longest int

	// Continued - true when the activity extended the streak to a new day.
	Continued bool

	// WasReset - true when a gap of more than one day reset the streak.
	WasReset bool
}

// Track records an activity at the given time and returns the updated streak.
// Pure transition over (previous state, activity day):
//   - same calendar day: no change
//   - exactly the next calendar day: streak += 1
//   - a gap of more than one day (or first ever activity): streak resets to 1
func Track(prev Streak, at time.Time) (Streak, StreakResult) {
	day := timeutil.DateOnly(at)

	if prev.LastActivityAt.IsZero() {
		next := Streak{Current: 1, Longest: max(prev.Longest, 1), LastActivityAt: day}
		return next, StreakResult{Current: next.Current, Longest: next.Longest, Continued: true}
	}

	switch timeutil.DaysBetween(prev.LastActivityAt, day) {
	case 0:
		// Already counted today.
		return prev, StreakResult{Current: prev.Current, Longest: prev.Longest}
	case 1:
		next := Streak{
			Current:        prev.Current + 1,
			Longest:        max(prev.Longest, prev.Current+1),
			LastActivityAt: day,
		}
		return next, StreakResult{Current: next.Current, Longest: next.Longest, Continued: true}
	default:
		next := Streak{Current: 1, Longest: prev.Longest, LastActivityAt: day}
		return next, StreakResult{Current: 1, Longest: prev.Longest, Continued: true, WasReset: true}
	}
}

// IsBroken reports whether the streak has lapsed (no activity yesterday or
// today). A broken streak resets to 1 on the next recorded activity.
func (s Streak) IsBroken(now time.Time) bool {
	if s.LastActivityAt.IsZero() {
		return false
	}
	return timeutil.DaysBetween(s.LastActivityAt, now) > 1
}
