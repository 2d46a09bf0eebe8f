package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/skillforge/skillforge-engine/pkg/timeutil"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 15, 30, 0, 0, time.UTC)
}

func TestTrack_FirstActivity(t *testing.T) {
	next, result := Track(Streak{}, day(2026, time.March, 10))

	assert.Equal(t, 1, next.Current)
	assert.Equal(t, 1, next.Longest)
	assert.Equal(t, timeutil.DateOnly(day(2026, time.March, 10)), next.LastActivityAt)
	assert.True(t, result.Continued)
	assert.False(t, result.WasReset)
}

func TestTrack_SameDayIsNoOp(t *testing.T) {
	prev, _ := Track(Streak{}, day(2026, time.March, 10))

	// A second activity later the same day changes nothing.
	next, result := Track(prev, day(2026, time.March, 10).Add(5*time.Hour))

	assert.Equal(t, prev, next)
	assert.Equal(t, 1, result.Current)
	assert.False(t, result.Continued)
	assert.False(t, result.WasReset)
}

func TestTrack_ConsecutiveDayIncrements(t *testing.T) {
	prev, _ := Track(Streak{}, day(2026, time.March, 10))
	next, result := Track(prev, day(2026, time.March, 11))

	assert.Equal(t, 2, next.Current)
	assert.Equal(t, 2, next.Longest)
	assert.True(t, result.Continued)
	assert.False(t, result.WasReset)
}

func TestTrack_GapResetsToOne(t *testing.T) {
	prev := Streak{Current: 5, Longest: 9, LastActivityAt: timeutil.DateOnly(day(2026, time.March, 10))}

	next, result := Track(prev, day(2026, time.March, 13))

	assert.Equal(t, 1, next.Current)
	assert.Equal(t, 9, next.Longest)
	assert.True(t, result.WasReset)
	assert.True(t, result.Continued)
}

func TestTrack_LongestPreservedThroughReset(t *testing.T) {
	s := Streak{}
	for i := 0; i < 4; i++ {
		s, _ = Track(s, day(2026, time.March, 10+i))
	}
	assert.Equal(t, 4, s.Current)
	assert.Equal(t, 4, s.Longest)

	s, _ = Track(s, day(2026, time.March, 20))
	assert.Equal(t, 1, s.Current)
	assert.Equal(t, 4, s.Longest)

	s, _ = Track(s, day(2026, time.March, 21))
	assert.Equal(t, 2, s.Current)
	assert.Equal(t, 4, s.Longest)
}

func TestStreak_IsBroken(t *testing.T) {
	s := Streak{Current: 3, LastActivityAt: timeutil.DateOnly(day(2026, time.March, 10))}

	assert.False(t, s.IsBroken(day(2026, time.March, 10)))
	assert.False(t, s.IsBroken(day(2026, time.March, 11)))
	assert.True(t, s.IsBroken(day(2026, time.March, 12)))

	assert.False(t, Streak{}.IsBroken(day(2026, time.March, 12)))
}
