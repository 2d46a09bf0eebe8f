package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

func TestRateLimits_Check(t *testing.T) {
	limits := DefaultRateLimits()

	assert.NoError(t, limits.Check(WindowUsage{}, 100))
	assert.NoError(t, limits.Check(WindowUsage{LastHourXP: 400, LastDayXP: 400}, 100))

	// The new amount counts toward the window before comparison.
	err := limits.Check(WindowUsage{LastHourXP: 400, LastDayXP: 400}, 101)
	assert.ErrorIs(t, err, shared.ErrRateLimitExceeded)

	err = limits.Check(WindowUsage{LastHourXP: 0, LastDayXP: 1950}, 100)
	assert.ErrorIs(t, err, shared.ErrRateLimitExceeded)
}

func TestRateLimits_ZeroCapDisables(t *testing.T) {
	limits := RateLimits{HourlyCap: 0, DailyCap: 0}
	assert.NoError(t, limits.Check(WindowUsage{LastHourXP: 100000, LastDayXP: 100000}, 100000))

	limits = RateLimits{HourlyCap: 0, DailyCap: 200}
	assert.ErrorIs(t, limits.Check(WindowUsage{LastDayXP: 150}, 100), shared.ErrRateLimitExceeded)
}

func TestRollingCounter_Usage(t *testing.T) {
	counter := NewRollingCounter()
	user := shared.UserID("user-1")
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	counter.Record(user, 50, now.Add(-30*time.Minute))
	counter.Record(user, 80, now.Add(-3*time.Hour))

	usage := counter.Usage(user, now)
	assert.Equal(t, 50, usage.LastHourXP)
	assert.Equal(t, 130, usage.LastDayXP)
}

func TestRollingCounter_PrunesOldEntries(t *testing.T) {
	counter := NewRollingCounter()
	user := shared.UserID("user-1")
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	counter.Record(user, 500, now.Add(-25*time.Hour))
	counter.Record(user, 40, now.Add(-10*time.Minute))

	usage := counter.Usage(user, now)
	assert.Equal(t, 40, usage.LastHourXP)
	assert.Equal(t, 40, usage.LastDayXP)
}

func TestRollingCounter_UnknownUser(t *testing.T) {
	counter := NewRollingCounter()
	usage := counter.Usage(shared.UserID("nobody"), time.Now())
	assert.Equal(t, WindowUsage{}, usage)
}

func TestRollingCounter_UsersAreIndependent(t *testing.T) {
	counter := NewRollingCounter()
	now := time.Now()

	counter.Record(shared.UserID("a"), 100, now)
	counter.Record(shared.UserID("b"), 30, now)

	assert.Equal(t, 100, counter.Usage(shared.UserID("a"), now).LastDayXP)
	assert.Equal(t, 30, counter.Usage(shared.UserID("b"), now).LastDayXP)
}
