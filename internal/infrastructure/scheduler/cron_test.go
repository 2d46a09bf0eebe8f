package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseCronExpression(t *testing.T) {
	ce, err := ParseCronExpression("*/15 * * * *")
	assert.NoError(t, err)
	assert.Equal(t, []int{0, 15, 30, 45}, ce.minutes)
	assert.Equal(t, "*/15 * * * *", ce.String())

	ce, err = ParseCronExpression("0 9-17 * * 1-5")
	assert.NoError(t, err)
	assert.Equal(t, []int{0}, ce.minutes)
	assert.Equal(t, []int{9, 10, 11, 12, 13, 14, 15, 16, 17}, ce.hours)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, ce.weekdays)

	ce, err = ParseCronExpression("0 0,12 * * *")
	assert.NoError(t, err)
	assert.Equal(t, []int{0, 12}, ce.hours)
}

func TestParseCronExpression_Errors(t *testing.T) {
	_, err := ParseCronExpression("* * * *")
	assert.ErrorContains(t, err, "expected 5 fields")

	_, err = ParseCronExpression("61 * * * *")
	assert.ErrorContains(t, err, "invalid minute field")

	_, err = ParseCronExpression("* 24 * * *")
	assert.ErrorContains(t, err, "invalid hour field")

	_, err = ParseCronExpression("*/x * * * *")
	assert.ErrorContains(t, err, "invalid step value")
}

func TestCronExpression_Next(t *testing.T) {
	// Every day at 21:00.
	ce := MustParseCronExpression("0 21 * * *")

	from := time.Date(2026, time.March, 10, 15, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.March, 10, 21, 0, 0, 0, time.UTC), ce.Next(from))

	// Already past today's slot rolls to tomorrow.
	from = time.Date(2026, time.March, 10, 21, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.March, 11, 21, 0, 0, 0, time.UTC), ce.Next(from))
}

func TestCronExpression_NextEveryFiveMinutes(t *testing.T) {
	ce := MustParseCronExpression("*/5 * * * *")

	from := time.Date(2026, time.March, 10, 12, 3, 20, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.March, 10, 12, 5, 0, 0, time.UTC), ce.Next(from))

	// From an exact match, the next slot is five minutes later.
	from = time.Date(2026, time.March, 10, 12, 5, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.March, 10, 12, 10, 0, 0, time.UTC), ce.Next(from))
}

func TestCronExpression_WeekdayFilter(t *testing.T) {
	// Sundays at midnight. 2026-03-10 is a Tuesday.
	ce := MustParseCronExpression("0 0 * * 0")

	from := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	next := ce.Next(from)
	assert.Equal(t, time.Weekday(0), next.Weekday())
	assert.Equal(t, time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC), next)
}
