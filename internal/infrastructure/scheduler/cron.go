package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CronExpression is a parsed 5-field cron schedule:
// minute hour day-of-month month day-of-week. It satisfies Schedule, so a
// parsed expression plugs straight into Scheduler.Register.
//
//	"*/5 * * * *"  every 5 minutes
//	"0 21 * * *"   every day at 21:00
//	"0 0 * * 0"    Sundays at midnight
type CronExpression struct {
	raw      string
	minutes  []int
	hours    []int
	days     []int
	months   []int
	weekdays []int
}

// ParseCronExpression parses a 5-field cron expression. Each field accepts
// "*", "*/n", "a-b", and comma lists of values.
func ParseCronExpression(expr string) (*CronExpression, error) {
	fields := strings.Fields(strings.TrimSpace(expr))
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression: expected 5 fields, got %d", len(fields))
	}

	ce := &CronExpression{raw: strings.Join(fields, " ")}
	var err error
	if ce.minutes, err = parseCronField(fields[0], 0, 59); err != nil {
		return nil, fmt.Errorf("invalid minute field: %w", err)
	}
	if ce.hours, err = parseCronField(fields[1], 0, 23); err != nil {
		return nil, fmt.Errorf("invalid hour field: %w", err)
	}
	if ce.days, err = parseCronField(fields[2], 1, 31); err != nil {
		return nil, fmt.Errorf("invalid day field: %w", err)
	}
	if ce.months, err = parseCronField(fields[3], 1, 12); err != nil {
		return nil, fmt.Errorf("invalid month field: %w", err)
	}
	if ce.weekdays, err = parseCronField(fields[4], 0, 6); err != nil {
		return nil, fmt.Errorf("invalid weekday field: %w", err)
	}
	return ce, nil
}

// MustParseCronExpression parses or panics; for fixed expressions in code.
func MustParseCronExpression(expr string) *CronExpression {
	ce, err := ParseCronExpression(expr)
	if err != nil {
		panic(err)
	}
	return ce
}

// parseCronField expands one field into its sorted matching values.
func parseCronField(field string, lo, hi int) ([]int, error) {
	if field == "*" {
		return rangeValues(lo, hi, 1), nil
	}

	if strings.HasPrefix(field, "*/") {
		step, err := strconv.Atoi(field[2:])
		if err != nil || step <= 0 {
			return nil, fmt.Errorf("invalid step value: %s", field[2:])
		}
		return rangeValues(lo, hi, step), nil
	}

	var out []int
	for _, part := range strings.Split(field, ",") {
		if from, to, ok := strings.Cut(part, "-"); ok {
			start, err1 := strconv.Atoi(from)
			end, err2 := strconv.Atoi(to)
			if err1 != nil || err2 != nil || start > end {
				return nil, fmt.Errorf("invalid range: %s", part)
			}
			if start < lo || end > hi {
				return nil, fmt.Errorf("value out of range [%d-%d]: %s", lo, hi, part)
			}
			out = append(out, rangeValues(start, end, 1)...)
			continue
		}

		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid value: %s", part)
		}
		if v < lo || v > hi {
			return nil, fmt.Errorf("value out of range [%d-%d]: %d", lo, hi, v)
		}
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}

func rangeValues(lo, hi, step int) []int {
	out := make([]int, 0, (hi-lo)/step+1)
	for v := lo; v <= hi; v += step {
		out = append(out, v)
	}
	return out
}

// String returns the normalized expression text.
func (ce *CronExpression) String() string {
	return ce.raw
}

// Next returns the first matching time strictly after the given time,
// stepping minute by minute. Gives up one year out, which no 5-field
// expression with at least one matching value ever reaches.
func (ce *CronExpression) Next(after time.Time) time.Time {
	t := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.AddDate(1, 0, 0)

	for t.Before(limit) {
		if ce.matches(t) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}
}

func (ce *CronExpression) matches(t time.Time) bool {
	return containsInt(ce.minutes, t.Minute()) &&
		containsInt(ce.hours, t.Hour()) &&
		containsInt(ce.days, t.Day()) &&
		containsInt(ce.months, int(t.Month())) &&
		containsInt(ce.weekdays, int(t.Weekday()))
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
