package progression

import (
	"sync"
	"time"

	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ABUSE GUARD
// Rolling hourly/daily XP caps. The authoritative check is a time-bounded
// ledger sum inside the award transaction; the RollingCounter below is an
// incrementally maintained in-process mirror so the window math stays
// bounded regardless of ledger size.
// ══════════════════════════════════════════════════════════════════════════════

// RateLimits holds the configured rolling-window caps.
type RateLimits struct {
	// HourlyCap - max XP admitted per trailing hour. 0 disables the check.
	HourlyCap int

	// DailyCap - max XP admitted per trailing 24 hours. 0 disables the check.
	DailyCap int
}

// DefaultRateLimits returns the standard caps.
func DefaultRateLimits() RateLimits {
	return RateLimits{HourlyCap: 500, DailyCap: 2000}
}

// WindowUsage is the XP already admitted in the guard's rolling windows.
type WindowUsage struct {
	LastHourXP int
	LastDayXP  int
}

// Check admits or rejects a new amount against the caps. The new amount is
// included in both windows before comparison, so a transaction that would
// push either window over its cap is rejected and nothing is mutated.
func (l RateLimits) Check(usage WindowUsage, amount int) error {
	if l.HourlyCap > 0 && usage.LastHourXP+amount > l.HourlyCap {
		return shared.ErrRateLimitExceeded
	}
	if l.DailyCap > 0 && usage.LastDayXP+amount > l.DailyCap {
		return shared.ErrRateLimitExceeded
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ROLLING COUNTER
// ══════════════════════════════════════════════════════════════════════════════

type grantEntry struct {
	at     time.Time
	amount int
}

// RollingCounter maintains per-user admitted amounts over the trailing 24
// hours. Entries older than the day window are pruned on every access, so
// per-user memory is bounded by the daily cap rather than ledger history.
type RollingCounter struct {
	mu     sync.Mutex
	grants map[string][]grantEntry
}

// NewRollingCounter creates an empty counter.
func NewRollingCounter() *RollingCounter {
	return &RollingCounter{grants: make(map[string][]grantEntry)}
}

// Record registers an admitted amount for the user.
func (c *RollingCounter) Record(userID shared.UserID, amount int, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := userID.String()
	entries := c.prune(c.grants[key], at)
	entries = append(entries, grantEntry{at: at, amount: amount})
	c.grants[key] = entries
}

// Usage returns the admitted XP in the trailing hour and 24 hours.
func (c *RollingCounter) Usage(userID shared.UserID, now time.Time) WindowUsage {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := userID.String()
	entries := c.prune(c.grants[key], now)
	if len(entries) == 0 {
		delete(c.grants, key)
		return WindowUsage{}
	}
	c.grants[key] = entries

	hourStart := now.Add(-time.Hour)
	var usage WindowUsage
	for _, e := range entries {
		usage.LastDayXP += e.amount
		if !e.at.Before(hourStart) {
			usage.LastHourXP += e.amount
		}
	}
	return usage
}

// prune drops entries outside the 24-hour window. Entries are appended in
// time order, so the first retained index covers the rest.
func (c *RollingCounter) prune(entries []grantEntry, now time.Time) []grantEntry {
	dayStart := now.Add(-24 * time.Hour)
	keep := 0
	for keep < len(entries) && entries[keep].at.Before(dayStart) {
		keep++
	}
	if keep == 0 {
		return entries
	}
	return append([]grantEntry(nil), entries[keep:]...)
}
