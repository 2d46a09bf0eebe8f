// Package jobs contains the scheduled job implementations.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/skillforge/skillforge-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD JOB
// ══════════════════════════════════════════════════════════════════════════════

// Rebuilder repairs the ranking projection from the system of record.
type Rebuilder interface {
	Rebuild(ctx context.Context) error
}

// RebuildLeaderboardJob periodically replaces the ranking projection with a
// fresh build from the profiles table. The projection is written best-effort
// on every award, so a scheduled rebuild bounds how long a dropped update
// can stay visible.
type RebuildLeaderboardJob struct {
	rebuilder Rebuilder
	log       *logger.Logger
	timeout   time.Duration

	lastStats atomic.Value // *RebuildStats
}

// RebuildStats records the outcome of the most recent rebuild.
type RebuildStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Err         error
}

// NewRebuildLeaderboardJob creates the rebuild job. A zero timeout means the
// default of five minutes.
func NewRebuildLeaderboardJob(rebuilder Rebuilder, log *logger.Logger, timeout time.Duration) *RebuildLeaderboardJob {
	if log == nil {
		log = logger.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &RebuildLeaderboardJob{
		rebuilder: rebuilder,
		log:       log.With(logger.Component("rebuild_leaderboard")),
		timeout:   timeout,
	}
}

// Name returns the job name.
func (j *RebuildLeaderboardJob) Name() string {
	return "rebuild_leaderboard"
}

// Description returns a human-readable description.
func (j *RebuildLeaderboardJob) Description() string {
	return "Rebuilds the leaderboard projection from the progression profiles"
}

// Run executes one rebuild under the configured timeout.
func (j *RebuildLeaderboardJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	err := j.rebuilder.Rebuild(ctx)

	stats := &RebuildStats{
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
		Err:         err,
	}
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastStats.Store(stats)

	if err != nil {
		return fmt.Errorf("failed to rebuild leaderboard: %w", err)
	}
	j.log.Info("leaderboard rebuilt", logger.Duration("duration", stats.Duration))
	return nil
}

// LastRebuildStats returns the most recent run's stats, or nil before the
// first run.
func (j *RebuildLeaderboardJob) LastRebuildStats() *RebuildStats {
	stats := j.lastStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*RebuildStats)
}
