// Package service contains infrastructure services that bridge the event bus
// and the projection stores.
package service

import (
	"context"
	"time"

	"github.com/skillforge/skillforge-engine/internal/domain/leaderboard"
	"github.com/skillforge/skillforge-engine/internal/domain/progression"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
	"github.com/skillforge/skillforge-engine/pkg/circuitbreaker"
	"github.com/skillforge/skillforge-engine/pkg/logger"
	"github.com/skillforge/skillforge-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD PROJECTOR
// Subscribes to XP award events and projects score changes into the ranking
// store. Strictly best-effort: a failed projection write is logged and
// dropped, never surfaced to the award path, and the next award for the same
// user overwrites the stale score.
// ══════════════════════════════════════════════════════════════════════════════

// ProfileLister reads profiles from the system of record for rebuilds.
type ProfileLister interface {
	ListTopByXP(ctx context.Context, limit int) ([]*progression.ProgressionProfile, error)
}

// DisplayNameResolver maps a user ID to a display name. Optional; the
// identity provider owns names, the engine only carries them through.
type DisplayNameResolver func(userID shared.UserID) string

// LeaderboardProjector keeps the ranking store in sync with the ledger.
type LeaderboardProjector struct {
	store    leaderboard.Store
	profiles ProfileLister
	resolver DisplayNameResolver
	breaker  *circuitbreaker.CircuitBreaker
	retrier  *retry.Retrier
	log      *logger.Logger

	// updateTimeout bounds each projection write.
	updateTimeout time.Duration

	// rebuildLimit caps how many profiles a rebuild projects.
	rebuildLimit int
}

// LeaderboardProjectorConfig configures the projector.
type LeaderboardProjectorConfig struct {
	Store    leaderboard.Store
	Profiles ProfileLister

	// Resolver is optional; nil projects entries without display names.
	Resolver DisplayNameResolver

	Logger *logger.Logger

	// UpdateTimeout bounds each projection write (default 2s).
	UpdateTimeout time.Duration

	// RebuildLimit caps rebuild size (default 10000).
	RebuildLimit int
}

// NewLeaderboardProjector creates a projector with the standard breaker and
// retry policy for best-effort cache writes.
func NewLeaderboardProjector(cfg LeaderboardProjectorConfig) *LeaderboardProjector {
	if cfg.UpdateTimeout <= 0 {
		cfg.UpdateTimeout = 2 * time.Second
	}
	if cfg.RebuildLimit <= 0 {
		cfg.RebuildLimit = 10000
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	p := &LeaderboardProjector{
		store:         cfg.Store,
		profiles:      cfg.Profiles,
		resolver:      cfg.Resolver,
		retrier:       retry.CacheRetrier(),
		log:           cfg.Logger.With(logger.Component("leaderboard_projector")),
		updateTimeout: cfg.UpdateTimeout,
		rebuildLimit:  cfg.RebuildLimit,
	}
	p.breaker = circuitbreaker.LeaderboardBreaker(func(name string, from, to circuitbreaker.State) {
		p.log.Warn("circuit state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	})
	return p
}

// HandleEvent projects one XP award into the ranking; registered with the
// event dispatcher under the XP-awarded type. Always returns nil:
// projection failures must never propagate back into the award flow.
func (p *LeaderboardProjector) HandleEvent(event shared.Event) error {
	payload := event.Payload()

	userID, _ := payload["user_id"].(string)
	if userID == "" {
		return nil
	}
	newTotal := intFromPayload(payload["new_total"])
	if newTotal < 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.updateTimeout)
	defer cancel()

	p.Project(ctx, shared.UserID(userID), newTotal)
	return nil
}

// Project writes one score through the breaker and retry policy.
func (p *LeaderboardProjector) Project(ctx context.Context, userID shared.UserID, totalXP int) {
	var displayName string
	if p.resolver != nil {
		displayName = p.resolver(userID)
	}

	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.retrier.Do(ctx, func(ctx context.Context) error {
			if err := p.store.UpsertScore(ctx, userID, displayName, totalXP); err != nil {
				return retry.Retryable(err)
			}
			return nil
		})
	})
	if err != nil {
		p.log.Warn("projection update dropped",
			logger.UserID(userID.String()),
			logger.XPAmount(totalXP),
			logger.Err(err),
		)
	}
}

// Rebuild replaces the whole projection from the profiles table.
func (p *LeaderboardProjector) Rebuild(ctx context.Context) error {
	profiles, err := p.profiles.ListTopByXP(ctx, p.rebuildLimit)
	if err != nil {
		return err
	}

	entries := make([]*leaderboard.Entry, 0, len(profiles))
	for i, profile := range profiles {
		var displayName string
		if p.resolver != nil {
			displayName = p.resolver(profile.UserID)
		}
		entries = append(entries, &leaderboard.Entry{
			Rank:        shared.Rank(i + 1),
			UserID:      profile.UserID,
			DisplayName: displayName,
			Score:       profile.TotalXP.Int(),
			Level:       profile.CurrentLevel,
			UpdatedAt:   time.Now().UTC(),
		})
	}

	if err := p.store.Rebuild(ctx, entries); err != nil {
		return err
	}

	p.log.Info("projection rebuilt", logger.Int("entries", len(entries)))
	return nil
}

// intFromPayload reads an int out of a deserialized payload value. JSON
// round-trips turn ints into float64.
func intFromPayload(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return -1
	}
}
