// Package leaderboard contains the best-effort top-N ranking by total XP.
package leaderboard

import (
	"context"

	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD STORE INTERFACE
// Implemented in infrastructure (Redis sorted set). The store is a
// projection: write failures are tolerated and self-heal on the next update.
// ══════════════════════════════════════════════════════════════════════════════

// Store is the ranking projection.
type Store interface {
	// UpsertScore projects a user's current total XP into the ranking.
	UpsertScore(ctx context.Context, userID shared.UserID, displayName string, score int) error

	// GetTop returns the highest-scored entries, best first.
	GetTop(ctx context.Context, limit int) ([]*Entry, error)

	// GetPage returns one page of the ranking.
	GetPage(ctx context.Context, p shared.Pagination) ([]*Entry, error)

	// GetRank returns a user's entry with its current rank.
	// Returns shared.ErrLeaderboardNotFound when the user is not projected.
	GetRank(ctx context.Context, userID shared.UserID) (*Entry, error)

	// GetNeighbors returns the entries around a user, rangeSize on each side.
	GetNeighbors(ctx context.Context, userID shared.UserID, rangeSize int) ([]*Entry, error)

	// GetTotalCount returns the number of projected users.
	GetTotalCount(ctx context.Context) (int, error)

	// Remove deletes a user from the ranking.
	Remove(ctx context.Context, userID shared.UserID) error

	// Rebuild replaces the whole projection with the given entries
	// (on-demand repair from the authoritative profiles).
	Rebuild(ctx context.Context, entries []*Entry) error
}
