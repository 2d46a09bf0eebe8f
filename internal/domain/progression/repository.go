package progression

import (
	"context"
	"time"

	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Contracts for the storage layer. Implementations live in
// infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepository stores immutable XP transactions.
type LedgerRepository interface {
	// Append writes a new ledger entry. Entries are never updated or deleted.
	Append(ctx context.Context, tx *XPTransaction) error

	// GetByID returns one transaction.
	// Returns shared.ErrTransactionNotFound if absent.
	GetByID(ctx context.Context, id string) (*XPTransaction, error)

	// ListByUser returns the user's transactions, newest first.
	ListByUser(ctx context.Context, userID shared.UserID, p shared.Pagination) ([]*XPTransaction, error)

	// SumValidatedSince sums validated amounts for the user with
	// createdAt >= since. The query must be index-bounded by the window,
	// never a full-history scan.
	SumValidatedSince(ctx context.Context, userID shared.UserID, since time.Time) (int, error)

	// SumValidated sums all validated amounts for the user
	// (reconciliation against the profile total).
	SumValidated(ctx context.Context, userID shared.UserID) (int, error)
}

// ProfileRepository stores the materialized per-user aggregate.
type ProfileRepository interface {
	// GetByUser returns the user's profile.
	// Returns shared.ErrProfileNotFound if the user has no profile yet.
	GetByUser(ctx context.Context, userID shared.UserID) (*ProgressionProfile, error)

	// Save upserts the profile with an optimistic version check.
	// Returns shared.ErrConcurrentUpdate when the stored version moved on.
	Save(ctx context.Context, profile *ProgressionProfile) error
}

// ProfileCache is a best-effort read cache in front of ProfileRepository.
// A miss returns (nil, nil). The cache is never consulted inside the award
// transaction; reads tolerate TTL staleness and every committed award
// invalidates the entry.
type ProfileCache interface {
	Get(ctx context.Context, userID shared.UserID) (*ProgressionProfile, error)
	Set(ctx context.Context, profile *ProgressionProfile) error
	Invalidate(ctx context.Context, userID shared.UserID) error
}

// AchievementRepository stores definitions and per-user unlocks.
type AchievementRepository interface {
	// ListActive returns all active achievement definitions.
	ListActive(ctx context.Context) ([]Achievement, error)

	// ListUnlocked returns the user's unlock records.
	ListUnlocked(ctx context.Context, userID shared.UserID) ([]*UnlockedAchievement, error)

	// SaveUnlocked creates an unlock record.
	// Returns shared.ErrAlreadyUnlocked on duplicates.
	SaveUnlocked(ctx context.Context, unlocked *UnlockedAchievement) error
}

// AwardRequest carries one award into the atomic store.
type AwardRequest struct {
	UserID shared.UserID
	Limits RateLimits

	// Prepare runs on the profile loaded under a row lock (created lazily on
	// first award). The multiplier stack needs the up-to-date streak, so the
	// ledger entry is built here: Prepare records the day's activity, resolves
	// the final amount, mutates the profile, and returns the entry to append.
	Prepare func(profile *ProgressionProfile, now time.Time) (*XPTransaction, error)

	// Enlist, when set, runs inside the same storage transaction after the
	// guard admits the amount. Co-owned aggregates (lesson progress,
	// enrollment) are written here so the whole award commits or rolls back
	// as one unit. The entry carries the final amount.
	Enlist func(ctx context.Context, entry *XPTransaction) error
}

// AwardResult reports what the atomic award transaction did.
type AwardResult struct {
	Transaction *XPTransaction

	// Profile is the committed post-award aggregate; the achievement
	// evaluator reads it for the follow-up pass.
	Profile *ProgressionProfile
}

// AwardStore executes the award steps in one storage transaction. Ordering
// inside the transaction: lock-or-create the profile, Prepare, rolling
// window guard sums over the ledger (inclusive of the new amount), ledger
// append, profile save, Enlist. A guard rejection or any failure rolls the
// whole unit back.
type AwardStore interface {
	ExecuteAward(ctx context.Context, req AwardRequest) (*AwardResult, error)
}
