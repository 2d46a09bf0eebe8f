// Package progression contains the XP accounting core: the append-only
// ledger, the per-user profile aggregate, the pure level/streak/multiplier
// calculators, the abuse guard, and the achievement evaluator.
//
// The ledger is the sole source of truth for total XP. Everything else
// (profile totals, enrollment aggregates, leaderboard scores) is a derived
// view that must reconcile back to the sum of validated ledger entries.
package progression
