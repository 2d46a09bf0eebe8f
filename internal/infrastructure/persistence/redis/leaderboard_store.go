package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skillforge/skillforge-engine/internal/domain/leaderboard"
	"github.com/skillforge/skillforge-engine/internal/domain/progression"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD STORE
// Implements leaderboard.Store on a Redis sorted set.
//
// Layout:
//   - Sorted set "leaderboard:xp" maps userID -> projected total XP
//   - Hash "leaderboard:info" maps userID -> display metadata JSON
//
// Rank lookups are O(log N), range reads O(log N + M). The projection is
// rebuilt from the profiles table when it is lost or drifts.
// ══════════════════════════════════════════════════════════════════════════════

const (
	keyRankingScores = PrefixLeaderboard + "xp"
	keyRankingInfo   = PrefixLeaderboard + "info"
)

// entryInfo is the display metadata stored alongside the score.
type entryInfo struct {
	DisplayName string    `json:"display_name"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LeaderboardStore implements leaderboard.Store.
type LeaderboardStore struct {
	cache *Cache
}

// NewLeaderboardStore creates a new LeaderboardStore.
func NewLeaderboardStore(cache *Cache) *LeaderboardStore {
	return &LeaderboardStore{cache: cache}
}

// ──────────────────────────────────────────────────────────────────────────────
// Writes
// ──────────────────────────────────────────────────────────────────────────────

// UpsertScore projects a user's current total XP into the ranking.
func (s *LeaderboardStore) UpsertScore(ctx context.Context, userID shared.UserID, displayName string, score int) error {
	if userID.IsEmpty() {
		return leaderboard.ErrInvalidUserID
	}
	if score < 0 {
		return leaderboard.ErrInvalidScore
	}

	info, err := json.Marshal(entryInfo{DisplayName: displayName, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal entry info: %w", err)
	}

	pipe := s.cache.Client().Pipeline()
	pipe.ZAdd(ctx, keyRankingScores, redis.Z{Score: float64(score), Member: userID.String()})
	pipe.HSet(ctx, keyRankingInfo, userID.String(), info)
	pipe.Expire(ctx, keyRankingInfo, TTLEntryInfo)
	_, err = pipe.Exec(ctx)
	return err
}

// Remove deletes a user from the ranking.
func (s *LeaderboardStore) Remove(ctx context.Context, userID shared.UserID) error {
	if userID.IsEmpty() {
		return leaderboard.ErrInvalidUserID
	}

	pipe := s.cache.Client().Pipeline()
	pipe.ZRem(ctx, keyRankingScores, userID.String())
	pipe.HDel(ctx, keyRankingInfo, userID.String())
	_, err := pipe.Exec(ctx)
	return err
}

// Rebuild replaces the whole projection with the given entries.
func (s *LeaderboardStore) Rebuild(ctx context.Context, entries []*leaderboard.Entry) error {
	pipe := s.cache.Client().TxPipeline()
	pipe.Del(ctx, keyRankingScores, keyRankingInfo)

	if len(entries) > 0 {
		members := make([]redis.Z, 0, len(entries))
		infos := make(map[string]interface{}, len(entries))
		now := time.Now().UTC()

		for _, e := range entries {
			if e == nil || e.UserID.IsEmpty() {
				continue
			}
			members = append(members, redis.Z{Score: float64(e.Score), Member: e.UserID.String()})
			data, err := json.Marshal(entryInfo{DisplayName: e.DisplayName, UpdatedAt: now})
			if err != nil {
				return fmt.Errorf("failed to marshal entry info: %w", err)
			}
			infos[e.UserID.String()] = data
		}

		if len(members) > 0 {
			pipe.ZAdd(ctx, keyRankingScores, members...)
			pipe.HSet(ctx, keyRankingInfo, infos)
			pipe.Expire(ctx, keyRankingInfo, TTLEntryInfo)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// ──────────────────────────────────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────────────────────────────────

// GetTop returns the highest-scored entries, best first.
func (s *LeaderboardStore) GetTop(ctx context.Context, limit int) ([]*leaderboard.Entry, error) {
	if limit <= 0 {
		return []*leaderboard.Entry{}, nil
	}
	return s.rangeByRank(ctx, 0, int64(limit-1))
}

// GetPage returns one page of the ranking.
func (s *LeaderboardStore) GetPage(ctx context.Context, p shared.Pagination) ([]*leaderboard.Entry, error) {
	start := int64(p.Offset())
	end := start + int64(p.Limit()) - 1
	return s.rangeByRank(ctx, start, end)
}

// GetRank returns a user's entry with its current rank.
func (s *LeaderboardStore) GetRank(ctx context.Context, userID shared.UserID) (*leaderboard.Entry, error) {
	if userID.IsEmpty() {
		return nil, leaderboard.ErrInvalidUserID
	}

	rank, err := s.cache.Client().ZRevRank(ctx, keyRankingScores, userID.String()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, shared.ErrLeaderboardNotFound
		}
		return nil, err
	}

	score, err := s.cache.Client().ZScore(ctx, keyRankingScores, userID.String()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, shared.ErrLeaderboardNotFound
		}
		return nil, err
	}

	entry := s.buildEntry(userID.String(), int(score), rank+1)
	s.hydrateInfo(ctx, []*leaderboard.Entry{entry})
	return entry, nil
}

// GetNeighbors returns the entries around a user, rangeSize on each side.
func (s *LeaderboardStore) GetNeighbors(ctx context.Context, userID shared.UserID, rangeSize int) ([]*leaderboard.Entry, error) {
	if userID.IsEmpty() {
		return nil, leaderboard.ErrInvalidUserID
	}
	if rangeSize < 0 {
		rangeSize = 0
	}

	rank, err := s.cache.Client().ZRevRank(ctx, keyRankingScores, userID.String()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, shared.ErrLeaderboardNotFound
		}
		return nil, err
	}

	start := rank - int64(rangeSize)
	if start < 0 {
		start = 0
	}
	return s.rangeByRank(ctx, start, rank+int64(rangeSize))
}

// GetTotalCount returns the number of projected users.
func (s *LeaderboardStore) GetTotalCount(ctx context.Context) (int, error) {
	count, err := s.cache.Client().ZCard(ctx, keyRankingScores).Result()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

// rangeByRank reads entries [start, end] by descending score.
func (s *LeaderboardStore) rangeByRank(ctx context.Context, start, end int64) ([]*leaderboard.Entry, error) {
	if end < start {
		return []*leaderboard.Entry{}, nil
	}

	rows, err := s.cache.Client().ZRevRangeWithScores(ctx, keyRankingScores, start, end).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]*leaderboard.Entry, 0, len(rows))
	for i, row := range rows {
		member, ok := row.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, s.buildEntry(member, int(row.Score), start+int64(i)+1))
	}

	s.hydrateInfo(ctx, entries)
	return entries, nil
}

// buildEntry assembles an entry from score and rank. Level is derived from
// the projected score.
func (s *LeaderboardStore) buildEntry(userID string, score int, rank int64) *leaderboard.Entry {
	return &leaderboard.Entry{
		Rank:      shared.Rank(rank),
		UserID:    shared.UserID(userID),
		Score:     score,
		Level:     progression.LevelOf(score).Level,
		UpdatedAt: time.Now().UTC(),
	}
}

// hydrateInfo fills display metadata in place. Missing or stale metadata
// degrades to an empty display name, never to an error.
func (s *LeaderboardStore) hydrateInfo(ctx context.Context, entries []*leaderboard.Entry) {
	if len(entries) == 0 {
		return
	}

	fields := make([]string, len(entries))
	for i, e := range entries {
		fields[i] = e.UserID.String()
	}

	values, err := s.cache.Client().HMGet(ctx, keyRankingInfo, fields...).Result()
	if err != nil {
		return
	}

	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var info entryInfo
		if err := json.Unmarshal([]byte(str), &info); err != nil {
			continue
		}
		entries[i].DisplayName = info.DisplayName
		entries[i].UpdatedAt = info.UpdatedAt
	}
}
