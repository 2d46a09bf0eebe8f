// Package memory provides in-process implementations of the projection
// stores. Used when Redis is disabled (local development) and as the
// backing store in tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/skillforge/skillforge-engine/internal/domain/leaderboard"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// LeaderboardStore keeps the ranking projection in a process-local map.
// Same tie-ranking semantics as the Redis store; data does not survive a
// restart, which is acceptable for a rebuildable projection.
type LeaderboardStore struct {
	mu      sync.RWMutex
	entries map[shared.UserID]*leaderboard.Entry
}

// NewLeaderboardStore creates an empty in-memory ranking store.
func NewLeaderboardStore() *LeaderboardStore {
	return &LeaderboardStore{
		entries: make(map[shared.UserID]*leaderboard.Entry),
	}
}

// UpsertScore projects a user's current total XP into the ranking.
func (s *LeaderboardStore) UpsertScore(_ context.Context, userID shared.UserID, displayName string, score int) error {
	if userID.IsEmpty() {
		return leaderboard.ErrInvalidUserID
	}
	if score < 0 {
		return leaderboard.ErrInvalidScore
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[userID]
	if ok && displayName == "" {
		displayName = existing.DisplayName
	}

	s.entries[userID] = &leaderboard.Entry{
		UserID:      userID,
		DisplayName: displayName,
		Score:       score,
		UpdatedAt:   time.Now().UTC(),
	}
	return nil
}

// GetTop returns the highest-scored entries, best first.
func (s *LeaderboardStore) GetTop(_ context.Context, limit int) ([]*leaderboard.Entry, error) {
	return s.ranking().Top(limit), nil
}

// GetPage returns one page of the ranking.
func (s *LeaderboardStore) GetPage(_ context.Context, p shared.Pagination) ([]*leaderboard.Entry, error) {
	offset := p.Offset()
	return s.ranking().Slice(offset, offset+p.Limit()), nil
}

// GetRank returns a user's entry with its current rank.
func (s *LeaderboardStore) GetRank(_ context.Context, userID shared.UserID) (*leaderboard.Entry, error) {
	entry := s.ranking().GetByUser(userID)
	if entry == nil {
		return nil, shared.ErrLeaderboardNotFound
	}
	return entry.Clone(), nil
}

// GetNeighbors returns the entries around a user, rangeSize on each side.
func (s *LeaderboardStore) GetNeighbors(_ context.Context, userID shared.UserID, rangeSize int) ([]*leaderboard.Entry, error) {
	neighbors := s.ranking().Neighbors(userID, rangeSize)
	if neighbors == nil {
		return nil, shared.ErrLeaderboardNotFound
	}
	return neighbors, nil
}

// GetTotalCount returns the number of projected users.
func (s *LeaderboardStore) GetTotalCount(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Remove deletes a user from the ranking.
func (s *LeaderboardStore) Remove(_ context.Context, userID shared.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
	return nil
}

// Rebuild replaces the whole projection with the given entries.
func (s *LeaderboardStore) Rebuild(_ context.Context, entries []*leaderboard.Entry) error {
	fresh := make(map[shared.UserID]*leaderboard.Entry, len(entries))
	for _, e := range entries {
		if e == nil || e.UserID.IsEmpty() {
			continue
		}
		fresh[e.UserID] = e.Clone()
	}

	s.mu.Lock()
	s.entries = fresh
	s.mu.Unlock()
	return nil
}

// ranking builds a sorted snapshot under the read lock.
func (s *LeaderboardStore) ranking() *leaderboard.Ranking {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := leaderboard.NewRanking()
	for _, e := range s.entries {
		_ = r.Add(e.Clone())
	}
	r.SortByScore()
	return r
}
