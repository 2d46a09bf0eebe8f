// Package leaderboard contains the best-effort top-N ranking by total XP.
// The leaderboard is a one-way projection of the ledger: eventually
// consistent, never read back for a correctness decision.
package leaderboard

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry is one row in the ranking.
type Entry struct {
	// Rank - current position, starting at 1.
	Rank shared.Rank

	// UserID - the ranked user.
	UserID shared.UserID

	// DisplayName - supplied by the identity provider.
	DisplayName string

	// Score - totalXP snapshot at the last projection update.
	Score int

	// Level - derived from Score for display.
	Level int

	// UpdatedAt - when the score was last projected.
	UpdatedAt time.Time
}

// NewEntry creates a ranking row with validation.
func NewEntry(rank shared.Rank, userID shared.UserID, displayName string, score, level int) (*Entry, error) {
	if !rank.IsValid() {
		return nil, ErrInvalidRank
	}
	if userID.IsEmpty() {
		return nil, ErrInvalidUserID
	}
	if score < 0 {
		return nil, ErrInvalidScore
	}

	return &Entry{
		Rank:        rank,
		UserID:      userID,
		DisplayName: displayName,
		Score:       score,
		Level:       level,
		UpdatedAt:   time.Now().UTC(),
	}, nil
}

// ScoreGap returns the absolute score difference with another entry.
func (e *Entry) ScoreGap(other *Entry) int {
	if other == nil {
		return 0
	}
	diff := e.Score - other.Score
	if diff < 0 {
		return -diff
	}
	return diff
}

// Clone creates a copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}

// String returns a representation for logging.
func (e *Entry) String() string {
	return fmt.Sprintf("Entry{Rank: %d, UserID: %s, Score: %d}", e.Rank, e.UserID, e.Score)
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING (sorted list)
// Helper structure for building ranked views out of raw entries.
// ══════════════════════════════════════════════════════════════════════════════

// Ranking is a full sorted list of entries.
type Ranking struct {
	entries []*Entry
	byID    map[shared.UserID]*Entry
}

// NewRanking creates an empty Ranking.
func NewRanking() *Ranking {
	return &Ranking{
		entries: make([]*Entry, 0),
		byID:    make(map[shared.UserID]*Entry),
	}
}

// Add appends an entry (sorting happens in SortByScore).
func (r *Ranking) Add(entry *Entry) error {
	if entry == nil {
		return ErrNilEntry
	}
	if _, exists := r.byID[entry.UserID]; exists {
		return ErrDuplicateUser
	}

	r.entries = append(r.entries, entry)
	r.byID[entry.UserID] = entry
	return nil
}

// SortByScore sorts descending by score and assigns ranks. Ties share a
// rank; the next distinct score resumes at the positional rank.
func (r *Ranking) SortByScore() {
	sort.Slice(r.entries, func(i, j int) bool {
		if r.entries[i].Score != r.entries[j].Score {
			return r.entries[i].Score > r.entries[j].Score
		}
		// Stable order within a tie.
		return r.entries[i].DisplayName < r.entries[j].DisplayName
	})

	for i, entry := range r.entries {
		if i > 0 && entry.Score == r.entries[i-1].Score {
			entry.Rank = r.entries[i-1].Rank
		} else {
			entry.Rank = shared.Rank(i + 1)
		}
	}
}

// GetByUser returns the entry for a user, or nil.
func (r *Ranking) GetByUser(userID shared.UserID) *Entry {
	return r.byID[userID]
}

// Top returns the first n entries.
func (r *Ranking) Top(n int) []*Entry {
	if n <= 0 {
		return nil
	}
	if n > len(r.entries) {
		n = len(r.entries)
	}
	result := make([]*Entry, n)
	copy(result, r.entries[:n])
	return result
}

// Slice returns entries [from:to).
func (r *Ranking) Slice(from, to int) []*Entry {
	if from < 0 {
		from = 0
	}
	if to > len(r.entries) {
		to = len(r.entries)
	}
	if from >= to {
		return nil
	}
	result := make([]*Entry, to-from)
	copy(result, r.entries[from:to])
	return result
}

// Neighbors returns the entries around a user (user included), rangeSize on
// each side.
func (r *Ranking) Neighbors(userID shared.UserID, rangeSize int) []*Entry {
	if r.byID[userID] == nil {
		return nil
	}

	var idx int
	for i, e := range r.entries {
		if e.UserID == userID {
			idx = i
			break
		}
	}

	return r.Slice(idx-rangeSize, idx+rangeSize+1)
}

// Count returns the number of entries.
func (r *Ranking) Count() int {
	return len(r.entries)
}

// All returns a copy of all entries.
func (r *Ranking) All() []*Entry {
	result := make([]*Entry, len(r.entries))
	copy(result, r.entries)
	return result
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidRank - rank must be positive.
	ErrInvalidRank = errors.New("invalid rank: must be positive")

	// ErrInvalidUserID - user ID cannot be empty.
	ErrInvalidUserID = errors.New("invalid user id: cannot be empty")

	// ErrInvalidScore - score must be non-negative.
	ErrInvalidScore = errors.New("invalid score: must be non-negative")

	// ErrNilEntry - attempted to add a nil entry.
	ErrNilEntry = errors.New("cannot add nil entry")

	// ErrDuplicateUser - user already present in the ranking.
	ErrDuplicateUser = errors.New("user already exists in ranking")

	// ErrEmptyLeaderboard - no entries projected yet.
	ErrEmptyLeaderboard = errors.New("leaderboard is empty")
)
