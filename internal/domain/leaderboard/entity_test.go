package leaderboard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

func TestNewEntry(t *testing.T) {
	entry, err := NewEntry(1, shared.UserID("user-1"), "Alice", 500, 3)
	assert.NoError(t, err)
	assert.Equal(t, shared.Rank(1), entry.Rank)
	assert.Equal(t, 500, entry.Score)
	assert.Equal(t, 3, entry.Level)

	_, err = NewEntry(0, shared.UserID("user-1"), "Alice", 500, 3)
	assert.ErrorIs(t, err, ErrInvalidRank)

	_, err = NewEntry(1, shared.UserID(""), "Alice", 500, 3)
	assert.ErrorIs(t, err, ErrInvalidUserID)

	_, err = NewEntry(1, shared.UserID("user-1"), "Alice", -1, 3)
	assert.ErrorIs(t, err, ErrInvalidScore)
}

func TestEntry_ScoreGap(t *testing.T) {
	a := &Entry{Score: 300}
	b := &Entry{Score: 120}

	assert.Equal(t, 180, a.ScoreGap(b))
	assert.Equal(t, 180, b.ScoreGap(a))
	assert.Equal(t, 0, a.ScoreGap(nil))
}

func TestEntry_Clone(t *testing.T) {
	entry := &Entry{UserID: shared.UserID("user-1"), Score: 10}
	clone := entry.Clone()

	clone.Score = 99
	assert.Equal(t, 10, entry.Score)

	var nilEntry *Entry
	assert.Nil(t, nilEntry.Clone())
}

func buildRanking(t *testing.T, scores map[string]int) *Ranking {
	t.Helper()
	r := NewRanking()
	for name, score := range scores {
		entry := &Entry{UserID: shared.UserID(name), DisplayName: name, Score: score}
		assert.NoError(t, r.Add(entry))
	}
	r.SortByScore()
	return r
}

func TestRanking_SortByScore_TiesShareRank(t *testing.T) {
	r := buildRanking(t, map[string]int{
		"alice": 300,
		"bob":   200,
		"carol": 200,
		"dave":  100,
	})

	all := r.All()
	assert.Len(t, all, 4)
	assert.Equal(t, shared.Rank(1), all[0].Rank)
	assert.Equal(t, "alice", all[0].DisplayName)

	// bob and carol tie at 200 and share rank 2, ordered by name.
	assert.Equal(t, shared.Rank(2), all[1].Rank)
	assert.Equal(t, "bob", all[1].DisplayName)
	assert.Equal(t, shared.Rank(2), all[2].Rank)
	assert.Equal(t, "carol", all[2].DisplayName)

	// The next distinct score resumes at the positional rank.
	assert.Equal(t, shared.Rank(4), all[3].Rank)
}

func TestRanking_AddDuplicateUser(t *testing.T) {
	r := NewRanking()
	assert.NoError(t, r.Add(&Entry{UserID: shared.UserID("user-1")}))
	assert.ErrorIs(t, r.Add(&Entry{UserID: shared.UserID("user-1")}), ErrDuplicateUser)
	assert.ErrorIs(t, r.Add(nil), ErrNilEntry)
}

func TestRanking_Top(t *testing.T) {
	r := buildRanking(t, map[string]int{"a": 1, "b": 2, "c": 3})

	top := r.Top(2)
	assert.Len(t, top, 2)
	assert.Equal(t, "c", top[0].DisplayName)
	assert.Equal(t, "b", top[1].DisplayName)

	assert.Len(t, r.Top(10), 3)
	assert.Nil(t, r.Top(0))
}

func TestRanking_Slice(t *testing.T) {
	r := buildRanking(t, map[string]int{"a": 10, "b": 20, "c": 30, "d": 40})

	page := r.Slice(1, 3)
	assert.Len(t, page, 2)
	assert.Equal(t, "c", page[0].DisplayName)
	assert.Equal(t, "b", page[1].DisplayName)

	assert.Nil(t, r.Slice(4, 8))
	assert.Len(t, r.Slice(-5, 2), 2)
}

func TestRanking_Neighbors(t *testing.T) {
	r := buildRanking(t, map[string]int{"a": 10, "b": 20, "c": 30, "d": 40, "e": 50})

	neighbors := r.Neighbors(shared.UserID("c"), 1)
	assert.Len(t, neighbors, 3)
	assert.Equal(t, "d", neighbors[0].DisplayName)
	assert.Equal(t, "c", neighbors[1].DisplayName)
	assert.Equal(t, "b", neighbors[2].DisplayName)

	// Window clips at the top of the board.
	neighbors = r.Neighbors(shared.UserID("e"), 2)
	assert.Len(t, neighbors, 3)
	assert.Equal(t, "e", neighbors[0].DisplayName)

	assert.Nil(t, r.Neighbors(shared.UserID("nobody"), 1))
}

func TestRanking_GetByUser(t *testing.T) {
	r := buildRanking(t, map[string]int{"a": 10, "b": 20})

	assert.Equal(t, 20, r.GetByUser(shared.UserID("b")).Score)
	assert.Nil(t, r.GetByUser(shared.UserID("z")))
	assert.Equal(t, 2, r.Count())
}
