package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skillforge/skillforge-engine/internal/domain/shared"
	"github.com/skillforge/skillforge-engine/internal/infrastructure/persistence/memory"
)

func seededStore(t *testing.T) *memory.LeaderboardStore {
	t.Helper()
	ctx := context.Background()
	store := memory.NewLeaderboardStore()
	for i, name := range []string{"a", "b", "c", "d", "e"} {
		assert.NoError(t, store.UpsertScore(ctx, shared.UserID(name), name, (i+1)*100))
	}
	return store
}

func TestGetLeaderboardHandler_FirstPage(t *testing.T) {
	handler := NewGetLeaderboardHandler(seededStore(t))

	result, err := handler.Handle(context.Background(), GetLeaderboardQuery{Limit: 3})
	assert.NoError(t, err)
	assert.Len(t, result.Entries, 3)
	assert.Equal(t, "e", result.Entries[0].UserID)
	assert.Equal(t, 1, result.Entries[0].Rank)
	assert.Equal(t, 500, result.Entries[0].Score)
	assert.Equal(t, 5, result.TotalCount)
	assert.True(t, result.HasMore)
}

func TestGetLeaderboardHandler_OffsetPage(t *testing.T) {
	handler := NewGetLeaderboardHandler(seededStore(t))

	result, err := handler.Handle(context.Background(), GetLeaderboardQuery{Limit: 2, Offset: 2})
	assert.NoError(t, err)
	assert.Len(t, result.Entries, 2)
	assert.Equal(t, "c", result.Entries[0].UserID)
	assert.True(t, result.HasMore)

	result, err = handler.Handle(context.Background(), GetLeaderboardQuery{Limit: 2, Offset: 4})
	assert.NoError(t, err)
	assert.Len(t, result.Entries, 1)
	assert.False(t, result.HasMore)
}

func TestGetLeaderboardHandler_Defaults(t *testing.T) {
	handler := NewGetLeaderboardHandler(seededStore(t))

	result, err := handler.Handle(context.Background(), GetLeaderboardQuery{})
	assert.NoError(t, err)
	assert.Len(t, result.Entries, 5)
}

func TestGetLeaderboardHandler_Validation(t *testing.T) {
	handler := NewGetLeaderboardHandler(seededStore(t))

	_, err := handler.Handle(context.Background(), GetLeaderboardQuery{Limit: -1})
	assert.True(t, shared.IsValidation(err))

	_, err = handler.Handle(context.Background(), GetLeaderboardQuery{Offset: -1})
	assert.True(t, shared.IsValidation(err))
}

func TestGetUserRankHandler(t *testing.T) {
	handler := NewGetUserRankHandler(seededStore(t))

	result, err := handler.Handle(context.Background(), GetUserRankQuery{UserID: "c", NeighborRange: 1})
	assert.NoError(t, err)
	assert.True(t, result.Ranked)
	assert.Equal(t, 3, result.Entry.Rank)
	assert.Len(t, result.Neighbors, 3)
	assert.Equal(t, 5, result.TotalCount)
}

func TestGetUserRankHandler_Unranked(t *testing.T) {
	handler := NewGetUserRankHandler(seededStore(t))

	result, err := handler.Handle(context.Background(), GetUserRankQuery{UserID: "ghost"})
	assert.NoError(t, err)
	assert.False(t, result.Ranked)
	assert.Nil(t, result.Entry)
	assert.Empty(t, result.Neighbors)
}

func TestGetUserRankHandler_Validation(t *testing.T) {
	handler := NewGetUserRankHandler(seededStore(t))

	_, err := handler.Handle(context.Background(), GetUserRankQuery{UserID: ""})
	assert.True(t, shared.IsValidation(err))

	_, err = handler.Handle(context.Background(), GetUserRankQuery{UserID: "c", NeighborRange: -1})
	assert.True(t, shared.IsValidation(err))
}
