package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skillforge/skillforge-engine/internal/domain/leaderboard"
	"github.com/skillforge/skillforge-engine/internal/domain/progression"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
	"github.com/skillforge/skillforge-engine/internal/infrastructure/persistence/memory"
	"github.com/skillforge/skillforge-engine/pkg/logger"
)

type fakeProfileLister struct {
	profiles []*progression.ProgressionProfile
	err      error
}

func (l *fakeProfileLister) ListTopByXP(_ context.Context, limit int) ([]*progression.ProgressionProfile, error) {
	if l.err != nil {
		return nil, l.err
	}
	if limit < len(l.profiles) {
		return l.profiles[:limit], nil
	}
	return l.profiles, nil
}

// brokenStore fails every write; reads are never used by the projector.
type brokenStore struct {
	leaderboard.Store
}

func (s *brokenStore) UpsertScore(context.Context, shared.UserID, string, int) error {
	return errors.New("store unavailable")
}

func testProjector(store leaderboard.Store, lister *fakeProfileLister) *LeaderboardProjector {
	return NewLeaderboardProjector(LeaderboardProjectorConfig{
		Store:    store,
		Profiles: lister,
		Resolver: func(userID shared.UserID) string { return "name-" + userID.String() },
		Logger:   logger.New(logger.Options{Output: io.Discard}),
	})
}

func TestHandleEvent_ProjectsAward(t *testing.T) {
	store := memory.NewLeaderboardStore()
	p := testProjector(store, &fakeProfileLister{})

	event := shared.NewXPAwardedEvent("user-1", "tx-1", 50, 150, "lesson_completion", "l1")
	assert.NoError(t, p.HandleEvent(event))

	entry, err := store.GetRank(context.Background(), shared.UserID("user-1"))
	assert.NoError(t, err)
	assert.Equal(t, 150, entry.Score)
	assert.Equal(t, "name-user-1", entry.DisplayName)
}

func TestHandleEvent_IgnoresMalformedPayloads(t *testing.T) {
	store := memory.NewLeaderboardStore()
	p := testProjector(store, &fakeProfileLister{})

	assert.NoError(t, p.HandleEvent(shared.NewXPAwardedEvent("", "tx-1", 50, 150, "", "")))

	count, err := store.GetTotalCount(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestHandleEvent_StoreFailureNeverPropagates(t *testing.T) {
	p := testProjector(&brokenStore{}, &fakeProfileLister{})

	event := shared.NewXPAwardedEvent("user-1", "tx-1", 50, 150, "lesson_completion", "l1")
	assert.NoError(t, p.HandleEvent(event))
}

func TestRebuild(t *testing.T) {
	p1 := progression.NewProfile(shared.UserID("user-1"))
	p1.ApplyAward(500)
	p2 := progression.NewProfile(shared.UserID("user-2"))
	p2.ApplyAward(300)

	store := memory.NewLeaderboardStore()
	p := testProjector(store, &fakeProfileLister{
		profiles: []*progression.ProgressionProfile{p1, p2},
	})

	assert.NoError(t, p.Rebuild(context.Background()))

	top, err := store.GetTop(context.Background(), 10)
	assert.NoError(t, err)
	assert.Len(t, top, 2)
	assert.Equal(t, shared.UserID("user-1"), top[0].UserID)
	assert.Equal(t, 500, top[0].Score)
	assert.Equal(t, shared.Rank(2), top[1].Rank)
}

func TestRebuild_SourceErrorSurfaces(t *testing.T) {
	readErr := errors.New("profiles unavailable")
	p := testProjector(memory.NewLeaderboardStore(), &fakeProfileLister{err: readErr})

	assert.ErrorIs(t, p.Rebuild(context.Background()), readErr)
}
