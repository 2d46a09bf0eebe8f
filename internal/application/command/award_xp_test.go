package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/skillforge/skillforge-engine/internal/domain/progression"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

func newAwardHandler(store *fakeAwardStore, repo *fakeAchievementRepo, bus *fakeEventBus, limits progression.RateLimits) *AwardXPHandler {
	return NewAwardXPHandler(store, repo, progression.NewRollingCounter(), bus, testLogger(), AwardXPHandlerConfig{Limits: limits})
}

func TestAwardXPHandler_FlatAward(t *testing.T) {
	store := newFakeAwardStore()
	bus := &fakeEventBus{}
	handler := newAwardHandler(store, newFakeAchievementRepo(), bus, progression.DefaultRateLimits())

	result, err := handler.Handle(context.Background(), AwardXPCommand{
		UserID:     "user-1",
		Kind:       progression.TxBonus,
		BaseAmount: 50,
		Source:     progression.Source{ID: "manual", Kind: progression.SourceSystem},
	})

	assert.NoError(t, err)
	assert.NotEmpty(t, result.TransactionID)
	assert.Equal(t, 50, result.AmountAwarded)
	assert.Empty(t, result.AppliedMultipliers)
	assert.Equal(t, 50, result.NewTotalXP)
	assert.False(t, result.LevelUp.LeveledUp)
	assert.Equal(t, 1, result.Streak.Current)

	assert.Len(t, store.ledger, 1)
	assert.Equal(t, 1, bus.published(shared.EventXPAwarded))
	assert.Equal(t, 1, bus.published(shared.EventStreakUpdated))
}

func TestAwardXPHandler_Multipliers(t *testing.T) {
	store := newFakeAwardStore()
	handler := newAwardHandler(store, newFakeAchievementRepo(), &fakeEventBus{}, progression.DefaultRateLimits())

	result, err := handler.Handle(context.Background(), AwardXPCommand{
		UserID:     "user-1",
		Kind:       progression.TxBonus,
		BaseAmount: 40,
		Source:     progression.Source{ID: "task-1", Kind: progression.SourceTask},
		Multipliers: &progression.MultiplierContext{
			Score:    shared.Score(100),
			Attempts: 1,
		},
	})

	assert.NoError(t, err)
	// Streak day one carries no streak factor; perfect score 1.25 and
	// first attempt 1.1 compound: floor(40 * 1.375) = 55.
	assert.Equal(t, 55, result.AmountAwarded)
	assert.Len(t, result.AppliedMultipliers, 2)
}

func TestAwardXPHandler_LevelUp(t *testing.T) {
	store := newFakeAwardStore()
	bus := &fakeEventBus{}
	handler := newAwardHandler(store, newFakeAchievementRepo(), bus, progression.DefaultRateLimits())

	result, err := handler.Handle(context.Background(), AwardXPCommand{
		UserID:     "user-1",
		Kind:       progression.TxBonus,
		BaseAmount: 150,
		Source:     progression.Source{ID: "manual", Kind: progression.SourceSystem},
	})

	assert.NoError(t, err)
	assert.True(t, result.LevelUp.LeveledUp)
	assert.Equal(t, 1, result.LevelUp.OldLevel)
	assert.Equal(t, 2, result.LevelUp.NewLevel)
	assert.Equal(t, 1, bus.published(shared.EventLevelUp))
}

func TestAwardXPHandler_Validation(t *testing.T) {
	handler := newAwardHandler(newFakeAwardStore(), newFakeAchievementRepo(), &fakeEventBus{}, progression.DefaultRateLimits())
	ctx := context.Background()

	_, err := handler.Handle(ctx, AwardXPCommand{Kind: progression.TxBonus, BaseAmount: 10})
	assert.True(t, shared.IsValidation(err))

	_, err = handler.Handle(ctx, AwardXPCommand{UserID: "user-1", Kind: "mystery", BaseAmount: 10})
	assert.True(t, shared.IsValidation(err))

	_, err = handler.Handle(ctx, AwardXPCommand{UserID: "user-1", Kind: progression.TxBonus, BaseAmount: 0})
	assert.True(t, shared.IsValidation(err))
}

func TestAwardXPHandler_RateLimited(t *testing.T) {
	store := newFakeAwardStore()
	handler := newAwardHandler(store, newFakeAchievementRepo(), &fakeEventBus{},
		progression.RateLimits{HourlyCap: 100, DailyCap: 1000})

	cmd := AwardXPCommand{
		UserID:     "user-1",
		Kind:       progression.TxBonus,
		BaseAmount: 60,
		Source:     progression.Source{ID: "manual", Kind: progression.SourceSystem},
	}

	_, err := handler.Handle(context.Background(), cmd)
	assert.NoError(t, err)

	_, err = handler.Handle(context.Background(), cmd)
	assert.True(t, shared.IsRateLimited(err))
	assert.Len(t, store.ledger, 1)
}

func TestAwardXPHandler_RateGuardDisabled(t *testing.T) {
	store := newFakeAwardStore()
	handler := NewAwardXPHandler(store, newFakeAchievementRepo(), progression.NewRollingCounter(),
		&fakeEventBus{}, testLogger(), AwardXPHandlerConfig{
			Limits:           progression.RateLimits{HourlyCap: 100, DailyCap: 1000},
			DisableRateGuard: true,
		})

	cmd := AwardXPCommand{
		UserID:     "user-1",
		Kind:       progression.TxBonus,
		BaseAmount: 60,
		Source:     progression.Source{ID: "manual", Kind: progression.SourceSystem},
	}

	// Both awards exceed the hourly cap combined; with the guard off they
	// land anyway.
	for i := 0; i < 2; i++ {
		_, err := handler.Handle(context.Background(), cmd)
		assert.NoError(t, err)
	}
	assert.Len(t, store.ledger, 2)
}

func TestAwardXPHandler_AchievementBonus(t *testing.T) {
	store := newFakeAwardStore()
	repo := newFakeAchievementRepo(progression.Achievement{
		ID:          "xp-50",
		Name:        "Half Century",
		Requirement: progression.Requirement{Type: progression.RequireTotalXP, Threshold: 50},
		BonusXP:     25,
		Active:      true,
	})
	bus := &fakeEventBus{}
	handler := newAwardHandler(store, repo, bus, progression.DefaultRateLimits())

	result, err := handler.Handle(context.Background(), AwardXPCommand{
		UserID:     "user-1",
		Kind:       progression.TxBonus,
		BaseAmount: 60,
		Source:     progression.Source{ID: "manual", Kind: progression.SourceSystem},
	})

	assert.NoError(t, err)
	assert.Equal(t, 60, result.AmountAwarded)
	assert.Equal(t, []string{"xp-50"}, result.UnlockedAchievements)
	// The bonus award lands in the same response total.
	assert.Equal(t, 85, result.NewTotalXP)
	assert.Len(t, store.ledger, 2)
	assert.Equal(t, progression.TxAchievement, store.ledger[1].Kind)
	assert.Equal(t, 1, bus.published(shared.EventAchievementUnlocked))

	unlocked, err := repo.ListUnlocked(context.Background(), shared.UserID("user-1"))
	assert.NoError(t, err)
	assert.Len(t, unlocked, 1)

	// The committed profile carries the unlock, so a later award cannot
	// re-trigger it.
	profile := store.profiles[shared.UserID("user-1")]
	assert.True(t, profile.HasAchievement("xp-50"))
}

func TestAwardXPHandler_DailyStreakBonus(t *testing.T) {
	store := newFakeAwardStore()
	bus := &fakeEventBus{}
	handler := newAwardHandler(store, newFakeAchievementRepo(), bus, progression.DefaultRateLimits())

	// Four consecutive active days ending yesterday.
	profile := progression.NewProfile(shared.UserID("user-1"))
	now := time.Now().UTC()
	for i := 4; i >= 1; i-- {
		profile.RecordActivity(now.AddDate(0, 0, -i))
	}
	store.profiles[shared.UserID("user-1")] = profile

	result, err := handler.Handle(context.Background(), AwardXPCommand{
		UserID:     "user-1",
		Kind:       progression.TxBonus,
		BaseAmount: 50,
		Source:     progression.Source{ID: "manual", Kind: progression.SourceSystem},
	})

	assert.NoError(t, err)
	assert.Equal(t, 5, result.Streak.Current)
	// 50 for the award plus the five-day streak bonus of 25.
	assert.Equal(t, 75, result.NewTotalXP)
	assert.Len(t, store.ledger, 2)
	assert.Equal(t, progression.TxDailyStreak, store.ledger[1].Kind)
	assert.Equal(t, 25, store.ledger[1].Amount)
	assert.Equal(t, 2, bus.published(shared.EventXPAwarded))

	// A second award the same day extends nothing and grants no bonus.
	result, err = handler.Handle(context.Background(), AwardXPCommand{
		UserID:     "user-1",
		Kind:       progression.TxBonus,
		BaseAmount: 10,
		Source:     progression.Source{ID: "manual", Kind: progression.SourceSystem},
	})
	assert.NoError(t, err)
	assert.Equal(t, 85, result.NewTotalXP)
	assert.Len(t, store.ledger, 3)
}

func TestAwardXPHandler_NoStreakBonusAfterReset(t *testing.T) {
	store := newFakeAwardStore()
	handler := newAwardHandler(store, newFakeAchievementRepo(), &fakeEventBus{}, progression.DefaultRateLimits())

	profile := progression.NewProfile(shared.UserID("user-1"))
	profile.RecordActivity(time.Now().UTC().AddDate(0, 0, -3))
	store.profiles[shared.UserID("user-1")] = profile

	result, err := handler.Handle(context.Background(), AwardXPCommand{
		UserID:     "user-1",
		Kind:       progression.TxBonus,
		BaseAmount: 50,
		Source:     progression.Source{ID: "manual", Kind: progression.SourceSystem},
	})

	assert.NoError(t, err)
	assert.True(t, result.Streak.WasReset)
	assert.Equal(t, 1, result.Streak.Current)
	assert.Len(t, store.ledger, 1)
}

func TestAwardXPHandler_SkipAchievements(t *testing.T) {
	store := newFakeAwardStore()
	repo := newFakeAchievementRepo(progression.Achievement{
		ID:          "xp-10",
		Requirement: progression.Requirement{Type: progression.RequireTotalXP, Threshold: 10},
		BonusXP:     5,
		Active:      true,
	})
	handler := newAwardHandler(store, repo, &fakeEventBus{}, progression.DefaultRateLimits())

	result, err := handler.Handle(context.Background(), AwardXPCommand{
		UserID:           "user-1",
		Kind:             progression.TxBonus,
		BaseAmount:       60,
		Source:           progression.Source{ID: "manual", Kind: progression.SourceSystem},
		SkipAchievements: true,
	})

	assert.NoError(t, err)
	assert.Empty(t, result.UnlockedAchievements)
	assert.Len(t, store.ledger, 1)
}
