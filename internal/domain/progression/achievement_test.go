package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

func TestEvaluator_NewlyMet(t *testing.T) {
	evaluator := NewEvaluator()
	profile := NewProfile(shared.UserID("user-1"))
	profile.TotalLessonsCompleted = 10

	unlocked := evaluator.NewlyMet(DefaultAchievements(), profile)

	var ids []string
	for _, a := range unlocked {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"first-lesson", "lessons-10"}, ids)
}

func TestEvaluator_SkipsAlreadyUnlocked(t *testing.T) {
	evaluator := NewEvaluator()
	profile := NewProfile(shared.UserID("user-1"))
	profile.TotalLessonsCompleted = 1
	assert.NoError(t, profile.UnlockAchievement("first-lesson"))

	unlocked := evaluator.NewlyMet(DefaultAchievements(), profile)
	assert.Empty(t, unlocked)
}

func TestEvaluator_SkipsInactive(t *testing.T) {
	evaluator := NewEvaluator()
	profile := NewProfile(shared.UserID("user-1"))
	profile.TotalLessonsCompleted = 1

	defs := []Achievement{
		{ID: "dormant", Requirement: Requirement{RequireLessonsCompleted, 1}, Active: false},
	}
	assert.Empty(t, evaluator.NewlyMet(defs, profile))
}

func TestEvaluator_AllRequirementTypes(t *testing.T) {
	evaluator := NewEvaluator()
	profile := NewProfile(shared.UserID("user-1"))
	profile.TotalXP = shared.XP(1500)
	profile.CurrentLevel = 6
	profile.Streak = Streak{Current: 8}
	profile.TotalTasksCompleted = 25
	profile.TotalCoursesCompleted = 1

	defs := []Achievement{
		{ID: "xp", Requirement: Requirement{RequireTotalXP, 1000}, Active: true},
		{ID: "level", Requirement: Requirement{RequireLevel, 5}, Active: true},
		{ID: "streak", Requirement: Requirement{RequireStreakDays, 7}, Active: true},
		{ID: "tasks", Requirement: Requirement{RequireTasksCompleted, 25}, Active: true},
		{ID: "courses", Requirement: Requirement{RequireCoursesCompleted, 1}, Active: true},
		{ID: "lessons", Requirement: Requirement{RequireLessonsCompleted, 1}, Active: true},
	}

	unlocked := evaluator.NewlyMet(defs, profile)
	assert.Len(t, unlocked, 5)
	for _, a := range unlocked {
		assert.NotEqual(t, "lessons", a.ID)
	}
}

func TestDefaultAchievements_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for _, a := range DefaultAchievements() {
		assert.False(t, seen[a.ID], "duplicate achievement id %s", a.ID)
		seen[a.ID] = true
		assert.True(t, a.Active)
		assert.Greater(t, a.BonusXP, 0)
	}
}
