package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

func TestNewProfile(t *testing.T) {
	profile := NewProfile(shared.UserID("user-1"))

	assert.Equal(t, shared.UserID("user-1"), profile.UserID)
	assert.Equal(t, shared.XP(0), profile.TotalXP)
	assert.Equal(t, 1, profile.CurrentLevel)
	assert.Equal(t, 100, profile.XPToNextLevel)
	assert.Equal(t, 0, profile.Version)
}

func TestProfile_ApplyAward(t *testing.T) {
	profile := NewProfile(shared.UserID("user-1"))

	info := profile.ApplyAward(60)
	assert.False(t, info.LeveledUp)
	assert.Equal(t, shared.XP(60), profile.TotalXP)
	assert.Equal(t, 1, profile.CurrentLevel)
	assert.Equal(t, 40, profile.XPToNextLevel)

	info = profile.ApplyAward(40)
	assert.True(t, info.LeveledUp)
	assert.Equal(t, 1, info.OldLevel)
	assert.Equal(t, 2, info.NewLevel)
	assert.Equal(t, "Novice", info.Tier)
	assert.Equal(t, 2, profile.CurrentLevel)
	assert.Equal(t, 150, profile.XPToNextLevel)
}

func TestProfile_ApplyAward_MultiLevelJump(t *testing.T) {
	profile := NewProfile(shared.UserID("user-1"))

	info := profile.ApplyAward(300)
	assert.True(t, info.LeveledUp)
	assert.Equal(t, 3, info.NewLevel)
}

func TestProfile_RecordActivity(t *testing.T) {
	profile := NewProfile(shared.UserID("user-1"))
	monday := time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC)

	result := profile.RecordActivity(monday)
	assert.Equal(t, 1, result.Current)
	assert.True(t, result.Continued)

	result = profile.RecordActivity(monday.AddDate(0, 0, 1))
	assert.Equal(t, 2, result.Current)
	assert.Equal(t, 2, profile.Streak.Current)
}

func TestProfile_Counters(t *testing.T) {
	profile := NewProfile(shared.UserID("user-1"))

	profile.RecordLessonCompleted()
	profile.RecordLessonCompleted()
	profile.RecordTaskCompleted()
	profile.RecordCourseCompleted()

	assert.Equal(t, 2, profile.TotalLessonsCompleted)
	assert.Equal(t, 1, profile.TotalTasksCompleted)
	assert.Equal(t, 1, profile.TotalCoursesCompleted)
}

func TestProfile_UnlockAchievement(t *testing.T) {
	profile := NewProfile(shared.UserID("user-1"))

	assert.False(t, profile.HasAchievement("streak-7"))
	assert.NoError(t, profile.UnlockAchievement("streak-7"))
	assert.True(t, profile.HasAchievement("streak-7"))

	err := profile.UnlockAchievement("streak-7")
	assert.ErrorIs(t, err, shared.ErrAlreadyUnlocked)
}

func TestProfile_UnlockAchievement_NilSet(t *testing.T) {
	// Profiles hydrated from storage may carry a nil set.
	profile := &ProgressionProfile{UserID: shared.UserID("user-1")}
	assert.NoError(t, profile.UnlockAchievement("first-lesson"))
	assert.True(t, profile.HasAchievement("first-lesson"))
}
