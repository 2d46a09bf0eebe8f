package progression

import (
	"time"

	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION PROFILE
// Materialized per-user aggregate. Created lazily on first award; mutated
// only inside the atomic award transaction. TotalXP must always equal the
// sum of the user's validated ledger entries.
// ══════════════════════════════════════════════════════════════════════════════

// ProgressionProfile is the per-user materialized progression view.
type ProgressionProfile struct {
	// UserID - owning user.
	UserID shared.UserID

	// TotalXP - sum of all validated ledger amounts for the user.
	TotalXP shared.XP

	// CurrentLevel and XPToNextLevel are pure functions of TotalXP,
	// recomputed on every write.
	CurrentLevel  int
	XPToNextLevel int

	// Streak - daily activity streak state.
	Streak Streak

	// TotalLessonsCompleted - lifetime completed lesson count.
	TotalLessonsCompleted int

	// TotalTasksCompleted - lifetime passed task count.
	TotalTasksCompleted int

	// TotalCoursesCompleted - lifetime completed course count.
	TotalCoursesCompleted int

	// UnlockedAchievementIDs - set of unlocked achievement identifiers.
	UnlockedAchievementIDs map[string]bool

	// Version - optimistic concurrency token, bumped on every save.
	Version int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewProfile creates an empty profile for a user. Level starts at 1.
func NewProfile(userID shared.UserID) *ProgressionProfile {
	now := time.Now().UTC()
	info := LevelOf(0)
	return &ProgressionProfile{
		UserID:                 userID,
		TotalXP:                0,
		CurrentLevel:           info.Level,
		XPToNextLevel:          info.XPToNext,
		UnlockedAchievementIDs: make(map[string]bool),
		Version:                0,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// LevelUpInfo reports a level change caused by an award.
type LevelUpInfo struct {
	LeveledUp bool
	OldLevel  int
	NewLevel  int
	Tier      string
}

// ApplyAward credits a ledger amount to the profile and recomputes the
// derived level fields. Returns level-up information.
func (p *ProgressionProfile) ApplyAward(amount int) LevelUpInfo {
	oldLevel := p.CurrentLevel

	p.TotalXP = p.TotalXP.Add(amount)
	info := LevelOf(p.TotalXP.Int())
	p.CurrentLevel = info.Level
	p.XPToNextLevel = info.XPToNext
	p.UpdatedAt = time.Now().UTC()

	return LevelUpInfo{
		LeveledUp: info.Level > oldLevel,
		OldLevel:  oldLevel,
		NewLevel:  info.Level,
		Tier:      info.Tier,
	}
}

// RecordActivity runs the streak tracker for an activity at the given time.
// Same-day repeats are a no-op.
func (p *ProgressionProfile) RecordActivity(at time.Time) StreakResult {
	next, result := Track(p.Streak, at)
	p.Streak = next
	p.UpdatedAt = time.Now().UTC()
	return result
}

// RecordLessonCompleted bumps the lifetime lesson counter.
func (p *ProgressionProfile) RecordLessonCompleted() {
	p.TotalLessonsCompleted++
	p.UpdatedAt = time.Now().UTC()
}

// RecordTaskCompleted bumps the lifetime task counter.
func (p *ProgressionProfile) RecordTaskCompleted() {
	p.TotalTasksCompleted++
	p.UpdatedAt = time.Now().UTC()
}

// RecordCourseCompleted bumps the lifetime course counter.
func (p *ProgressionProfile) RecordCourseCompleted() {
	p.TotalCoursesCompleted++
	p.UpdatedAt = time.Now().UTC()
}

// HasAchievement checks whether an achievement is already unlocked.
func (p *ProgressionProfile) HasAchievement(achievementID string) bool {
	return p.UnlockedAchievementIDs[achievementID]
}

// UnlockAchievement adds an achievement to the unlocked set.
// Returns shared.ErrAlreadyUnlocked if it was already present.
func (p *ProgressionProfile) UnlockAchievement(achievementID string) error {
	if p.UnlockedAchievementIDs == nil {
		p.UnlockedAchievementIDs = make(map[string]bool)
	}
	if p.UnlockedAchievementIDs[achievementID] {
		return shared.ErrAlreadyUnlocked
	}
	p.UnlockedAchievementIDs[achievementID] = true
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// LevelInfo returns the full derived level view for the profile's total.
func (p *ProgressionProfile) LevelInfo() LevelInfo {
	return LevelOf(p.TotalXP.Int())
}
