package progression

import (
	"time"

	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// Read-mostly definitions plus per-user unlock records. Evaluation runs as a
// bounded follow-up after each award: a bonus award never re-triggers
// evaluation within the same request.
// ══════════════════════════════════════════════════════════════════════════════

// RequirementType names the aggregate an achievement threshold applies to.
type RequirementType string

const (
	RequireTotalXP          RequirementType = "total_xp"
	RequireLessonsCompleted RequirementType = "lessons_completed"
	RequireTasksCompleted   RequirementType = "tasks_completed"
	RequireCoursesCompleted RequirementType = "courses_completed"
	RequireStreakDays       RequirementType = "streak_days"
	RequireLevel            RequirementType = "level"
)

// Requirement is a single threshold over one profile aggregate.
type Requirement struct {
	Type      RequirementType `json:"type"`
	Threshold int             `json:"threshold"`
}

// Achievement is a read-mostly unlock definition.
type Achievement struct {
	// ID - stable identifier, e.g. "streak-7".
	ID string

	// Name and Description - display strings.
	Name        string
	Description string

	// Requirement - the threshold that unlocks this achievement.
	Requirement Requirement

	// BonusXP - XP granted through a separate follow-up award on unlock.
	BonusXP int

	// Active - inactive definitions are never evaluated.
	Active bool
}

// UnlockedAchievement records one user earning one achievement.
type UnlockedAchievement struct {
	UserID        shared.UserID
	AchievementID string
	UnlockedAt    time.Time
}

// NewUnlockedAchievement creates an unlock record.
func NewUnlockedAchievement(userID shared.UserID, achievementID string) *UnlockedAchievement {
	return &UnlockedAchievement{
		UserID:        userID,
		AchievementID: achievementID,
		UnlockedAt:    time.Now().UTC(),
	}
}

// DefaultAchievements returns the built-in achievement catalog. Deployments
// may replace or extend it through the achievement repository.
func DefaultAchievements() []Achievement {
	return []Achievement{
		{ID: "first-lesson", Name: "First Steps", Description: "Complete your first lesson", Requirement: Requirement{RequireLessonsCompleted, 1}, BonusXP: 25, Active: true},
		{ID: "lessons-10", Name: "Getting Serious", Description: "Complete 10 lessons", Requirement: Requirement{RequireLessonsCompleted, 10}, BonusXP: 50, Active: true},
		{ID: "lessons-50", Name: "Dedicated Learner", Description: "Complete 50 lessons", Requirement: Requirement{RequireLessonsCompleted, 50}, BonusXP: 200, Active: true},
		{ID: "tasks-25", Name: "Problem Solver", Description: "Pass 25 tasks", Requirement: Requirement{RequireTasksCompleted, 25}, BonusXP: 100, Active: true},
		{ID: "first-course", Name: "Finisher", Description: "Complete your first course", Requirement: Requirement{RequireCoursesCompleted, 1}, BonusXP: 150, Active: true},
		{ID: "courses-5", Name: "Course Collector", Description: "Complete 5 courses", Requirement: Requirement{RequireCoursesCompleted, 5}, BonusXP: 500, Active: true},
		{ID: "streak-7", Name: "Week of Fire", Description: "Stay active 7 days in a row", Requirement: Requirement{RequireStreakDays, 7}, BonusXP: 100, Active: true},
		{ID: "streak-30", Name: "Iron Will", Description: "Stay active 30 days in a row", Requirement: Requirement{RequireStreakDays, 30}, BonusXP: 500, Active: true},
		{ID: "xp-1000", Name: "Rising Star", Description: "Earn 1,000 XP", Requirement: Requirement{RequireTotalXP, 1000}, BonusXP: 100, Active: true},
		{ID: "xp-10000", Name: "XP Machine", Description: "Earn 10,000 XP", Requirement: Requirement{RequireTotalXP, 10000}, BonusXP: 500, Active: true},
		{ID: "level-5", Name: "Journeyman", Description: "Reach level 5", Requirement: Requirement{RequireLevel, 5}, BonusXP: 100, Active: true},
		{ID: "level-10", Name: "Veteran", Description: "Reach level 10", Requirement: Requirement{RequireLevel, 10}, BonusXP: 250, Active: true},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATOR
// ══════════════════════════════════════════════════════════════════════════════

// Evaluator checks achievement thresholds against a profile snapshot.
type Evaluator struct{}

// NewEvaluator creates an achievement evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// aggregateValue reads the profile aggregate a requirement applies to.
func aggregateValue(p *ProgressionProfile, t RequirementType) int {
	switch t {
	case RequireTotalXP:
		return p.TotalXP.Int()
	case RequireLessonsCompleted:
		return p.TotalLessonsCompleted
	case RequireTasksCompleted:
		return p.TotalTasksCompleted
	case RequireCoursesCompleted:
		return p.TotalCoursesCompleted
	case RequireStreakDays:
		return p.Streak.Current
	case RequireLevel:
		return p.CurrentLevel
	default:
		return 0
	}
}

// NewlyMet returns every active definition whose threshold the profile now
// satisfies and which the user has not already unlocked. The caller creates
// the unlock records and enqueues bonus awards as separate transactions.
func (e *Evaluator) NewlyMet(definitions []Achievement, profile *ProgressionProfile) []Achievement {
	var unlocked []Achievement
	for _, def := range definitions {
		if !def.Active || profile.HasAchievement(def.ID) {
			continue
		}
		if aggregateValue(profile, def.Requirement.Type) >= def.Requirement.Threshold {
			unlocked = append(unlocked, def)
		}
	}
	return unlocked
}
