// Package content defines the read-only contract with the external content
// repository. Course, lesson, and task definitions are authored elsewhere;
// this engine only reads the fields that drive XP accounting and access
// checks.
package content

import (
	"context"

	"github.com/skillforge/skillforge-engine/internal/domain/progression"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// Course is a static course definition.
type Course struct {
	ID    shared.CourseID
	Title string

	// Difficulty - course-level difficulty, used for course-completion bonuses.
	Difficulty progression.Difficulty

	// LessonIDs - ordered lesson list; its length is the progress denominator.
	LessonIDs []shared.LessonID

	// PrerequisiteCourseIDs - courses that must be completed before enrolling.
	PrerequisiteCourseIDs []shared.CourseID

	// CompletionBonusXP - base XP granted when the course completes.
	CompletionBonusXP int
}

// Lesson is a static lesson definition.
type Lesson struct {
	ID       shared.LessonID
	CourseID shared.CourseID
	Title    string

	Difficulty progression.Difficulty

	// XPReward - base XP for completing the lesson; caps LessonProgress.XPEarned.
	XPReward int

	// EstimatedMinutes - expected duration, feeds the speed bonus.
	EstimatedMinutes int
}

// Task is a static task definition.
type Task struct {
	ID       shared.TaskID
	LessonID shared.LessonID
	CourseID shared.CourseID
	Title    string

	Kind       progression.TaskKind
	Difficulty progression.Difficulty

	// PassingScore - minimum score counted as a pass.
	PassingScore shared.Score

	// EstimatedMinutes - expected duration, feeds base XP and the speed bonus.
	EstimatedMinutes int
}

// Provider is the external content repository.
type Provider interface {
	// GetCourse returns a course definition.
	// Returns shared.ErrCourseNotFound if absent.
	GetCourse(ctx context.Context, id shared.CourseID) (*Course, error)

	// GetLesson returns a lesson definition.
	// Returns shared.ErrLessonNotFound if absent.
	GetLesson(ctx context.Context, id shared.LessonID) (*Lesson, error)

	// GetTask returns a task definition.
	// Returns shared.ErrTaskNotFound if absent.
	GetTask(ctx context.Context, id shared.TaskID) (*Task, error)
}
