package enrollment

import (
	"context"

	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Contracts for the storage layer. Implementations live in
// infrastructure/persistence and must honor the querier carried in the
// context so writes can join the award transaction.
// ══════════════════════════════════════════════════════════════════════════════

// Repository stores enrollment records.
type Repository interface {
	// Create inserts a new enrollment.
	// Returns shared.ErrAlreadyEnrolled when a non-dropped enrollment for
	// the same (user, course) exists.
	Create(ctx context.Context, e *Enrollment) error

	// GetByID returns one enrollment.
	// Returns shared.ErrEnrollmentNotFound if absent.
	GetByID(ctx context.Context, id string) (*Enrollment, error)

	// GetByUserAndCourse returns the user's current (non-dropped) enrollment
	// for the course. Returns shared.ErrEnrollmentNotFound if absent.
	GetByUserAndCourse(ctx context.Context, userID shared.UserID, courseID shared.CourseID) (*Enrollment, error)

	// ListByUser returns all of the user's enrollments, newest first.
	ListByUser(ctx context.Context, userID shared.UserID, p shared.Pagination) ([]*Enrollment, error)

	// ListCompletedCourseIDs returns IDs of courses the user has completed
	// (prerequisite checks).
	ListCompletedCourseIDs(ctx context.Context, userID shared.UserID) ([]shared.CourseID, error)

	// Save updates an enrollment with an optimistic version check.
	// Returns shared.ErrConcurrentUpdate when the stored version moved on.
	Save(ctx context.Context, e *Enrollment) error
}

// ProgressRepository stores per-lesson and per-task completion records.
type ProgressRepository interface {
	// GetLessonProgress returns the record for (user, lesson).
	// Returns shared.ErrNotFound if the lesson was never touched.
	GetLessonProgress(ctx context.Context, userID shared.UserID, lessonID shared.LessonID) (*LessonProgress, error)

	// SaveLessonProgress upserts the record. The (user, lesson) pair is
	// unique; concurrent first-completion attempts resolve to one winner.
	SaveLessonProgress(ctx context.Context, lp *LessonProgress) error

	// ListLessonProgress returns all lesson records for an enrollment's course.
	ListLessonProgress(ctx context.Context, userID shared.UserID, courseID shared.CourseID) ([]*LessonProgress, error)

	// GetTaskCompletion returns the record for (user, task).
	// Returns shared.ErrNotFound if the task was never attempted.
	GetTaskCompletion(ctx context.Context, userID shared.UserID, taskID shared.TaskID) (*TaskCompletion, error)

	// SaveTaskCompletion upserts the record.
	SaveTaskCompletion(ctx context.Context, tc *TaskCompletion) error

	// ListTaskCompletions returns all task records for a user within a course.
	ListTaskCompletions(ctx context.Context, userID shared.UserID, courseID shared.CourseID) ([]*TaskCompletion, error)
}
