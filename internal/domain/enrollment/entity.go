// Package enrollment contains the per-user course enrollment aggregate: the
// enrollment state machine, per-lesson and per-task completion records, and
// the derived course progress numbers.
package enrollment

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT STATE MACHINE
// enrolled -> in-progress -> completed, with dropped reachable from any
// non-terminal state. completed and dropped are terminal.
// ══════════════════════════════════════════════════════════════════════════════

// Status represents the enrollment lifecycle state.
type Status string

const (
	StatusEnrolled   Status = "enrolled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusDropped    Status = "dropped"
)

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusEnrolled, StatusInProgress, StatusCompleted, StatusDropped:
		return true
	}
	return false
}

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusDropped
}

// Aggregates holds the enrollment's derived totals. Caches only; each value
// reconciles to the underlying progress records and ledger.
type Aggregates struct {
	// CurrentXP - XP earned within this course.
	CurrentXP int

	// TimeSpentMinutes - total minutes across the course's lessons.
	TimeSpentMinutes int

	// LessonsCompleted and TasksCompleted - completion counters.
	LessonsCompleted int
	TasksCompleted   int

	// AverageScore - mean score over scored submissions.
	AverageScore float64

	// scoredSubmissions backs the running average.
	ScoredSubmissions int
}

// Enrollment is the per (user, course) aggregate record.
type Enrollment struct {
	// ID - unique enrollment identifier.
	ID string

	// UserID and CourseID - the owning pair; unique together among
	// non-dropped records.
	UserID   shared.UserID
	CourseID shared.CourseID

	// Status - state machine position.
	Status Status

	// TotalLessons - lesson count from the course definition, fixed at
	// enroll time; denominator for progress.
	TotalLessons int

	// ProgressPercentage - completedLessons / totalLessons * 100, rounded.
	ProgressPercentage int

	// Aggregates - derived totals.
	Aggregates Aggregates

	// ExpiresAt - optional access expiry; zero means no expiry.
	ExpiresAt time.Time

	// CompletedAt - stamped exactly once when progress first reaches 100%.
	CompletedAt time.Time

	// Version - optimistic concurrency token.
	Version int

	EnrolledAt time.Time
	UpdatedAt  time.Time
}

// New creates an enrollment in the enrolled state.
func New(userID shared.UserID, courseID shared.CourseID, totalLessons int) (*Enrollment, error) {
	if userID.IsEmpty() {
		return nil, shared.NewDomainError("enrollment", "New", shared.ErrInvalidID, "user ID is required")
	}
	if !courseID.IsValid() {
		return nil, shared.NewDomainError("enrollment", "New", shared.ErrInvalidID, "course ID is required")
	}
	if totalLessons < 0 {
		return nil, shared.NewDomainError("enrollment", "New", shared.ErrNegativeValue, "lesson count cannot be negative")
	}

	now := time.Now().UTC()
	return &Enrollment{
		ID:           uuid.NewString(),
		UserID:       userID,
		CourseID:     courseID,
		Status:       StatusEnrolled,
		TotalLessons: totalLessons,
		EnrolledAt:   now,
		UpdatedAt:    now,
	}, nil
}

// Start transitions enrolled -> in-progress on the first lesson activity.
// Already in-progress is a no-op; terminal states are rejected.
func (e *Enrollment) Start() error {
	switch e.Status {
	case StatusEnrolled:
		e.Status = StatusInProgress
		e.UpdatedAt = time.Now().UTC()
		return nil
	case StatusInProgress:
		return nil
	default:
		return shared.ErrEnrollmentTerminal
	}
}

// Drop transitions any non-terminal state to dropped. Irreversible;
// re-enrollment creates a fresh record.
func (e *Enrollment) Drop() error {
	if e.Status.IsTerminal() {
		return shared.ErrEnrollmentTerminal
	}
	e.Status = StatusDropped
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// CompletionResult reports the outcome of a progress recomputation.
type CompletionResult struct {
	ProgressPercentage int

	// JustCompleted is true only on the transition that first reached 100%.
	JustCompleted bool
}

// RecomputeProgress rederives ProgressPercentage from the lessons-completed
// counter and, once every lesson is completed, transitions to completed and
// stamps CompletedAt. Recomputing at 100% again never re-stamps or re-fires.
// The percentage is display-only: completion gates on the lesson count, so a
// 199/200 course showing a rounded 100% still has a lesson outstanding.
func (e *Enrollment) RecomputeProgress() CompletionResult {
	if e.TotalLessons > 0 {
		pct := float64(e.Aggregates.LessonsCompleted) / float64(e.TotalLessons) * 100
		e.ProgressPercentage = int(math.Round(pct))
		if e.ProgressPercentage > 100 {
			e.ProgressPercentage = 100
		}
	}

	result := CompletionResult{ProgressPercentage: e.ProgressPercentage}

	if e.TotalLessons > 0 && e.Aggregates.LessonsCompleted >= e.TotalLessons && e.Status == StatusInProgress {
		e.Status = StatusCompleted
		e.CompletedAt = time.Now().UTC()
		e.UpdatedAt = e.CompletedAt
		result.JustCompleted = true
	}

	return result
}

// RecordLessonCompletion folds one newly completed lesson into the
// aggregates and recomputes progress.
func (e *Enrollment) RecordLessonCompletion(xpEarned, timeSpentMinutes int) CompletionResult {
	e.Aggregates.LessonsCompleted++
	e.Aggregates.CurrentXP += xpEarned
	if timeSpentMinutes > 0 {
		e.Aggregates.TimeSpentMinutes += timeSpentMinutes
	}
	e.UpdatedAt = time.Now().UTC()
	return e.RecomputeProgress()
}

// RecordTaskCompletion folds one passed task into the aggregates.
func (e *Enrollment) RecordTaskCompletion(xpEarned int, score shared.Score) {
	e.Aggregates.TasksCompleted++
	e.Aggregates.CurrentXP += xpEarned
	e.recordScore(score)
	e.UpdatedAt = time.Now().UTC()
}

// recordScore folds a scored submission into the running average.
func (e *Enrollment) recordScore(score shared.Score) {
	n := e.Aggregates.ScoredSubmissions
	e.Aggregates.AverageScore = (e.Aggregates.AverageScore*float64(n) + float64(score.Int())) / float64(n+1)
	e.Aggregates.ScoredSubmissions = n + 1
}

// HasAccess reports whether the enrollment currently grants course access:
// a non-dropped status that has not expired.
func (e *Enrollment) HasAccess(now time.Time) bool {
	if e.Status == StatusDropped {
		return false
	}
	if !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt) {
		return false
	}
	return true
}

// IsCompleted reports whether the course has been completed.
func (e *Enrollment) IsCompleted() bool {
	return e.Status == StatusCompleted
}
