package enrollment

import (
	"time"

	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LESSON PROGRESS
// One record per (user, lesson). Status moves only forward; xpEarned is set
// exactly once, on first completion.
// ══════════════════════════════════════════════════════════════════════════════

// LessonStatus is the per-lesson progress state.
type LessonStatus string

const (
	LessonNotStarted LessonStatus = "not_started"
	LessonInProgress LessonStatus = "in_progress"
	LessonCompleted  LessonStatus = "completed"
)

// lessonRank orders statuses; transitions may only increase rank.
func lessonRank(s LessonStatus) int {
	switch s {
	case LessonNotStarted:
		return 0
	case LessonInProgress:
		return 1
	case LessonCompleted:
		return 2
	default:
		return -1
	}
}

// LessonProgress is the per (user, lesson) completion record.
type LessonProgress struct {
	UserID   shared.UserID
	LessonID shared.LessonID
	CourseID shared.CourseID

	// Status - only ever moves forward.
	Status LessonStatus

	// TimeSpentMinutes - monotonically increasing.
	TimeSpentMinutes int

	// Attempts - submission count.
	Attempts int

	// XPEarned - set exactly once on first completion, never changed after.
	XPEarned int

	// CompletedAt - stamped with the first completion.
	CompletedAt time.Time

	StartedAt time.Time
	UpdatedAt time.Time
}

// NewLessonProgress creates an in-progress record for a first touch.
func NewLessonProgress(userID shared.UserID, courseID shared.CourseID, lessonID shared.LessonID) *LessonProgress {
	now := time.Now().UTC()
	return &LessonProgress{
		UserID:    userID,
		LessonID:  lessonID,
		CourseID:  courseID,
		Status:    LessonInProgress,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// AddTime increases the time counter. Negative deltas are ignored.
func (lp *LessonProgress) AddTime(minutes int) {
	if minutes > 0 {
		lp.TimeSpentMinutes += minutes
		lp.UpdatedAt = time.Now().UTC()
	}
}

// RecordAttempt bumps the attempt counter.
func (lp *LessonProgress) RecordAttempt() {
	lp.Attempts++
	lp.UpdatedAt = time.Now().UTC()
}

// Complete marks the lesson completed and records the earned XP.
// Returns shared.ErrLessonCompleted if already completed; the caller treats
// that as an idempotent no-op and returns the previously recorded XPEarned.
func (lp *LessonProgress) Complete(xpEarned int) error {
	if lp.Status == LessonCompleted {
		return shared.ErrLessonCompleted
	}
	if lessonRank(LessonCompleted) < lessonRank(lp.Status) {
		return shared.ErrLessonRegression
	}

	lp.Status = LessonCompleted
	lp.XPEarned = xpEarned
	lp.CompletedAt = time.Now().UTC()
	lp.UpdatedAt = lp.CompletedAt
	return nil
}

// IsCompleted reports whether the lesson has been credited.
func (lp *LessonProgress) IsCompleted() bool {
	return lp.Status == LessonCompleted
}

// ══════════════════════════════════════════════════════════════════════════════
// TASK COMPLETION
// One record per (user, task). XP is earned only on a passing submission,
// and only once; later submissions are recorded for audit but never credited.
// ══════════════════════════════════════════════════════════════════════════════

// TaskStatus is the per-task state.
type TaskStatus string

const (
	TaskNotStarted TaskStatus = "not_started"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// TaskCompletion is the per (user, task) submission record.
type TaskCompletion struct {
	UserID   shared.UserID
	TaskID   shared.TaskID
	CourseID shared.CourseID

	Status TaskStatus

	// Score - the latest submission score.
	Score shared.Score

	// XPEarned - nonzero only when IsPassed; set once on the first pass.
	XPEarned int

	// IsPassed - true once any submission met the passing threshold.
	IsPassed bool

	// Attempts - total submissions, pass or fail.
	Attempts int

	CompletedAt time.Time
	UpdatedAt   time.Time
}

// NewTaskCompletion creates an empty record for a first submission.
func NewTaskCompletion(userID shared.UserID, courseID shared.CourseID, taskID shared.TaskID) *TaskCompletion {
	return &TaskCompletion{
		UserID:    userID,
		TaskID:    taskID,
		CourseID:  courseID,
		Status:    TaskInProgress,
		UpdatedAt: time.Now().UTC(),
	}
}

// SubmissionOutcome reports what a submission did.
type SubmissionOutcome struct {
	Passed bool

	// FirstPass is true only for the submission that first passed; XP is
	// awarded exactly then.
	FirstPass bool
}

// RecordSubmission records a scored submission. Every submission is kept for
// audit; state advances to completed on the first pass and never regresses.
func (tc *TaskCompletion) RecordSubmission(score shared.Score, passingScore shared.Score) SubmissionOutcome {
	tc.Attempts++
	tc.Score = score
	tc.UpdatedAt = time.Now().UTC()

	passed := score >= passingScore
	outcome := SubmissionOutcome{Passed: passed}

	if !passed {
		if tc.Status != TaskCompleted {
			tc.Status = TaskFailed
		}
		return outcome
	}

	if !tc.IsPassed {
		tc.IsPassed = true
		tc.Status = TaskCompleted
		tc.CompletedAt = tc.UpdatedAt
		outcome.FirstPass = true
	}
	return outcome
}

// CreditXP records the awarded amount for the first passing submission.
// Returns shared.ErrTaskCompleted if XP was already credited.
func (tc *TaskCompletion) CreditXP(amount int) error {
	if !tc.IsPassed {
		return shared.NewDomainError("enrollment", "CreditXP", shared.ErrInvalidState, "task has not been passed")
	}
	if tc.XPEarned > 0 {
		return shared.ErrTaskCompleted
	}
	tc.XPEarned = amount
	tc.UpdatedAt = time.Now().UTC()
	return nil
}
