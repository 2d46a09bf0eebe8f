package enrollment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

func TestLessonProgress_Complete(t *testing.T) {
	lp := NewLessonProgress(shared.UserID("user-1"), shared.CourseID("go-101"), shared.LessonID("lesson-1"))

	assert.Equal(t, LessonInProgress, lp.Status)
	assert.False(t, lp.IsCompleted())

	assert.NoError(t, lp.Complete(42))
	assert.True(t, lp.IsCompleted())
	assert.Equal(t, 42, lp.XPEarned)
	assert.False(t, lp.CompletedAt.IsZero())
}

func TestLessonProgress_CompleteTwice(t *testing.T) {
	lp := NewLessonProgress(shared.UserID("user-1"), shared.CourseID("go-101"), shared.LessonID("lesson-1"))
	assert.NoError(t, lp.Complete(42))

	// XPEarned is set exactly once; a replay keeps the first amount.
	err := lp.Complete(99)
	assert.ErrorIs(t, err, shared.ErrLessonCompleted)
	assert.Equal(t, 42, lp.XPEarned)
}

func TestLessonProgress_AddTime(t *testing.T) {
	lp := NewLessonProgress(shared.UserID("user-1"), shared.CourseID("go-101"), shared.LessonID("lesson-1"))

	lp.AddTime(10)
	lp.AddTime(-5)
	lp.AddTime(3)

	assert.Equal(t, 13, lp.TimeSpentMinutes)
}

func TestLessonProgress_RecordAttempt(t *testing.T) {
	lp := NewLessonProgress(shared.UserID("user-1"), shared.CourseID("go-101"), shared.LessonID("lesson-1"))

	lp.RecordAttempt()
	lp.RecordAttempt()
	assert.Equal(t, 2, lp.Attempts)
}

func TestTaskCompletion_FirstPass(t *testing.T) {
	tc := NewTaskCompletion(shared.UserID("user-1"), shared.CourseID("go-101"), shared.TaskID("task-1"))

	outcome := tc.RecordSubmission(shared.Score(85), shared.Score(70))
	assert.True(t, outcome.Passed)
	assert.True(t, outcome.FirstPass)
	assert.Equal(t, TaskCompleted, tc.Status)
	assert.True(t, tc.IsPassed)
	assert.Equal(t, 1, tc.Attempts)
}

func TestTaskCompletion_FailThenPass(t *testing.T) {
	tc := NewTaskCompletion(shared.UserID("user-1"), shared.CourseID("go-101"), shared.TaskID("task-1"))

	outcome := tc.RecordSubmission(shared.Score(40), shared.Score(70))
	assert.False(t, outcome.Passed)
	assert.False(t, outcome.FirstPass)
	assert.Equal(t, TaskFailed, tc.Status)

	outcome = tc.RecordSubmission(shared.Score(90), shared.Score(70))
	assert.True(t, outcome.Passed)
	assert.True(t, outcome.FirstPass)
	assert.Equal(t, 2, tc.Attempts)
}

func TestTaskCompletion_SecondPassIsNotFirst(t *testing.T) {
	tc := NewTaskCompletion(shared.UserID("user-1"), shared.CourseID("go-101"), shared.TaskID("task-1"))

	tc.RecordSubmission(shared.Score(85), shared.Score(70))
	outcome := tc.RecordSubmission(shared.Score(95), shared.Score(70))

	assert.True(t, outcome.Passed)
	assert.False(t, outcome.FirstPass)
	assert.Equal(t, shared.Score(95), tc.Score)
}

func TestTaskCompletion_FailAfterPassKeepsCompleted(t *testing.T) {
	tc := NewTaskCompletion(shared.UserID("user-1"), shared.CourseID("go-101"), shared.TaskID("task-1"))

	tc.RecordSubmission(shared.Score(85), shared.Score(70))
	outcome := tc.RecordSubmission(shared.Score(10), shared.Score(70))

	assert.False(t, outcome.Passed)
	assert.Equal(t, TaskCompleted, tc.Status)
	assert.True(t, tc.IsPassed)
}

func TestTaskCompletion_CreditXP(t *testing.T) {
	tc := NewTaskCompletion(shared.UserID("user-1"), shared.CourseID("go-101"), shared.TaskID("task-1"))

	// Cannot credit before a pass.
	assert.Error(t, tc.CreditXP(30))

	tc.RecordSubmission(shared.Score(85), shared.Score(70))
	assert.NoError(t, tc.CreditXP(30))
	assert.Equal(t, 30, tc.XPEarned)

	// Credited exactly once.
	assert.ErrorIs(t, tc.CreditXP(30), shared.ErrTaskCompleted)
	assert.Equal(t, 30, tc.XPEarned)
}
