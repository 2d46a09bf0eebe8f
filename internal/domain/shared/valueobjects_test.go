package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewUserID(t *testing.T) {
	id, err := NewUserID("  user-1  ")
	assert.NoError(t, err)
	assert.Equal(t, UserID("user-1"), id)

	_, err = NewUserID("")
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = NewUserID("   ")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestNewCourseID(t *testing.T) {
	id, err := NewCourseID("Go-Basics")
	assert.NoError(t, err)
	assert.Equal(t, CourseID("go-basics"), id)

	_, err = NewCourseID("x")
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = NewCourseID("has spaces")
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = NewCourseID("-leading-dash")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestSlugIDs(t *testing.T) {
	assert.True(t, LessonID("go-basics-lesson-03").IsValid())
	assert.True(t, TaskID("task_12").IsValid())
	assert.False(t, LessonID("").IsValid())
	assert.False(t, TaskID("UPPER").IsValid())
}

func TestXP_Add(t *testing.T) {
	assert.Equal(t, XP(150), XP(100).Add(50))
	assert.Equal(t, MaxXP, MaxXP.Add(1))
	assert.Equal(t, MinXP, XP(10).Add(-50))
}

func TestNewXP(t *testing.T) {
	xp, err := NewXP(500)
	assert.NoError(t, err)
	assert.Equal(t, 500, xp.Int())

	_, err = NewXP(-1)
	assert.ErrorIs(t, err, ErrNegativeValue)

	capped, err := NewXP(int(MaxXP) + 1)
	assert.NoError(t, err)
	assert.Equal(t, MaxXP, capped)
}

func TestNewScore(t *testing.T) {
	score, err := NewScore(85)
	assert.NoError(t, err)
	assert.False(t, score.IsPerfect())

	perfect, err := NewScore(100)
	assert.NoError(t, err)
	assert.True(t, perfect.IsPerfect())

	_, err = NewScore(-1)
	assert.ErrorIs(t, err, ErrValueOutOfRange)

	_, err = NewScore(101)
	assert.ErrorIs(t, err, ErrValueOutOfRange)
}

func TestRank(t *testing.T) {
	assert.True(t, Rank(1).IsValid())
	assert.False(t, Unranked.IsValid())
	assert.True(t, Unranked.IsUnranked())
	assert.True(t, Rank(3).IsTop(10))
	assert.False(t, Rank(11).IsTop(10))

	// Moving from rank 5 to rank 2 is an improvement of 3.
	assert.Equal(t, 3, Rank(2).Compare(Rank(5)))
}

func TestTimeRange(t *testing.T) {
	from := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	tr, err := NewTimeRange(from, to)
	assert.NoError(t, err)
	assert.Equal(t, time.Hour, tr.Duration())
	assert.True(t, tr.Contains(from.Add(30*time.Minute)))
	assert.False(t, tr.Contains(to.Add(time.Minute)))

	_, err = NewTimeRange(to, from)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPagination(t *testing.T) {
	p := NewPagination(0, 0)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, DefaultPageSize, p.Limit())
	assert.Equal(t, 0, p.Offset())

	p = NewPagination(3, 10)
	assert.Equal(t, 20, p.Offset())
	assert.Equal(t, 10, p.Limit())

	p = NewPagination(1, 500)
	assert.Equal(t, MaxPageSize, p.Limit())
}

func TestDomainErrorClassification(t *testing.T) {
	assert.True(t, IsNotFound(ErrProfileNotFound))
	assert.True(t, IsAlreadyExists(ErrAlreadyEnrolled))
	assert.True(t, IsAlreadyProcessed(ErrLessonCompleted))
	assert.True(t, IsRateLimited(ErrRateLimitExceeded))
	assert.True(t, IsPreconditionFailed(ErrPrerequisitesNotMet))
	assert.True(t, IsValidation(ErrInvalidID))

	wrapped := WrapError("test", "Op", ErrNotFound, "missing", ErrProfileNotFound)
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsValidation(wrapped))
}
