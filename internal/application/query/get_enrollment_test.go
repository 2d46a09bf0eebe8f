package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/skillforge/skillforge-engine/internal/domain/enrollment"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

func seedEnrollment(t *testing.T, repo *fakeEnrollmentRepo) *enrollment.Enrollment {
	t.Helper()
	enr, err := enrollment.New(shared.UserID("user-1"), shared.CourseID("go-101"), 4)
	assert.NoError(t, err)
	assert.NoError(t, enr.Start())
	enr.RecordLessonCompletion(50, 15)
	assert.NoError(t, repo.Create(context.Background(), enr))
	return enr
}

func TestGetEnrollmentHandler(t *testing.T) {
	repo := newFakeEnrollmentRepo()
	seedEnrollment(t, repo)
	handler := NewGetEnrollmentHandler(repo, &fakeProgressRepo{})

	result, err := handler.Handle(context.Background(), GetEnrollmentQuery{UserID: "user-1", CourseID: "go-101"})

	assert.NoError(t, err)
	assert.Equal(t, "user-1", result.Enrollment.UserID)
	assert.Equal(t, string(enrollment.StatusInProgress), result.Enrollment.Status)
	assert.Equal(t, 25, result.Enrollment.ProgressPercentage)
	assert.Equal(t, 1, result.Enrollment.LessonsCompleted)
	assert.Equal(t, 50, result.Enrollment.CurrentXP)
	assert.True(t, result.Enrollment.HasAccess)
	assert.Nil(t, result.Enrollment.CompletedAt)
	assert.Empty(t, result.Lessons)
}

func TestGetEnrollmentHandler_IncludeProgress(t *testing.T) {
	repo := newFakeEnrollmentRepo()
	seedEnrollment(t, repo)

	progressRepo := &fakeProgressRepo{}
	lp := enrollment.NewLessonProgress(shared.UserID("user-1"), shared.CourseID("go-101"), shared.LessonID("l1"))
	assert.NoError(t, lp.Complete(50))
	assert.NoError(t, progressRepo.SaveLessonProgress(context.Background(), lp))

	tc := enrollment.NewTaskCompletion(shared.UserID("user-1"), shared.CourseID("go-101"), shared.TaskID("t1"))
	tc.RecordSubmission(shared.Score(85), shared.Score(70))
	assert.NoError(t, tc.CreditXP(40))
	assert.NoError(t, progressRepo.SaveTaskCompletion(context.Background(), tc))

	handler := NewGetEnrollmentHandler(repo, progressRepo)
	result, err := handler.Handle(context.Background(), GetEnrollmentQuery{
		UserID: "user-1", CourseID: "go-101", IncludeProgress: true,
	})

	assert.NoError(t, err)
	assert.Len(t, result.Lessons, 1)
	assert.Equal(t, "l1", result.Lessons[0].LessonID)
	assert.Equal(t, 50, result.Lessons[0].XPEarned)
	assert.NotNil(t, result.Lessons[0].CompletedAt)

	assert.Len(t, result.Tasks, 1)
	assert.Equal(t, "t1", result.Tasks[0].TaskID)
	assert.True(t, result.Tasks[0].IsPassed)
	assert.Equal(t, 40, result.Tasks[0].XPEarned)
	assert.Equal(t, 85, result.Tasks[0].Score)
}

func TestGetEnrollmentHandler_Expired(t *testing.T) {
	repo := newFakeEnrollmentRepo()
	enr := seedEnrollment(t, repo)
	enr.ExpiresAt = time.Now().UTC().Add(-time.Hour)

	handler := NewGetEnrollmentHandler(repo, &fakeProgressRepo{})
	result, err := handler.Handle(context.Background(), GetEnrollmentQuery{UserID: "user-1", CourseID: "go-101"})

	assert.NoError(t, err)
	assert.False(t, result.Enrollment.HasAccess)
	assert.NotNil(t, result.Enrollment.ExpiresAt)
}

func TestGetEnrollmentHandler_NotFound(t *testing.T) {
	handler := NewGetEnrollmentHandler(newFakeEnrollmentRepo(), &fakeProgressRepo{})

	_, err := handler.Handle(context.Background(), GetEnrollmentQuery{UserID: "user-1", CourseID: "ghost"})
	assert.True(t, shared.IsNotFound(err))
}

func TestGetEnrollmentHandler_Validation(t *testing.T) {
	handler := NewGetEnrollmentHandler(newFakeEnrollmentRepo(), &fakeProgressRepo{})
	ctx := context.Background()

	_, err := handler.Handle(ctx, GetEnrollmentQuery{CourseID: "go-101"})
	assert.True(t, shared.IsValidation(err))

	_, err = handler.Handle(ctx, GetEnrollmentQuery{UserID: "user-1"})
	assert.True(t, shared.IsValidation(err))
}

func TestListEnrollmentsHandler(t *testing.T) {
	repo := newFakeEnrollmentRepo()
	seedEnrollment(t, repo)

	other, err := enrollment.New(shared.UserID("user-1"), shared.CourseID("go-201"), 2)
	assert.NoError(t, err)
	assert.NoError(t, repo.Create(context.Background(), other))

	stranger, err := enrollment.New(shared.UserID("user-2"), shared.CourseID("go-101"), 4)
	assert.NoError(t, err)
	assert.NoError(t, repo.Create(context.Background(), stranger))

	handler := NewListEnrollmentsHandler(repo)
	result, err := handler.Handle(context.Background(), ListEnrollmentsQuery{UserID: "user-1"})

	assert.NoError(t, err)
	assert.Len(t, result.Enrollments, 2)
	for _, dto := range result.Enrollments {
		assert.Equal(t, "user-1", dto.UserID)
	}
}

func TestListEnrollmentsHandler_Validation(t *testing.T) {
	handler := NewListEnrollmentsHandler(newFakeEnrollmentRepo())

	_, err := handler.Handle(context.Background(), ListEnrollmentsQuery{})
	assert.True(t, shared.IsValidation(err))
}
