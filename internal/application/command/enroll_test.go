package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/skillforge/skillforge-engine/internal/domain/content"
	"github.com/skillforge/skillforge-engine/internal/domain/enrollment"
	"github.com/skillforge/skillforge-engine/internal/domain/progression"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
	"github.com/skillforge/skillforge-engine/internal/infrastructure/catalog"
)

func enrollProvider() *catalog.StaticProvider {
	return catalog.NewStaticProvider(
		[]content.Course{
			{ID: "go-101", Title: "Go Basics", Difficulty: progression.DifficultyBeginner,
				LessonIDs: []shared.LessonID{"l1", "l2", "l3"}},
			{ID: "go-201", Title: "Concurrency", Difficulty: progression.DifficultyAdvanced,
				LessonIDs:             []shared.LessonID{"l4"},
				PrerequisiteCourseIDs: []shared.CourseID{"go-101"}},
		},
		nil, nil,
	)
}

func TestEnrollHandler_Enroll(t *testing.T) {
	repo := newFakeEnrollmentRepo()
	bus := &fakeEventBus{}
	handler := NewEnrollHandler(enrollProvider(), repo, bus, testLogger())

	result, err := handler.Handle(context.Background(), EnrollCommand{UserID: "user-1", CourseID: "go-101"})

	assert.NoError(t, err)
	assert.NotEmpty(t, result.EnrollmentID)
	assert.Equal(t, enrollment.StatusEnrolled, result.Status)
	assert.Equal(t, 3, result.TotalLessons)
	assert.False(t, result.EnrolledAt.IsZero())
	assert.Equal(t, 1, bus.published(shared.EventEnrollmentCreated))

	enr, err := repo.GetByID(context.Background(), result.EnrollmentID)
	assert.NoError(t, err)
	assert.Equal(t, shared.CourseID("go-101"), enr.CourseID)
}

func TestEnrollHandler_WithExpiry(t *testing.T) {
	repo := newFakeEnrollmentRepo()
	handler := NewEnrollHandler(enrollProvider(), repo, &fakeEventBus{}, testLogger())
	expires := time.Now().UTC().Add(30 * 24 * time.Hour)

	result, err := handler.Handle(context.Background(), EnrollCommand{
		UserID:    "user-1",
		CourseID:  "go-101",
		ExpiresAt: expires,
	})
	assert.NoError(t, err)

	enr, _ := repo.GetByID(context.Background(), result.EnrollmentID)
	assert.Equal(t, expires, enr.ExpiresAt)
}

func TestEnrollHandler_AlreadyEnrolled(t *testing.T) {
	repo := newFakeEnrollmentRepo()
	handler := NewEnrollHandler(enrollProvider(), repo, &fakeEventBus{}, testLogger())
	ctx := context.Background()

	_, err := handler.Handle(ctx, EnrollCommand{UserID: "user-1", CourseID: "go-101"})
	assert.NoError(t, err)

	_, err = handler.Handle(ctx, EnrollCommand{UserID: "user-1", CourseID: "go-101"})
	assert.ErrorIs(t, err, shared.ErrAlreadyEnrolled)
}

func TestEnrollHandler_PrerequisitesNotMet(t *testing.T) {
	repo := newFakeEnrollmentRepo()
	handler := NewEnrollHandler(enrollProvider(), repo, &fakeEventBus{}, testLogger())

	_, err := handler.Handle(context.Background(), EnrollCommand{UserID: "user-1", CourseID: "go-201"})
	assert.ErrorIs(t, err, shared.ErrPrerequisitesNotMet)
}

func TestEnrollHandler_PrerequisitesMet(t *testing.T) {
	repo := newFakeEnrollmentRepo()
	handler := NewEnrollHandler(enrollProvider(), repo, &fakeEventBus{}, testLogger())
	ctx := context.Background()

	prereq, err := enrollment.New(shared.UserID("user-1"), shared.CourseID("go-101"), 3)
	assert.NoError(t, err)
	prereq.Status = enrollment.StatusCompleted
	assert.NoError(t, repo.Create(ctx, prereq))

	result, err := handler.Handle(ctx, EnrollCommand{UserID: "user-1", CourseID: "go-201"})
	assert.NoError(t, err)
	assert.Equal(t, 1, result.TotalLessons)
}

func TestEnrollHandler_UnknownCourse(t *testing.T) {
	handler := NewEnrollHandler(enrollProvider(), newFakeEnrollmentRepo(), &fakeEventBus{}, testLogger())

	_, err := handler.Handle(context.Background(), EnrollCommand{UserID: "user-1", CourseID: "ghost"})
	assert.True(t, shared.IsNotFound(err))
}

func TestEnrollHandler_Validation(t *testing.T) {
	handler := NewEnrollHandler(enrollProvider(), newFakeEnrollmentRepo(), &fakeEventBus{}, testLogger())
	ctx := context.Background()

	_, err := handler.Handle(ctx, EnrollCommand{CourseID: "go-101"})
	assert.True(t, shared.IsValidation(err))

	_, err = handler.Handle(ctx, EnrollCommand{UserID: "user-1"})
	assert.True(t, shared.IsValidation(err))
}

func TestEnrollHandler_ReenrollAfterDrop(t *testing.T) {
	repo := newFakeEnrollmentRepo()
	enrollHandler := NewEnrollHandler(enrollProvider(), repo, &fakeEventBus{}, testLogger())
	dropHandler := NewUnenrollHandler(repo, &fakeEventBus{}, testLogger())
	ctx := context.Background()

	first, err := enrollHandler.Handle(ctx, EnrollCommand{UserID: "user-1", CourseID: "go-101"})
	assert.NoError(t, err)

	_, err = dropHandler.Handle(ctx, UnenrollCommand{UserID: "user-1", CourseID: "go-101"})
	assert.NoError(t, err)

	// A fresh record with zeroed progress.
	second, err := enrollHandler.Handle(ctx, EnrollCommand{UserID: "user-1", CourseID: "go-101"})
	assert.NoError(t, err)
	assert.NotEqual(t, first.EnrollmentID, second.EnrollmentID)
	assert.Equal(t, enrollment.StatusEnrolled, second.Status)
}

func TestUnenrollHandler_Drop(t *testing.T) {
	repo := newFakeEnrollmentRepo()
	enrollHandler := NewEnrollHandler(enrollProvider(), repo, &fakeEventBus{}, testLogger())
	bus := &fakeEventBus{}
	dropHandler := NewUnenrollHandler(repo, bus, testLogger())
	ctx := context.Background()

	created, err := enrollHandler.Handle(ctx, EnrollCommand{UserID: "user-1", CourseID: "go-101"})
	assert.NoError(t, err)

	result, err := dropHandler.Handle(ctx, UnenrollCommand{UserID: "user-1", CourseID: "go-101"})
	assert.NoError(t, err)
	assert.Equal(t, created.EnrollmentID, result.EnrollmentID)
	assert.Equal(t, enrollment.StatusDropped, result.Status)
	assert.Equal(t, 1, bus.published(shared.EventEnrollmentDropped))
}

func TestUnenrollHandler_NotEnrolled(t *testing.T) {
	handler := NewUnenrollHandler(newFakeEnrollmentRepo(), &fakeEventBus{}, testLogger())

	_, err := handler.Handle(context.Background(), UnenrollCommand{UserID: "user-1", CourseID: "go-101"})
	assert.True(t, shared.IsNotFound(err))
}

func TestUnenrollHandler_CompletedIsTerminal(t *testing.T) {
	repo := newFakeEnrollmentRepo()
	handler := NewUnenrollHandler(repo, &fakeEventBus{}, testLogger())
	ctx := context.Background()

	enr, err := enrollment.New(shared.UserID("user-1"), shared.CourseID("go-101"), 3)
	assert.NoError(t, err)
	enr.Status = enrollment.StatusCompleted
	assert.NoError(t, repo.Create(ctx, enr))

	_, err = handler.Handle(ctx, UnenrollCommand{UserID: "user-1", CourseID: "go-101"})
	assert.ErrorIs(t, err, shared.ErrEnrollmentTerminal)
}
