package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skillforge/skillforge-engine/internal/domain/content"
	"github.com/skillforge/skillforge-engine/internal/domain/enrollment"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
	"github.com/skillforge/skillforge-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLL COMMAND
// Creates an enrollment after the prerequisite check. A user holds at most
// one non-dropped enrollment per course; re-enrolling after a drop creates
// a fresh record with zeroed progress.
// ══════════════════════════════════════════════════════════════════════════════

// EnrollCommand contains the data to enroll a user in a course.
type EnrollCommand struct {
	// UserID is the enrolling user.
	UserID string

	// CourseID identifies the course in the content catalog.
	CourseID string

	// ExpiresAt optionally limits course access; zero means no expiry.
	ExpiresAt time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c EnrollCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("enroll: user_id is required")
	}
	if c.CourseID == "" {
		return errors.New("enroll: course_id is required")
	}
	return nil
}

// EnrollResult contains the result of an enrollment.
type EnrollResult struct {
	// EnrollmentID is the created record.
	EnrollmentID string

	// Status is the initial state.
	Status enrollment.Status

	// TotalLessons is the progress denominator fixed at enroll time.
	TotalLessons int

	// EnrolledAt is when the record was created.
	EnrolledAt time.Time

	// Events contains domain events generated.
	Events []shared.Event
}

// EnrollHandler handles the EnrollCommand.
type EnrollHandler struct {
	contentProvider content.Provider
	enrollmentRepo  enrollment.Repository
	eventPublisher  shared.EventPublisher
	log             *logger.Logger
}

// NewEnrollHandler creates a new EnrollHandler.
func NewEnrollHandler(
	contentProvider content.Provider,
	enrollmentRepo enrollment.Repository,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
) *EnrollHandler {
	if log == nil {
		log = logger.Default()
	}

	return &EnrollHandler{
		contentProvider: contentProvider,
		enrollmentRepo:  enrollmentRepo,
		eventPublisher:  eventPublisher,
		log:             log.With(logger.Component("enroll")),
	}
}

// Handle executes the enroll command.
func (h *EnrollHandler) Handle(ctx context.Context, cmd EnrollCommand) (*EnrollResult, error) {
	// Validate command
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("command", "Enroll", shared.ErrValidation, err.Error(), err)
	}

	userID, err := shared.NewUserID(cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("enroll: %w", err)
	}
	courseID, err := shared.NewCourseID(cmd.CourseID)
	if err != nil {
		return nil, fmt.Errorf("enroll: %w", err)
	}

	course, err := h.contentProvider.GetCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("enroll: failed to get course: %w", err)
	}

	if _, err := h.enrollmentRepo.GetByUserAndCourse(ctx, userID, courseID); err == nil {
		return nil, fmt.Errorf("enroll: %w", shared.ErrAlreadyEnrolled)
	} else if !shared.IsNotFound(err) {
		return nil, fmt.Errorf("enroll: failed to check enrollment: %w", err)
	}

	if err := h.checkPrerequisites(ctx, userID, course); err != nil {
		return nil, err
	}

	enr, err := enrollment.New(userID, courseID, len(course.LessonIDs))
	if err != nil {
		return nil, fmt.Errorf("enroll: %w", err)
	}
	enr.ExpiresAt = cmd.ExpiresAt

	// The unique (user, course) index resolves a concurrent double-enroll
	// to one winner.
	if err := h.enrollmentRepo.Create(ctx, enr); err != nil {
		return nil, fmt.Errorf("enroll: failed to create enrollment: %w", err)
	}

	event := shared.NewEnrollmentCreatedEvent(enr.ID, userID.String(), courseID.String())
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.eventPublisher.Publish(event)

	h.log.Info("user enrolled",
		logger.UserID(userID.String()),
		logger.CourseID(courseID.String()),
		logger.Int("total_lessons", enr.TotalLessons),
	)

	return &EnrollResult{
		EnrollmentID: enr.ID,
		Status:       enr.Status,
		TotalLessons: enr.TotalLessons,
		EnrolledAt:   enr.EnrolledAt,
		Events:       []shared.Event{event},
	}, nil
}

// checkPrerequisites verifies every prerequisite course is completed.
func (h *EnrollHandler) checkPrerequisites(ctx context.Context, userID shared.UserID, course *content.Course) error {
	if len(course.PrerequisiteCourseIDs) == 0 {
		return nil
	}

	completedIDs, err := h.enrollmentRepo.ListCompletedCourseIDs(ctx, userID)
	if err != nil {
		return fmt.Errorf("enroll: failed to list completed courses: %w", err)
	}

	completed := make(map[shared.CourseID]bool, len(completedIDs))
	for _, id := range completedIDs {
		completed[id] = true
	}
	for _, required := range course.PrerequisiteCourseIDs {
		if !completed[required] {
			return fmt.Errorf("enroll: course %s: %w", required, shared.ErrPrerequisitesNotMet)
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UNENROLL COMMAND
// Drops a non-terminal enrollment. Ledger history and progress records
// are retained; only course access ends.
// ══════════════════════════════════════════════════════════════════════════════

// UnenrollCommand contains the data to drop an enrollment.
type UnenrollCommand struct {
	// UserID is the acting user.
	UserID string

	// CourseID identifies the course being dropped.
	CourseID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c UnenrollCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("unenroll: user_id is required")
	}
	if c.CourseID == "" {
		return errors.New("unenroll: course_id is required")
	}
	return nil
}

// UnenrollResult contains the result of a drop.
type UnenrollResult struct {
	EnrollmentID string
	Status       enrollment.Status
	DroppedAt    time.Time
	Events       []shared.Event
}

// UnenrollHandler handles the UnenrollCommand.
type UnenrollHandler struct {
	enrollmentRepo enrollment.Repository
	eventPublisher shared.EventPublisher
	log            *logger.Logger
}

// NewUnenrollHandler creates a new UnenrollHandler.
func NewUnenrollHandler(
	enrollmentRepo enrollment.Repository,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
) *UnenrollHandler {
	if log == nil {
		log = logger.Default()
	}

	return &UnenrollHandler{
		enrollmentRepo: enrollmentRepo,
		eventPublisher: eventPublisher,
		log:            log.With(logger.Component("unenroll")),
	}
}

// Handle executes the unenroll command.
func (h *UnenrollHandler) Handle(ctx context.Context, cmd UnenrollCommand) (*UnenrollResult, error) {
	// Validate command
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("command", "Unenroll", shared.ErrValidation, err.Error(), err)
	}

	userID, err := shared.NewUserID(cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("unenroll: %w", err)
	}
	courseID, err := shared.NewCourseID(cmd.CourseID)
	if err != nil {
		return nil, fmt.Errorf("unenroll: %w", err)
	}

	enr, err := h.enrollmentRepo.GetByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("unenroll: failed to get enrollment: %w", err)
	}

	if err := enr.Drop(); err != nil {
		return nil, fmt.Errorf("unenroll: %w", err)
	}
	if err := h.enrollmentRepo.Save(ctx, enr); err != nil {
		return nil, fmt.Errorf("unenroll: failed to save enrollment: %w", err)
	}

	event := shared.NewEnrollmentDroppedEvent(enr.ID, userID.String(), courseID.String())
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.eventPublisher.Publish(event)

	h.log.Info("user unenrolled",
		logger.UserID(userID.String()),
		logger.CourseID(courseID.String()),
	)

	return &UnenrollResult{
		EnrollmentID: enr.ID,
		Status:       enr.Status,
		DroppedAt:    enr.UpdatedAt,
		Events:       []shared.Event{event},
	}, nil
}
