package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skillforge/skillforge-engine/internal/domain/content"
	"github.com/skillforge/skillforge-engine/internal/domain/enrollment"
	"github.com/skillforge/skillforge-engine/internal/domain/progression"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
	"github.com/skillforge/skillforge-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE LESSON COMMAND
// Idempotent lesson completion. The first call credits the lesson's XP
// reward, updates the enrollment aggregates, and may complete the course;
// every later call returns the originally recorded result unchanged.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteLessonCommand contains the data to complete a lesson.
type CompleteLessonCommand struct {
	// UserID is the acting user.
	UserID string

	// LessonID identifies the lesson in the content catalog.
	LessonID string

	// TimeSpentMinutes is the time the user spent on the lesson.
	TimeSpentMinutes int

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c CompleteLessonCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("complete_lesson: user_id is required")
	}
	if c.LessonID == "" {
		return errors.New("complete_lesson: lesson_id is required")
	}
	if c.TimeSpentMinutes < 0 {
		return errors.New("complete_lesson: time_spent_minutes cannot be negative")
	}
	return nil
}

// CompleteLessonResult contains the result of a lesson completion.
type CompleteLessonResult struct {
	// Completed is true once the lesson is in the completed state.
	Completed bool

	// AlreadyCompleted is true when this call was an idempotent replay.
	AlreadyCompleted bool

	// XPEarned is the XP credited for the lesson (the original amount on
	// replays).
	XPEarned int

	// ProgressPercentage is the course progress after this completion.
	ProgressPercentage int

	// CourseCompleted is true only on the call that pushed progress to 100%.
	CourseCompleted bool

	// CourseBonusXP is the completion bonus credited when the course
	// completed.
	CourseBonusXP int

	// NewTotalXP is the user's total after all XP credited by this call.
	NewTotalXP int

	// LevelUp reports a level change caused by the lesson award.
	LevelUp progression.LevelUpInfo

	// Streak is the streak state after the activity was recorded.
	Streak progression.StreakResult

	// UnlockedAchievements lists achievement IDs unlocked by this call.
	UnlockedAchievements []string

	// CompletedAt is when the lesson was first completed.
	CompletedAt time.Time

	// Events contains domain events generated.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CompleteLessonHandler handles the CompleteLessonCommand.
type CompleteLessonHandler struct {
	contentProvider content.Provider
	enrollmentRepo  enrollment.Repository
	progressRepo    enrollment.ProgressRepository
	awardHandler    *AwardXPHandler
	eventPublisher  shared.EventPublisher
	log             *logger.Logger
}

// NewCompleteLessonHandler creates a new CompleteLessonHandler.
func NewCompleteLessonHandler(
	contentProvider content.Provider,
	enrollmentRepo enrollment.Repository,
	progressRepo enrollment.ProgressRepository,
	awardHandler *AwardXPHandler,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
) *CompleteLessonHandler {
	if log == nil {
		log = logger.Default()
	}

	return &CompleteLessonHandler{
		contentProvider: contentProvider,
		enrollmentRepo:  enrollmentRepo,
		progressRepo:    progressRepo,
		awardHandler:    awardHandler,
		eventPublisher:  eventPublisher,
		log:             log.With(logger.Component("complete_lesson")),
	}
}

// Handle executes the complete lesson command.
func (h *CompleteLessonHandler) Handle(ctx context.Context, cmd CompleteLessonCommand) (*CompleteLessonResult, error) {
	// Validate command
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("command", "CompleteLesson", shared.ErrValidation, err.Error(), err)
	}

	userID, err := shared.NewUserID(cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("complete_lesson: %w", err)
	}
	lessonID, err := shared.NewLessonID(cmd.LessonID)
	if err != nil {
		return nil, fmt.Errorf("complete_lesson: %w", err)
	}

	lesson, err := h.contentProvider.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, fmt.Errorf("complete_lesson: failed to get lesson: %w", err)
	}

	enr, err := h.enrollmentRepo.GetByUserAndCourse(ctx, userID, lesson.CourseID)
	if err != nil {
		return nil, fmt.Errorf("complete_lesson: failed to get enrollment: %w", err)
	}
	if !enr.HasAccess(time.Now().UTC()) {
		return nil, fmt.Errorf("complete_lesson: %w", shared.ErrEnrollmentNotActive)
	}

	// Fast idempotency path before opening a transaction.
	if prior, err := h.progressRepo.GetLessonProgress(ctx, userID, lessonID); err == nil && prior.IsCompleted() {
		return h.replayResult(prior, enr), nil
	} else if err != nil && !shared.IsNotFound(err) {
		return nil, fmt.Errorf("complete_lesson: failed to get lesson progress: %w", err)
	}

	var (
		progress   *enrollment.LessonProgress
		completion enrollment.CompletionResult
	)

	award, err := h.awardHandler.Handle(ctx, AwardXPCommand{
		UserID:     cmd.UserID,
		Kind:       progression.TxLessonComplete,
		BaseAmount: lesson.XPReward,
		Source: progression.Source{
			ID:    lessonID.String(),
			Kind:  progression.SourceLesson,
			Title: lesson.Title,
		},
		Metadata: map[string]interface{}{
			"course_id":          lesson.CourseID.String(),
			"time_spent_minutes": cmd.TimeSpentMinutes,
		},
		CorrelationID: cmd.CorrelationID,
		MutateProfile: func(p *progression.ProgressionProfile) {
			p.RecordLessonCompleted()
		},
		Enlist: func(ctx context.Context, entry *progression.XPTransaction) error {
			var txErr error
			progress, completion, txErr = h.completeInTx(ctx, userID, lesson, entry, cmd.TimeSpentMinutes)
			return txErr
		},
	})
	if err != nil {
		// A concurrent call won the first completion; return its result.
		if shared.IsAlreadyProcessed(err) {
			return h.replayAfterRace(ctx, userID, lessonID, lesson.CourseID)
		}
		return nil, fmt.Errorf("complete_lesson: %w", err)
	}

	result := &CompleteLessonResult{
		Completed:            true,
		XPEarned:             award.AmountAwarded,
		ProgressPercentage:   completion.ProgressPercentage,
		CourseCompleted:      completion.JustCompleted,
		NewTotalXP:           award.NewTotalXP,
		LevelUp:              award.LevelUp,
		Streak:               award.Streak,
		UnlockedAchievements: award.UnlockedAchievements,
		CompletedAt:          progress.CompletedAt,
		Events:               make([]shared.Event, 0, 2),
	}

	lessonEvent := shared.NewLessonCompletedEvent(
		userID.String(), lesson.CourseID.String(), lessonID.String(), 0, award.AmountAwarded,
	)
	if cmd.CorrelationID != "" {
		lessonEvent.BaseEvent = lessonEvent.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	result.Events = append(result.Events, lessonEvent)

	if completion.JustCompleted {
		h.creditCourseCompletion(ctx, cmd, userID, lesson.CourseID, result)
	}

	for _, event := range result.Events {
		_ = h.eventPublisher.Publish(event)
	}

	h.log.Info("lesson completed",
		logger.UserID(userID.String()),
		logger.LessonID(lessonID.String()),
		logger.XPAmount(award.AmountAwarded),
		logger.Int("progress_pct", completion.ProgressPercentage),
	)

	return result, nil
}

// completeInTx performs the enrollment-side writes inside the award
// transaction. Records are re-read here so they come from the same
// transaction; a concurrent first completion surfaces as an
// already-processed error and rolls the whole award back.
func (h *CompleteLessonHandler) completeInTx(
	ctx context.Context,
	userID shared.UserID,
	lesson *content.Lesson,
	entry *progression.XPTransaction,
	timeSpentMinutes int,
) (*enrollment.LessonProgress, enrollment.CompletionResult, error) {
	progress, err := h.progressRepo.GetLessonProgress(ctx, userID, lesson.ID)
	switch {
	case err == nil && progress.IsCompleted():
		return nil, enrollment.CompletionResult{}, shared.ErrLessonCompleted
	case shared.IsNotFound(err):
		progress = enrollment.NewLessonProgress(userID, lesson.CourseID, lesson.ID)
	case err != nil:
		return nil, enrollment.CompletionResult{}, fmt.Errorf("get lesson progress: %w", err)
	}

	progress.AddTime(timeSpentMinutes)
	if err := progress.Complete(entry.Amount); err != nil {
		return nil, enrollment.CompletionResult{}, err
	}
	if err := h.progressRepo.SaveLessonProgress(ctx, progress); err != nil {
		return nil, enrollment.CompletionResult{}, fmt.Errorf("save lesson progress: %w", err)
	}

	enr, err := h.enrollmentRepo.GetByUserAndCourse(ctx, userID, lesson.CourseID)
	if err != nil {
		return nil, enrollment.CompletionResult{}, fmt.Errorf("get enrollment: %w", err)
	}
	if enr.Status == enrollment.StatusEnrolled {
		if err := enr.Start(); err != nil {
			return nil, enrollment.CompletionResult{}, err
		}
	}

	completion := enr.RecordLessonCompletion(entry.Amount, timeSpentMinutes)
	if err := h.enrollmentRepo.Save(ctx, enr); err != nil {
		return nil, enrollment.CompletionResult{}, fmt.Errorf("save enrollment: %w", err)
	}

	if completion.JustCompleted {
		event := shared.NewEnrollmentCompletedEvent(
			enr.ID, userID.String(), lesson.CourseID.String(), enr.CompletedAt,
		)
		_ = h.eventPublisher.Publish(event)
	}

	return progress, completion, nil
}

// creditCourseCompletion awards the course completion bonus as a follow-up
// transaction. The bonus floors at 1 XP so the lifetime course counter
// always travels with a ledger entry.
func (h *CompleteLessonHandler) creditCourseCompletion(
	ctx context.Context,
	cmd CompleteLessonCommand,
	userID shared.UserID,
	courseID shared.CourseID,
	result *CompleteLessonResult,
) {
	course, err := h.contentProvider.GetCourse(ctx, courseID)
	if err != nil {
		h.log.Warn("course bonus skipped: course definition unavailable",
			logger.UserID(userID.String()), logger.CourseID(courseID.String()), logger.Err(err))
		return
	}

	base := course.CompletionBonusXP
	if base < 1 {
		base = 1
	}

	bonus, err := h.awardHandler.Handle(ctx, AwardXPCommand{
		UserID:     cmd.UserID,
		Kind:       progression.TxCourseComplete,
		BaseAmount: base,
		Source: progression.Source{
			ID:    courseID.String(),
			Kind:  progression.SourceCourse,
			Title: course.Title,
		},
		CorrelationID: cmd.CorrelationID,
		MutateProfile: func(p *progression.ProgressionProfile) {
			p.RecordCourseCompleted()
		},
	})
	if err != nil {
		h.log.Warn("course bonus award failed",
			logger.UserID(userID.String()), logger.CourseID(courseID.String()), logger.Err(err))
		return
	}

	result.CourseBonusXP = bonus.AmountAwarded
	result.NewTotalXP = bonus.NewTotalXP
	result.UnlockedAchievements = append(result.UnlockedAchievements, bonus.UnlockedAchievements...)
}

// replayResult rebuilds the idempotent response from the stored records.
func (h *CompleteLessonHandler) replayResult(progress *enrollment.LessonProgress, enr *enrollment.Enrollment) *CompleteLessonResult {
	return &CompleteLessonResult{
		Completed:          true,
		AlreadyCompleted:   true,
		XPEarned:           progress.XPEarned,
		ProgressPercentage: enr.ProgressPercentage,
		CompletedAt:        progress.CompletedAt,
	}
}

// replayAfterRace re-reads the winner's records after losing a concurrent
// first-completion race.
func (h *CompleteLessonHandler) replayAfterRace(
	ctx context.Context,
	userID shared.UserID,
	lessonID shared.LessonID,
	courseID shared.CourseID,
) (*CompleteLessonResult, error) {
	progress, err := h.progressRepo.GetLessonProgress(ctx, userID, lessonID)
	if err != nil {
		return nil, fmt.Errorf("complete_lesson: failed to get lesson progress: %w", err)
	}
	enr, err := h.enrollmentRepo.GetByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("complete_lesson: failed to get enrollment: %w", err)
	}
	return h.replayResult(progress, enr), nil
}
