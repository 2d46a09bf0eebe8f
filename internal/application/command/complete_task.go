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
// COMPLETE TASK COMMAND
// Records a scored task submission. Every submission is kept for audit;
// XP is credited exactly once, on the first submission that meets the
// passing threshold. The credited amount is the reward calculator's base
// (kind, difficulty, score, estimated minutes) run through the multiplier
// stack.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteTaskCommand contains a task submission.
type CompleteTaskCommand struct {
	// UserID is the acting user.
	UserID string

	// TaskID identifies the task in the content catalog.
	TaskID string

	// Score is the submission score, 0-100.
	Score int

	// TimeSpentMinutes is the time the user actually spent on the task.
	TimeSpentMinutes int

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c CompleteTaskCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("complete_task: user_id is required")
	}
	if c.TaskID == "" {
		return errors.New("complete_task: task_id is required")
	}
	if c.Score < 0 || c.Score > 100 {
		return errors.New("complete_task: score must be between 0 and 100")
	}
	if c.TimeSpentMinutes < 0 {
		return errors.New("complete_task: time_spent_minutes cannot be negative")
	}
	return nil
}

// CompleteTaskResult contains the result of a submission.
type CompleteTaskResult struct {
	// Passed is true when this submission met the passing threshold.
	Passed bool

	// FirstPass is true only for the submission that earned the XP.
	FirstPass bool

	// AlreadyPassed is true when the task was passed before this call.
	AlreadyPassed bool

	// XPEarned is the credited amount (the original amount when replayed).
	XPEarned int

	// Score is the recorded score of this submission.
	Score int

	// Attempts is the total submission count including this one.
	Attempts int

	// NewTotalXP is the user's total after this call.
	NewTotalXP int

	// LevelUp reports a level change caused by the award.
	LevelUp progression.LevelUpInfo

	// Streak is the streak state after the activity was recorded.
	Streak progression.StreakResult

	// UnlockedAchievements lists achievement IDs unlocked by this call.
	UnlockedAchievements []string

	// Events contains domain events generated.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CompleteTaskHandler handles the CompleteTaskCommand.
type CompleteTaskHandler struct {
	contentProvider content.Provider
	enrollmentRepo  enrollment.Repository
	progressRepo    enrollment.ProgressRepository
	awardHandler    *AwardXPHandler
	eventPublisher  shared.EventPublisher
	log             *logger.Logger
}

// NewCompleteTaskHandler creates a new CompleteTaskHandler.
func NewCompleteTaskHandler(
	contentProvider content.Provider,
	enrollmentRepo enrollment.Repository,
	progressRepo enrollment.ProgressRepository,
	awardHandler *AwardXPHandler,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
) *CompleteTaskHandler {
	if log == nil {
		log = logger.Default()
	}

	return &CompleteTaskHandler{
		contentProvider: contentProvider,
		enrollmentRepo:  enrollmentRepo,
		progressRepo:    progressRepo,
		awardHandler:    awardHandler,
		eventPublisher:  eventPublisher,
		log:             log.With(logger.Component("complete_task")),
	}
}

// Handle executes the complete task command.
func (h *CompleteTaskHandler) Handle(ctx context.Context, cmd CompleteTaskCommand) (*CompleteTaskResult, error) {
	// Validate command
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("command", "CompleteTask", shared.ErrValidation, err.Error(), err)
	}

	userID, err := shared.NewUserID(cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("complete_task: %w", err)
	}
	taskID, err := shared.NewTaskID(cmd.TaskID)
	if err != nil {
		return nil, fmt.Errorf("complete_task: %w", err)
	}
	score, err := shared.NewScore(cmd.Score)
	if err != nil {
		return nil, fmt.Errorf("complete_task: %w", err)
	}

	task, err := h.contentProvider.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("complete_task: failed to get task: %w", err)
	}

	enr, err := h.enrollmentRepo.GetByUserAndCourse(ctx, userID, task.CourseID)
	if err != nil {
		return nil, fmt.Errorf("complete_task: failed to get enrollment: %w", err)
	}
	if !enr.HasAccess(time.Now().UTC()) {
		return nil, fmt.Errorf("complete_task: %w", shared.ErrEnrollmentNotActive)
	}

	record, err := h.progressRepo.GetTaskCompletion(ctx, userID, taskID)
	switch {
	case shared.IsNotFound(err):
		record = enrollment.NewTaskCompletion(userID, task.CourseID, taskID)
	case err != nil:
		return nil, fmt.Errorf("complete_task: failed to get task completion: %w", err)
	}

	// Already passed, or this submission fails the threshold: record the
	// attempt for audit and return without touching the ledger.
	if record.IsPassed || score < task.PassingScore {
		return h.recordAuditSubmission(ctx, record, score, task.PassingScore)
	}

	result, err := h.creditFirstPass(ctx, cmd, userID, task, record, score)
	if err != nil {
		// A concurrent submission won the first pass; replay its result.
		if shared.IsAlreadyProcessed(err) {
			return h.replayAfterRace(ctx, userID, taskID, score, task.PassingScore)
		}
		return nil, fmt.Errorf("complete_task: %w", err)
	}

	return result, nil
}

// creditFirstPass runs the award transaction for a passing submission.
// The submission record and enrollment aggregates are written inside the
// same transaction as the ledger entry.
func (h *CompleteTaskHandler) creditFirstPass(
	ctx context.Context,
	cmd CompleteTaskCommand,
	userID shared.UserID,
	task *content.Task,
	record *enrollment.TaskCompletion,
	score shared.Score,
) (*CompleteTaskResult, error) {
	baseAmount := progression.BaseAmount(task.Kind, task.Difficulty, score, task.EstimatedMinutes)

	var attempts int

	award, err := h.awardHandler.Handle(ctx, AwardXPCommand{
		UserID:     cmd.UserID,
		Kind:       progression.TxBonus,
		BaseAmount: baseAmount,
		Source: progression.Source{
			ID:    task.ID.String(),
			Kind:  progression.SourceTask,
			Title: task.Title,
		},
		Multipliers: &progression.MultiplierContext{
			Score:            score,
			Attempts:         record.Attempts + 1,
			ActualMinutes:    cmd.TimeSpentMinutes,
			EstimatedMinutes: task.EstimatedMinutes,
		},
		Metadata: map[string]interface{}{
			"course_id": task.CourseID.String(),
			"lesson_id": task.LessonID.String(),
			"score":     score.Int(),
		},
		CorrelationID: cmd.CorrelationID,
		MutateProfile: func(p *progression.ProgressionProfile) {
			p.RecordTaskCompleted()
		},
		Enlist: func(ctx context.Context, entry *progression.XPTransaction) error {
			var txErr error
			attempts, txErr = h.creditInTx(ctx, userID, task, entry, score)
			return txErr
		},
	})
	if err != nil {
		return nil, err
	}

	result := &CompleteTaskResult{
		Passed:               true,
		FirstPass:            true,
		XPEarned:             award.AmountAwarded,
		Score:                score.Int(),
		Attempts:             attempts,
		NewTotalXP:           award.NewTotalXP,
		LevelUp:              award.LevelUp,
		Streak:               award.Streak,
		UnlockedAchievements: award.UnlockedAchievements,
		Events:               make([]shared.Event, 0, 1),
	}

	taskEvent := shared.NewTaskCompletedEvent(
		userID.String(), task.CourseID.String(), task.ID.String(), award.AmountAwarded,
	)
	if cmd.CorrelationID != "" {
		taskEvent.BaseEvent = taskEvent.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	result.Events = append(result.Events, taskEvent)
	for _, event := range result.Events {
		_ = h.eventPublisher.Publish(event)
	}

	h.log.Info("task passed",
		logger.UserID(userID.String()),
		logger.TaskID(task.ID.String()),
		logger.XPAmount(award.AmountAwarded),
		logger.Int("attempts", attempts),
	)

	return result, nil
}

// creditInTx performs the submission-side writes inside the award
// transaction. The record is re-read so a concurrent first pass surfaces
// as an already-processed error and rolls the award back.
func (h *CompleteTaskHandler) creditInTx(
	ctx context.Context,
	userID shared.UserID,
	task *content.Task,
	entry *progression.XPTransaction,
	score shared.Score,
) (int, error) {
	record, err := h.progressRepo.GetTaskCompletion(ctx, userID, task.ID)
	switch {
	case shared.IsNotFound(err):
		record = enrollment.NewTaskCompletion(userID, task.CourseID, task.ID)
	case err != nil:
		return 0, fmt.Errorf("get task completion: %w", err)
	}
	if record.IsPassed {
		return 0, shared.ErrTaskCompleted
	}

	outcome := record.RecordSubmission(score, task.PassingScore)
	if !outcome.FirstPass {
		return 0, shared.ErrTaskCompleted
	}
	if err := record.CreditXP(entry.Amount); err != nil {
		return 0, err
	}
	if err := h.progressRepo.SaveTaskCompletion(ctx, record); err != nil {
		return 0, fmt.Errorf("save task completion: %w", err)
	}

	enr, err := h.enrollmentRepo.GetByUserAndCourse(ctx, userID, task.CourseID)
	if err != nil {
		return 0, fmt.Errorf("get enrollment: %w", err)
	}
	if enr.Status == enrollment.StatusEnrolled {
		if err := enr.Start(); err != nil {
			return 0, err
		}
	}
	enr.RecordTaskCompletion(entry.Amount, score)
	if err := h.enrollmentRepo.Save(ctx, enr); err != nil {
		return 0, fmt.Errorf("save enrollment: %w", err)
	}

	return record.Attempts, nil
}

// recordAuditSubmission stores a non-crediting submission: a failing score,
// or any submission after the task was already passed.
func (h *CompleteTaskHandler) recordAuditSubmission(
	ctx context.Context,
	record *enrollment.TaskCompletion,
	score shared.Score,
	passingScore shared.Score,
) (*CompleteTaskResult, error) {
	alreadyPassed := record.IsPassed
	priorXP := record.XPEarned

	outcome := record.RecordSubmission(score, passingScore)
	if err := h.progressRepo.SaveTaskCompletion(ctx, record); err != nil {
		return nil, fmt.Errorf("complete_task: failed to save task completion: %w", err)
	}

	return &CompleteTaskResult{
		Passed:        outcome.Passed,
		AlreadyPassed: alreadyPassed,
		XPEarned:      priorXP,
		Score:         score.Int(),
		Attempts:      record.Attempts,
	}, nil
}

// replayAfterRace re-reads the winner's record after losing a concurrent
// first-pass race and records this submission for audit.
func (h *CompleteTaskHandler) replayAfterRace(
	ctx context.Context,
	userID shared.UserID,
	taskID shared.TaskID,
	score shared.Score,
	passingScore shared.Score,
) (*CompleteTaskResult, error) {
	record, err := h.progressRepo.GetTaskCompletion(ctx, userID, taskID)
	if err != nil {
		return nil, fmt.Errorf("complete_task: failed to get task completion: %w", err)
	}
	return h.recordAuditSubmission(ctx, record, score, passingScore)
}
