package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/skillforge/skillforge-engine/internal/domain/enrollment"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY IMPLEMENTATION
// Per-lesson and per-task completion records, keyed by (user, lesson) and
// (user, task). Writes are upserts; the primary keys resolve concurrent
// first-completion races to one winner.
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements enrollment.ProgressRepository for PostgreSQL.
type ProgressRepository struct {
	conn *Connection
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

// ──────────────────────────────────────────────────────────────────────────────
// Lesson progress
// ──────────────────────────────────────────────────────────────────────────────

// GetLessonProgress returns the record for (user, lesson).
func (r *ProgressRepository) GetLessonProgress(ctx context.Context, userID shared.UserID, lessonID shared.LessonID) (*enrollment.LessonProgress, error) {
	query := `
		SELECT user_id, lesson_id, course_id, status, time_spent_minutes,
			   attempts, xp_earned, completed_at, started_at, updated_at
		FROM lesson_progress
		WHERE user_id = $1 AND lesson_id = $2
	`

	q := QuerierFrom(ctx, r.conn)
	lp, err := r.scanLessonProgress(q.QueryRow(ctx, query, userID.String(), lessonID.String()))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get lesson progress: %w", err)
	}
	return lp, nil
}

// SaveLessonProgress upserts the record.
func (r *ProgressRepository) SaveLessonProgress(ctx context.Context, lp *enrollment.LessonProgress) error {
	query := `
		INSERT INTO lesson_progress (
			user_id, lesson_id, course_id, status, time_spent_minutes,
			attempts, xp_earned, completed_at, started_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, lesson_id) DO UPDATE SET
			status = EXCLUDED.status,
			time_spent_minutes = EXCLUDED.time_spent_minutes,
			attempts = EXCLUDED.attempts,
			xp_earned = EXCLUDED.xp_earned,
			completed_at = EXCLUDED.completed_at,
			updated_at = EXCLUDED.updated_at
	`

	q := QuerierFrom(ctx, r.conn)
	_, err := q.Exec(ctx, query,
		lp.UserID.String(),
		lp.LessonID.String(),
		lp.CourseID.String(),
		string(lp.Status),
		lp.TimeSpentMinutes,
		lp.Attempts,
		lp.XPEarned,
		nullableTime(lp.CompletedAt),
		lp.StartedAt,
		lp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save lesson progress: %w", err)
	}
	return nil
}

// ListLessonProgress returns all lesson records for a user within a course.
func (r *ProgressRepository) ListLessonProgress(ctx context.Context, userID shared.UserID, courseID shared.CourseID) ([]*enrollment.LessonProgress, error) {
	query := `
		SELECT user_id, lesson_id, course_id, status, time_spent_minutes,
			   attempts, xp_earned, completed_at, started_at, updated_at
		FROM lesson_progress
		WHERE user_id = $1 AND course_id = $2
		ORDER BY started_at
	`

	q := QuerierFrom(ctx, r.conn)
	rows, err := q.Query(ctx, query, userID.String(), courseID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list lesson progress: %w", err)
	}
	defer rows.Close()

	var records []*enrollment.LessonProgress
	for rows.Next() {
		lp, err := r.scanLessonProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lesson progress: %w", err)
		}
		records = append(records, lp)
	}
	return records, rows.Err()
}

func (r *ProgressRepository) scanLessonProgress(row rowScanner) (*enrollment.LessonProgress, error) {
	var (
		lp          enrollment.LessonProgress
		userID      string
		lessonID    string
		courseID    string
		status      string
		completedAt *time.Time
	)

	err := row.Scan(
		&userID,
		&lessonID,
		&courseID,
		&status,
		&lp.TimeSpentMinutes,
		&lp.Attempts,
		&lp.XPEarned,
		&completedAt,
		&lp.StartedAt,
		&lp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	lp.UserID = shared.UserID(userID)
	lp.LessonID = shared.LessonID(lessonID)
	lp.CourseID = shared.CourseID(courseID)
	lp.Status = enrollment.LessonStatus(status)
	if completedAt != nil {
		lp.CompletedAt = *completedAt
	}

	return &lp, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Task completions
// ──────────────────────────────────────────────────────────────────────────────

// GetTaskCompletion returns the record for (user, task).
func (r *ProgressRepository) GetTaskCompletion(ctx context.Context, userID shared.UserID, taskID shared.TaskID) (*enrollment.TaskCompletion, error) {
	query := `
		SELECT user_id, task_id, course_id, status, score, xp_earned,
			   is_passed, attempts, completed_at, updated_at
		FROM task_completions
		WHERE user_id = $1 AND task_id = $2
	`

	q := QuerierFrom(ctx, r.conn)
	tc, err := r.scanTaskCompletion(q.QueryRow(ctx, query, userID.String(), taskID.String()))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get task completion: %w", err)
	}
	return tc, nil
}

// SaveTaskCompletion upserts the record.
func (r *ProgressRepository) SaveTaskCompletion(ctx context.Context, tc *enrollment.TaskCompletion) error {
	query := `
		INSERT INTO task_completions (
			user_id, task_id, course_id, status, score, xp_earned,
			is_passed, attempts, completed_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, task_id) DO UPDATE SET
			status = EXCLUDED.status,
			score = EXCLUDED.score,
			xp_earned = EXCLUDED.xp_earned,
			is_passed = EXCLUDED.is_passed,
			attempts = EXCLUDED.attempts,
			completed_at = EXCLUDED.completed_at,
			updated_at = EXCLUDED.updated_at
	`

	q := QuerierFrom(ctx, r.conn)
	_, err := q.Exec(ctx, query,
		tc.UserID.String(),
		tc.TaskID.String(),
		tc.CourseID.String(),
		string(tc.Status),
		tc.Score.Int(),
		tc.XPEarned,
		tc.IsPassed,
		tc.Attempts,
		nullableTime(tc.CompletedAt),
		tc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save task completion: %w", err)
	}
	return nil
}

// ListTaskCompletions returns all task records for a user within a course.
func (r *ProgressRepository) ListTaskCompletions(ctx context.Context, userID shared.UserID, courseID shared.CourseID) ([]*enrollment.TaskCompletion, error) {
	query := `
		SELECT user_id, task_id, course_id, status, score, xp_earned,
			   is_passed, attempts, completed_at, updated_at
		FROM task_completions
		WHERE user_id = $1 AND course_id = $2
		ORDER BY updated_at
	`

	q := QuerierFrom(ctx, r.conn)
	rows, err := q.Query(ctx, query, userID.String(), courseID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list task completions: %w", err)
	}
	defer rows.Close()

	var records []*enrollment.TaskCompletion
	for rows.Next() {
		tc, err := r.scanTaskCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task completion: %w", err)
		}
		records = append(records, tc)
	}
	return records, rows.Err()
}

func (r *ProgressRepository) scanTaskCompletion(row rowScanner) (*enrollment.TaskCompletion, error) {
	var (
		tc          enrollment.TaskCompletion
		userID      string
		taskID      string
		courseID    string
		status      string
		score       int
		completedAt *time.Time
	)

	err := row.Scan(
		&userID,
		&taskID,
		&courseID,
		&status,
		&score,
		&tc.XPEarned,
		&tc.IsPassed,
		&tc.Attempts,
		&completedAt,
		&tc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tc.UserID = shared.UserID(userID)
	tc.TaskID = shared.TaskID(taskID)
	tc.CourseID = shared.CourseID(courseID)
	tc.Status = enrollment.TaskStatus(status)
	tc.Score = shared.Score(score)

	if completedAt != nil {
		tc.CompletedAt = *completedAt
	}

	return &tc, nil
}
