package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/skillforge/skillforge-engine/internal/domain/enrollment"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT REPOSITORY IMPLEMENTATION
// A partial unique index over non-dropped (user, course) pairs makes Create
// the arbiter for concurrent enroll attempts.
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentRepository implements enrollment.Repository for PostgreSQL.
type EnrollmentRepository struct {
	conn *Connection
}

// NewEnrollmentRepository creates a new EnrollmentRepository.
func NewEnrollmentRepository(conn *Connection) *EnrollmentRepository {
	return &EnrollmentRepository{conn: conn}
}

const enrollmentColumns = `
	id, user_id, course_id, status, total_lessons, progress_percentage,
	current_xp, time_spent_minutes, lessons_completed, tasks_completed,
	average_score, scored_submissions, expires_at, completed_at,
	version, enrolled_at, updated_at
`

// Create inserts a new enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, e *enrollment.Enrollment) error {
	query := `
		INSERT INTO enrollments (` + enrollmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	q := QuerierFrom(ctx, r.conn)
	_, err := q.Exec(ctx, query,
		e.ID,
		e.UserID.String(),
		e.CourseID.String(),
		string(e.Status),
		e.TotalLessons,
		e.ProgressPercentage,
		e.Aggregates.CurrentXP,
		e.Aggregates.TimeSpentMinutes,
		e.Aggregates.LessonsCompleted,
		e.Aggregates.TasksCompleted,
		e.Aggregates.AverageScore,
		e.Aggregates.ScoredSubmissions,
		nullableTime(e.ExpiresAt),
		nullableTime(e.CompletedAt),
		e.Version,
		e.EnrolledAt,
		e.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyEnrolled
		}
		return fmt.Errorf("failed to create enrollment: %w", err)
	}
	return nil
}

// GetByID returns one enrollment.
func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*enrollment.Enrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE id = $1
	`

	q := QuerierFrom(ctx, r.conn)
	e, err := r.scanEnrollment(q.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return e, nil
}

// GetByUserAndCourse returns the user's current (non-dropped) enrollment.
func (r *EnrollmentRepository) GetByUserAndCourse(ctx context.Context, userID shared.UserID, courseID shared.CourseID) (*enrollment.Enrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE user_id = $1 AND course_id = $2 AND status != 'dropped'
	`

	q := QuerierFrom(ctx, r.conn)
	e, err := r.scanEnrollment(q.QueryRow(ctx, query, userID.String(), courseID.String()))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return e, nil
}

// ListByUser returns all of the user's enrollments, newest first.
func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID shared.UserID, p shared.Pagination) ([]*enrollment.Enrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE user_id = $1
		ORDER BY enrolled_at DESC
		LIMIT $2 OFFSET $3
	`

	q := QuerierFrom(ctx, r.conn)
	rows, err := q.Query(ctx, query, userID.String(), p.Limit(), p.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []*enrollment.Enrollment
	for rows.Next() {
		e, err := r.scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, rows.Err()
}

// ListCompletedCourseIDs returns IDs of courses the user has completed.
func (r *EnrollmentRepository) ListCompletedCourseIDs(ctx context.Context, userID shared.UserID) ([]shared.CourseID, error) {
	query := `
		SELECT course_id
		FROM enrollments
		WHERE user_id = $1 AND status = 'completed'
	`

	q := QuerierFrom(ctx, r.conn)
	rows, err := q.Query(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list completed courses: %w", err)
	}
	defer rows.Close()

	var courseIDs []shared.CourseID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan course id: %w", err)
		}
		courseIDs = append(courseIDs, shared.CourseID(id))
	}
	return courseIDs, rows.Err()
}

// Save updates an enrollment with an optimistic version check.
func (r *EnrollmentRepository) Save(ctx context.Context, e *enrollment.Enrollment) error {
	query := `
		UPDATE enrollments SET
			status = $2,
			total_lessons = $3,
			progress_percentage = $4,
			current_xp = $5,
			time_spent_minutes = $6,
			lessons_completed = $7,
			tasks_completed = $8,
			average_score = $9,
			scored_submissions = $10,
			expires_at = $11,
			completed_at = $12,
			version = $13,
			updated_at = $14
		WHERE id = $1 AND version = $15
	`

	q := QuerierFrom(ctx, r.conn)
	tag, err := q.Exec(ctx, query,
		e.ID,
		string(e.Status),
		e.TotalLessons,
		e.ProgressPercentage,
		e.Aggregates.CurrentXP,
		e.Aggregates.TimeSpentMinutes,
		e.Aggregates.LessonsCompleted,
		e.Aggregates.TasksCompleted,
		e.Aggregates.AverageScore,
		e.Aggregates.ScoredSubmissions,
		nullableTime(e.ExpiresAt),
		nullableTime(e.CompletedAt),
		e.Version+1,
		e.UpdatedAt,
		e.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save enrollment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConcurrentUpdate
	}

	e.Version++
	return nil
}

// scanEnrollment scans one enrollment row.
func (r *EnrollmentRepository) scanEnrollment(row rowScanner) (*enrollment.Enrollment, error) {
	var (
		e           enrollment.Enrollment
		userID      string
		courseID    string
		status      string
		expiresAt   *time.Time
		completedAt *time.Time
	)

	err := row.Scan(
		&e.ID,
		&userID,
		&courseID,
		&status,
		&e.TotalLessons,
		&e.ProgressPercentage,
		&e.Aggregates.CurrentXP,
		&e.Aggregates.TimeSpentMinutes,
		&e.Aggregates.LessonsCompleted,
		&e.Aggregates.TasksCompleted,
		&e.Aggregates.AverageScore,
		&e.Aggregates.ScoredSubmissions,
		&expiresAt,
		&completedAt,
		&e.Version,
		&e.EnrolledAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.UserID = shared.UserID(userID)
	e.CourseID = shared.CourseID(courseID)
	e.Status = enrollment.Status(status)
	if expiresAt != nil {
		e.ExpiresAt = *expiresAt
	}
	if completedAt != nil {
		e.CompletedAt = *completedAt
	}

	return &e, nil
}

// nullableTime maps the zero time to NULL.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
