package query

import (
	"context"
	"errors"
	"time"

	"github.com/skillforge/skillforge-engine/internal/domain/enrollment"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ENROLLMENT QUERY
// Returns one (user, course) enrollment with its per-lesson and per-task
// progress records.
// ══════════════════════════════════════════════════════════════════════════════

// GetEnrollmentQuery contains the parameters for an enrollment lookup.
type GetEnrollmentQuery struct {
	// UserID is the enrollment owner.
	UserID string

	// CourseID identifies the course.
	CourseID string

	// IncludeProgress loads the lesson and task records.
	IncludeProgress bool
}

// Validate checks the query parameters.
func (q *GetEnrollmentQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	if q.CourseID == "" {
		return errors.New("course_id is required")
	}
	return nil
}

// EnrollmentDTO is the transport shape of an enrollment.
type EnrollmentDTO struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	CourseID string `json:"course_id"`
	Status   string `json:"status"`

	ProgressPercentage int `json:"progress_percentage"`
	TotalLessons       int `json:"total_lessons"`
	LessonsCompleted   int `json:"lessons_completed"`
	TasksCompleted     int `json:"tasks_completed"`

	CurrentXP        int     `json:"current_xp"`
	TimeSpentMinutes int     `json:"time_spent_minutes"`
	AverageScore     float64 `json:"average_score"`

	// HasAccess reflects status and expiry at query time.
	HasAccess bool `json:"has_access"`

	EnrolledAt  time.Time  `json:"enrolled_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// LessonProgressDTO is the transport shape of one lesson record.
type LessonProgressDTO struct {
	LessonID         string     `json:"lesson_id"`
	Status           string     `json:"status"`
	TimeSpentMinutes int        `json:"time_spent_minutes"`
	Attempts         int        `json:"attempts"`
	XPEarned         int        `json:"xp_earned"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// TaskCompletionDTO is the transport shape of one task record.
type TaskCompletionDTO struct {
	TaskID      string     `json:"task_id"`
	Status      string     `json:"status"`
	Score       int        `json:"score"`
	XPEarned    int        `json:"xp_earned"`
	IsPassed    bool       `json:"is_passed"`
	Attempts    int        `json:"attempts"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// GetEnrollmentResult contains the enrollment lookup result.
type GetEnrollmentResult struct {
	Enrollment EnrollmentDTO       `json:"enrollment"`
	Lessons    []LessonProgressDTO `json:"lessons,omitempty"`
	Tasks      []TaskCompletionDTO `json:"tasks,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
}

// GetEnrollmentHandler handles enrollment lookups.
type GetEnrollmentHandler struct {
	enrollmentRepo enrollment.Repository
	progressRepo   enrollment.ProgressRepository
}

// NewGetEnrollmentHandler creates a new GetEnrollmentHandler.
func NewGetEnrollmentHandler(
	enrollmentRepo enrollment.Repository,
	progressRepo enrollment.ProgressRepository,
) *GetEnrollmentHandler {
	return &GetEnrollmentHandler{
		enrollmentRepo: enrollmentRepo,
		progressRepo:   progressRepo,
	}
}

// Handle executes the enrollment lookup.
func (h *GetEnrollmentHandler) Handle(ctx context.Context, q GetEnrollmentQuery) (*GetEnrollmentResult, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetEnrollment", shared.ErrValidation, err.Error(), err)
	}

	userID, err := shared.NewUserID(q.UserID)
	if err != nil {
		return nil, shared.WrapError("query", "GetEnrollment", shared.ErrInvalidID, "invalid user id", err)
	}
	courseID, err := shared.NewCourseID(q.CourseID)
	if err != nil {
		return nil, shared.WrapError("query", "GetEnrollment", shared.ErrInvalidID, "invalid course id", err)
	}

	enr, err := h.enrollmentRepo.GetByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return nil, shared.WrapError("query", "GetEnrollment", shared.ErrNotFound, "failed to get enrollment", err)
	}

	result := &GetEnrollmentResult{
		Enrollment:  toEnrollmentDTO(enr),
		GeneratedAt: time.Now().UTC(),
	}

	if q.IncludeProgress {
		if lessons, err := h.progressRepo.ListLessonProgress(ctx, userID, courseID); err == nil {
			result.Lessons = toLessonDTOs(lessons)
		}
		if tasks, err := h.progressRepo.ListTaskCompletions(ctx, userID, courseID); err == nil {
			result.Tasks = toTaskDTOs(tasks)
		}
	}

	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIST ENROLLMENTS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// ListEnrollmentsQuery contains the parameters for a user's enrollment list.
type ListEnrollmentsQuery struct {
	UserID   string
	Page     int
	PageSize int
}

// Validate checks the query parameters.
func (q *ListEnrollmentsQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	if q.Page < 0 || q.PageSize < 0 {
		return errors.New("page and page_size cannot be negative")
	}
	return nil
}

// ListEnrollmentsResult contains one page of a user's enrollments.
type ListEnrollmentsResult struct {
	Enrollments []EnrollmentDTO `json:"enrollments"`
	Page        int             `json:"page"`
	PageSize    int             `json:"page_size"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// ListEnrollmentsHandler handles enrollment list lookups.
type ListEnrollmentsHandler struct {
	enrollmentRepo enrollment.Repository
}

// NewListEnrollmentsHandler creates a new ListEnrollmentsHandler.
func NewListEnrollmentsHandler(enrollmentRepo enrollment.Repository) *ListEnrollmentsHandler {
	return &ListEnrollmentsHandler{enrollmentRepo: enrollmentRepo}
}

// Handle executes the list lookup.
func (h *ListEnrollmentsHandler) Handle(ctx context.Context, q ListEnrollmentsQuery) (*ListEnrollmentsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "ListEnrollments", shared.ErrValidation, err.Error(), err)
	}

	userID, err := shared.NewUserID(q.UserID)
	if err != nil {
		return nil, shared.WrapError("query", "ListEnrollments", shared.ErrInvalidID, "invalid user id", err)
	}

	page := shared.NewPagination(q.Page, q.PageSize)
	enrollments, err := h.enrollmentRepo.ListByUser(ctx, userID, page)
	if err != nil {
		return nil, shared.WrapError("query", "ListEnrollments", shared.ErrNotFound, "failed to list enrollments", err)
	}

	dtos := make([]EnrollmentDTO, len(enrollments))
	for i, enr := range enrollments {
		dtos[i] = toEnrollmentDTO(enr)
	}

	return &ListEnrollmentsResult{
		Enrollments: dtos,
		Page:        page.Page,
		PageSize:    page.Limit(),
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DTO CONVERSION
// ══════════════════════════════════════════════════════════════════════════════

func toEnrollmentDTO(e *enrollment.Enrollment) EnrollmentDTO {
	dto := EnrollmentDTO{
		ID:                 e.ID,
		UserID:             e.UserID.String(),
		CourseID:           e.CourseID.String(),
		Status:             string(e.Status),
		ProgressPercentage: e.ProgressPercentage,
		TotalLessons:       e.TotalLessons,
		LessonsCompleted:   e.Aggregates.LessonsCompleted,
		TasksCompleted:     e.Aggregates.TasksCompleted,
		CurrentXP:          e.Aggregates.CurrentXP,
		TimeSpentMinutes:   e.Aggregates.TimeSpentMinutes,
		AverageScore:       e.Aggregates.AverageScore,
		HasAccess:          e.HasAccess(time.Now().UTC()),
		EnrolledAt:         e.EnrolledAt,
	}
	if !e.CompletedAt.IsZero() {
		t := e.CompletedAt
		dto.CompletedAt = &t
	}
	if !e.ExpiresAt.IsZero() {
		t := e.ExpiresAt
		dto.ExpiresAt = &t
	}
	return dto
}

func toLessonDTOs(records []*enrollment.LessonProgress) []LessonProgressDTO {
	dtos := make([]LessonProgressDTO, len(records))
	for i, lp := range records {
		dto := LessonProgressDTO{
			LessonID:         lp.LessonID.String(),
			Status:           string(lp.Status),
			TimeSpentMinutes: lp.TimeSpentMinutes,
			Attempts:         lp.Attempts,
			XPEarned:         lp.XPEarned,
			StartedAt:        lp.StartedAt,
		}
		if !lp.CompletedAt.IsZero() {
			t := lp.CompletedAt
			dto.CompletedAt = &t
		}
		dtos[i] = dto
	}
	return dtos
}

func toTaskDTOs(records []*enrollment.TaskCompletion) []TaskCompletionDTO {
	dtos := make([]TaskCompletionDTO, len(records))
	for i, tc := range records {
		dto := TaskCompletionDTO{
			TaskID:   tc.TaskID.String(),
			Status:   string(tc.Status),
			Score:    tc.Score.Int(),
			XPEarned: tc.XPEarned,
			IsPassed: tc.IsPassed,
			Attempts: tc.Attempts,
		}
		if !tc.CompletedAt.IsZero() {
			t := tc.CompletedAt
			dto.CompletedAt = &t
		}
		dtos[i] = dto
	}
	return dtos
}
