package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/skillforge/skillforge-engine/internal/application/command"
	"github.com/skillforge/skillforge-engine/internal/application/query"
	"github.com/skillforge/skillforge-engine/internal/domain/progression"
	"github.com/skillforge/skillforge-engine/internal/domain/shared"
	"github.com/skillforge/skillforge-engine/pkg/logger"
)

// maxRequestBodySize bounds request bodies to keep decode cost predictable.
const maxRequestBodySize = 1 << 20 // 1 MB

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth returns detailed health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"uptime": s.Uptime().String(),
		})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())

	httpStatus := http.StatusOK
	if !status.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, status)
}

// handleReady returns readiness status (can the service accept traffic).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		writeJSONError(w, http.StatusServiceUnavailable, "not_ready", status.Message)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive returns liveness status (is the process alive).
func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleRoot returns basic service information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	// Only respond to exact root path
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not_found", "The requested resource was not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "skillforge-engine",
		"version": "v1",
		"status":  "running",
		"uptime":  s.Uptime().String(),
		"endpoints": map[string]string{
			"health":      "/health",
			"profile":     "/api/v1/users/{id}/profile",
			"enrollments": "/api/v1/users/{id}/enrollments",
			"leaderboard": "/api/v1/leaderboard",
		},
	})
}

// handleMetrics returns basic runtime metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	metrics := map[string]interface{}{
		"uptime_seconds":  s.Uptime().Seconds(),
		"goroutines":      runtime.NumGoroutine(),
		"memory_alloc_mb": float64(m.Alloc) / 1024 / 1024,
		"memory_sys_mb":   float64(m.Sys) / 1024 / 1024,
		"gc_runs":         m.NumGC,
		"timestamp":       time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, metrics)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// awardXPRequest is the request body for a direct XP grant.
type awardXPRequest struct {
	UserID      string                 `json:"user_id"`
	Kind        string                 `json:"kind"`
	BaseAmount  int                    `json:"base_amount"`
	SourceID    string                 `json:"source_id,omitempty"`
	SourceKind  string                 `json:"source_kind,omitempty"`
	SourceTitle string                 `json:"source_title,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// awardXPResponse is the transport shape of an award result.
type awardXPResponse struct {
	TransactionID        string                          `json:"transaction_id"`
	AmountAwarded        int                             `json:"amount_awarded"`
	AppliedMultipliers   []progression.AppliedMultiplier `json:"applied_multipliers,omitempty"`
	NewTotalXP           int                             `json:"new_total_xp"`
	LevelUp              *levelUpResponse                `json:"level_up,omitempty"`
	Streak               streakResponse                  `json:"streak"`
	UnlockedAchievements []string                        `json:"unlocked_achievements,omitempty"`
	AwardedAt            time.Time                       `json:"awarded_at"`
}

type levelUpResponse struct {
	OldLevel int    `json:"old_level"`
	NewLevel int    `json:"new_level"`
	Tier     string `json:"tier"`
}

type streakResponse struct {
	Current   int  `json:"current"`
	Longest   int  `json:"longest"`
	Continued bool `json:"continued"`
	WasReset  bool `json:"was_reset"`
}

func toLevelUpResponse(info progression.LevelUpInfo) *levelUpResponse {
	if !info.LeveledUp {
		return nil
	}
	return &levelUpResponse{
		OldLevel: info.OldLevel,
		NewLevel: info.NewLevel,
		Tier:     info.Tier,
	}
}

func toStreakResponse(st progression.StreakResult) streakResponse {
	return streakResponse{
		Current:   st.Current,
		Longest:   st.Longest,
		Continued: st.Continued,
		WasReset:  st.WasReset,
	}
}

// handleAwardXP credits XP to a user through the full award pipeline.
// POST /api/v1/xp/awards
func (s *Server) handleAwardXP(w http.ResponseWriter, r *http.Request) {
	var req awardXPRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	cmd := command.AwardXPCommand{
		UserID:     req.UserID,
		Kind:       progression.TransactionKind(req.Kind),
		BaseAmount: req.BaseAmount,
		Source: progression.Source{
			ID:    req.SourceID,
			Kind:  progression.SourceKind(req.SourceKind),
			Title: req.SourceTitle,
		},
		Metadata:      req.Metadata,
		CorrelationID: getRequestID(r.Context()),
	}
	if cmd.Source.Kind == "" {
		cmd.Source.Kind = progression.SourceSystem
	}

	result, err := s.deps.AwardXPHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSONWithMeta(w, r, http.StatusCreated, awardXPResponse{
		TransactionID:        result.TransactionID,
		AmountAwarded:        result.AmountAwarded,
		AppliedMultipliers:   result.AppliedMultipliers,
		NewTotalXP:           result.NewTotalXP,
		LevelUp:              toLevelUpResponse(result.LevelUp),
		Streak:               toStreakResponse(result.Streak),
		UnlockedAchievements: result.UnlockedAchievements,
		AwardedAt:            result.AwardedAt,
	}, nil)
}

// handleGetProfile returns a user's progression profile.
// GET /api/v1/users/{id}/profile
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.GetProfileHandler.Handle(r.Context(), query.GetProfileQuery{
		UserID: r.PathValue("id"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSONWithMeta(w, r, http.StatusOK, result, nil)
}

// handleGetXPHistory returns one page of a user's XP ledger.
// GET /api/v1/users/{id}/xp/history?page=0&page_size=20
func (s *Server) handleGetXPHistory(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.GetXPHistoryHandler.Handle(r.Context(), query.GetXPHistoryQuery{
		UserID:   r.PathValue("id"),
		Page:     getQueryParamInt(r, "page", 0),
		PageSize: getQueryParamInt(r, "page_size", 0),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSONWithMeta(w, r, http.StatusOK, result, &ResponseMeta{
		Page:     result.Page,
		PageSize: result.PageSize,
		HasMore:  result.HasMore,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT & PROGRESS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// enrollRequest is the request body for an enrollment.
type enrollRequest struct {
	UserID    string     `json:"user_id"`
	CourseID  string     `json:"course_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// enrollResponse is the transport shape of an enrollment result.
type enrollResponse struct {
	EnrollmentID string    `json:"enrollment_id"`
	Status       string    `json:"status"`
	TotalLessons int       `json:"total_lessons"`
	EnrolledAt   time.Time `json:"enrolled_at"`
}

// handleEnroll enrolls a user in a course.
// POST /api/v1/enrollments
func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	cmd := command.EnrollCommand{
		UserID:        req.UserID,
		CourseID:      req.CourseID,
		CorrelationID: getRequestID(r.Context()),
	}
	if req.ExpiresAt != nil {
		cmd.ExpiresAt = *req.ExpiresAt
	}

	result, err := s.deps.EnrollHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSONWithMeta(w, r, http.StatusCreated, enrollResponse{
		EnrollmentID: result.EnrollmentID,
		Status:       string(result.Status),
		TotalLessons: result.TotalLessons,
		EnrolledAt:   result.EnrolledAt,
	}, nil)
}

// unenrollResponse is the transport shape of a drop result.
type unenrollResponse struct {
	EnrollmentID string    `json:"enrollment_id"`
	Status       string    `json:"status"`
	DroppedAt    time.Time `json:"dropped_at"`
}

// handleUnenroll drops a live enrollment.
// DELETE /api/v1/users/{id}/enrollments/{course_id}
func (s *Server) handleUnenroll(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.UnenrollHandler.Handle(r.Context(), command.UnenrollCommand{
		UserID:        r.PathValue("id"),
		CourseID:      r.PathValue("course_id"),
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSONWithMeta(w, r, http.StatusOK, unenrollResponse{
		EnrollmentID: result.EnrollmentID,
		Status:       string(result.Status),
		DroppedAt:    result.DroppedAt,
	}, nil)
}

// handleListEnrollments returns one page of a user's enrollments.
// GET /api/v1/users/{id}/enrollments?page=0&page_size=20
func (s *Server) handleListEnrollments(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.ListEnrollmentsHandler.Handle(r.Context(), query.ListEnrollmentsQuery{
		UserID:   r.PathValue("id"),
		Page:     getQueryParamInt(r, "page", 0),
		PageSize: getQueryParamInt(r, "page_size", 0),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSONWithMeta(w, r, http.StatusOK, result, &ResponseMeta{
		Page:     result.Page,
		PageSize: result.PageSize,
	})
}

// handleGetEnrollment returns one enrollment, optionally with its progress
// records.
// GET /api/v1/users/{id}/enrollments/{course_id}?include_progress=true
func (s *Server) handleGetEnrollment(w http.ResponseWriter, r *http.Request) {
	includeProgress := r.URL.Query().Get("include_progress") == "true"

	result, err := s.deps.GetEnrollmentHandler.Handle(r.Context(), query.GetEnrollmentQuery{
		UserID:          r.PathValue("id"),
		CourseID:        r.PathValue("course_id"),
		IncludeProgress: includeProgress,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSONWithMeta(w, r, http.StatusOK, result, nil)
}

// completeLessonRequest is the request body for a lesson completion.
type completeLessonRequest struct {
	UserID           string `json:"user_id"`
	TimeSpentMinutes int    `json:"time_spent_minutes"`
}

// completeLessonResponse is the transport shape of a lesson completion result.
type completeLessonResponse struct {
	Completed            bool             `json:"completed"`
	AlreadyCompleted     bool             `json:"already_completed"`
	XPEarned             int              `json:"xp_earned"`
	ProgressPercentage   int              `json:"progress_percentage"`
	CourseCompleted      bool             `json:"course_completed"`
	CourseBonusXP        int              `json:"course_bonus_xp,omitempty"`
	NewTotalXP           int              `json:"new_total_xp"`
	LevelUp              *levelUpResponse `json:"level_up,omitempty"`
	Streak               streakResponse   `json:"streak"`
	UnlockedAchievements []string         `json:"unlocked_achievements,omitempty"`
	CompletedAt          time.Time        `json:"completed_at"`
}

// handleCompleteLesson marks a lesson complete and credits its XP.
// POST /api/v1/lessons/{id}/complete
func (s *Server) handleCompleteLesson(w http.ResponseWriter, r *http.Request) {
	var req completeLessonRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	result, err := s.deps.CompleteLessonHandler.Handle(r.Context(), command.CompleteLessonCommand{
		UserID:           req.UserID,
		LessonID:         r.PathValue("id"),
		TimeSpentMinutes: req.TimeSpentMinutes,
		CorrelationID:    getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	// Replays return the original outcome with 200, first completion 201.
	status := http.StatusCreated
	if result.AlreadyCompleted {
		status = http.StatusOK
	}

	writeJSONWithMeta(w, r, status, completeLessonResponse{
		Completed:            result.Completed,
		AlreadyCompleted:     result.AlreadyCompleted,
		XPEarned:             result.XPEarned,
		ProgressPercentage:   result.ProgressPercentage,
		CourseCompleted:      result.CourseCompleted,
		CourseBonusXP:        result.CourseBonusXP,
		NewTotalXP:           result.NewTotalXP,
		LevelUp:              toLevelUpResponse(result.LevelUp),
		Streak:               toStreakResponse(result.Streak),
		UnlockedAchievements: result.UnlockedAchievements,
		CompletedAt:          result.CompletedAt,
	}, nil)
}

// completeTaskRequest is the request body for a task submission.
type completeTaskRequest struct {
	UserID           string `json:"user_id"`
	Score            int    `json:"score"`
	TimeSpentMinutes int    `json:"time_spent_minutes"`
}

// completeTaskResponse is the transport shape of a submission result.
type completeTaskResponse struct {
	Passed               bool             `json:"passed"`
	FirstPass            bool             `json:"first_pass"`
	AlreadyPassed        bool             `json:"already_passed"`
	XPEarned             int              `json:"xp_earned"`
	Score                int              `json:"score"`
	Attempts             int              `json:"attempts"`
	NewTotalXP           int              `json:"new_total_xp"`
	LevelUp              *levelUpResponse `json:"level_up,omitempty"`
	Streak               streakResponse   `json:"streak"`
	UnlockedAchievements []string         `json:"unlocked_achievements,omitempty"`
}

// handleCompleteTask records a task submission and credits XP on first pass.
// POST /api/v1/tasks/{id}/complete
func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	var req completeTaskRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	result, err := s.deps.CompleteTaskHandler.Handle(r.Context(), command.CompleteTaskCommand{
		UserID:           req.UserID,
		TaskID:           r.PathValue("id"),
		Score:            req.Score,
		TimeSpentMinutes: req.TimeSpentMinutes,
		CorrelationID:    getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	status := http.StatusCreated
	if !result.FirstPass {
		status = http.StatusOK
	}

	writeJSONWithMeta(w, r, status, completeTaskResponse{
		Passed:               result.Passed,
		FirstPass:            result.FirstPass,
		AlreadyPassed:        result.AlreadyPassed,
		XPEarned:             result.XPEarned,
		Score:                result.Score,
		Attempts:             result.Attempts,
		NewTotalXP:           result.NewTotalXP,
		LevelUp:              toLevelUpResponse(result.LevelUp),
		Streak:               toStreakResponse(result.Streak),
		UnlockedAchievements: result.UnlockedAchievements,
	}, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetLeaderboard returns one page of the ranking.
// GET /api/v1/leaderboard?limit=20&offset=0
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.GetLeaderboardHandler.Handle(r.Context(), query.GetLeaderboardQuery{
		Limit:  getQueryParamInt(r, "limit", 0),
		Offset: getQueryParamInt(r, "offset", 0),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSONWithMeta(w, r, http.StatusOK, result, &ResponseMeta{
		TotalCount: result.TotalCount,
		HasMore:    result.HasMore,
	})
}

// handleGetUserRank returns a user's rank and the entries around it.
// GET /api/v1/users/{id}/rank?neighbor_range=2
func (s *Server) handleGetUserRank(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.GetUserRankHandler.Handle(r.Context(), query.GetUserRankQuery{
		UserID:        r.PathValue("id"),
		NeighborRange: getQueryParamInt(r, "neighbor_range", 0),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSONWithMeta(w, r, http.StatusOK, result, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING & REQUEST DECODING
// ══════════════════════════════════════════════════════════════════════════════

// decodeBody decodes a JSON request body, writing the error response itself.
// Returns false when the request was rejected.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			writeJSONError(w, http.StatusRequestEntityTooLarge, "payload_too_large",
				fmt.Sprintf("Request body must not exceed %d bytes", maxRequestBodySize))
		case errors.Is(err, io.EOF):
			writeJSONError(w, http.StatusBadRequest, "empty_body", "Request body is required")
		default:
			writeJSONError(w, http.StatusBadRequest, "invalid_json", "Request body is not valid JSON: "+err.Error())
		}
		return false
	}

	return true
}

// writeDomainError maps a domain error onto an HTTP status and writes the
// error response.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFromError(err)

	// 5xx responses hide the internal message; 4xx pass it through so the
	// caller can see what to fix.
	message := err.Error()
	if status >= 500 {
		message = "An internal error occurred"
		s.logger.Error("request failed",
			logger.Err(err),
			logger.String("path", r.URL.Path),
			logger.String("request_id", getRequestID(r.Context())),
		)
	}

	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "3600")
	}

	writeJSONError(w, status, code, message)
}

// statusFromError maps the shared error taxonomy onto HTTP status codes.
func statusFromError(err error) (int, string) {
	switch {
	case shared.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsAlreadyExists(err):
		return http.StatusConflict, "already_exists"
	case shared.IsRateLimited(err):
		return http.StatusTooManyRequests, "rate_limit_exceeded"
	case shared.IsPreconditionFailed(err):
		return http.StatusUnprocessableEntity, "precondition_failed"
	case errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "service_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
