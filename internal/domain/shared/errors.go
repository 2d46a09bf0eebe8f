// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrFutureTimestamp = errors.New("timestamp cannot be in the future")

	// State errors
	ErrInvalidState       = errors.New("invalid state")
	ErrStateTransition    = errors.New("invalid state transition")
	ErrAlreadyProcessed   = errors.New("already processed")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrExpired            = errors.New("expired")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrOptimisticLock         = errors.New("optimistic lock failure")

	// Guard / infrastructure errors
	ErrRateLimited        = errors.New("rate limited")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "progression", "enrollment", "leaderboard"
	Op      string // Operation that failed, e.g., "AwardXP", "Enroll"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Progression domain errors
var (
	ErrProfileNotFound     = NewDomainError("progression", "Find", ErrNotFound, "progression profile not found")
	ErrTransactionNotFound = NewDomainError("progression", "FindTransaction", ErrNotFound, "xp transaction not found")
	ErrInvalidAward        = NewDomainError("progression", "AwardXP", ErrInvalidInput, "invalid award parameters")
	ErrRateLimitExceeded   = NewDomainError("progression", "AwardXP", ErrRateLimited, "xp rate limit exceeded")
	ErrConcurrentUpdate    = NewDomainError("progression", "AwardXP", ErrConcurrentModification, "profile changed concurrently")
)

// Enrollment domain errors
var (
	ErrEnrollmentNotFound  = NewDomainError("enrollment", "Find", ErrNotFound, "enrollment not found")
	ErrAlreadyEnrolled     = NewDomainError("enrollment", "Enroll", ErrAlreadyExists, "already enrolled in course")
	ErrPrerequisitesNotMet = NewDomainError("enrollment", "Enroll", ErrPreconditionFailed, "prerequisite courses not completed")
	ErrEnrollmentNotActive = NewDomainError("enrollment", "CheckStatus", ErrInvalidState, "enrollment is not active")
	ErrEnrollmentTerminal  = NewDomainError("enrollment", "Transition", ErrStateTransition, "enrollment is in a terminal state")
	ErrLessonRegression    = NewDomainError("enrollment", "UpdateLesson", ErrStateTransition, "lesson progress cannot move backwards")
	ErrLessonCompleted     = NewDomainError("enrollment", "CompleteLesson", ErrAlreadyProcessed, "lesson already completed")
	ErrTaskCompleted       = NewDomainError("enrollment", "CompleteTask", ErrAlreadyProcessed, "task already completed")
)

// Content provider errors (the catalog is an external collaborator)
var (
	ErrCourseNotFound = NewDomainError("content", "GetCourse", ErrNotFound, "course not found")
	ErrLessonNotFound = NewDomainError("content", "GetLesson", ErrNotFound, "lesson not found")
	ErrTaskNotFound   = NewDomainError("content", "GetTask", ErrNotFound, "task not found")
)

// Achievement domain errors
var (
	ErrAchievementNotFound = NewDomainError("achievement", "Find", ErrNotFound, "achievement not found")
	ErrAlreadyUnlocked     = NewDomainError("achievement", "Unlock", ErrAlreadyExists, "achievement already unlocked")
)

// Leaderboard domain errors
var (
	ErrLeaderboardNotFound = NewDomainError("leaderboard", "Find", ErrNotFound, "leaderboard not found")
	ErrInvalidRank         = NewDomainError("leaderboard", "Validate", ErrValueOutOfRange, "invalid rank")
	ErrLeaderboardStale    = NewDomainError("leaderboard", "Refresh", ErrExpired, "leaderboard data is stale")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsAlreadyProcessed checks if the error marks an idempotent no-op.
// Callers treat these as success with the previously recorded result.
func IsAlreadyProcessed(err error) bool {
	return errors.Is(err, ErrAlreadyProcessed)
}

// IsRateLimited checks if the error is an abuse-guard rejection.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsPreconditionFailed checks if the error is a failed domain precondition.
func IsPreconditionFailed(err error) bool {
	return errors.Is(err, ErrPreconditionFailed)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsRetryable checks if the operation can be retried locally.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrOptimisticLock)
}
