// Package shared contains common domain types, errors and value objects
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

	// Validation errors
	ErrValidation   = errors.New("validation error")
	ErrInvalidID    = errors.New("invalid ID")
	ErrInvalidInput = errors.New("invalid input")

	// State errors
	ErrStateTransition = errors.New("invalid state transition")
	ErrForbidden       = errors.New("forbidden")

	// Data errors
	ErrQueryFailed    = errors.New("query failed")
	ErrDataIncomplete = errors.New("data incomplete")

	// External service errors
	ErrExternalService = errors.New("external service error")
	ErrRateLimited     = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "student", "matching", "ai"
	Op      string // Operation that failed, e.g., "Create", "Update"
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

// Student domain errors
var (
	ErrStudentNotFound     = NewDomainError("student", "Find", ErrNotFound, "student profile not found")
	ErrPreferencesNotFound = NewDomainError("student", "FindPreferences", ErrNotFound, "matching preferences not found")
	ErrInvalidStudentID    = NewDomainError("student", "Validate", ErrInvalidID, "invalid student ID")
)

// Matching domain errors
var (
	ErrCandidatePoolQuery     = NewDomainError("matching", "FindCandidatePool", ErrQueryFailed, "candidate pool query failed")
	ErrExclusionQuery         = NewDomainError("matching", "ListActiveMatches", ErrQueryFailed, "existing matches query failed")
	ErrCandidateIncomplete    = NewDomainError("matching", "EnrichCandidate", ErrDataIncomplete, "candidate has no matching preferences")
	ErrMatchNotFound          = NewDomainError("matching", "FindMatch", ErrNotFound, "study buddy match not found")
	ErrMatchExists            = NewDomainError("matching", "CreateMatch", ErrAlreadyExists, "an active match already exists for this pair")
	ErrSelfMatch              = NewDomainError("matching", "CreateMatch", ErrInvalidInput, "cannot match a student with themselves")
	ErrInvalidMatchTransition = NewDomainError("matching", "UpdateStatus", ErrStateTransition, "match is no longer awaiting a response")
	ErrNotMatchParticipant    = NewDomainError("matching", "Respond", ErrForbidden, "only the suggested peer can respond to a match")
	ErrIneligiblePair         = NewDomainError("matching", "CreateMatch", ErrForbidden, "pair does not meet matching eligibility rules")
)

// External service errors
var (
	ErrAIAnalysisFailed = NewDomainError("ai", "AnalyzeCompatibility", ErrExternalService, "AI compatibility analysis failed")
	ErrAIRateLimited    = NewDomainError("ai", "AnalyzeCompatibility", ErrRateLimited, "too many AI analysis requests")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput)
}

// IsQueryFailure checks if a storage read failed.
func IsQueryFailure(err error) bool {
	return errors.Is(err, ErrQueryFailed)
}

// IsForbidden checks if the caller is not allowed to perform the operation.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsStateConflict checks if the operation conflicts with the entity's current state.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrStateTransition)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) || errors.Is(err, ErrRateLimited)
}
