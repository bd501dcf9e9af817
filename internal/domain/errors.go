package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Common domain errors that can occur while computing contest results.
var (
	// ErrInvalidConfiguration indicates that a contest's scoring
	// configuration cannot be computed with. It is a precondition failure.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrConflict indicates that the contest changed between the read and
	// write phases. The caller must retry the whole computation.
	ErrConflict = errors.New("contest state conflict")

	// ErrContestNotFound indicates that the requested contest does not exist.
	ErrContestNotFound = errors.New("contest not found")

	// ErrInvalidScore indicates a judge score that violates its template.
	ErrInvalidScore = errors.New("invalid score")
)

// ConfigurationError reports every configuration violation found before a
// computation started.
type ConfigurationError struct {
	// ContestID is the contest whose configuration was rejected.
	ContestID string

	// Violations lists the individual problems.
	Violations []string
}

// Error implements the error interface for ConfigurationError.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for contest %s: %s", e.ContestID, strings.Join(e.Violations, "; "))
}

// Unwrap returns ErrInvalidConfiguration so callers can match with errors.Is.
func (e *ConfigurationError) Unwrap() error { return ErrInvalidConfiguration }

// NewConfigurationError creates a ConfigurationError for the given contest.
func NewConfigurationError(contestID string, violations ...string) *ConfigurationError {
	return &ConfigurationError{ContestID: contestID, Violations: violations}
}

// ConflictError represents a contest whose state no longer matches what the
// computation read.
type ConflictError struct {
	ContestID string
	Expected  Guard
	Actual    Guard
}

// Error implements the error interface for ConflictError.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on contest %s: expected status=%s version=%d, found status=%s version=%d",
		e.ContestID, e.Expected.Status, e.Expected.Version, e.Actual.Status, e.Actual.Version)
}

// Unwrap returns ErrConflict.
func (e *ConflictError) Unwrap() error { return ErrConflict }

// NewConflictError creates a new ConflictError.
func NewConflictError(contestID string, expected, actual Guard) *ConflictError {
	return &ConflictError{ContestID: contestID, Expected: expected, Actual: actual}
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
