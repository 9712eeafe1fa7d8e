package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation  ErrorCategory = "validation"  // Invalid input
	ErrCatPlanning    ErrorCategory = "planning"    // Planner output unusable
	ErrCatDependency  ErrorCategory = "dependency"  // Broken dependency reference
	ErrCatCapability  ErrorCategory = "capability"  // Leaf execution failure
	ErrCatPersistence ErrorCategory = "persistence" // State store read/write failure
	ErrCatState       ErrorCategory = "state"       // State conflict/corruption
	ErrCatInternal    ErrorCategory = "internal"    // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrPlanningFormat creates an error for planner output that failed to parse
// as a graph after the bounded correction retries.
func ErrPlanningFormat(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatPlanning,
		Code:      CodePlanMalformed,
		Message:   message,
		Retryable: false,
	}
}

// ErrDependency creates an error for a dep id that does not resolve within
// its own graph. Structurally broken plans are never auto-retried.
func ErrDependency(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatDependency,
		Code:      CodeDepUnresolved,
		Message:   message,
		Retryable: false,
	}
}

// ErrCapability creates a leaf execution error.
func ErrCapability(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatCapability,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrPersistence creates a state store error. Fatal to the current request;
// downstream correctness depends on durable state.
func ErrPersistence(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatPersistence,
		Code:      CodeStoreFailed,
		Message:   message,
		Retryable: false,
	}
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      CodeNotFound,
		Message:   fmt.Sprintf("%s not found: %s", resource, id),
		Retryable: false,
	}
}

// ErrInternal creates an unexpected internal error.
func ErrInternal(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatInternal,
		Code:      CodeInternal,
		Message:   message,
		Retryable: false,
	}
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// Predefined error codes
const (
	CodePlanMalformed    = "PLAN_MALFORMED"
	CodeDepUnresolved    = "DEP_UNRESOLVED"
	CodeCapabilityFail   = "CAPABILITY_FAILED"
	CodeUnknownResult    = "UNKNOWN_RESULT"
	CodeUnknownGroup     = "UNKNOWN_CAPABILITY_GROUP"
	CodeUnknownAgent     = "UNKNOWN_CAPABILITY_AGENT"
	CodeStoreFailed      = "STORE_FAILED"
	CodeStoreCorrupted   = "STORE_CORRUPTED"
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidState     = "INVALID_STATE"
	CodeAttemptsExceeded = "ATTEMPTS_EXCEEDED"
	CodeInternal         = "INTERNAL"
)
