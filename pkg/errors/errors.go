// Package errors defines the typed error taxonomy used across the bank feed
// matching service. Errors carry a category, a machine-readable code, an
// optional remediation suggestion and structured context, plus a stack trace
// captured at creation.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryStore      ErrorCategory = "store"
	CategoryParse      ErrorCategory = "parse"
	CategoryValidation ErrorCategory = "validation"
	CategoryMatching   ErrorCategory = "matching"
	CategoryConfig     ErrorCategory = "config"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Store errors
	CodeNotFound       ErrorCode = "not_found"
	CodeDuplicateMatch ErrorCode = "duplicate_match"
	CodeConflict       ErrorCode = "conflict"
	CodeStorageFailure ErrorCode = "storage_failure"

	// Parse errors
	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeMissingColumn ErrorCode = "missing_column"
	CodeInvalidData   ErrorCode = "invalid_data"

	// Validation errors
	CodeMissingField ErrorCode = "missing_field"
	CodeInvalidField ErrorCode = "invalid_field"

	// Matching errors
	CodeLineNotMatchable ErrorCode = "line_not_matchable"
	CodeNoSuggestion     ErrorCode = "no_suggestion"

	// Config errors
	CodeInvalidConfig ErrorCode = "invalid_config"
)

// ServiceError is the base error type for all application errors
type ServiceError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *ServiceError) WithContext(key string, value interface{}) *ServiceError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *ServiceError) WithSuggestion(suggestion string) *ServiceError {
	e.Suggestion = suggestion
	return e
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// New creates a new ServiceError
func New(category ErrorCategory, code ErrorCode, message string) *ServiceError {
	return &ServiceError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ServiceError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ServiceError {
	if err == nil {
		return nil
	}

	return &ServiceError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// NotFound creates a store not-found error for the named entity
func NotFound(entity, id string) *ServiceError {
	return New(CategoryStore, CodeNotFound, fmt.Sprintf("%s not found: %s", entity, id)).
		WithContext("entity", entity).
		WithContext("id", id)
}

// DuplicateMatch creates the conflict error raised when a (line, record)
// pair is matched a second time. Callers treat it as a safe no-op.
func DuplicateMatch(lineID, recordKey string) *ServiceError {
	return New(CategoryStore, CodeDuplicateMatch,
		fmt.Sprintf("line %s is already matched to record %s", lineID, recordKey)).
		WithSuggestion("remove the existing match before re-matching the line").
		WithContext("line_id", lineID).
		WithContext("record", recordKey)
}

// StoreError wraps a storage-layer failure
func StoreError(operation string, err error) *ServiceError {
	return Wrap(err, CategoryStore, CodeStorageFailure,
		fmt.Sprintf("storage failure during %s", operation)).
		WithContext("operation", operation)
}

// ParseError creates a parsing-related error with file position context
func ParseError(code ErrorCode, file string, line int, detail string, err error) *ServiceError {
	message := fmt.Sprintf("parse error in %s at line %d: %s", file, line, detail)

	var result *ServiceError
	if err != nil {
		result = Wrap(err, CategoryParse, code, message)
	} else {
		result = New(CategoryParse, code, message)
	}

	return result.
		WithSuggestion("check the file format and data integrity").
		WithContext("file", file).
		WithContext("line", line)
}

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *ServiceError {
	message := fmt.Sprintf("validation error in field '%s': %v", field, value)

	var result *ServiceError
	if err != nil {
		result = Wrap(err, CategoryValidation, code, message)
	} else {
		result = New(CategoryValidation, code, message)
	}

	return result.
		WithContext("field", field).
		WithContext("value", value)
}

// MatchingError creates a matching-related error
func MatchingError(code ErrorCode, lineID string, message string) *ServiceError {
	return New(CategoryMatching, code, message).
		WithContext("line_id", lineID)
}

// IsServiceError checks if an error is a ServiceError
func IsServiceError(err error) bool {
	_, ok := AsServiceError(err)
	return ok
}

// AsServiceError extracts a ServiceError from an error chain
func AsServiceError(err error) (*ServiceError, bool) {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr, true
	}
	return nil, false
}

// IsCode checks whether an error chain carries the given code
func IsCode(err error, code ErrorCode) bool {
	if serviceErr, ok := AsServiceError(err); ok {
		return serviceErr.Code == code
	}
	return false
}

// IsNotFound reports whether the error is a store not-found error
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}

// IsDuplicateMatch reports whether the error is the (line, record) unique
// constraint conflict.
func IsDuplicateMatch(err error) bool {
	return IsCode(err, CodeDuplicateMatch)
}
