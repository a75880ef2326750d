package domain

import (
	"fmt"
	"time"
)

// ProcessingError represents a standardized error response surfaced at the
// service boundary. The original cause's message is preserved in Details;
// failures are never silently swallowed.
type ProcessingError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrInvalidInput   = "INVALID_INPUT"
	ErrValidation     = "VALIDATION_ERROR"
	ErrInterpretation = "INTERPRETATION_ERROR"
	ErrDatabaseError  = "DATABASE_ERROR"
	ErrCacheError     = "CACHE_ERROR"
	ErrRateLimit      = "RATE_LIMIT_EXCEEDED"
	ErrInternalServer = "INTERNAL_SERVER_ERROR"
)

// ValidationError represents a single violated validation rule. Record
// validation returns one ValidationError per violation so callers can surface
// all problems at once rather than only the first.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewProcessingError creates a new ProcessingError with timestamp
func NewProcessingError(code, message, details, requestID string) *ProcessingError {
	return &ProcessingError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
