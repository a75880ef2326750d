package domain

import (
	"testing"
	"time"
)

func TestProcessingError(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		message   string
		details   string
		requestID string
	}{
		{
			name:      "Basic error",
			code:      ErrInvalidInput,
			message:   "Invalid test record",
			details:   "pft_results.pre_bronchodilator is missing",
			requestID: "req-123",
		},
		{
			name:      "Database error",
			code:      ErrDatabaseError,
			message:   "Database connection failed",
			details:   "Unable to connect to PostgreSQL",
			requestID: "req-456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewProcessingError(tt.code, tt.message, tt.details, tt.requestID)

			if err.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, err.Code)
			}

			if err.Message != tt.message {
				t.Errorf("Expected message %s, got %s", tt.message, err.Message)
			}

			if err.Details != tt.details {
				t.Errorf("Expected details %s, got %s", tt.details, err.Details)
			}

			if err.RequestID != tt.requestID {
				t.Errorf("Expected requestID %s, got %s", tt.requestID, err.RequestID)
			}

			// Check that timestamp is recent (within last minute)
			if time.Since(err.Timestamp) > time.Minute {
				t.Errorf("Timestamp should be recent, got %v", err.Timestamp)
			}

			// Test Error() method
			expectedError := tt.code + ": " + tt.message
			if err.Error() != expectedError {
				t.Errorf("Expected error string %s, got %s", expectedError, err.Error())
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		message string
		value   interface{}
	}{
		{
			name:    "String validation error",
			field:   "demographics.sex",
			message: "must be M or F",
			value:   "unknown",
		},
		{
			name:    "Integer validation error",
			field:   "demographics.age",
			message: "must be between 3 and 100",
			value:   -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewValidationError(tt.field, tt.message, tt.value)

			if err.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, err.Field)
			}

			if err.Message != tt.message {
				t.Errorf("Expected message %s, got %s", tt.message, err.Message)
			}

			if err.Value != tt.value {
				t.Errorf("Expected value %v, got %v", tt.value, err.Value)
			}

			// Test Error() method
			expectedError := "validation error for field '" + tt.field + "': " + tt.message
			if err.Error() != expectedError {
				t.Errorf("Expected error string %s, got %s", expectedError, err.Error())
			}
		})
	}
}

func TestErrorConstants(t *testing.T) {
	constants := map[string]string{
		"ErrInvalidInput":   ErrInvalidInput,
		"ErrValidation":     ErrValidation,
		"ErrInterpretation": ErrInterpretation,
		"ErrDatabaseError":  ErrDatabaseError,
		"ErrCacheError":     ErrCacheError,
		"ErrRateLimit":      ErrRateLimit,
		"ErrInternalServer": ErrInternalServer,
	}

	expectedValues := map[string]string{
		"ErrInvalidInput":   "INVALID_INPUT",
		"ErrValidation":     "VALIDATION_ERROR",
		"ErrInterpretation": "INTERPRETATION_ERROR",
		"ErrDatabaseError":  "DATABASE_ERROR",
		"ErrCacheError":     "CACHE_ERROR",
		"ErrRateLimit":      "RATE_LIMIT_EXCEEDED",
		"ErrInternalServer": "INTERNAL_SERVER_ERROR",
	}

	for name, actual := range constants {
		expected := expectedValues[name]
		if actual != expected {
			t.Errorf("Expected %s to be %s, got %s", name, expected, actual)
		}
	}
}

func TestInterpretationValidate(t *testing.T) {
	valid := Interpretation{
		Pattern:      OBSTRUCTIVE,
		Severity:     MODERATE,
		FEV1Severity: MODERATE,
		FVCSeverity:  NORMAL_SEVERITY,
		Confidence:   85,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected valid interpretation, got error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Interpretation)
	}{
		{"invalid pattern", func(i *Interpretation) { i.Pattern = "???" }},
		{"invalid severity", func(i *Interpretation) { i.Severity = "???" }},
		{"normal pattern with non-normal severity", func(i *Interpretation) {
			i.Pattern = NORMAL
			i.Severity = MILD
		}},
		{"non-normal pattern with normal severity", func(i *Interpretation) {
			i.Pattern = RESTRICTIVE
			i.Severity = NORMAL_SEVERITY
		}},
		{"confidence below range", func(i *Interpretation) { i.Confidence = 49 }},
		{"confidence above range", func(i *Interpretation) { i.Confidence = 100 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			interp := valid
			tt.mutate(&interp)
			if err := interp.Validate(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}
