package model

import "fmt"

// ErrorCode classifies a failed acknowledgement
type ErrorCode string

const (
	ErrCodeNotFound         ErrorCode = "not_found"
	ErrCodePermissionDenied ErrorCode = "permission_denied"
	ErrCodeConflict         ErrorCode = "conflict"
	ErrCodeInvalidInput     ErrorCode = "invalid_input"
	ErrCodeRateLimited      ErrorCode = "rate_limited"
	ErrCodeInternal         ErrorCode = "internal"
)

// AckError is the error carried back to a client in a failed acknowledgement.
// It never tears down the connection.
type AckError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"error"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// FieldError represents a validation error on a specific field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *AckError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Common error constructors

func NewNotFoundError(resource string) *AckError {
	return &AckError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

func NewPermissionDeniedError(detail string) *AckError {
	if detail == "" {
		detail = "Permission denied"
	}
	return &AckError{
		Code:    ErrCodePermissionDenied,
		Message: detail,
	}
}

func NewConflictError(detail string) *AckError {
	return &AckError{
		Code:    ErrCodeConflict,
		Message: detail,
	}
}

func NewValidationError(errors []FieldError) *AckError {
	detail := "One or more fields failed validation"
	if len(errors) > 0 {
		detail = fmt.Sprintf("%s: %s", errors[0].Field, errors[0].Message)
		if len(errors) > 1 {
			detail = fmt.Sprintf("%s (and %d more errors)", detail, len(errors)-1)
		}
	}
	return &AckError{
		Code:    ErrCodeInvalidInput,
		Message: detail,
		Errors:  errors,
	}
}

func NewInvalidInputError(detail string) *AckError {
	return &AckError{
		Code:    ErrCodeInvalidInput,
		Message: detail,
	}
}

func NewRateLimitError(retryAfter int) *AckError {
	return &AckError{
		Code:    ErrCodeRateLimited,
		Message: fmt.Sprintf("Rate limit exceeded. Retry after %d seconds", retryAfter),
	}
}

func NewInternalError(detail string) *AckError {
	if detail == "" {
		detail = "An unexpected error occurred"
	}
	return &AckError{
		Code:    ErrCodeInternal,
		Message: detail,
	}
}
