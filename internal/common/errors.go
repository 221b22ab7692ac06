package common

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Error codes carried by AppError.
const (
	CodeExtractionFailed   = "EXTRACTION_FAILED"
	CodeUnsupportedContent = "UNSUPPORTED_CONTENT"
	CodeNoFields           = "NO_FIELDS"
	CodeInvalidCandidate   = "INVALID_CANDIDATE"
	CodeConfig             = "CONFIG_ERROR"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrQueueSaturated     = errors.New("queue saturated")
	ErrQueueClosed        = errors.New("queue closed")
	ErrExtraction         = errors.New("extraction failed")
	ErrUnsupportedContent = errors.New("unsupported content type")
)

// NewAppError builds an AppError.
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewExtractionError builds a typed extraction failure. The cause chain always
// contains ErrExtraction so callers can test with errors.Is.
func NewExtractionError(code, message string, cause error) *AppError {
	if cause == nil {
		cause = ErrExtraction
	} else if !errors.Is(cause, ErrExtraction) {
		cause = errors.Mark(cause, ErrExtraction)
	}
	return NewAppError(code, message, cause)
}

// IsExtractionError reports whether err is a typed extraction failure.
func IsExtractionError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && errors.Is(err, ErrExtraction)
}
