package common

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/Volpestyle/basic-budget-sub003/constants"
)

// ValidationError represents validation failures
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
}

// Validator collects rule failures for several fields.
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{
		errors: make([]ValidationError, 0),
	}
}

// Field validates a field and collects errors
func (v *Validator) Field(fieldName string, value interface{}, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if err := rule(fieldName, value); err != nil {
			v.errors = append(v.errors, *err)
		}
	}
	return v
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// Error returns the combined failures wrapped around ErrInvalidInput, or nil.
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}
	messages := make([]string, 0, len(v.errors))
	for _, err := range v.errors {
		messages = append(messages, err.Error())
	}
	return errors.Wrap(ErrInvalidInput, strings.Join(messages, "; "))
}

// ValidationRule represents a single validation rule
type ValidationRule func(fieldName string, value interface{}) *ValidationError

// NonEmptyPayload rejects nil or zero-length byte slices.
func NonEmptyPayload(fieldName string, value interface{}) *ValidationError {
	b, ok := value.([]byte)
	if !ok || len(b) == 0 {
		return &ValidationError{Field: fieldName, Value: nil, Message: "is required"}
	}
	return nil
}

// SupportedContentType rejects content types the extraction engine cannot read.
func SupportedContentType(fieldName string, value interface{}) *ValidationError {
	ct, ok := value.(string)
	if !ok || strings.TrimSpace(ct) == "" {
		return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
	}
	if constants.MapContentTypeToFormat(ct) == "" {
		return &ValidationError{Field: fieldName, Value: value, Message: fmt.Sprintf("unsupported content type %q", ct)}
	}
	return nil
}

// MetadataKeys rejects blank metadata keys.
func MetadataKeys(fieldName string, value interface{}) *ValidationError {
	m, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	for k := range m {
		if strings.TrimSpace(k) == "" {
			return &ValidationError{Field: fieldName, Value: k, Message: "keys must be non-empty"}
		}
	}
	return nil
}

// ValidateSubmission checks the inputs of a job submission.
func ValidateSubmission(payload []byte, contentType string, metadata map[string]any) error {
	return NewValidator().
		Field("payload", payload, NonEmptyPayload).
		Field("content_type", contentType, SupportedContentType).
		Field("metadata", metadata, MetadataKeys).
		Error()
}
