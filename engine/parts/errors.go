package parts

import (
	"errors"
	"fmt"
)

// Sentinel errors for catalog validation failures.
var (
	ErrMissingPartNumber  = errors.New("missing part number")
	ErrInvalidPartNumber  = errors.New("invalid part number")
	ErrMissingDescription = errors.New("missing description")
	ErrDescriptionTooLong = errors.New("description too long")
	ErrInvalidCategory    = errors.New("invalid category")
)

// ValidationError wraps a sentinel with field context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
