package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound         = errors.New("resource not found")
	ErrModelNotFound    = fmt.Errorf("%w: model", ErrNotFound)
	ErrVariableNotFound = fmt.Errorf("%w: variable", ErrNotFound)

	// Validation errors
	ErrNoModelSelected      = errors.New("no model selected")
	ErrEmptySelection       = errors.New("variable selection is empty")
	ErrNonFiniteCoefficient = errors.New("fixed coefficient is not a finite number")
	ErrInvalidAdstockRate   = errors.New("adstock rate out of range")
	ErrUnknownEditMode      = errors.New("unknown edit mode")
	ErrInvalidWeight        = errors.New("invalid component weight")

	// Transaction state errors
	ErrEngineBusy    = errors.New("another edit is in progress for this model")
	ErrNoDraft       = errors.New("no preview is ready for this model")
	ErrRemoteCompute = errors.New("statistics service call failed")
)

// NewNotFoundError reports a missing resource by kind and name.
func NewNotFoundError(resource string, name string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, resource, name)
}

// NewValidationError reports a rejected field with the reason.
func NewValidationError(field string, reason string) error {
	return fmt.Errorf("validation failed for %s: %s", field, reason)
}

// IsNotFoundError checks whether err wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError reports errors that are raised before any remote call.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrNoModelSelected) ||
		errors.Is(err, ErrEmptySelection) ||
		errors.Is(err, ErrNonFiniteCoefficient) ||
		errors.Is(err, ErrInvalidAdstockRate) ||
		errors.Is(err, ErrUnknownEditMode) ||
		errors.Is(err, ErrInvalidWeight)
}
