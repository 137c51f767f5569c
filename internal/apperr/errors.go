package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors for the three failure classes.
// Use errors.Is to check: errors.Is(err, apperr.ErrValidation)
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("concurrent update conflict")
)

// ValidationError reports caller input that violates a documented contract.
// Input is never coerced into range; it is rejected with this error.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

// Validation builds a ValidationError.
func Validation(field string, value any, reason string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError indicates a referenced course or learner has no data.
type NotFoundError struct {
	Kind string
	ID   string
}

// NotFound builds a NotFoundError.
func NotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError indicates a versioned write lost a race against another
// writer of the same key.
type ConflictError struct {
	Key      string
	Expected int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: expected version %d", e.Key, e.Expected)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is a version conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
