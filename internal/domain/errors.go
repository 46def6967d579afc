package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	ErrFeedbackAlreadySubmitted = errors.New("feedback already submitted for this booking")
	ErrFeedbackNotCompleted     = errors.New("feedback can only be submitted for completed bookings")
	ErrCancellationNotAllowed   = errors.New("booking cannot be cancelled at this time")
	ErrAlreadyClaimed           = errors.New("garage is already registered")
	ErrRegistrationClosed       = errors.New("admin registration is closed")
)

// InvalidTransitionError reports a booking status change that is not in
// the transition table, with the attempted source and target.
type InvalidTransitionError struct {
	From BookingStatus
	To   BookingStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change status from %s to %s", e.From, e.To)
}

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects field-level failures detected before any
// state change.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid input"
	}
	return fmt.Sprintf("invalid input: %s %s", e.Fields[0].Field, e.Fields[0].Message)
}

func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) HasErrors() bool { return len(e.Fields) > 0 }

// Validationf builds a single-field validation error.
func Validationf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: fmt.Sprintf(format, args...)}}}
}
