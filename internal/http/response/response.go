package response

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/servicepoint/garage-bookings/internal/domain"
)

// Envelope is the uniform JSON body: success plus either data or error.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
}

// Production suppresses internal error detail in 500 bodies.
var Production bool

func write(w http.ResponseWriter, statusCode int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func OK(w http.ResponseWriter, message string, data any) {
	write(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

func Created(w http.ResponseWriter, message string, data any) {
	write(w, http.StatusCreated, Envelope{Success: true, Message: message, Data: data})
}

func BadRequest(w http.ResponseWriter, message string) {
	write(w, http.StatusBadRequest, Envelope{Success: false, Error: message})
}

// ValidationFailed returns the per-field error list collected during
// input validation.
func ValidationFailed(w http.ResponseWriter, ve *domain.ValidationError) {
	write(w, http.StatusBadRequest, Envelope{
		Success: false,
		Message: "validation failed",
		Error:   ve.Fields,
	})
}

// AuthFlags distinguishes "log in first" from "your session expired" so
// clients can route to the right screen.
type AuthFlags struct {
	RequiresLogin  bool `json:"requiresLogin,omitempty"`
	SessionExpired bool `json:"sessionExpired,omitempty"`
}

func Unauthorized(w http.ResponseWriter, message string, flags AuthFlags) {
	type body struct {
		Envelope
		AuthFlags
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if err := json.NewEncoder(w).Encode(body{
		Envelope:  Envelope{Success: false, Error: message},
		AuthFlags: flags,
	}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func Forbidden(w http.ResponseWriter, message string) {
	write(w, http.StatusForbidden, Envelope{Success: false, Error: message})
}

func NotFound(w http.ResponseWriter, message string) {
	write(w, http.StatusNotFound, Envelope{Success: false, Error: message})
}

func Conflict(w http.ResponseWriter, message string) {
	write(w, http.StatusConflict, Envelope{Success: false, Error: message})
}

func RateLimited(w http.ResponseWriter, retryAfterSeconds int) {
	type body struct {
		Envelope
		RetryAfter int `json:"retryAfter"`
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	if err := json.NewEncoder(w).Encode(body{
		Envelope:   Envelope{Success: false, Error: "too many requests, please try again later"},
		RetryAfter: retryAfterSeconds,
	}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func InternalError(w http.ResponseWriter, err error) {
	env := Envelope{Success: false, Error: "internal server error"}
	if !Production && err != nil {
		env.Message = err.Error()
	}
	write(w, http.StatusInternalServerError, env)
}

// FromError maps domain sentinels onto status codes; anything
// unrecognized becomes a 500.
func FromError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	var te *domain.InvalidTransitionError
	switch {
	case errors.As(err, &ve):
		ValidationFailed(w, ve)
	case errors.As(err, &te):
		BadRequest(w, te.Error())
	case errors.Is(err, domain.ErrNotFound):
		NotFound(w, "resource not found")
	case errors.Is(err, domain.ErrConflict):
		Conflict(w, "resource already exists")
	case errors.Is(err, domain.ErrAlreadyClaimed):
		Conflict(w, "garage is already registered")
	case errors.Is(err, domain.ErrFeedbackAlreadySubmitted):
		Conflict(w, "feedback has already been submitted for this booking")
	case errors.Is(err, domain.ErrFeedbackNotCompleted):
		BadRequest(w, "feedback can only be submitted for completed bookings")
	case errors.Is(err, domain.ErrCancellationNotAllowed):
		BadRequest(w, "this booking can no longer be cancelled")
	case errors.Is(err, domain.ErrRegistrationClosed):
		Forbidden(w, "registration is closed")
	case errors.Is(err, domain.ErrUnauthorized):
		Unauthorized(w, "authentication required", AuthFlags{RequiresLogin: true})
	case errors.Is(err, domain.ErrForbidden):
		Forbidden(w, "you do not have permission to perform this action")
	default:
		InternalError(w, err)
	}
}
