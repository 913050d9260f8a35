// Package apperror defines the domain errors shared by every layer.
//
// Lower layers return one of the constructors below (or wrap them with
// fmt.Errorf("...: %w", err)); the HTTP layer maps the sentinel found in the
// chain to a status code. Nothing here knows about HTTP.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrPaymentRequired = errors.New("payment required")
	ErrUpstream        = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
)

type AppError struct {
	Err     error  // sentinel, matched with errors.Is
	Message string // human-readable, safe to show to the client
	Field   string // optional: field causing a validation error
	Code    string // optional: machine-readable reason, e.g. "github_not_connected"
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// ConflictCode is Conflict with a machine-readable reason attached, for
// conflicts that are about state rather than a duplicate key.
func ConflictCode(code, message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
		Code:    code,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized is returned for bad credentials or a missing session.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// PaymentRequired marks a feature that needs an active Pro subscription.
func PaymentRequired(feature string) *AppError {
	return &AppError{
		Err:     ErrPaymentRequired,
		Message: fmt.Sprintf("%s requires an active Pro subscription", feature),
		Code:    "payment_required",
	}
}

// Upstream wraps a failure of a third-party API (GitHub, AI model, payments).
// cause is kept in the chain for logging but never shown to clients.
func Upstream(service string, cause error) *AppError {
	return &AppError{
		Err:     errors.Join(ErrUpstream, cause),
		Message: fmt.Sprintf("%s is unavailable, try again later", service),
	}
}

func RateLimited() *AppError {
	return &AppError{
		Err:     ErrRateLimited,
		Message: "too many requests, slow down",
	}
}
