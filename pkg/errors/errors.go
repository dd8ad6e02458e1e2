package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on code so callers can write errors.Is(err, apperrors.ErrConflict).
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// StatusCode maps the error code onto an HTTP status.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict, ErrInvalidTransition, ErrAlreadyAssigned:
		return http.StatusConflict
	case ErrNoEligibleProfessional:
		return http.StatusUnprocessableEntity
	case ErrExpiredSubmission:
		return http.StatusGone
	case ErrExpiredSession, ErrInvalidCode, ErrInvalidCredentials, ErrUnauthenticated:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrValidation
	ErrUnauthenticated
	ErrForbidden
	ErrInternal
	ErrConflict
	ErrInvalidTransition
	ErrAlreadyAssigned
	ErrNoEligibleProfessional
	ErrExpiredSession
	ErrExpiredSubmission
	ErrInvalidCode
	ErrInvalidCredentials
)

// Sentinels for errors.Is matching. Never return these directly.
var (
	NotFoundErr               = &AppError{Code: ErrNotFound}
	ValidationErr             = &AppError{Code: ErrValidation}
	UnauthenticatedErr        = &AppError{Code: ErrUnauthenticated}
	ForbiddenErr              = &AppError{Code: ErrForbidden}
	ConflictErr               = &AppError{Code: ErrConflict}
	InvalidTransitionErr      = &AppError{Code: ErrInvalidTransition}
	AlreadyAssignedErr        = &AppError{Code: ErrAlreadyAssigned}
	NoEligibleProfessionalErr = &AppError{Code: ErrNoEligibleProfessional}
	ExpiredSessionErr         = &AppError{Code: ErrExpiredSession}
	ExpiredSubmissionErr      = &AppError{Code: ErrExpiredSubmission}
	InvalidCodeErr            = &AppError{Code: ErrInvalidCode}
	InvalidCredentialsErr     = &AppError{Code: ErrInvalidCredentials}
)

// HasCode reports whether any error in err's chain is an AppError with code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// Error constructors
func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func Validation(message string, err error) *AppError {
	return &AppError{
		Code:    ErrValidation,
		Message: message,
		Err:     err,
	}
}

func Internal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func Conflict(message string) *AppError {
	return &AppError{Code: ErrConflict, Message: message}
}

func InvalidTransition(from, to string) *AppError {
	return &AppError{
		Code:    ErrInvalidTransition,
		Message: fmt.Sprintf("cannot transition assignment from %s to %s", from, to),
	}
}

func AlreadyAssigned(caseID fmt.Stringer) *AppError {
	return &AppError{
		Code:    ErrAlreadyAssigned,
		Message: fmt.Sprintf("case %s already has an open assignment", caseID),
	}
}

func NoEligibleProfessional(err error) *AppError {
	return &AppError{
		Code:    ErrNoEligibleProfessional,
		Message: "no eligible professional available",
		Err:     err,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{Code: ErrForbidden, Message: message}
}

func ExpiredSubmission() *AppError {
	return &AppError{Code: ErrExpiredSubmission, Message: "submission expired"}
}

// Authentication failures share generic messages.

func Unauthenticated(err error) *AppError {
	return &AppError{Code: ErrUnauthenticated, Message: "unauthenticated", Err: err}
}

func ExpiredSession() *AppError {
	return &AppError{Code: ErrExpiredSession, Message: "session expired"}
}

func InvalidCode() *AppError {
	return &AppError{Code: ErrInvalidCode, Message: "invalid verification code"}
}

func InvalidCredentials() *AppError {
	return &AppError{Code: ErrInvalidCredentials, Message: "invalid credentials"}
}
