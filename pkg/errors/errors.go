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

// StatusCode maps the error code onto an HTTP status.
func (e *AppError) StatusCode() int {
	return e.Code.HTTPStatus()
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrValidation
	ErrInvalidState
	ErrNotAssigned
	ErrNotADoctor
	ErrNoAvailableDoctor
	ErrAlreadyPrescribed
	ErrAlreadyInConsultation
	ErrConflict
	ErrAlreadyExists
	ErrUnavailable
	ErrRateLimited
)

var codeNames = map[ErrorCode]string{
	ErrNotFound:              "NOT_FOUND",
	ErrBadRequest:            "BAD_REQUEST",
	ErrUnauthorized:          "UNAUTHORIZED",
	ErrForbidden:             "FORBIDDEN",
	ErrInternal:              "INTERNAL_ERROR",
	ErrValidation:            "VALIDATION_ERROR",
	ErrInvalidState:          "INVALID_STATE",
	ErrNotAssigned:           "NOT_ASSIGNED",
	ErrNotADoctor:            "NOT_A_DOCTOR",
	ErrNoAvailableDoctor:     "NO_AVAILABLE_DOCTOR",
	ErrAlreadyPrescribed:     "ALREADY_PRESCRIBED",
	ErrAlreadyInConsultation: "ALREADY_IN_CONSULTATION",
	ErrConflict:              "CONFLICT",
	ErrAlreadyExists:         "ALREADY_EXISTS",
	ErrUnavailable:           "SERVICE_UNAVAILABLE",
	ErrRateLimited:           "RATE_LIMITED",
}

// String returns the stable, client-facing name of the code.
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ERROR_%d", int(c))
}

func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrBadRequest, ErrValidation:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden, ErrNotAssigned, ErrNotADoctor:
		return http.StatusForbidden
	case ErrInvalidState, ErrNoAvailableDoctor, ErrAlreadyPrescribed,
		ErrAlreadyInConsultation, ErrConflict, ErrAlreadyExists:
		return http.StatusConflict
	case ErrUnavailable:
		return http.StatusServiceUnavailable
	case ErrRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func NewValidation(message string) *AppError {
	return &AppError{Code: ErrValidation, Message: message}
}

// NewInvalidState reports an operation that is not legal from the current status.
func NewInvalidState(operation string, status fmt.Stringer) *AppError {
	return &AppError{
		Code:    ErrInvalidState,
		Message: fmt.Sprintf("cannot %s appointment in status %s", operation, status),
	}
}

func NewNotAssigned() *AppError {
	return &AppError{Code: ErrNotAssigned, Message: "appointment is not assigned to this doctor"}
}

func NewNotADoctor() *AppError {
	return &AppError{Code: ErrNotADoctor, Message: "user is not a doctor"}
}

func NewNoAvailableDoctor(message string) *AppError {
	if message == "" {
		message = "no available doctor in this hospital"
	}
	return &AppError{Code: ErrNoAvailableDoctor, Message: message}
}

func NewAlreadyPrescribed() *AppError {
	return &AppError{Code: ErrAlreadyPrescribed, Message: "a prescription already exists for this appointment"}
}

func NewAlreadyInConsultation() *AppError {
	return &AppError{Code: ErrAlreadyInConsultation, Message: "doctor is already in a consultation"}
}

// NewConflict reports a lost compare-and-set race. Callers should retry the whole operation.
func NewConflict(err error) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Message: "record was modified concurrently, retry the operation",
		Err:     err,
	}
}

func NewAlreadyExists(message string) *AppError {
	return &AppError{Code: ErrAlreadyExists, Message: message}
}

func NewRateLimited() *AppError {
	return &AppError{Code: ErrRateLimited, Message: "rate limit exceeded"}
}

func NewUnavailable(message string, err error) *AppError {
	return &AppError{Code: ErrUnavailable, Message: message, Err: err}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Code:    ErrForbidden,
		Message: message,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}

// As is re-exported so callers importing this package under the name "errors" keep access to it.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
