package errors

import (
	"errors"
	"fmt"
	"net/http"

	"voicecast/internal/core/domain"
)

// ErrorCode identifies a failure class on the fanout surface. Codes
// travel inside broadcast_error payloads and HTTP responses.
type ErrorCode string

const (
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	ErrCodeDeviceNotFound   ErrorCode = "DEVICE_NOT_FOUND"
	ErrCodeInsecureContext  ErrorCode = "INSECURE_CONTEXT"
	ErrCodeServerRejected   ErrorCode = "SERVER_REJECTED"
	ErrCodeRoomBusy         ErrorCode = "ROOM_BUSY"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodeRateLimit        ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// AppError carries a code, a user-facing message and an HTTP status
// for the fanout's outward surfaces.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func Wrap(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus, Cause: err}
}

func NewPermissionDenied(message string) *AppError {
	return New(ErrCodePermissionDenied, message, http.StatusForbidden)
}

func NewRoomBusy(room string) *AppError {
	return New(ErrCodeRoomBusy, fmt.Sprintf("room %s already has a live broadcast", room), http.StatusConflict)
}

func NewInvalidInput(message string) *AppError {
	return New(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewInternal(message string) *AppError {
	return New(ErrCodeInternal, message, http.StatusInternalServerError)
}

// FromDomain maps subsystem sentinel errors onto surface codes.
func FromDomain(err error) *AppError {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		return Wrap(err, ErrCodePermissionDenied, "microphone access denied", http.StatusForbidden)
	case errors.Is(err, domain.ErrDeviceNotFound):
		return Wrap(err, ErrCodeDeviceNotFound, "no audio input device found", http.StatusPreconditionFailed)
	case errors.Is(err, domain.ErrInsecureContext):
		return Wrap(err, ErrCodeInsecureContext, "device access requires a trusted context", http.StatusPreconditionFailed)
	case errors.Is(err, domain.ErrServerRejected):
		return Wrap(err, ErrCodeServerRejected, "broadcast rejected by server", http.StatusForbidden)
	case errors.Is(err, domain.ErrSessionExists), errors.Is(err, domain.ErrBroadcastActive):
		return Wrap(err, ErrCodeRoomBusy, "a broadcast is already active", http.StatusConflict)
	default:
		return Wrap(err, ErrCodeInternal, "internal error", http.StatusInternalServerError)
	}
}

// GetAppError extracts an AppError from an error chain, or nil.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}
