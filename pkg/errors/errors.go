package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"callrelay/internal/core/domain"
)

// ErrorCode represents application error codes
type ErrorCode string

const (
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeRateLimit          ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	ErrCodeUnknownRecipient ErrorCode = "UNKNOWN_RECIPIENT"
	ErrCodeNoPeerAvailable  ErrorCode = "NO_PEER_AVAILABLE"
	ErrCodeDuplicateCall    ErrorCode = "DUPLICATE_CALL"
	ErrCodeMalformedMessage ErrorCode = "MALFORMED_MESSAGE"
	ErrCodeNoPendingCall    ErrorCode = "NO_PENDING_CALL"
)

// AppError represents an application error with code and context
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with application error
func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Cause:      err,
		Context:    make(map[string]interface{}),
	}
}

func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewRateLimitError() *AppError {
	return NewAppError(ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

func NewServiceUnavailableError(message string) *AppError {
	return NewAppError(ErrCodeServiceUnavailable, message, http.StatusServiceUnavailable)
}

var domainCodes = []struct {
	target error
	code   ErrorCode
	status int
}{
	{domain.ErrUnknownRecipient, ErrCodeUnknownRecipient, http.StatusNotFound},
	{domain.ErrNoPeerAvailable, ErrCodeNoPeerAvailable, http.StatusConflict},
	{domain.ErrDuplicateCall, ErrCodeDuplicateCall, http.StatusConflict},
	{domain.ErrMalformedMessage, ErrCodeMalformedMessage, http.StatusBadRequest},
	{domain.ErrNoPendingCall, ErrCodeNoPendingCall, http.StatusConflict},
	{domain.ErrConnectionNotFound, ErrCodeNotFound, http.StatusNotFound},
	{domain.ErrConnectionExists, ErrCodeConflict, http.StatusConflict},
	{domain.ErrRateLimited, ErrCodeRateLimit, http.StatusTooManyRequests},
	{domain.ErrSendQueueFull, ErrCodeServiceUnavailable, http.StatusServiceUnavailable},
}

// FromDomain maps err onto an AppError. Errors already carrying an AppError
// are returned as is; anything unrecognised becomes INTERNAL_ERROR.
func FromDomain(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr := GetAppError(err); appErr != nil {
		return appErr
	}
	for _, dc := range domainCodes {
		if stderrors.Is(err, dc.target) {
			return WrapError(err, dc.code, err.Error(), dc.status)
		}
	}
	return WrapError(err, ErrCodeInternal, "internal error", http.StatusInternalServerError)
}

// IsAppError checks if error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}
