package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"callrelay/internal/core/domain"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", 400)
	expected := "INVALID_INPUT: test error"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestAppError_WithCause(t *testing.T) {
	originalErr := errors.New("original error")
	err := WrapError(originalErr, ErrCodeInternal, "wrapped error", 500)

	if err.Cause != originalErr {
		t.Errorf("Cause = %v, want %v", err.Cause, originalErr)
	}
	if !strings.Contains(err.Error(), "original error") {
		t.Errorf("Error() should contain cause, got: %v", err.Error())
	}
	if !errors.Is(err, originalErr) {
		t.Error("errors.Is should see the cause through Unwrap")
	}
}

func TestAppError_WithContext(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", 400)
	err.WithContext("field", "value").WithContext("count", 42)

	if err.Context["field"] != "value" {
		t.Errorf("Context[field] = %v, want 'value'", err.Context["field"])
	}
	if err.Context["count"] != 42 {
		t.Errorf("Context[count] = %v, want 42", err.Context["count"])
	}
}

func TestFromDomain(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   ErrorCode
		wantStatus int
	}{
		{"unknown recipient", fmt.Errorf("%w: abc", domain.ErrUnknownRecipient), ErrCodeUnknownRecipient, http.StatusNotFound},
		{"duplicate call", fmt.Errorf("caller x: %w", domain.ErrDuplicateCall), ErrCodeDuplicateCall, http.StatusConflict},
		{"malformed", fmt.Errorf("payload is required: %w", domain.ErrMalformedMessage), ErrCodeMalformedMessage, http.StatusBadRequest},
		{"no pending call", domain.ErrNoPendingCall, ErrCodeNoPendingCall, http.StatusConflict},
		{"no peer", domain.ErrNoPeerAvailable, ErrCodeNoPeerAvailable, http.StatusConflict},
		{"rate limited", domain.ErrRateLimited, ErrCodeRateLimit, http.StatusTooManyRequests},
		{"unrecognised", errors.New("boom"), ErrCodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := FromDomain(tt.err)
			if appErr.Code != tt.wantCode {
				t.Errorf("Code = %v, want %v", appErr.Code, tt.wantCode)
			}
			if appErr.HTTPStatus != tt.wantStatus {
				t.Errorf("HTTPStatus = %v, want %v", appErr.HTTPStatus, tt.wantStatus)
			}
		})
	}

	if FromDomain(nil) != nil {
		t.Error("FromDomain(nil) should be nil")
	}
}

func TestFromDomain_KeepsExistingAppError(t *testing.T) {
	original := NewRateLimitError()
	wrapped := fmt.Errorf("ws: %w", original)

	if got := FromDomain(wrapped); got != original {
		t.Errorf("FromDomain() = %v, want the wrapped AppError", got)
	}
}

func TestGetAppError(t *testing.T) {
	appErr := NewNotFoundError("connection")
	if GetAppError(appErr) != appErr {
		t.Error("GetAppError should return the error itself")
	}
	if GetAppError(fmt.Errorf("outer: %w", appErr)) != appErr {
		t.Error("GetAppError should unwrap")
	}
	if GetAppError(errors.New("plain")) != nil {
		t.Error("GetAppError should return nil for plain errors")
	}
	if !IsAppError(appErr) {
		t.Error("IsAppError should be true")
	}
}
