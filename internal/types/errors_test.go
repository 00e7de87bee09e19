package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

// TestAppErrorImplementsError verifies that *AppError satisfies the error interface.
func TestAppErrorImplementsError(t *testing.T) {
	var _ error = (*AppError)(nil)
}

// TestAppErrorErrorFormat verifies the Error() method produces "code: message".
func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeValidationInvalidEmail,
		Message: "recipient address is not a valid email",
	}

	expected := "validation_invalid_email: recipient address is not a valid email"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

// TestAppErrorUnwrap verifies the error chain support via Unwrap.
func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("database connection failed")
	appErr := &AppError{
		Code:    ErrCodeInternalDB,
		Message: "failed to query notifications",
		Err:     underlying,
	}

	if appErr.Unwrap() != underlying {
		t.Errorf("Unwrap() returned unexpected error: got %v, want %v", appErr.Unwrap(), underlying)
	}
}

// TestAppErrorUnwrapNil verifies Unwrap returns nil when no underlying error exists.
func TestAppErrorUnwrapNil(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeNotFoundOrder,
		Message: "order not found",
	}

	if appErr.Unwrap() != nil {
		t.Errorf("Unwrap() should return nil when Err is nil, got %v", appErr.Unwrap())
	}
}

// TestAppErrorErrorsAs verifies that errors.As can extract AppError from an error chain.
func TestAppErrorErrorsAs(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeNotFoundCart,
		Message: "cart not found",
	}
	wrappedErr := fmt.Errorf("handler failed: %w", appErr)

	var extracted *AppError
	if !errors.As(wrappedErr, &extracted) {
		t.Fatalf("errors.As failed to extract *AppError from wrapped chain")
	}
	if extracted.Code != ErrCodeNotFoundCart {
		t.Errorf("extracted Code = %q, want %q", extracted.Code, ErrCodeNotFoundCart)
	}
}

// TestAppErrorErrorsIsUnderlying verifies errors.Is reaches the wrapped cause.
func TestAppErrorErrorsIsUnderlying(t *testing.T) {
	cause := errors.New("connection reset")
	appErr := NewAppError(ErrCodeUpstreamEmailProvider, "send failed", cause)

	if !errors.Is(appErr, cause) {
		t.Errorf("errors.Is should find the underlying cause through AppError")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationInvalidEmail, http.StatusBadRequest},
		{ErrCodeValidationMissingField, http.StatusBadRequest},
		{ErrCodeValidationInvalidEvent, http.StatusBadRequest},
		{ErrCodeAuthUnauthorized, http.StatusUnauthorized},
		{ErrCodeEmailBlocked, http.StatusForbidden},
		{ErrCodeNotFoundOrder, http.StatusNotFound},
		{ErrCodeNotFoundNotification, http.StatusNotFound},
		{ErrCodeNotFoundTemplate, http.StatusNotFound},
		{ErrCodeUpstreamRateLimited, http.StatusTooManyRequests},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrCodeInternalUnexpected, http.StatusInternalServerError},
		{ErrCodeUpstreamEmailProvider, http.StatusBadGateway},
		{ErrCodeUpstreamUnavailable, http.StatusBadGateway},
		{ErrCodeDataUnavailable, http.StatusBadGateway},
		{ErrorCode("something_unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus(%q) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

// TestAppErrorHTTPStatus verifies the convenience method delegates to the code.
func TestAppErrorHTTPStatus(t *testing.T) {
	appErr := NewAppError(ErrCodeNotFoundGiftCard, "gift card not found", nil)
	if got := appErr.HTTPStatus(); got != http.StatusNotFound {
		t.Errorf("HTTPStatus() = %d, want %d", got, http.StatusNotFound)
	}
}

// TestWithDetailsDoesNotMutate verifies WithDetails returns a copy.
func TestWithDetailsDoesNotMutate(t *testing.T) {
	original := NewAppErrorWithDetails(ErrCodeInternalDB, "query failed", nil,
		map[string]any{"table": "notification"})

	augmented := original.WithDetails(map[string]any{"order_id": "order_01"})

	if _, ok := original.Details["order_id"]; ok {
		t.Errorf("WithDetails mutated the original error's details")
	}
	if augmented.Details["table"] != "notification" {
		t.Errorf("WithDetails dropped existing detail %q", "table")
	}
	if augmented.Details["order_id"] != "order_01" {
		t.Errorf("WithDetails did not merge the new detail")
	}
}

func TestNewDataUnavailable(t *testing.T) {
	cause := errors.New("row scan failed")
	err := NewDataUnavailable("order_01", cause)

	if err.Code != ErrCodeDataUnavailable {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodeDataUnavailable)
	}
	if err.Details["order_id"] != "order_01" {
		t.Errorf("Details missing order_id, got %v", err.Details)
	}
	if !errors.Is(err, cause) {
		t.Errorf("cause not reachable through the error chain")
	}
}

func TestIsDataUnavailable(t *testing.T) {
	wrapped := fmt.Errorf("assembly: %w", NewDataUnavailable("order_01", nil))
	if !IsDataUnavailable(wrapped) {
		t.Errorf("IsDataUnavailable should detect a wrapped DataUnavailable error")
	}
	if IsDataUnavailable(errors.New("plain error")) {
		t.Errorf("IsDataUnavailable misidentified a plain error")
	}
	if IsDataUnavailable(NewAppError(ErrCodeInternalDB, "db down", nil)) {
		t.Errorf("IsDataUnavailable misidentified a different AppError code")
	}
}
