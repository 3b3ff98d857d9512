package errhandling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
)

func TestErrorCategory(t *testing.T) {
	tests := []struct {
		category ErrorCategory
		expected string
	}{
		{CategoryInvalidConfiguration, "invalid_configuration"},
		{CategoryNotConfigured, "not_configured"},
		{CategoryUnsupportedVersion, "unsupported_version"},
		{CategoryContractViolation, "contract_violation"},
		{CategoryNetwork, "network"},
		{CategoryIO, "io"},
		{CategoryUnknown, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if string(tt.category) != tt.expected {
				t.Errorf("ErrorCategory = %v, want %v", tt.category, tt.expected)
			}
		})
	}
}

func TestClassifiedError_Message(t *testing.T) {
	err := NewNotConfigured("sequence", "no steps configured")
	msg := err.Error()
	if !strings.Contains(msg, "sequence") || !strings.Contains(msg, "not_configured") {
		t.Errorf("Error() = %q, want handler and category", msg)
	}

	wrapped := NewInvalidConfiguration("moveAndModify", "bad query", errors.New("boom"))
	if !strings.Contains(wrapped.Error(), "boom") {
		t.Errorf("Error() = %q, want original error", wrapped.Error())
	}
}

func TestPredicates_ThroughWrapping(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"invalid configuration", NewInvalidConfiguration("h", "m", nil), IsInvalidConfiguration},
		{"invalid query", NewInvalidQuery("A/", "empty segment"), IsInvalidConfiguration},
		{"not configured", NewNotConfigured("h", "m"), IsNotConfigured},
		{"contract violation", NewContractViolation("h", "m"), IsContractViolation},
		{"unsupported version", NewUnsupportedVersion("h", 1, 2), IsUnsupportedVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("step 2: %w", tt.err)
			if !tt.check(wrapped) {
				t.Errorf("predicate false for wrapped %v", wrapped)
			}
		})
	}

	if IsNotConfigured(errors.New("plain")) {
		t.Error("plain error classified as not configured")
	}
}

func TestUnsupportedVersion_CarriesNumbers(t *testing.T) {
	err := NewUnsupportedVersion("removeSubAttributes", 2, 5)

	var uv *UnsupportedVersionError
	if !errors.As(err, &uv) {
		t.Fatal("expected UnsupportedVersionError in chain")
	}
	if uv.Supported != 2 || uv.Found != 5 {
		t.Errorf("got supported=%d found=%d, want 2 and 5", uv.Supported, uv.Found)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		category  ErrorCategory
		retryable bool
	}{
		{"deadline", context.DeadlineExceeded, CategoryNetwork, true},
		{"canceled", context.Canceled, CategoryNetwork, false},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, CategoryNetwork, true},
		{"path", &os.PathError{Op: "open", Path: "/x", Err: os.ErrNotExist}, CategoryIO, false},
		{"plain", errors.New("x"), CategoryUnknown, false},
		{"http 503", ClassifyHTTPStatus(503, "unavailable"), CategoryNetwork, true},
		{"http 404", ClassifyHTTPStatus(404, "missing"), CategoryNetwork, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			if got.Category != tt.category {
				t.Errorf("Category = %v, want %v", got.Category, tt.category)
			}
			if got.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.retryable)
			}
		})
	}
}

func TestGetErrorCategory_Nil(t *testing.T) {
	if GetErrorCategory(nil) != CategoryUnknown {
		t.Error("nil error must be unknown")
	}
	if IsRetryable(nil) {
		t.Error("nil error must not be retryable")
	}
}
