// Package errhandling provides error types, classification, and retry utilities.
// This file defines the error categories raised by output handlers and the
// classification helpers used by composites, the factory and the CLI.
//
// Configuration problems are raised eagerly by constructors and the factory
// (CategoryInvalidConfiguration), never mid-run. At run time only missing
// collaborators (CategoryNotConfigured) and capability contract violations
// (CategoryContractViolation) surface as errors; I/O failures of external
// list sources are classified as network or io errors and may be retried.
package errhandling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
)

// ErrorCategory represents the type/category of an error.
type ErrorCategory string

// Error categories for classification.
const (
	// CategoryInvalidConfiguration covers empty or malformed queries, unmatched
	// template scopes, unknown template identifiers and empty required fields.
	CategoryInvalidConfiguration ErrorCategory = "invalid_configuration"

	// CategoryNotConfigured is raised when a handler runs without a required
	// collaborator (children, selector, scorer, condition).
	CategoryNotConfigured ErrorCategory = "not_configured"

	// CategoryUnsupportedVersion is raised when loading persisted settings
	// saved by a newer version than this runtime supports.
	CategoryUnsupportedVersion ErrorCategory = "unsupported_version"

	// CategoryContractViolation is raised when a configured object does not
	// provide the capability it was selected for.
	CategoryContractViolation ErrorCategory = "contract_violation"

	// CategoryNetwork represents transient network failures (retryable).
	CategoryNetwork ErrorCategory = "network"

	// CategoryIO represents local file system failures (not retryable).
	CategoryIO ErrorCategory = "io"

	// CategoryUnknown represents unclassified errors.
	CategoryUnknown ErrorCategory = "unknown"
)

// Error codes carried by ClassifiedError.
const (
	CodeInvalidConfig      = "INVALID_CONFIGURATION"
	CodeInvalidQuery       = "INVALID_QUERY"
	CodeNotConfigured      = "NOT_CONFIGURED"
	CodeUnsupportedVersion = "UNSUPPORTED_VERSION"
	CodeContractViolation  = "CONTRACT_VIOLATION"
	CodeListSourceFailed   = "LIST_SOURCE_FAILED"
)

// ClassifiedError wraps an error with classification metadata.
type ClassifiedError struct {
	// Category is the error classification category.
	Category ErrorCategory

	// Code is a stable machine-readable code.
	Code string

	// Handler is the handler type that raised the error, if any.
	Handler string

	// Retryable indicates whether the error is transient and can be retried.
	Retryable bool

	// StatusCode is the HTTP status code (0 if not an HTTP error).
	StatusCode int

	// Message is a human-readable error message.
	Message string

	// OriginalErr is the underlying error that was classified.
	OriginalErr error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	prefix := string(e.Category)
	if e.Handler != "" {
		prefix = e.Handler + ": " + prefix
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", prefix, e.StatusCode, e.Message)
	}
	if e.OriginalErr != nil {
		return fmt.Sprintf("%s error: %s: %v", prefix, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("%s error: %s", prefix, e.Message)
}

// Unwrap returns the original error for use with errors.Is and errors.As.
func (e *ClassifiedError) Unwrap() error {
	return e.OriginalErr
}

// UnsupportedVersionError is returned when persisted settings carry a version
// newer than the runtime supports.
type UnsupportedVersionError struct {
	Type      string
	Supported int
	Found     int
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported version of %q settings: found version %d, supported up to %d",
		e.Type, e.Found, e.Supported)
}

// NewInvalidConfiguration creates a configuration error for handler.
func NewInvalidConfiguration(handler, message string, originalErr error) *ClassifiedError {
	return &ClassifiedError{
		Category:    CategoryInvalidConfiguration,
		Code:        CodeInvalidConfig,
		Handler:     handler,
		Message:     message,
		OriginalErr: originalErr,
	}
}

// NewInvalidQuery creates a configuration error for a malformed query.
func NewInvalidQuery(query, message string) *ClassifiedError {
	return &ClassifiedError{
		Category: CategoryInvalidConfiguration,
		Code:     CodeInvalidQuery,
		Message:  fmt.Sprintf("invalid query %q: %s", query, message),
	}
}

// NewNotConfigured creates an error for a handler run without a required collaborator.
func NewNotConfigured(handler, message string) *ClassifiedError {
	return &ClassifiedError{
		Category: CategoryNotConfigured,
		Code:     CodeNotConfigured,
		Handler:  handler,
		Message:  message,
	}
}

// NewContractViolation creates an error for an object lacking a required capability.
func NewContractViolation(handler, message string) *ClassifiedError {
	return &ClassifiedError{
		Category: CategoryContractViolation,
		Code:     CodeContractViolation,
		Handler:  handler,
		Message:  message,
	}
}

// NewUnsupportedVersion creates the error raised when loading settings saved
// by a newer version.
func NewUnsupportedVersion(typ string, supported, found int) *ClassifiedError {
	inner := &UnsupportedVersionError{Type: typ, Supported: supported, Found: found}
	return &ClassifiedError{
		Category:    CategoryUnsupportedVersion,
		Code:        CodeUnsupportedVersion,
		Handler:     typ,
		Message:     "cannot load persisted settings",
		OriginalErr: inner,
	}
}

// NewNetworkError creates a retryable ClassifiedError for network errors.
func NewNetworkError(message string, originalErr error) *ClassifiedError {
	return &ClassifiedError{
		Category:    CategoryNetwork,
		Code:        CodeListSourceFailed,
		Retryable:   true,
		Message:     message,
		OriginalErr: originalErr,
	}
}

// ClassifyHTTPStatus classifies an HTTP response status for a list source fetch.
// 429 and 5xx are retryable network errors; every other status is fatal.
func ClassifyHTTPStatus(statusCode int, message string) *ClassifiedError {
	retryable := statusCode == 429 || statusCode >= 500
	return &ClassifiedError{
		Category:   CategoryNetwork,
		Code:       CodeListSourceFailed,
		Retryable:  retryable,
		StatusCode: statusCode,
		Message:    message,
	}
}

// ClassifyError classifies any error into a ClassifiedError.
// Already classified errors are returned unchanged.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return &ClassifiedError{
			Category:  CategoryUnknown,
			Retryable: false,
			Message:   "nil error",
		}
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ClassifiedError{
			Category:    CategoryNetwork,
			Retryable:   true,
			Message:     "request timeout",
			OriginalErr: err,
		}
	}

	if errors.Is(err, context.Canceled) {
		return &ClassifiedError{
			Category:    CategoryNetwork,
			Retryable:   false,
			Message:     "context canceled",
			OriginalErr: err,
		}
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	var urlErr *url.Error
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) || errors.As(err, &urlErr) {
		return &ClassifiedError{
			Category:    CategoryNetwork,
			Retryable:   true,
			Message:     "network error",
			OriginalErr: err,
		}
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return &ClassifiedError{
			Category:    CategoryIO,
			Retryable:   false,
			Message:     fmt.Sprintf("%s %s", pathErr.Op, pathErr.Path),
			OriginalErr: err,
		}
	}

	return &ClassifiedError{
		Category:    CategoryUnknown,
		Retryable:   false,
		Message:     err.Error(),
		OriginalErr: err,
	}
}

// GetErrorCategory returns the error category for a given error.
// Returns CategoryUnknown for nil or unclassified errors.
func GetErrorCategory(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Category
	}
	return CategoryUnknown
}

// IsRetryable returns true if the error is classified as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return ClassifyError(err).Retryable
}

// IsInvalidConfiguration reports whether err is a configuration error.
func IsInvalidConfiguration(err error) bool {
	return GetErrorCategory(err) == CategoryInvalidConfiguration
}

// IsNotConfigured reports whether err is a missing-collaborator error.
func IsNotConfigured(err error) bool {
	return GetErrorCategory(err) == CategoryNotConfigured
}

// IsContractViolation reports whether err is a capability contract violation.
func IsContractViolation(err error) bool {
	return GetErrorCategory(err) == CategoryContractViolation
}

// IsUnsupportedVersion reports whether err is an unsupported persisted version.
func IsUnsupportedVersion(err error) bool {
	return GetErrorCategory(err) == CategoryUnsupportedVersion
}
